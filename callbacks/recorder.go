package callbacks

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rtrompier/agentai/agent"
	"github.com/rtrompier/agentai/pkg/llms"
	"github.com/rtrompier/agentai/pkg/llmutils"
	"github.com/rtrompier/agentai/tools"
)

// ensure Recorder implements agent.Callback
var _ agent.Callback = (*Recorder)(nil)

var TimeNowFn = time.Now

// RunStats aggregates the counters collected by a Recorder.
type RunStats struct {
	Duration           time.Duration
	TotalMessages      uint32
	LLMBytesOut        uint64
	LLMBytesIn         uint64
	LLMInputTokens     uint64
	LLMOutputTokens    uint64
	LLMTotalTokens     uint64
	AgentRuns          uint32
	AgentRunsSucceeded uint32
	AgentRunsFailed    uint32
	ParseErrors        uint32
	LLMCalls           uint32
	ToolCalls          uint32
	ToolCallsSucceeded uint32
	ToolCallsFailed    uint32
	ToolNotFound       uint32
}

// Recorder is a callback handler that accumulates run statistics and a
// timestamped transcript, useful for debugging agent runs and for usage
// accounting. End returns the collected stats and the transcript.
type Recorder struct {
	mode    Mode
	started time.Time
	stats   RunStats

	lock sync.Mutex
	w    bytes.Buffer
}

func NewRecorder(mode Mode) *Recorder {
	l := &Recorder{
		mode:    mode,
		started: TimeNowFn(),
	}
	l.print("*** Run Started ***")
	return l
}

// End closes the transcript with a summary and returns the collected stats
// and the transcript bytes.
func (l *Recorder) End() (*RunStats, []byte) {
	stats := l.stats
	stats.Duration = time.Since(l.started)

	l.print(fmt.Sprintf("Agent runs: %d, Failed: %d",
		stats.AgentRuns,
		stats.AgentRunsFailed,
	))
	l.print(fmt.Sprintf("Tool calls: %d, Failed: %d, Not Found: %d",
		stats.ToolCalls,
		stats.ToolCallsFailed,
		stats.ToolNotFound,
	))
	l.print(fmt.Sprintf("LLM calls: %d, Messages: %d, Bytes Out: %d, Bytes In: %d, Bytes Total: %d, Input Tokens: %d, Output Tokens: %d, Total Tokens: %d",
		stats.LLMCalls,
		stats.TotalMessages,
		stats.LLMBytesOut,
		stats.LLMBytesIn,
		stats.LLMBytesOut+stats.LLMBytesIn,
		stats.LLMInputTokens,
		stats.LLMOutputTokens,
		stats.LLMTotalTokens,
	))

	l.print(fmt.Sprintf("*** Run Ended. Duration: %s ***", stats.Duration))

	l.lock.Lock()
	defer l.lock.Unlock()
	return &stats, l.w.Bytes()
}

func (l *Recorder) OnAgentStart(ctx context.Context, ag agent.Info, input string) {
	atomic.AddUint32(&l.stats.AgentRuns, 1)
	l.print(ag.Name(), "*** Agent Start ***")
	l.print(ag.Name(), "Input:", input)
}

func (l *Recorder) OnAgentEnd(ctx context.Context, ag agent.Info, input string, resp *llms.ContentResponse, messages []llms.Message) {
	atomic.AddUint32(&l.stats.AgentRunsSucceeded, 1)
	atomic.AddUint64(&l.stats.LLMBytesIn, llmutils.CountResponseContentSize(resp))

	if l.mode == ModeVerbose {
		l.print(ag.Name(), "Output:")
		for _, choice := range resp.Choices {
			if choice.Content != "" {
				l.print(choice.Content)
			}
		}
		l.print(ag.Name(), printMessages(messages))
	}
	l.print(ag.Name(), "*** Agent End ***")
}

func (l *Recorder) OnAgentError(ctx context.Context, ag agent.Info, input string, err error, messages []llms.Message) {
	atomic.AddUint32(&l.stats.AgentRunsFailed, 1)
	l.print(ag.Name(), "*** Error ***", err.Error())
	l.print(ag.Name(), printMessages(messages))
}

func (l *Recorder) OnAnswerParseError(ctx context.Context, ag agent.Info, input string, response string, err error) {
	atomic.AddUint32(&l.stats.ParseErrors, 1)
	l.print(ag.Name(), "*** Answer Parse Error ***", err.Error())
	l.print("Response:", response)
}

func (l *Recorder) OnLLMCallStart(ctx context.Context, ag agent.Info, llm llms.Model, payload []llms.Message) {
	atomic.AddUint64(&l.stats.LLMBytesOut, llmutils.CountMessagesContentSize(payload))
	atomic.AddUint32(&l.stats.LLMCalls, 1)
	count := uint32(len(payload))
	atomic.AddUint32(&l.stats.TotalMessages, count)

	l.print(ag.Name(), "*** LLM Call ***", fmt.Sprintf("%s model, %d messages", llm.GetName(), count))
	if l.mode == ModeVerbose {
		l.print(ag.Name(), printMessages(payload))
	}
}

func (l *Recorder) OnLLMCallEnd(ctx context.Context, ag agent.Info, llm llms.Model, resp *llms.ContentResponse) {
	tokensIn, tokensOut, tokensTotal := llmutils.CountTokens(resp)
	atomic.AddUint64(&l.stats.LLMInputTokens, uint64(tokensIn))
	atomic.AddUint64(&l.stats.LLMOutputTokens, uint64(tokensOut))
	atomic.AddUint64(&l.stats.LLMTotalTokens, uint64(tokensTotal))

	l.print(ag.Name(), "*** LLM Call End ***", fmt.Sprintf("%s model, %d input tokens, %d output tokens, %d total tokens", llm.GetName(), tokensIn, tokensOut, tokensTotal))
}

func (l *Recorder) OnToolStart(ctx context.Context, tool tools.ITool, agentName, input string) {
	atomic.AddUint32(&l.stats.ToolCalls, 1)
	l.print(agentName, tool.Name(), "*** Tool Start ***")
	l.print(agentName, tool.Name(), "Input:", input)
}

func (l *Recorder) OnToolEnd(ctx context.Context, tool tools.ITool, agentName, input string, output string) {
	atomic.AddUint32(&l.stats.ToolCallsSucceeded, 1)
	if l.mode == ModeVerbose {
		l.print(agentName, tool.Name(), "Output:", output)
	}
	l.print(agentName, tool.Name(), "*** Tool End ***")
}

func (l *Recorder) OnToolError(ctx context.Context, tool tools.ITool, agentName, input string, err error) {
	atomic.AddUint32(&l.stats.ToolCallsFailed, 1)
	l.print(agentName, tool.Name(), "*** Tool Error ***", err.Error())
}

func (l *Recorder) OnToolNotFound(ctx context.Context, ag agent.Info, tool string) {
	atomic.AddUint32(&l.stats.ToolNotFound, 1)
	l.print(ag.Name(), "*** Tool Not Found ***", tool)
}

func printMessages(messages []llms.Message) string {
	var buf strings.Builder
	buf.WriteString("Messages:\n")
	for idx, msg := range messages {
		fmt.Fprintf(&buf, "[%d] %s:\n", idx, msg.Role)
		textParts := 0
		toolParts := 0
		toolResponseParts := 0
		for _, part := range msg.Parts {
			switch typ := part.(type) {
			case llms.TextContent:
				textParts++
			case llms.ToolCall:
				toolParts++
				buf.WriteString("  - ")
				buf.WriteString(typ.String())
				buf.WriteString("\n")
			case llms.ToolCallResponse:
				toolResponseParts++
				buf.WriteString("  - ")
				buf.WriteString(typ.String())
				buf.WriteString("\n")
			}
		}

		fmt.Fprintf(&buf, "  - %d texts, %d tool calls, %d tool responses\n", textParts, toolParts, toolResponseParts)
	}
	return buf.String()
}

// print writes the entries to the transcript.
// The entries are written in the following format:
// timestamp entry entry\n
func (l *Recorder) print(entries ...string) {
	l.lock.Lock()
	defer l.lock.Unlock()

	now := TimeNowFn()
	ts := now.Format("2006-01-02 15:04:05")

	_, _ = l.w.WriteString(ts)

	for _, entry := range entries {
		_, _ = l.w.WriteString(" ")
		_, _ = l.w.WriteString(entry)
	}
	_, _ = l.w.WriteString("\n")
}
