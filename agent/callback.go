package agent

import (
	"context"

	"github.com/rtrompier/agentai/pkg/llms"
	"github.com/rtrompier/agentai/tools"
)

// Info is the read-only view of an agent passed to callbacks, so handlers do
// not depend on the agent's context type parameter.
type Info interface {
	// Name returns the name of the agent.
	Name() string
	// Description returns the description of the agent.
	Description() string
}

// Callback receives agent lifecycle events. Implementations must be safe for
// use across runs. See the callbacks package for ready-made handlers.
type Callback interface {
	tools.Callback

	// OnAgentStart is called at the beginning of a run.
	OnAgentStart(ctx context.Context, agent Info, input string)
	// OnAgentEnd is called after a successful run with the final response and
	// the full message transcript of the run.
	OnAgentEnd(ctx context.Context, agent Info, input string, resp *llms.ContentResponse, messages []llms.Message)
	// OnAgentError is called when a run fails, with the messages accumulated
	// up to the failure.
	OnAgentError(ctx context.Context, agent Info, input string, err error, messages []llms.Message)
	// OnAnswerParseError is called when the final answer cannot be decoded
	// into the requested type. OnAgentError follows.
	OnAnswerParseError(ctx context.Context, agent Info, input string, response string, err error)
	// OnLLMCallStart is called before each LLM round trip with the payload.
	OnLLMCallStart(ctx context.Context, agent Info, llm llms.Model, payload []llms.Message)
	// OnLLMCallEnd is called after each successful LLM round trip.
	OnLLMCallEnd(ctx context.Context, agent Info, llm llms.Model, resp *llms.ContentResponse)
	// OnToolNotFound is called when the model requests a tool that is not
	// registered. The run continues, the model is told about the mismatch.
	OnToolNotFound(ctx context.Context, agent Info, tool string)
}
