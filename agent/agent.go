package agent

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	"github.com/rtrompier/agentai/encoding"
	"github.com/rtrompier/agentai/pkg/llms"
	"github.com/rtrompier/agentai/pkg/llmutils"
	"github.com/rtrompier/agentai/pkg/metricskey"
	"github.com/rtrompier/agentai/pkg/schema"
	"github.com/rtrompier/agentai/tools"
)

//go:generate mockgen -destination=../mocks/mockllms/llm_mock.gen.go -package mockllms github.com/rtrompier/agentai/pkg/llms Model

var logger = xlog.NewPackageLogger("github.com/rtrompier/agentai", "agent")

// Agent drives a bounded tool-calling loop over an LLM. The type parameter C
// is the application context handed to every tool call, the agent never
// inspects it.
//
// An agent accumulates conversation history across runs. Runs on the same
// agent must not overlap.
type Agent[C any] struct {
	llm          llms.Model
	systemPrompt string
	tc           C

	registry    *tools.Registry[C]
	llmToolDefs []llms.Tool

	cfg         *Config
	name        string
	description string
	history     []llms.Message
}

var _ Info = (*Agent[any])(nil)

// New creates an agent bound to the given LLM client. The system prompt
// anchors every run, tc is the application context passed to each tool call.
func New[C any](llm llms.Model, systemPrompt string, tc C, opts ...Option) *Agent[C] {
	return &Agent[C]{
		llm:          llm,
		systemPrompt: systemPrompt,
		tc:           tc,
		registry:     tools.NewRegistry[C](),
		cfg:          NewConfig(opts...),
		name:         "Generic Agent",
		description:  "An AI agent that can perform various tasks.",
	}
}

// WithName sets the name of the agent, used in logs, metrics and callbacks.
func (a *Agent[C]) WithName(name string) *Agent[C] {
	a.name = name
	return a
}

// WithDescription sets the description of the agent, to be used in the prompt
// of other agents or LLMs.
func (a *Agent[C]) WithDescription(description string) *Agent[C] {
	a.description = description
	return a
}

// Name returns the name of the agent.
func (a *Agent[C]) Name() string {
	return a.name
}

// Description returns the description of the agent.
func (a *Agent[C]) Description() string {
	return a.description
}

// Model returns the LLM client the agent is bound to.
func (a *Agent[C]) Model() llms.Model {
	return a.llm
}

// Context returns the application context passed to tool calls.
func (a *Agent[C]) Context() C {
	return a.tc
}

// Tools returns the registered tools in registration order.
func (a *Agent[C]) Tools() []tools.Tool[C] {
	return a.registry.List()
}

// History returns a copy of the conversation history accumulated by
// successful runs.
func (a *Agent[C]) History() []llms.Message {
	msgs := make([]llms.Message, len(a.history))
	copy(msgs, a.history)
	return msgs
}

// ClearHistory drops the accumulated conversation history.
func (a *Agent[C]) ClearHistory() {
	a.history = nil
}

// RegisterTool creates a tool from a name, a description, a JSON schema
// shaped parameters definition and a callable, then adds it to the agent.
func (a *Agent[C]) RegisterTool(name, description string, params any, fn tools.Func[C]) error {
	return a.Register(tools.New(name, description, params, fn))
}

// Register adds tools to the agent. The whole call is rejected with
// tools.ErrDuplicateName when any name, compared case-insensitively, is
// already taken, in that case neither the registry nor the tool definitions
// advertised to the model change.
func (a *Agent[C]) Register(list ...tools.Tool[C]) error {
	if err := a.registry.Register(list...); err != nil {
		return err
	}
	for _, tool := range list {
		a.llmToolDefs = append(a.llmToolDefs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}
	return nil
}

// Run executes the agent loop for the given prompt and returns the final
// answer text. The model argument selects the model name for this run, empty
// keeps the client default.
func (a *Agent[C]) Run(ctx context.Context, model, prompt string, opts ...Option) (string, error) {
	res, err := RunTyped[string](ctx, a, model, prompt, opts...)
	if err != nil {
		return "", err
	}
	return *res, nil
}

// RunTyped executes the agent loop for the given prompt and decodes the final
// answer into T. Decoded answers are validated against struct validation tags
// unless disabled with WithoutValidation.
func RunTyped[T any, C any](ctx context.Context, a *Agent[C], model, prompt string, opts ...Option) (*T, error) {
	started := time.Now()
	defer metricskey.PerfAgentRun.MeasureSince(started, a.name)

	// per run config
	cfg := a.cfg.Apply(opts...)
	cfg.runID = uuid.NewString()

	if cfg.Callback != nil {
		cfg.Callback.OnAgentStart(ctx, a, prompt)
	}

	answer, resp, messages, err := run[T](ctx, a, cfg, model, prompt)
	if err != nil {
		metricskey.StatsAgentRunsFailed.IncrCounter(1, a.name)
		if cfg.Callback != nil {
			cfg.Callback.OnAgentError(ctx, a, prompt, err, messages)
		}
		return nil, err
	}
	metricskey.StatsAgentRunsSucceeded.IncrCounter(1, a.name)
	if cfg.Callback != nil {
		cfg.Callback.OnAgentEnd(ctx, a, prompt, resp, messages)
	}
	return answer, nil
}

// run executes the main loop: send the transcript, dispatch requested tool
// calls, repeat until the model answers without tools or the iteration bound
// is hit, then decode the answer.
func run[T any, C any](ctx context.Context, a *Agent[C], cfg *Config, model, prompt string) (*T, *llms.ContentResponse, []llms.Message, error) {
	var out T
	_, plainText := any(out).(string)

	mode := cfg.Mode
	if plainText {
		mode = encoding.ModePlainText
	}
	parser, err := encoding.NewTypedOutputParser(out, mode)
	if err != nil {
		return nil, nil, nil, errors.WithMessage(err, "failed to create output parser")
	}
	parser.WithValidation(!cfg.SkipValidation)

	prov := a.llm.GetProviderType()

	// Prefer the provider's native structured output. Without it the output
	// schema travels in the system prompt.
	var responseFormat *schema.ResponseFormat
	if !plainText {
		strict := mode == encoding.ModeJSONSchemaStrict && prov.Supports(llms.CapabilityJSONSchemaStrict)
		jsonSchema := (mode == encoding.ModeJSONSchema || mode == encoding.ModeJSONSchemaStrict) &&
			prov.Supports(llms.CapabilityJSONSchema)
		if jsonSchema {
			responseFormat, err = schema.NewResponseFormat(reflect.TypeOf(out), strict)
			if err != nil {
				logger.ContextKV(ctx, xlog.ERROR,
					"agent", a.name,
					"run_id", cfg.runID,
					"status", "failed_to_create_response_format",
					"err", err.Error(),
				)
				responseFormat = nil
			}
		} else if mode == encoding.ModeJSON && prov.Supports(llms.CapabilityJSONResponse) {
			responseFormat = &schema.ResponseFormat{Type: "json_object"}
		}
	}

	systemPrompt := strings.TrimRight(a.systemPrompt, "\n")
	if responseFormat == nil || responseFormat.JSONSchema == nil {
		outputSchema := strings.TrimRight(parser.GetFormatInstructions(), "\n")
		if outputSchema != "" {
			systemPrompt = fmt.Sprintf("%s\n\n# OUTPUT SCHEMA\n%s", systemPrompt, outputSchema)
		}
	}

	messages := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, systemPrompt),
	}
	if cfg.Store != nil && cfg.ConversationID != "" {
		prev, err := cfg.Store.Messages(ctx, cfg.ConversationID)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"agent", a.name,
				"run_id", cfg.runID,
				"conversation_id", cfg.ConversationID,
				"status", "failed_to_load_history",
				"err", err.Error(),
			)
		} else {
			messages = append(messages, prev...)
		}
	} else {
		messages = append(messages, a.history...)
	}

	// messages of this run start here
	runStart := len(messages)
	messages = append(messages, llms.MessageFromTextParts(llms.RoleHuman, prompt))

	callOpts := cfg.GetCallOptions()
	if model != "" {
		callOpts = append(callOpts, llms.WithModel(model))
	}
	if len(a.llmToolDefs) > 0 {
		if !prov.Supports(llms.CapabilityFunctionCalling) {
			return nil, nil, messages, errors.Newf("agent %s: the LLM does not support function calling", a.name)
		}
		callOpts = append(callOpts, llms.WithTools(a.llmToolDefs))
	}
	if responseFormat != nil {
		callOpts = append(callOpts, llms.WithResponseFormat(responseFormat))
	}

	agentName := a.name
	modelName := values.StringsCoalesce(model, a.llm.GetName())
	maxIterations := values.NumbersCoalesce(cfg.MaxIterations, DefaultMaxIterations)

	var resp *llms.ContentResponse
	for iteration := 0; ; iteration++ {
		if iteration >= maxIterations {
			metricskey.StatsAgentIterationLimit.IncrCounter(1, agentName)
			logger.ContextKV(ctx, xlog.WARNING,
				"agent", agentName,
				"run_id", cfg.runID,
				"status", "iteration_limit",
				"iterations", iteration,
				"input", slices.StringUpto(prompt, 64),
			)
			return nil, nil, messages, errors.Mark(
				errors.Newf("agent %s: no final answer after %d iterations", agentName, iteration),
				ErrIterationLimit)
		}

		if cfg.Callback != nil {
			cfg.Callback.OnLLMCallStart(ctx, a, a.llm, messages)
		}

		bytesSent := llmutils.CountMessagesContentSize(messages)
		metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(messages)), agentName, modelName)
		metricskey.StatsLLMBytesSent.IncrCounter(float64(bytesSent), agentName, modelName)

		resp, err = a.llm.GenerateContent(ctx, messages, callOpts...)
		if err != nil {
			return nil, nil, messages, errors.Mark(
				errors.Wrapf(err, "agent %s: failed to generate content", agentName),
				ErrTransport)
		}

		if cfg.Callback != nil {
			cfg.Callback.OnLLMCallEnd(ctx, a, a.llm, resp)
		}

		bytesReceived := llmutils.CountResponseContentSize(resp)
		metricskey.StatsLLMBytesReceived.IncrCounter(float64(bytesReceived), agentName, modelName)
		metricskey.StatsLLMBytesTotal.IncrCounter(float64(bytesSent+bytesReceived), agentName, modelName)

		tokensIn, tokensOut, tokensTotal := llmutils.CountTokens(resp)
		metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), agentName, modelName)
		metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), agentName, modelName)
		metricskey.StatsLLMTotalTokens.IncrCounter(float64(tokensTotal), agentName, modelName)

		if len(resp.Choices) == 0 {
			logger.ContextKV(ctx, xlog.ERROR,
				"agent", agentName,
				"run_id", cfg.runID,
				"status", "empty_choices",
				"input", slices.StringUpto(prompt, 64),
			)
			return nil, nil, messages, errors.Mark(
				errors.Newf("agent %s: LLM returned a response with no choices", agentName),
				ErrTransport)
		}

		var executed int
		executed, messages = a.dispatchToolCalls(ctx, cfg, messages, resp)
		if executed == 0 {
			break
		}
	}

	choices := resp.Choices
	result := choices[0].Content
	if len(choices) > 1 {
		// Handle multiple choices by combining their content
		var combined strings.Builder
		for i, choice := range choices {
			if i > 0 {
				combined.WriteString("\n\n")
			}
			combined.WriteString(choice.Content)
		}
		result = combined.String()
	}

	answer, err := parser.Parse(result)
	if err != nil {
		metricskey.StatsAgentParseErrors.IncrCounter(1, agentName)
		logger.ContextKV(ctx, xlog.DEBUG,
			"agent", agentName,
			"run_id", cfg.runID,
			"status", "failed_to_parse_answer",
			"err", err.Error(),
			"output_parser", parser.Type(),
			"result", result,
		)
		if cfg.Callback != nil {
			cfg.Callback.OnAnswerParseError(ctx, a, prompt, result, err)
		}
		return nil, nil, messages, errors.Mark(
			errors.WithMessagef(err, "agent %s", agentName),
			ErrAnswerFormat)
	}

	messages = append(messages, llms.MessageFromTextParts(llms.RoleAI, result))

	if !cfg.SkipHistoryStore {
		newMessages := messages[runStart:]
		a.history = append(a.history, newMessages...)
		if cfg.Store != nil && cfg.ConversationID != "" {
			_ = cfg.Store.Add(ctx, cfg.ConversationID, newMessages...)
			logger.ContextKV(ctx, xlog.DEBUG,
				"agent", agentName,
				"run_id", cfg.runID,
				"conversation_id", cfg.ConversationID,
				"status", "added_message_history",
				"messages", len(newMessages),
				"human", slices.StringUpto(prompt, 64),
				"ai", slices.StringUpto(result, 64),
			)
		}
	}

	return answer, resp, messages, nil
}

// dispatchToolCalls executes the tool calls requested in the response, one at
// a time in emission order, and appends exactly one tool response message per
// call. It returns the number of dispatched calls.
func (a *Agent[C]) dispatchToolCalls(ctx context.Context, cfg *Config, messages []llms.Message, resp *llms.ContentResponse) (int, []llms.Message) {
	var toolCalls []llms.ToolCall
	for _, choice := range resp.Choices {
		var choiceToolCalls []llms.ToolCall
		for i, toolCall := range choice.ToolCalls {
			if toolCall.ID == "" {
				toolCall.ID = fmt.Sprintf("%s_%d", toolCall.FunctionCall.Name, i)
			}
			toolCall.Type = values.StringsCoalesce(toolCall.Type, "function")
			choiceToolCalls = append(choiceToolCalls, toolCall)

			logger.ContextKV(ctx, xlog.DEBUG,
				"agent", a.name,
				"run_id", cfg.runID,
				"status", "tool_call_found",
				"tool_call_id", toolCall.ID,
				"tool_call_name", toolCall.FunctionCall.Name,
			)
		}
		if len(choiceToolCalls) == 0 {
			continue
		}
		toolCalls = append(toolCalls, choiceToolCalls...)
		messages = append(messages, llms.MessageFromToolCalls(llms.RoleAI, choiceToolCalls...))
	}

	for _, toolCall := range toolCalls {
		content := a.callTool(ctx, cfg, toolCall)
		messages = append(messages, llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
			ToolCallID: toolCall.ID,
			Name:       toolCall.FunctionCall.Name,
			Content:    content,
		}))
	}

	return len(toolCalls), messages
}

// callTool resolves and executes a single tool call. It always returns a
// payload for the model, failures are reported as text and never abort the
// run.
func (a *Agent[C]) callTool(ctx context.Context, cfg *Config, toolCall llms.ToolCall) string {
	toolName := toolCall.FunctionCall.Name
	toolArgs := toolCall.FunctionCall.Arguments

	tool, err := a.registry.Resolve(toolName)
	if err != nil {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, toolName)
		if cfg.Callback != nil {
			cfg.Callback.OnToolNotFound(ctx, a, toolName)
		}
		available := a.registry.Names()
		logger.ContextKV(ctx, xlog.WARNING,
			"agent", a.name,
			"run_id", cfg.runID,
			"status", "tool_not_found",
			"tool_name", toolName,
			"available_tools", strings.Join(available, ", "),
		)
		formatter := cfg.ToolNotFoundFormatter
		if formatter == nil {
			formatter = DefaultToolNotFoundFormatter
		}
		return formatter(toolName, available)
	}

	if cfg.Callback != nil {
		cfg.Callback.OnToolStart(ctx, tool, a.name, toolArgs)
	}

	started := time.Now()
	res, err := tool.Call(ctx, a.tc, toolArgs)
	metricskey.PerfToolCall.MeasureSince(started, toolName)
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, toolName)
		if cfg.Callback != nil {
			cfg.Callback.OnToolError(ctx, tool, a.name, toolArgs, err)
		}
		logger.ContextKV(ctx, xlog.WARNING,
			"agent", a.name,
			"run_id", cfg.runID,
			"status", "tool_call_failed",
			"tool", toolName,
			"err", err.Error(),
		)
		if errors.Is(err, tools.ErrFailedUnmarshalInput) {
			return llmutils.AddComment("agent", a.name, "error", "Failed to unmarshal input, check the JSON schema and try again.")
		}
		formatter := cfg.ToolErrorFormatter
		if formatter == nil {
			formatter = DefaultToolErrorFormatter
		}
		return formatter(toolName, err)
	}
	metricskey.StatsToolCallsSucceeded.IncrCounter(1, toolName)

	if cfg.Callback != nil {
		cfg.Callback.OnToolEnd(ctx, tool, a.name, toolArgs, res)
	}
	return res
}
