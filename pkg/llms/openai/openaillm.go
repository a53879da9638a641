package openai

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/responses"
	"github.com/rtrompier/agentai/pkg/llms"
	"github.com/rtrompier/agentai/pkg/llms/openai/internal/openaiclient"
)

type ChatMessage = openaiclient.ChatMessage

var (
	ErrEmptyResponse = errors.New("openai: no response")
	ErrMissingToken  = errors.New("openai: missing API key, set it in the OPENAI_API_KEY environment variable")
)

const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
	RoleTool      = "tool"
)

type LLM struct {
	client *openaiclient.Client
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	_, c, err := newClient(opts...)
	if err != nil {
		return nil, err
	}
	return &LLM{
		client: c,
	}, err
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.client.Model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderOpenAI
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) { //nolint: lll, cyclop, goerr113, funlen
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	// Plain prompts go to the Responses API when the provider serves it.
	// Tool calling and structured output stay on chat completions.
	if o.client.SupportsResponsesAPI() && len(opts.Tools) == 0 &&
		opts.ResponseFormat == nil && o.client.ResponseFormat == nil && opts.CandidateCount <= 1 {
		if instructions, input, ok := simplePrompt(messages); ok {
			return o.generateResponsesContent(ctx, instructions, input, &opts)
		}
	}

	chatMsgs := make([]*ChatMessage, 0, len(messages))
	for _, mc := range messages {
		msg := &ChatMessage{}
		switch mc.Role {
		case llms.RoleSystem:
			msg.Role = RoleSystem
		case llms.RoleAI:
			msg.Role = RoleAssistant
		case llms.RoleHuman, llms.RoleGeneric:
			msg.Role = RoleUser
		case llms.RoleTool:
			msg.Role = RoleTool
			// A tool message carries exactly one ToolCallResponse part, which
			// populates the content and the tool_call_id field.
			if len(mc.Parts) != 1 {
				return nil, errors.Errorf("expected exactly one part for role %v, got %v", mc.Role, len(mc.Parts))
			}
			switch p := mc.Parts[0].(type) {
			case llms.ToolCallResponse:
				msg.ToolCallID = p.ToolCallID
				msg.Name = p.Name
				msg.Content = p.Content
			default:
				return nil, errors.Errorf("expected part of type ToolCallResponse for role %v, got %T", mc.Role, mc.Parts[0])
			}
			chatMsgs = append(chatMsgs, msg)
			continue
		default:
			return nil, errors.Errorf("role %v not supported", mc.Role)
		}

		// Here we extract tool calls from the message and populate the ToolCalls field.
		texts, toolCalls := ExtractToolParts(mc)
		msg.Content = strings.Join(texts, "\n")
		msg.ToolCalls = toolCallsFromToolCalls(toolCalls)

		chatMsgs = append(chatMsgs, msg)
	}

	req := &openaiclient.ChatRequest{
		Model:               opts.Model,
		Messages:            chatMsgs,
		Temperature:         opts.Temperature,
		TopP:                opts.TopP,
		MaxCompletionTokens: opts.MaxTokens,
		N:                   opts.CandidateCount,
		StopWords:           opts.StopWords,
		FrequencyPenalty:    opts.FrequencyPenalty,
		PresencePenalty:     opts.PresencePenalty,
		Seed:                opts.Seed,
		ToolChoice:          opts.ToolChoice,
		Metadata:            opts.Metadata,
		ResponseFormat:      opts.ResponseFormat,
	}

	for _, tool := range opts.Tools {
		t, err := toolFromTool(tool)
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert llms tool to openai tool")
		}
		req.Tools = append(req.Tools, t)
	}

	// if o.client.ResponseFormat is set, use it for the request
	if o.client.ResponseFormat != nil {
		req.ResponseFormat = o.client.ResponseFormat
	}

	result, err := o.client.CreateChat(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(result.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: c.FinishReason,
			GenerationInfo: map[string]any{
				"InputTokens":     result.Usage.PromptTokens,
				"OutputTokens":    result.Usage.CompletionTokens,
				"TotalTokens":     result.Usage.TotalTokens,
				"ReasoningTokens": result.Usage.CompletionTokensDetails.ReasoningTokens,
			},
		}

		for _, tool := range c.Message.ToolCalls {
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   tool.ID,
				Type: string(tool.Type),
				FunctionCall: &llms.FunctionCall{
					Name:      tool.Function.Name,
					Arguments: tool.Function.Arguments,
				},
			})
		}
	}
	response := &llms.ContentResponse{Choices: choices}
	return response, nil
}

// generateResponsesContent serves a plain prompt over the Responses API.
func (o *LLM) generateResponsesContent(ctx context.Context, instructions, input string, opts *llms.CallOptions) (*llms.ContentResponse, error) {
	params := &responses.ResponseNewParams{
		Model: opts.Model,
		Input: responses.ResponseNewParamsInputUnion{OfString: param.NewOpt(input)},
	}
	if instructions != "" {
		params.Instructions = param.NewOpt(instructions)
	}
	if opts.Temperature > 0 {
		params.Temperature = param.NewOpt(opts.Temperature)
	}
	if opts.TopP > 0 {
		params.TopP = param.NewOpt(opts.TopP)
	}
	if opts.MaxTokens > 0 {
		params.MaxOutputTokens = param.NewOpt(int64(opts.MaxTokens))
	}

	result, err := o.client.CreateResponse(ctx, params)
	if err != nil {
		return nil, err
	}
	content := result.OutputText()
	if content == "" {
		return nil, ErrEmptyResponse
	}

	choice := &llms.ContentChoice{
		Content:    content,
		StopReason: string(result.Status),
		GenerationInfo: map[string]any{
			"InputTokens":  result.Usage.InputTokens,
			"OutputTokens": result.Usage.OutputTokens,
			"TotalTokens":  result.Usage.TotalTokens,
			"ID":           result.ID,
		},
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}}, nil
}

// simplePrompt reports whether the conversation is a plain prompt the
// Responses API can serve: an optional run of leading system messages
// followed by a single human message, all text parts. It returns the
// flattened system instructions and user input.
func simplePrompt(messages []llms.Message) (instructions string, input string, ok bool) {
	var sys, user []string
	seenHuman := false
	for _, mc := range messages {
		switch mc.Role {
		case llms.RoleSystem:
			if seenHuman {
				return "", "", false
			}
		case llms.RoleHuman:
			if seenHuman {
				return "", "", false
			}
			seenHuman = true
		default:
			return "", "", false
		}
		for _, part := range mc.Parts {
			p, isText := part.(llms.TextContent)
			if !isText {
				return "", "", false
			}
			if mc.Role == llms.RoleSystem {
				sys = append(sys, p.Text)
			} else {
				user = append(user, p.Text)
			}
		}
	}
	if !seenHuman {
		return "", "", false
	}
	return strings.Join(sys, "\n"), strings.Join(user, "\n"), true
}

// ExtractToolParts splits a message into its text parts and tool calls.
func ExtractToolParts(msg llms.Message) ([]string, []llms.ToolCall) {
	var texts []string
	var toolCalls []llms.ToolCall
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			texts = append(texts, p.Text)
		case llms.ToolCall:
			toolCalls = append(toolCalls, p)
		}
	}
	return texts, toolCalls
}

// toolFromTool converts an llms.Tool to a Tool.
func toolFromTool(t llms.Tool) (openaiclient.Tool, error) {
	tool := openaiclient.Tool{
		Type: openaiclient.ToolType(t.Type),
	}
	switch t.Type {
	case string(openaiclient.ToolTypeFunction):
		tool.Function = openaiclient.FunctionDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
			Strict:      t.Function.Strict,
		}
	default:
		return openaiclient.Tool{}, errors.Errorf("tool type %v not supported", t.Type)
	}
	return tool, nil
}

// toolCallsFromToolCalls converts a slice of llms.ToolCall to a slice of ToolCall.
func toolCallsFromToolCalls(tcs []llms.ToolCall) []openaiclient.ToolCall {
	toolCalls := make([]openaiclient.ToolCall, len(tcs))
	for i, tc := range tcs {
		toolCalls[i] = toolCallFromToolCall(tc)
	}
	return toolCalls
}

// toolCallFromToolCall converts an llms.ToolCall to a ToolCall.
func toolCallFromToolCall(tc llms.ToolCall) openaiclient.ToolCall {
	return openaiclient.ToolCall{
		ID:   tc.ID,
		Type: openaiclient.ToolType(tc.Type),
		Function: openaiclient.ToolFunction{
			Name:      tc.FunctionCall.Name,
			Arguments: tc.FunctionCall.Arguments,
		},
	}
}
