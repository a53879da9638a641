package agent_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rtrompier/agentai/agent"
	"github.com/rtrompier/agentai/encoding"
	"github.com/rtrompier/agentai/mocks/mockllms"
	"github.com/rtrompier/agentai/pkg/llms"
	"github.com/rtrompier/agentai/store"
	"github.com/rtrompier/agentai/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type runContext struct {
	Tenant string
	Calls  []string
}

func newMockLLM(ctrl *gomock.Controller, provider llms.ProviderType) *mockllms.MockModel {
	mockLLM := mockllms.NewMockModel(ctrl)
	mockLLM.EXPECT().GetName().Return("gpt-4o").AnyTimes()
	mockLLM.EXPECT().GetProviderType().Return(provider).AnyTimes()
	return mockLLM
}

func textResponse(content string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: content}},
	}
}

func Test_Agent_BuilderMethods(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLLM := newMockLLM(ctrl, llms.ProviderOpenAI)
	tc := &runContext{Tenant: "t1"}

	ag := agent.New(mockLLM, "You are a helpful assistant.", tc)
	assert.Equal(t, "Generic Agent", ag.Name())
	assert.NotEmpty(t, ag.Description())
	assert.Equal(t, tc, ag.Context())
	assert.Equal(t, mockLLM, ag.Model())
	assert.Empty(t, ag.Tools())
	assert.Empty(t, ag.History())

	ag = ag.WithName("TestAgent").WithDescription("Test Description")
	assert.Equal(t, "TestAgent", ag.Name())
	assert.Equal(t, "Test Description", ag.Description())
}

func Test_Agent_RegisterTool(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLLM := newMockLLM(ctrl, llms.ProviderOpenAI)
	ag := agent.New(mockLLM, "You are a helpful assistant.", &runContext{})

	err := ag.RegisterTool("get_weather", "Returns the current weather.", nil,
		func(ctx context.Context, tc *runContext, input string) (string, error) {
			return "sunny", nil
		})
	require.NoError(t, err)
	require.Len(t, ag.Tools(), 1)
	assert.Equal(t, "get_weather", ag.Tools()[0].Name())

	// duplicate names are rejected, the registration is all-or-nothing
	err = ag.RegisterTool("GET_WEATHER", "Shadows the first tool.", nil,
		func(ctx context.Context, tc *runContext, input string) (string, error) {
			return "", nil
		})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tools.ErrDuplicateName))
	require.Len(t, ag.Tools(), 1)
	assert.Equal(t, "Returns the current weather.", ag.Tools()[0].Description())

	// the tool definitions advertised to the model are unchanged as well
	var opts llms.CallOptions
	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
			for _, o := range options {
				o(&opts)
			}
			return textResponse("done"), nil
		}).Times(1)

	_, err = ag.Run(context.Background(), "", "hello")
	require.NoError(t, err)
	require.Len(t, opts.Tools, 1)
	assert.Equal(t, "function", opts.Tools[0].Type)
	assert.Equal(t, "get_weather", opts.Tools[0].Function.Name)
}

func Test_Agent_Run_DirectAnswer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLLM := newMockLLM(ctrl, llms.ProviderOpenAI)
	ag := agent.New(mockLLM, "You are a helpful assistant.", &runContext{}).WithName("DirectAgent")

	var payload []llms.Message
	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
			payload = messages
			return textResponse("Hello there!"), nil
		}).Times(1)

	res, err := ag.Run(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there!", res)

	// a response without tool calls ends the run after a single round trip
	require.Len(t, payload, 2)
	assert.Equal(t, llms.RoleSystem, payload[0].Role)
	assert.Equal(t, "You are a helpful assistant.", payload[0].Parts[0].(llms.TextContent).Text)
	assert.Equal(t, llms.RoleHuman, payload[1].Role)
	assert.Equal(t, "hi", payload[1].Parts[0].(llms.TextContent).Text)

	// history keeps the user prompt and the final answer
	history := ag.History()
	require.Len(t, history, 2)
	assert.Equal(t, llms.RoleHuman, history[0].Role)
	assert.Equal(t, llms.RoleAI, history[1].Role)
	assert.Equal(t, "Hello there!", history[1].Parts[0].(llms.TextContent).Text)
}

func Test_Agent_Run_ModelSelection(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLLM := newMockLLM(ctrl, llms.ProviderOpenAI)
	ag := agent.New(mockLLM, "You are a helpful assistant.", &runContext{})

	var opts llms.CallOptions
	capture := func(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
		opts = llms.CallOptions{}
		for _, o := range options {
			o(&opts)
		}
		return textResponse("ok"), nil
	}

	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(capture).Times(1)
	_, err := ag.Run(context.Background(), "gpt-4o-mini", "hi")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", opts.Model)
	// the default temperature travels with every call
	assert.InDelta(t, agent.DefaultTemperature, opts.Temperature, 0.0001)

	// empty model keeps the client default
	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(capture).Times(1)
	_, err = ag.Run(context.Background(), "", "hi", agent.WithTemperature(0.7), agent.WithMaxTokens(100))
	require.NoError(t, err)
	assert.Empty(t, opts.Model)
	assert.InDelta(t, 0.7, opts.Temperature, 0.0001)
	assert.Equal(t, 100, opts.MaxTokens)
}

func Test_Agent_Run_TransportError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLLM := newMockLLM(ctrl, llms.ProviderOpenAI)
	ag := agent.New(mockLLM, "You are a helpful assistant.", &runContext{})

	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, assert.AnError).Times(1)

	_, err := ag.Run(context.Background(), "", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, agent.ErrTransport))
	assert.Empty(t, ag.History())
}

func Test_Agent_Run_EmptyChoices(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLLM := newMockLLM(ctrl, llms.ProviderOpenAI)
	ag := agent.New(mockLLM, "You are a helpful assistant.", &runContext{})

	// an empty response is a transport failure, there is no retry
	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(&llms.ContentResponse{}, nil).Times(1)

	_, err := ag.Run(context.Background(), "", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, agent.ErrTransport))
	assert.Empty(t, ag.History())
}

func Test_Agent_Run_MultipleChoices(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLLM := newMockLLM(ctrl, llms.ProviderOpenAI)
	ag := agent.New(mockLLM, "You are a helpful assistant.", &runContext{})

	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(&llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: "First answer."},
			{Content: "Second answer."},
		},
	}, nil).Times(1)

	res, err := ag.Run(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "First answer.\n\nSecond answer.", res)
}

type colorAnswer struct {
	Answer string `json:"answer" validate:"required" jsonschema:"description=The color name"`
}

func Test_RunTyped(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLLM := newMockLLM(ctrl, llms.ProviderOpenAI)
	ag := agent.New(mockLLM, "You answer questions about colors.", &runContext{})

	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(textResponse(`{"answer":"blue"}`), nil).Times(1)

	res, err := agent.RunTyped[colorAnswer](context.Background(), ag, "", "What color is the sky?")
	require.NoError(t, err)
	assert.Equal(t, "blue", res.Answer)

	// code fences around the payload are tolerated
	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(textResponse("```json\n{\"answer\":\"green\"}\n```"), nil).Times(1)

	res, err = agent.RunTyped[colorAnswer](context.Background(), ag, "", "What color is grass?")
	require.NoError(t, err)
	assert.Equal(t, "green", res.Answer)
}

func Test_RunTyped_AnswerFormat(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLLM := newMockLLM(ctrl, llms.ProviderOpenAI)
	ag := agent.New(mockLLM, "You answer questions about colors.", &runContext{})

	// wrong field name leaves the required field empty, validation rejects it
	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(textResponse(`{"result":"blue"}`), nil).Times(1)

	_, err := agent.RunTyped[colorAnswer](context.Background(), ag, "", "What color is the sky?")
	require.Error(t, err)
	assert.True(t, errors.Is(err, agent.ErrAnswerFormat))
	// a failed run does not touch the history
	assert.Empty(t, ag.History())

	// prose instead of the requested format fails decoding
	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(textResponse("The sky is blue."), nil).Times(1)

	_, err = agent.RunTyped[colorAnswer](context.Background(), ag, "", "What color is the sky?")
	require.Error(t, err)
	assert.True(t, errors.Is(err, agent.ErrAnswerFormat))

	// validation can be disabled per run
	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(textResponse(`{"result":"blue"}`), nil).Times(1)

	res, err := agent.RunTyped[colorAnswer](context.Background(), ag, "", "What color is the sky?",
		agent.WithoutValidation())
	require.NoError(t, err)
	assert.Empty(t, res.Answer)
}

func Test_RunTyped_ResponseFormat(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	capture := func(opts *llms.CallOptions, payload *[]llms.Message) func(context.Context, []llms.Message, ...llms.CallOption) (*llms.ContentResponse, error) {
		return func(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
			*opts = llms.CallOptions{}
			for _, o := range options {
				o(opts)
			}
			*payload = messages
			return textResponse(`{"answer":"blue"}`), nil
		}
	}

	// OpenAI supports JSON schema natively, the schema travels as a response
	// format and the system prompt stays clean
	mockOpenAI := newMockLLM(ctrl, llms.ProviderOpenAI)
	var opts llms.CallOptions
	var payload []llms.Message
	mockOpenAI.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(capture(&opts, &payload)).Times(1)

	ag := agent.New(mockOpenAI, "You answer questions about colors.", &runContext{})
	_, err := agent.RunTyped[colorAnswer](context.Background(), ag, "", "What color is the sky?")
	require.NoError(t, err)
	require.NotNil(t, opts.ResponseFormat)
	assert.Equal(t, "json_schema", opts.ResponseFormat.Type)
	require.NotNil(t, opts.ResponseFormat.JSONSchema)
	assert.False(t, opts.ResponseFormat.JSONSchema.Strict)
	assert.NotContains(t, payload[0].Parts[0].(llms.TextContent).Text, "# OUTPUT SCHEMA")

	// strict schema is requested per run
	mockOpenAI.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(capture(&opts, &payload)).Times(1)
	_, err = agent.RunTyped[colorAnswer](context.Background(), ag, "", "What color is the sky?",
		agent.WithStrictSchema())
	require.NoError(t, err)
	require.NotNil(t, opts.ResponseFormat)
	require.NotNil(t, opts.ResponseFormat.JSONSchema)
	assert.True(t, opts.ResponseFormat.JSONSchema.Strict)

	// Anthropic has no JSON schema support, the schema is appended to the
	// system prompt instead
	mockAnthropic := newMockLLM(ctrl, llms.ProviderAnthropic)
	mockAnthropic.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(capture(&opts, &payload)).Times(1)

	ag = agent.New(mockAnthropic, "You answer questions about colors.", &runContext{})
	_, err = agent.RunTyped[colorAnswer](context.Background(), ag, "", "What color is the sky?")
	require.NoError(t, err)
	assert.Nil(t, opts.ResponseFormat)
	sysPrompt := payload[0].Parts[0].(llms.TextContent).Text
	assert.Contains(t, sysPrompt, "# OUTPUT SCHEMA")
	assert.Contains(t, sysPrompt, "Respond with JSON in the following JSON schema:")

	// plain JSON mode requests a json_object response and keeps the schema
	// in the prompt
	mockOpenAI2 := newMockLLM(ctrl, llms.ProviderOpenAI)
	mockOpenAI2.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(capture(&opts, &payload)).Times(1)

	ag = agent.New(mockOpenAI2, "You answer questions about colors.", &runContext{})
	_, err = agent.RunTyped[colorAnswer](context.Background(), ag, "", "What color is the sky?",
		agent.WithMode(encoding.ModeJSON))
	require.NoError(t, err)
	require.NotNil(t, opts.ResponseFormat)
	assert.Equal(t, "json_object", opts.ResponseFormat.Type)
	assert.Nil(t, opts.ResponseFormat.JSONSchema)
	assert.Contains(t, payload[0].Parts[0].(llms.TextContent).Text, "# OUTPUT SCHEMA")
}

func Test_Agent_History(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLLM := newMockLLM(ctrl, llms.ProviderOpenAI)
	ag := agent.New(mockLLM, "You are a helpful assistant.", &runContext{})

	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(textResponse("Nice to meet you, Ola!"), nil).Times(1)
	_, err := ag.Run(context.Background(), "", "My name is Ola.")
	require.NoError(t, err)

	// the second run carries the previous turns
	var payload []llms.Message
	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
			payload = messages
			return textResponse("Your name is Ola."), nil
		}).Times(1)
	res, err := ag.Run(context.Background(), "", "What is my name?")
	require.NoError(t, err)
	assert.Equal(t, "Your name is Ola.", res)

	require.Len(t, payload, 4)
	assert.Equal(t, llms.RoleSystem, payload[0].Role)
	assert.Equal(t, "My name is Ola.", payload[1].Parts[0].(llms.TextContent).Text)
	assert.Equal(t, "Nice to meet you, Ola!", payload[2].Parts[0].(llms.TextContent).Text)
	assert.Equal(t, "What is my name?", payload[3].Parts[0].(llms.TextContent).Text)

	require.Len(t, ag.History(), 4)

	ag.ClearHistory()
	assert.Empty(t, ag.History())

	// runs can be kept out of the history
	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(textResponse("ok"), nil).Times(1)
	_, err = ag.Run(context.Background(), "", "do not remember this", agent.WithSkipHistoryStore(true))
	require.NoError(t, err)
	assert.Empty(t, ag.History())
}

func Test_Agent_Store(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ms := store.NewMemory()
	ctx := context.Background()

	mockLLM := newMockLLM(ctrl, llms.ProviderOpenAI)
	ag := agent.New(mockLLM, "You are a helpful assistant.", &runContext{},
		agent.WithStore(ms, "conv-1"))

	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(textResponse("Nice to meet you, Kari!"), nil).Times(1)
	_, err := ag.Run(ctx, "", "My name is Kari.")
	require.NoError(t, err)

	stored, err := ms.Messages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, llms.RoleHuman, stored[0].Role)
	assert.Equal(t, llms.RoleAI, stored[1].Role)

	// a fresh agent resumes the conversation from the store
	mockLLM2 := newMockLLM(ctrl, llms.ProviderOpenAI)
	ag2 := agent.New(mockLLM2, "You are a helpful assistant.", &runContext{},
		agent.WithStore(ms, "conv-1"))

	var payload []llms.Message
	mockLLM2.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
			payload = messages
			return textResponse("Your name is Kari."), nil
		}).Times(1)
	_, err = ag2.Run(ctx, "", "What is my name?")
	require.NoError(t, err)

	require.Len(t, payload, 4)
	assert.Equal(t, "My name is Kari.", payload[1].Parts[0].(llms.TextContent).Text)
	assert.Equal(t, "Nice to meet you, Kari!", payload[2].Parts[0].(llms.TextContent).Text)

	stored, err = ms.Messages(ctx, "conv-1")
	require.NoError(t, err)
	assert.Len(t, stored, 4)
}

type failingStore struct{}

func (s *failingStore) Messages(ctx context.Context, id string) ([]llms.Message, error) {
	return nil, errors.New("store unavailable")
}

func (s *failingStore) Add(ctx context.Context, id string, msgs ...llms.Message) error {
	return errors.New("store unavailable")
}

func (s *failingStore) Reset(ctx context.Context, id string) error {
	return errors.New("store unavailable")
}

func Test_Agent_Store_LoadFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLLM := newMockLLM(ctrl, llms.ProviderOpenAI)
	ag := agent.New(mockLLM, "You are a helpful assistant.", &runContext{},
		agent.WithStore(&failingStore{}, "conv-1"))

	// a broken store is logged and skipped, the run proceeds without history
	var payload []llms.Message
	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
			payload = messages
			return textResponse("ok"), nil
		}).Times(1)

	res, err := ag.Run(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Len(t, payload, 2)
}

func Test_Agent_FunctionCallingUnsupported(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// a provider without function calling support rejects runs with tools
	mockLLM := newMockLLM(ctrl, llms.ProviderType("LLAMACPP"))
	ag := agent.New(mockLLM, "You are a helpful assistant.", &runContext{})

	require.NoError(t, ag.RegisterTool("get_weather", "Returns the current weather.", nil,
		func(ctx context.Context, tc *runContext, input string) (string, error) {
			return "sunny", nil
		}))

	_, err := ag.Run(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support function calling")
}
