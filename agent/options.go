package agent

import (
	"fmt"
	"strings"

	"github.com/rtrompier/agentai/encoding"
	"github.com/rtrompier/agentai/pkg/llms"
	"github.com/rtrompier/agentai/store"
)

const (
	// DefaultMaxIterations is the default cap on LLM round trips in a run.
	DefaultMaxIterations = 5
	// DefaultTemperature is the default sampling temperature for runs.
	DefaultTemperature = 0.2
)

// ToolErrorFormatter renders the message returned to the model when a tool
// call fails.
type ToolErrorFormatter func(toolName string, err error) string

// ToolNotFoundFormatter renders the message returned to the model when it
// requests a tool that is not registered.
type ToolNotFoundFormatter func(toolName string, available []string) string

// DefaultToolErrorFormatter reports the failure to the model.
func DefaultToolErrorFormatter(toolName string, err error) string {
	return fmt.Sprintf("Tool call failed: %s", err.Error())
}

// DefaultToolNotFoundFormatter tells the model which tools exist.
func DefaultToolNotFoundFormatter(toolName string, available []string) string {
	return fmt.Sprintf("Tool `%s` not found. Please check the tool name and try again with exact match. Available tools: %s", toolName, strings.Join(available, ", "))
}

// Option is a function that can be used to modify the behavior of the agent Config.
type Option func(*Config)

type Config struct {
	// MaxIterations caps the number of LLM round trips in a single run.
	MaxIterations int

	// MaxTokens is the maximum number of tokens to generate in an LLM call.
	MaxTokens    int
	maxTokensSet bool

	// Temperature is the temperature for sampling in an LLM call, between 0 and 1.
	Temperature    float64
	temperatureSet bool

	// StopWords is a list of words to stop on in an LLM call.
	StopWords    []string
	stopWordsSet bool

	// TopK is the number of tokens to consider for top-k sampling in an LLM call.
	TopK    int
	topkSet bool

	// TopP is the cumulative probability for top-p sampling in an LLM call.
	TopP    float64
	toppSet bool

	// Seed is a seed for deterministic sampling in an LLM call.
	Seed    int
	seedSet bool

	// Callback receives lifecycle events for runs using this config.
	Callback Callback

	//
	// Below are the options for the agent, not related to LLM call
	//

	// Mode selects the encoding of typed answers and the format instructions
	// sent to the model. Plain text runs ignore it.
	Mode encoding.Mode

	// SkipValidation disables checking decoded typed answers against struct
	// validation tags.
	SkipValidation bool

	// Store persists conversation history between runs under ConversationID.
	Store          store.MessageStore
	ConversationID string

	// SkipHistoryStore keeps the messages of a run out of the agent history
	// and the store.
	SkipHistoryStore bool

	// ToolErrorFormatter renders the payload fed back to the model when a
	// tool call fails. Defaults to DefaultToolErrorFormatter.
	ToolErrorFormatter ToolErrorFormatter

	// ToolNotFoundFormatter renders the payload fed back to the model when it
	// requests an unknown tool. Defaults to DefaultToolNotFoundFormatter.
	ToolNotFoundFormatter ToolNotFoundFormatter

	// runID correlates the log records of a single run.
	runID string
}

func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		MaxIterations:  DefaultMaxIterations,
		Temperature:    DefaultTemperature,
		temperatureSet: true,
		Mode:           encoding.ModeDefault,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Apply returns a copy of the config with the given options applied,
// the receiver is not modified.
func (c *Config) Apply(opts ...Option) *Config {
	cfg := *c
	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// GetCallOptions converts the generation options that were set into LLM call
// options. The model name and tools are per run and appended by the caller.
func (c *Config) GetCallOptions() []llms.CallOption {
	var callOpts []llms.CallOption
	if c.maxTokensSet {
		callOpts = append(callOpts, llms.WithMaxTokens(c.MaxTokens))
	}
	if c.temperatureSet {
		callOpts = append(callOpts, llms.WithTemperature(c.Temperature))
	}
	if c.stopWordsSet {
		callOpts = append(callOpts, llms.WithStopWords(c.StopWords))
	}
	if c.topkSet {
		callOpts = append(callOpts, llms.WithTopK(c.TopK))
	}
	if c.toppSet {
		callOpts = append(callOpts, llms.WithTopP(c.TopP))
	}
	if c.seedSet {
		callOpts = append(callOpts, llms.WithSeed(c.Seed))
	}
	return callOpts
}

// WithMaxIterations is an option that caps the LLM round trips in a run.
func WithMaxIterations(maxIterations int) Option {
	return func(o *Config) {
		o.MaxIterations = maxIterations
	}
}

// WithMaxTokens is an option for LLM.Call.
func WithMaxTokens(maxTokens int) Option {
	return func(o *Config) {
		o.MaxTokens = maxTokens
		o.maxTokensSet = true
	}
}

// WithTemperature is an option for LLM.Call.
func WithTemperature(temperature float64) Option {
	return func(o *Config) {
		o.Temperature = temperature
		o.temperatureSet = true
	}
}

// WithStopWords is an option for setting the stop words for LLM.Call.
func WithStopWords(stopWords []string) Option {
	return func(o *Config) {
		o.StopWords = stopWords
		o.stopWordsSet = true
	}
}

// WithTopK will add an option to use top-k sampling for LLM.Call.
func WithTopK(topK int) Option {
	return func(o *Config) {
		o.TopK = topK
		o.topkSet = true
	}
}

// WithTopP will add an option to use top-p sampling for LLM.Call.
func WithTopP(topP float64) Option {
	return func(o *Config) {
		o.TopP = topP
		o.toppSet = true
	}
}

// WithSeed will add an option to use deterministic sampling for LLM.Call.
func WithSeed(seed int) Option {
	return func(o *Config) {
		o.Seed = seed
		o.seedSet = true
	}
}

// WithMode is an option that allows to specify the encoding mode for typed answers.
func WithMode(mode encoding.Mode) Option {
	return func(o *Config) {
		o.Mode = mode
	}
}

// WithStrictSchema is an option that requests strict JSON schema answers,
// providers without strict support fall back to the plain schema.
func WithStrictSchema() Option {
	return func(o *Config) {
		o.Mode = encoding.ModeJSONSchemaStrict
	}
}

// WithoutValidation is an option that disables validation of decoded typed
// answers against struct validation tags.
func WithoutValidation() Option {
	return func(o *Config) {
		o.SkipValidation = true
	}
}

// WithCallback allows setting a custom Callback Handler.
func WithCallback(callback Callback) Option {
	return func(o *Config) {
		o.Callback = callback
	}
}

// WithStore is an option that persists conversation history in the given
// store under the given conversation ID.
func WithStore(s store.MessageStore, conversationID string) Option {
	return func(o *Config) {
		o.Store = s
		o.ConversationID = conversationID
	}
}

// WithSkipHistoryStore is an option that keeps run messages out of the agent
// history and the store.
func WithSkipHistoryStore(skip bool) Option {
	return func(o *Config) {
		o.SkipHistoryStore = skip
	}
}

// WithToolErrorFormatter is an option that overrides the payload returned to
// the model when a tool call fails.
func WithToolErrorFormatter(f ToolErrorFormatter) Option {
	return func(o *Config) {
		o.ToolErrorFormatter = f
	}
}

// WithToolNotFoundFormatter is an option that overrides the payload returned
// to the model when it requests an unknown tool.
func WithToolNotFoundFormatter(f ToolNotFoundFormatter) Option {
	return func(o *Config) {
		o.ToolNotFoundFormatter = f
	}
}
