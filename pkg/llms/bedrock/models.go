package bedrock

// Model IDs for the Anthropic models served through Bedrock.
// See https://docs.aws.amazon.com/bedrock/latest/userguide/model-ids.html
// for the full catalog. Cross-region inference profiles prefix the model ID
// with a region code, e.g. "us.anthropic.claude-3-5-sonnet-20241022-v2:0".
const (
	ModelAnthropicClaudeV3Opus      = "anthropic.claude-3-opus-20240229-v1:0"
	ModelAnthropicClaudeV3Sonnet    = "anthropic.claude-3-sonnet-20240229-v1:0"
	ModelAnthropicClaudeV3Haiku     = "anthropic.claude-3-haiku-20240307-v1:0"
	ModelAnthropicClaudeV35Sonnet   = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	ModelAnthropicClaudeV35SonnetV2 = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	ModelAnthropicClaudeV35Haiku    = "anthropic.claude-3-5-haiku-20241022-v1:0"
)
