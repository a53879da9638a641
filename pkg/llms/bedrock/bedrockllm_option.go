package bedrock

import (
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

type options struct {
	modelID string
	client  *bedrockruntime.Client
}

// Option is an option for the Bedrock LLM.
type Option func(*options)

// WithModel allows setting a custom model ID.
// A full list of the supported model IDs:
// https://docs.aws.amazon.com/bedrock/latest/userguide/model-ids.html
func WithModel(modelID string) Option {
	return func(o *options) {
		o.modelID = modelID
	}
}

// WithClient allows injecting a pre-configured Bedrock runtime client, for
// example one with a custom region, credentials provider or retryer.
func WithClient(client *bedrockruntime.Client) Option {
	return func(o *options) {
		o.client = client
	}
}
