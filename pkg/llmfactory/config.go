package llmfactory

import (
	"slices"

	"github.com/effective-security/x/configloader"
	"sigs.k8s.io/yaml"
)

// Config provides the LLM providers and model selection configuration.
type Config struct {
	// Providers is the list of configured LLM providers.
	Providers []*ProviderConfig `json:"providers" yaml:"providers"`
	// DefaultProvider is the name of the provider used when no model
	// preference matches. If empty, the first configured provider is used.
	DefaultProvider string `json:"default_provider,omitempty" yaml:"default_provider,omitempty"`
	// ToolModels maps a tool name to the preferred models to run it,
	// the "default" key applies to tools without an explicit mapping.
	ToolModels map[string][]string `json:"tool_models,omitempty" yaml:"tool_models,omitempty"`
	// AgentModels maps an agent name to the preferred models to run it,
	// the "default" key applies to agents without an explicit mapping.
	AgentModels map[string][]string `json:"agent_models,omitempty" yaml:"agent_models,omitempty"`
}

// ProviderConfig provides a single LLM provider configuration.
type ProviderConfig struct {
	// Name is the unique name of the provider.
	Name string `json:"name" yaml:"name"`
	// Provider is the provider kind:
	// OPENAI, AZURE, AZURE_AD, ANTHROPIC, GOOGLEAI, BEDROCK, PERPLEXITY.
	Provider string `json:"provider" yaml:"provider"`
	// Token is the API token,
	// use ${ENV_NAME} expansion to load it from the environment.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// APIVersion is the API version, required for AZURE and AZURE_AD.
	APIVersion string `json:"api_version,omitempty" yaml:"api_version,omitempty"`
	// DefaultModel is the model used when no preferred model matches.
	DefaultModel string `json:"default_model" yaml:"default_model"`
	// AvailableModels lists the models served by this provider.
	AvailableModels []string `json:"available_models,omitempty" yaml:"available_models,omitempty"`
}

// FindModel returns the first preferred model available from this provider,
// or the provider's default model.
func (c *ProviderConfig) FindModel(preferredModels ...string) string {
	for _, model := range preferredModels {
		if slices.Contains(c.AvailableModels, model) {
			return model
		}
	}
	return c.DefaultModel
}

// LoadConfig loads the configuration from a YAML or JSON file,
// with ${ENV_NAME} values expanded from the environment.
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig parses the configuration from YAML or JSON bytes,
// without environment expansion.
func ParseConfig(b []byte) (*Config, error) {
	cfg := new(Config)
	err := yaml.Unmarshal(b, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
