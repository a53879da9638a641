// Package llmfactory provides factories and configuration for LLM model instantiation, supporting multiple providers (OpenAI, Azure, Anthropic, Google AI, Bedrock) and model selection strategies.
package llmfactory
