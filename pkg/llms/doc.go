// Package llms provides unified support for interacting with different Language Models (LLMs) from various providers.
// Designed with an extensible architecture, the package facilitates seamless integration of LLMs
// with a focus on modularity, encapsulation, and easy configurability.
//
// Each subpackage includes a provider-specific adapter that converts the
// provider-agnostic message model into one provider request and maps the
// response back, including tool calls and structured response formats.
//
// The `llms.go` file contains the types and interfaces for interacting with different LLMs.
//
// The `options.go` file provides various options and functions to configure the LLMs.
package llms
