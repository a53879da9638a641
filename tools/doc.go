// Package tools defines the capability surface for LLM agents: the Tool
// interface, closure-backed tools with reflected parameter schemas, and the
// registry the agent resolves model-emitted calls against.
package tools
