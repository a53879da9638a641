// Package agent implements a conversational agent on top of an LLM client: a
// system prompt, registered tools and a bounded loop that feeds tool results
// back to the model until it produces a final answer, plain text or typed.
package agent
