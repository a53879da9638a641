// Package store provides conversation history persistence for agents,
// keyed by a caller-chosen conversation ID.
package store

import (
	"context"

	"github.com/effective-security/xlog"
	"github.com/rtrompier/agentai/pkg/llms"
)

var logger = xlog.NewPackageLogger("github.com/rtrompier/agentai", "store")

// MessageStore persists message history between agent runs.
type MessageStore interface {
	// Messages returns the stored history for the conversation, oldest first.
	Messages(ctx context.Context, id string) ([]llms.Message, error)
	// Add appends messages to the conversation history.
	Add(ctx context.Context, id string, msgs ...llms.Message) error
	// Reset removes the conversation history.
	Reset(ctx context.Context, id string) error
}
