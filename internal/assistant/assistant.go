// Package assistant turns free-form conversation into structured command
// batches. The generator's output is untrusted: every produced command
// still goes through the command pipeline's validation, resolution and
// confirmation before anything runs.
package assistant

import (
	"context"

	"tally/internal/command"
)

// Message is one turn in a conversation.
type Message struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

// Snapshot carries the tenant's current names so the generator can refer
// to real records instead of guessing.
type Snapshot struct {
	Categories []string
	Payees     []string
}

// Result is the generator's output: a reply for the user, plus zero or
// more proposed commands.
type Result struct {
	Reply    string
	Commands []command.Request
}

// Generator produces command batches from conversation.
type Generator interface {
	Generate(ctx context.Context, conversation []Message, snapshot Snapshot) (*Result, error)
}
