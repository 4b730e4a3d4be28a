// Package conversation keeps a per-user chat transcript headed by a fixed
// system preamble.
package conversation

import (
	"context"

	"github.com/joseph-ayodele/medscan/internal/llm"
)

// Store is a per-user transcript. Implementations must keep element 0 as the
// system preamble whenever the transcript is non-empty and never duplicate it.
type Store interface {
	// GetOrInit returns a snapshot of key's transcript, creating it with the
	// preamble when absent.
	GetOrInit(ctx context.Context, key string) ([]llm.Message, error)
	// Append adds msgs in order as one unit, initializing the transcript first
	// when needed.
	Append(ctx context.Context, key string, msgs ...llm.Message) error
	// Reset truncates key's transcript to the preamble, or leaves it empty when
	// no transcript existed.
	Reset(ctx context.Context, key string) error
}

func preambleMessages(preamble string) []llm.Message {
	if preamble == "" {
		return nil
	}
	return []llm.Message{{Role: llm.RoleSystem, Content: preamble}}
}
