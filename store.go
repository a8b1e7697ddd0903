package atiende

import "context"

// ConversationStore persists per-conversation state: human-handoff mode, the
// first-contact flag, and the consecutive failure counter.
type ConversationStore interface {
	// GetOrCreateConversation returns the record for id, creating it with
	// zero values on first contact.
	GetOrCreateConversation(ctx context.Context, id string) (Conversation, error)
	// SetHumanMode toggles human handoff for a conversation.
	SetHumanMode(ctx context.Context, id string, enabled bool) error
	// MarkKnown records that the conversation has completed first contact.
	MarkKnown(ctx context.Context, id string) error
	// IncrementFailures bumps the consecutive failure counter and returns the
	// new value.
	IncrementFailures(ctx context.Context, id string) (int, error)
	// ResetFailures zeroes the consecutive failure counter.
	ResetFailures(ctx context.Context, id string) error

	// Init creates the schema. Idempotent.
	Init(ctx context.Context) error
	Close() error
}
