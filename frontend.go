package atiende

import "context"

// Frontend abstracts the messaging platform (Telegram, WhatsApp, CLI).
type Frontend interface {
	// Poll returns a channel of incoming messages. The channel is closed when
	// ctx is cancelled.
	Poll(ctx context.Context) (<-chan IncomingMessage, error)
	// SendReply sends a text reply to a conversation.
	SendReply(ctx context.Context, conversationID, text string) error
	// SendTyping shows a typing indicator. Best effort.
	SendTyping(ctx context.Context, conversationID string) error
}

// ReplySender is the send-only subset of Frontend used by the dispatcher.
type ReplySender interface {
	SendReply(ctx context.Context, conversationID, text string) error
}
