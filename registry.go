package atiende

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultMaxContextMessages = 40

// binding is one conversation's thread assignment plus the last time it was
// resolved, which drives idle eviction.
type binding struct {
	threadID string
	lastUsed time.Time
}

// ThreadRegistry maps conversation ids to remote thread ids. Threads are
// created lazily on first resolve and replaced when their accumulated message
// count exceeds a ceiling, keeping the remote context window bounded. Idle
// bindings are evictable so the table does not grow for the process lifetime;
// an evicted conversation simply gets a fresh thread on its next message.
//
// At most one binding exists per conversation; a binding only ever changes by
// compaction, which rebinds atomically under the registry lock.
type ThreadRegistry struct {
	client      AssistantClient
	maxMessages int
	logger      *slog.Logger

	mu       sync.Mutex
	bindings map[string]*binding // conversationID -> binding
}

// RegistryOption configures a ThreadRegistry.
type RegistryOption func(*ThreadRegistry)

// WithMaxContextMessages sets the message-count ceiling that triggers thread
// replacement (default: 40).
func WithMaxContextMessages(n int) RegistryOption {
	return func(r *ThreadRegistry) { r.maxMessages = n }
}

// WithRegistryLogger sets the structured logger for registry events.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *ThreadRegistry) { r.logger = l }
}

// NewThreadRegistry creates a ThreadRegistry.
func NewThreadRegistry(client AssistantClient, opts ...RegistryOption) *ThreadRegistry {
	r := &ThreadRegistry{
		client:      client,
		maxMessages: defaultMaxContextMessages,
		bindings:    make(map[string]*binding),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = nopLogger
	}
	return r
}

// Resolve returns the thread bound to the conversation, creating and binding
// a new remote thread on first contact. Creation failures are wrapped in
// ErrThreadCreate and never retried here. The remote call happens outside the
// registry lock, so one conversation's slow thread creation never blocks
// another's lookup.
func (r *ThreadRegistry) Resolve(ctx context.Context, conversationID string) (string, error) {
	r.mu.Lock()
	if b, ok := r.bindings[conversationID]; ok {
		b.lastUsed = time.Now()
		threadID := b.threadID
		r.mu.Unlock()
		return threadID, nil
	}
	r.mu.Unlock()

	threadID, err := r.client.CreateThread(ctx)
	if err != nil {
		return "", &ErrThreadCreate{Cause: err}
	}

	r.mu.Lock()
	// A concurrent resolver may have bound the conversation while we were on
	// the wire; the first binding wins and our thread is orphaned remotely.
	if b, ok := r.bindings[conversationID]; ok {
		b.lastUsed = time.Now()
		existing := b.threadID
		r.mu.Unlock()
		return existing, nil
	}
	r.bindings[conversationID] = &binding{threadID: threadID, lastUsed: time.Now()}
	r.mu.Unlock()

	r.logger.Info("thread created", "conversation_id", conversationID, "thread_id", threadID)
	return threadID, nil
}

// CompactIfNeeded inspects the thread's accumulated message count. When it
// exceeds the ceiling, a fresh thread is created and every conversation bound
// to the old thread is rebound to it. Returns the thread id callers should
// use from now on. This is the only way a binding changes after creation.
func (r *ThreadRegistry) CompactIfNeeded(ctx context.Context, threadID string) (string, error) {
	msgs, err := r.client.ListMessages(ctx, threadID, r.maxMessages+1)
	if err != nil {
		return "", fmt.Errorf("count thread messages: %w", err)
	}
	if len(msgs) <= r.maxMessages {
		return threadID, nil
	}

	fresh, err := r.client.CreateThread(ctx)
	if err != nil {
		return "", &ErrThreadCreate{Cause: err}
	}

	r.mu.Lock()
	var rebound int
	for _, b := range r.bindings {
		if b.threadID == threadID {
			b.threadID = fresh
			rebound++
		}
	}
	r.mu.Unlock()

	r.logger.Info("thread compacted",
		"old_thread_id", threadID,
		"new_thread_id", fresh,
		"messages", len(msgs),
		"rebound_conversations", rebound)
	return fresh, nil
}

// Binding returns the current thread for a conversation, if any. Unlike
// Resolve it does not refresh the idle clock or create anything.
func (r *ThreadRegistry) Binding(conversationID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[conversationID]
	if !ok {
		return "", false
	}
	return b.threadID, true
}

// EvictIdle removes every binding not resolved within maxIdle and returns the
// count. The remote threads stay as they are; evicted conversations get a
// fresh thread on their next message.
func (r *ThreadRegistry) EvictIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	var evicted int
	for conv, b := range r.bindings {
		if b.lastUsed.Before(cutoff) {
			delete(r.bindings, conv)
			evicted++
		}
	}
	r.mu.Unlock()

	if evicted > 0 {
		r.logger.Info("idle thread bindings evicted", "count", evicted, "max_idle", maxIdle)
	}
	return evicted
}

// Len returns the number of active bindings.
func (r *ThreadRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}
