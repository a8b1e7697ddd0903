package atiende

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultDrainPause = 500 * time.Millisecond

// convState is the per-conversation drain state.
type convState int

const (
	convIdle convState = iota
	convDraining
)

// queuedMessage is one buffered inbound message awaiting processing.
type queuedMessage struct {
	text         string
	firstContact bool
	enqueuedAt   time.Time
}

// replyProcessor produces a reply for one message. Process must not fail -
// Escalator satisfies this by falling back to a fixed string.
type replyProcessor interface {
	Process(ctx context.Context, conversationID, userText string, firstContact bool) string
	Fallback() string
}

// Dispatcher serializes message processing per conversation. Each
// conversation has a FIFO queue and an explicit Idle/Draining state; enqueue
// starts a drain goroutine only from Idle, so at most one assistant
// round-trip is ever in flight per conversation while different conversations
// proceed independently.
type Dispatcher struct {
	processor replyProcessor
	sender    ReplySender
	logger    *slog.Logger
	pause     time.Duration // courtesy pause between items of one queue

	// onReply, when set, observes every produced reply; fallback reports
	// whether the ladder was exhausted. Used to maintain the per-conversation
	// failure counter.
	onReply func(ctx context.Context, conversationID string, fallback bool)

	mu     sync.Mutex
	queues map[string][]queuedMessage
	states map[string]convState
	wg     sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDrainPause sets the pause between consecutive items of one
// conversation's queue (default: 500ms).
func WithDrainPause(d time.Duration) DispatcherOption {
	return func(q *Dispatcher) { q.pause = d }
}

// WithDispatcherLogger sets the structured logger for queue events.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(q *Dispatcher) { q.logger = l }
}

// WithReplyObserver sets a hook invoked after every reply is produced.
func WithReplyObserver(fn func(ctx context.Context, conversationID string, fallback bool)) DispatcherOption {
	return func(q *Dispatcher) { q.onReply = fn }
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(processor replyProcessor, sender ReplySender, opts ...DispatcherOption) *Dispatcher {
	q := &Dispatcher{
		processor: processor,
		sender:    sender,
		pause:     defaultDrainPause,
		queues:    make(map[string][]queuedMessage),
		states:    make(map[string]convState),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = nopLogger
	}
	return q
}

// Enqueue buffers a message for its conversation and starts a drain loop if
// none is active. Never blocks on processing.
func (q *Dispatcher) Enqueue(ctx context.Context, conversationID, text string, firstContact bool) {
	q.mu.Lock()
	q.queues[conversationID] = append(q.queues[conversationID], queuedMessage{
		text:         text,
		firstContact: firstContact,
		enqueuedAt:   time.Now(),
	})
	depth := len(q.queues[conversationID])
	start := q.states[conversationID] == convIdle
	if start {
		q.states[conversationID] = convDraining
		q.wg.Add(1)
	}
	q.mu.Unlock()

	q.logger.Debug("message enqueued", "conversation_id", conversationID, "depth", depth)
	if start {
		go q.drain(ctx, conversationID)
	}
}

// drain processes the conversation's queue to exhaustion, then flips back to
// Idle and deletes the empty queue entry. Exactly one drain runs per
// conversation; the state flag is the mutual exclusion.
func (q *Dispatcher) drain(ctx context.Context, conversationID string) {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		pending := q.queues[conversationID]
		if len(pending) == 0 {
			q.states[conversationID] = convIdle
			delete(q.queues, conversationID)
			delete(q.states, conversationID)
			q.mu.Unlock()
			return
		}
		msg := pending[0]
		q.queues[conversationID] = pending[1:]
		remaining := len(pending) - 1
		q.mu.Unlock()

		q.processOne(ctx, conversationID, msg)

		if remaining > 0 {
			timer := time.NewTimer(q.pause)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}
}

// processOne runs a single message through the processor and sends the
// reply. Failures here are contained: they are logged and the drain loop
// moves on to the next item rather than abandoning the whole queue.
func (q *Dispatcher) processOne(ctx context.Context, conversationID string, msg queuedMessage) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queue processing panic",
				"conversation_id", conversationID, "panic", r)
		}
	}()

	reply := q.processor.Process(ctx, conversationID, msg.text, msg.firstContact)
	fallback := reply == q.processor.Fallback()
	if q.onReply != nil {
		q.onReply(ctx, conversationID, fallback)
	}

	if err := q.sender.SendReply(ctx, conversationID, reply); err != nil {
		q.logger.Error("send reply",
			"conversation_id", conversationID,
			"wait", time.Since(msg.enqueuedAt).Round(time.Millisecond),
			"error", err)
	}
}

// Depth returns the number of buffered messages for a conversation.
func (q *Dispatcher) Depth(conversationID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[conversationID])
}

// Wait blocks until every active drain loop has finished. Used on shutdown
// and in tests.
func (q *Dispatcher) Wait() {
	q.wg.Wait()
}
