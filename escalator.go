package atiende

import (
	"context"
	"log/slog"
	"time"
)

// DefaultFallbackReply is returned when every escalation rung has failed.
// Users never see internal error detail.
const DefaultFallbackReply = "We're handling a high volume of requests right now. " +
	"Please try again in a few minutes."

// defaultLadder is the escalation ladder: one attempt per entry, budgets
// strictly decreasing so a stuck backend costs less on each retry.
var defaultLadder = []time.Duration{45 * time.Second, 35 * time.Second, 25 * time.Second}

// assistantInvoker is the single-cycle contract the escalator retries over.
// *Invoker implements it; observability wrappers and tests substitute it.
type assistantInvoker interface {
	Invoke(ctx context.Context, conversationID, userText string, firstContact bool, budget time.Duration) (string, error)
}

// Escalator wraps an invoker with a fixed ladder of shrinking timeout
// budgets. It is a terminal recovery boundary: Process never fails, it
// either returns a real reply or the fixed fallback string.
type Escalator struct {
	invoker  assistantInvoker
	ladder   []time.Duration
	fallback string
	stats    *Stats
	logger   *slog.Logger
}

// EscalatorOption configures an Escalator.
type EscalatorOption func(*Escalator)

// WithLadder replaces the default 45s/35s/25s budget ladder.
func WithLadder(budgets ...time.Duration) EscalatorOption {
	return func(e *Escalator) { e.ladder = budgets }
}

// WithFallbackReply replaces the default fallback string.
func WithFallbackReply(s string) EscalatorOption {
	return func(e *Escalator) { e.fallback = s }
}

// WithEscalatorStats sets the stats sink for success/timeout/error counters.
func WithEscalatorStats(s *Stats) EscalatorOption {
	return func(e *Escalator) { e.stats = s }
}

// WithEscalatorLogger sets the structured logger for rung events.
func WithEscalatorLogger(l *slog.Logger) EscalatorOption {
	return func(e *Escalator) { e.logger = l }
}

// NewEscalator creates an Escalator around inv.
func NewEscalator(inv assistantInvoker, opts ...EscalatorOption) *Escalator {
	e := &Escalator{
		invoker:  inv,
		ladder:   defaultLadder,
		fallback: DefaultFallbackReply,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = nopLogger
	}
	return e
}

// Process attempts the message once per rung, with that rung's budget. The
// first success wins. Error class does not change ladder behavior: timeout,
// terminal-run, and transport errors all just advance to the next rung.
// Exhaustion returns the fallback reply; the caller always gets something to
// send.
func (e *Escalator) Process(ctx context.Context, conversationID, userText string, firstContact bool) string {
	start := time.Now()

	for rung, budget := range e.ladder {
		reply, err := e.invoker.Invoke(ctx, conversationID, userText, firstContact, budget)
		if err == nil {
			if e.stats != nil {
				e.stats.Success(rung, time.Since(start))
			}
			if rung > 0 {
				e.logger.Info("reply produced on retry",
					"conversation_id", conversationID, "rung", rung, "budget", budget)
			}
			return reply
		}

		if e.stats != nil {
			e.stats.Timeout()
		}
		e.logger.Warn("rung failed",
			"conversation_id", conversationID,
			"rung", rung,
			"budget", budget,
			"error", err)

		if ctx.Err() != nil {
			break // shutting down; don't burn the remaining rungs
		}
	}

	if e.stats != nil {
		e.stats.Error()
	}
	e.logger.Error("ladder exhausted", "conversation_id", conversationID, "rungs", len(e.ladder))
	return e.fallback
}

// Fallback returns the configured fallback reply.
func (e *Escalator) Fallback() string { return e.fallback }
