package atiende

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const defaultPollInterval = 2 * time.Second

// Invoker orchestrates one request/response cycle against the remote
// assistant: resolve the thread, clear any active run on it, append the user
// message, start a run, poll to a terminal state within a budget, and extract
// the reply text. Tool calls requested mid-run are dispatched through the
// ToolRegistry; dispatch failures become textual tool outputs so the run can
// continue.
type Invoker struct {
	client   AssistantClient
	registry *ThreadRegistry
	tracker  *RunTracker
	tools    *ToolRegistry
	stats    *Stats
	logger   *slog.Logger

	pollInterval time.Duration
	preamble     string // prefixed to the first message of a new conversation
	signature    string // appended to every completed reply
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithTools sets the registry the assistant's tool calls dispatch into.
func WithTools(t *ToolRegistry) InvokerOption {
	return func(v *Invoker) { v.tools = t }
}

// WithInvokerStats sets the stats sink for cancellation counters.
func WithInvokerStats(s *Stats) InvokerOption {
	return func(v *Invoker) { v.stats = s }
}

// WithInvokerLogger sets the structured logger for invocation events.
func WithInvokerLogger(l *slog.Logger) InvokerOption {
	return func(v *Invoker) { v.logger = l }
}

// WithPollInterval sets the run status poll interval (default: 2s).
func WithPollInterval(d time.Duration) InvokerOption {
	return func(v *Invoker) { v.pollInterval = d }
}

// WithPreamble sets the onboarding text prefixed to a conversation's first
// message.
func WithPreamble(s string) InvokerOption {
	return func(v *Invoker) { v.preamble = s }
}

// WithSignature sets a suffix appended to every completed reply.
func WithSignature(s string) InvokerOption {
	return func(v *Invoker) { v.signature = s }
}

// NewInvoker creates an Invoker.
func NewInvoker(client AssistantClient, registry *ThreadRegistry, tracker *RunTracker, opts ...InvokerOption) *Invoker {
	v := &Invoker{
		client:       client,
		registry:     registry,
		tracker:      tracker,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.tools == nil {
		v.tools = NewToolRegistry()
	}
	if v.logger == nil {
		v.logger = nopLogger
	}
	return v
}

// Invoke runs one full cycle and returns the assistant's reply text.
//
// Clearing active runs on the thread before appending is the load-bearing
// precondition: the remote context model forbids concurrent mutation of one
// thread, so a superseded run must be observably gone before the new message
// is written.
func (v *Invoker) Invoke(ctx context.Context, conversationID, userText string, firstContact bool, budget time.Duration) (string, error) {
	threadID, err := v.registry.Resolve(ctx, conversationID)
	if err != nil {
		return "", err
	}
	threadID, err = v.registry.CompactIfNeeded(ctx, threadID)
	if err != nil {
		return "", err
	}

	if n := v.tracker.CancelAllOnThread(ctx, threadID); n > 0 {
		v.recordCancellations(n)
		v.logger.Info("superseded runs cancelled", "thread_id", threadID, "count", n)
	}

	text := userText
	if firstContact && v.preamble != "" {
		text = v.preamble + "\n\n" + userText
	}
	if err := v.client.AppendMessage(ctx, threadID, "user", text); err != nil {
		return "", fmt.Errorf("append message: %w", err)
	}

	run, err := v.client.CreateRun(ctx, threadID, v.tools.AllDefinitions())
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	v.tracker.Register(run.ID, threadID, conversationID)
	v.logger.Info("run started",
		"run_id", run.ID, "thread_id", threadID,
		"conversation_id", conversationID, "budget", budget)

	deadline := time.Now().Add(budget)
	for {
		if run.Status.Terminal() {
			v.tracker.Deregister(run.ID)
			if run.Status == RunCompleted {
				return v.extractReply(ctx, threadID)
			}
			return "", &ErrRunTerminal{Status: run.Status, Reason: run.LastError}
		}

		// Every non-terminal iteration passes through here, including the
		// tool round-trips below, so requires_action loops cannot outlive
		// the budget.
		if time.Now().After(deadline) {
			v.abandonRun(ctx, threadID, run.ID)
			return "", &ErrRunTimeout{RunID: run.ID, Budget: budget}
		}

		if run.Status == RunRequiresAction {
			outputs := v.dispatchToolCalls(ctx, run.ToolCalls)
			next, err := v.client.SubmitToolOutputs(ctx, threadID, run.ID, outputs)
			if err != nil {
				v.abandonRun(ctx, threadID, run.ID)
				return "", fmt.Errorf("submit tool outputs: %w", err)
			}
			run = next
			continue
		}

		timer := time.NewTimer(v.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			v.abandonRun(ctx, threadID, run.ID)
			return "", ctx.Err()
		case <-timer.C:
		}

		run, err = v.client.GetRun(ctx, threadID, run.ID)
		if err != nil {
			v.abandonRun(ctx, threadID, run.ID)
			return "", fmt.Errorf("poll run: %w", err)
		}
	}
}

// dispatchToolCalls executes every requested tool call. Errors never abort
// the run: they are rendered as the tool's textual output so the assistant
// can recover on its own.
func (v *Invoker) dispatchToolCalls(ctx context.Context, calls []ToolCall) []ToolOutput {
	outputs := make([]ToolOutput, 0, len(calls))
	for _, tc := range calls {
		result, err := v.tools.Execute(ctx, tc.Name, tc.Args)
		var output string
		switch {
		case err != nil:
			output = "error: " + err.Error()
		case result.Error != "":
			output = "error: " + result.Error
		default:
			output = result.Content
		}
		v.logger.Info("tool dispatched", "tool", tc.Name, "call_id", tc.ID, "error", err)
		outputs = append(outputs, ToolOutput{CallID: tc.ID, Output: output})
	}
	return outputs
}

// extractReply fetches the most recent assistant-authored message.
func (v *Invoker) extractReply(ctx context.Context, threadID string) (string, error) {
	msgs, err := v.client.ListMessages(ctx, threadID, 10)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	for _, m := range msgs { // most recent first
		if m.Role == "assistant" {
			reply := m.Text
			if v.signature != "" {
				reply += "\n\n" + v.signature
			}
			return reply, nil
		}
	}
	return "", fmt.Errorf("thread %s: completed run left no assistant message", threadID)
}

// abandonRun best-effort cancels a run the invoker is giving up on and drops
// its record. When the caller's context is already cancelled the remote
// cancel uses a short detached context so cleanup still reaches the wire.
func (v *Invoker) abandonRun(ctx context.Context, threadID, runID string) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := v.client.CancelRun(ctx, threadID, runID); err != nil {
		v.logger.Warn("cancel abandoned run", "run_id", runID, "error", err)
	}
	v.tracker.Deregister(runID)
	v.recordCancellations(1)
}

func (v *Invoker) recordCancellations(n int) {
	if v.stats != nil {
		v.stats.Cancellations(n)
	}
}
