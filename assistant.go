package atiende

import "context"

// AssistantClient abstracts the remote assistant vendor: durable threads that
// retain message history, and asynchronous runs that execute over a thread's
// current state.
//
// The remote context model forbids appending to a thread while a run is
// active on it; the core enforces that precondition, not the client.
type AssistantClient interface {
	// CreateThread creates a new empty thread and returns its id.
	CreateThread(ctx context.Context) (string, error)
	// AppendMessage adds a message to the thread.
	AppendMessage(ctx context.Context, threadID, role, text string) error
	// CreateRun starts a run over the thread's current state. A non-empty
	// tools slice overrides the assistant's configured tool set for this run,
	// so the remote side can only request functions the caller dispatches.
	CreateRun(ctx context.Context, threadID string, tools []ToolDefinition) (Run, error)
	// GetRun fetches the current snapshot of a run.
	GetRun(ctx context.Context, threadID, runID string) (Run, error)
	// CancelRun requests cancellation. The remote side may already consider
	// the run terminal; callers treat that as success.
	CancelRun(ctx context.Context, threadID, runID string) error
	// ListMessages returns up to limit messages from the thread, most recent
	// first. limit <= 0 means the vendor default.
	ListMessages(ctx context.Context, threadID string, limit int) ([]ThreadMessage, error)
	// SubmitToolOutputs answers a requires_action run and returns the run's
	// new snapshot.
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (Run, error)
}
