package atiende

import "encoding/json"

// --- Domain types ---

// Conversation is one end-user chat session, identified by the platform's
// chat id. Created on first inbound message and persisted through a
// ConversationStore.
type Conversation struct {
	ID        string `json:"id"`
	HumanMode bool   `json:"human_mode"` // true = a human agent handles this chat, skip the assistant
	Known     bool   `json:"known"`      // false until the first assistant invocation
	Failures  int    `json:"failures"`   // consecutive fallback replies
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// RunStatus is the lifecycle state of a remote run.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
	RunExpired        RunStatus = "expired"
)

// Terminal reports whether the status is a final state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunExpired:
		return true
	}
	return false
}

// Run is a snapshot of one remote asynchronous execution over a thread.
type Run struct {
	ID        string     `json:"id"`
	ThreadID  string     `json:"thread_id"`
	Status    RunStatus  `json:"status"`
	LastError string     `json:"last_error,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"` // populated when Status is requires_action
}

// ToolCall is a mid-run request from the assistant to execute a named
// function and supply its output before the run resumes.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolOutput is the caller's answer to one ToolCall.
type ToolOutput struct {
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// ThreadMessage is one message stored on a remote thread.
type ThreadMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"` // "user" or "assistant"
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

// IncomingMessage is one inbound platform event, already normalized by the
// Frontend.
type IncomingMessage struct {
	ConversationID string
	SenderID       string
	Text           string
	Group          bool // message from a group chat
	SelfEcho       bool // message authored by the bot itself
}

// --- Tool protocol types ---

// ToolDefinition describes one callable function exposed to the assistant.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}
