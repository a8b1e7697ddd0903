// Package openai implements atiende.AssistantClient against the OpenAI
// Assistants v2 REST API: durable threads, per-thread message history, and
// asynchronous runs with a tool-output sub-protocol.
package openai

import "encoding/json"

// Wire types for the Assistants v2 endpoints. Only the fields the client
// reads are declared.

type threadObject struct {
	ID string `json:"id"`
}

type messageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageObject struct {
	ID        string           `json:"id"`
	Role      string           `json:"role"`
	Content   []messageContent `json:"content"`
	CreatedAt int64            `json:"created_at"`
}

type messageContent struct {
	Type string       `json:"type"`
	Text *messageText `json:"text,omitempty"`
}

type messageText struct {
	Value string `json:"value"`
}

type messageList struct {
	Data []messageObject `json:"data"`
}

type runRequest struct {
	AssistantID string    `json:"assistant_id"`
	Tools       []apiTool `json:"tools,omitempty"`
}

type apiTool struct {
	Type     string      `json:"type"` // "function"
	Function functionDef `json:"function"`
}

type functionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type runObject struct {
	ID             string          `json:"id"`
	ThreadID       string          `json:"thread_id"`
	Status         string          `json:"status"`
	RequiredAction *requiredAction `json:"required_action,omitempty"`
	LastError      *runError       `json:"last_error,omitempty"`
}

type requiredAction struct {
	Type              string             `json:"type"` // "submit_tool_outputs"
	SubmitToolOutputs *submitToolOutputs `json:"submit_tool_outputs,omitempty"`
}

type submitToolOutputs struct {
	ToolCalls []apiToolCall `json:"tool_calls"`
}

type apiToolCall struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"` // "function"
	Function functionRef `json:"function"`
}

type functionRef struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type runError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type toolOutputsRequest struct {
	ToolOutputs []toolOutputEntry `json:"tool_outputs"`
}

type toolOutputEntry struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// rawArgs converts the API's string-encoded function arguments into raw JSON,
// falling back to a JSON string when the payload is not valid JSON.
func rawArgs(s string) json.RawMessage {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	quoted, _ := json.Marshal(s)
	return quoted
}
