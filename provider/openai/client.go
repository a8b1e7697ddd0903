package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hverduzco/atiende"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client implements atiende.AssistantClient over the Assistants v2 API.
type Client struct {
	apiKey      string
	assistantID string
	baseURL     string
	client      *http.Client
	logger      *slog.Logger
}

var _ atiende.AssistantClient = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base (e.g. an Azure deployment or a test
// server). The /threads paths are appended automatically.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.client = h }
}

// WithLogger sets a structured logger for request events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for one assistant.
func New(apiKey, assistantID string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		assistantID: assistantID,
		baseURL:     defaultBaseURL,
		client:      &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// CreateThread creates a new empty thread.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var thread threadObject
	if err := c.do(ctx, http.MethodPost, "/threads", struct{}{}, &thread); err != nil {
		return "", err
	}
	return thread.ID, nil
}

// AppendMessage adds a message to the thread.
func (c *Client) AppendMessage(ctx context.Context, threadID, role, text string) error {
	body := messageRequest{Role: role, Content: text}
	return c.do(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body, nil)
}

// CreateRun starts a run of the configured assistant over the thread. The
// tool definitions ride along as the run's tools override, keeping the remote
// function schemas in lockstep with what the caller can actually execute.
func (c *Client) CreateRun(ctx context.Context, threadID string, tools []atiende.ToolDefinition) (atiende.Run, error) {
	body := runRequest{AssistantID: c.assistantID}
	for _, d := range tools {
		body.Tools = append(body.Tools, apiTool{
			Type: "function",
			Function: functionDef{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	var run runObject
	err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs", body, &run)
	if err != nil {
		return atiende.Run{}, err
	}
	return mapRun(run), nil
}

// GetRun fetches the current run snapshot.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (atiende.Run, error) {
	var run runObject
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &run); err != nil {
		return atiende.Run{}, err
	}
	return mapRun(run), nil
}

// CancelRun requests cancellation. A 4xx saying the run is already terminal
// still surfaces as an ErrHTTP; callers treat cancel outcomes as advisory.
func (c *Client) CancelRun(ctx context.Context, threadID, runID string) error {
	return c.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs/"+runID+"/cancel", struct{}{}, nil)
}

// ListMessages returns the thread's messages, most recent first (the API's
// default descending order).
func (c *Client) ListMessages(ctx context.Context, threadID string, limit int) ([]atiende.ThreadMessage, error) {
	path := "/threads/" + threadID + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var list messageList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	out := make([]atiende.ThreadMessage, 0, len(list.Data))
	for _, m := range list.Data {
		out = append(out, atiende.ThreadMessage{
			ID:        m.ID,
			Role:      m.Role,
			Text:      extractText(m),
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}

// SubmitToolOutputs answers a requires_action run.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []atiende.ToolOutput) (atiende.Run, error) {
	body := toolOutputsRequest{ToolOutputs: make([]toolOutputEntry, 0, len(outputs))}
	for _, o := range outputs {
		body.ToolOutputs = append(body.ToolOutputs, toolOutputEntry{ToolCallID: o.CallID, Output: o.Output})
	}
	var run runObject
	err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs/"+runID+"/submit_tool_outputs", body, &run)
	if err != nil {
		return atiende.Run{}, err
	}
	return mapRun(run), nil
}

// do sends one API request and decodes the response into out (when non-nil).
// Non-2xx responses become *atiende.ErrHTTP.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.logger.Debug("assistants api call",
		"method", method, "path", path,
		"status", resp.StatusCode,
		"took", time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return &atiende.ErrHTTP{Status: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// mapRun converts a wire run into the domain Run, lifting tool calls out of
// the required_action envelope.
func mapRun(run runObject) atiende.Run {
	out := atiende.Run{
		ID:       run.ID,
		ThreadID: run.ThreadID,
		Status:   atiende.RunStatus(run.Status),
	}
	if run.LastError != nil {
		out.LastError = run.LastError.Code + ": " + run.LastError.Message
	}
	if ra := run.RequiredAction; ra != nil && ra.SubmitToolOutputs != nil {
		for _, tc := range ra.SubmitToolOutputs.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, atiende.ToolCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: rawArgs(tc.Function.Arguments),
			})
		}
	}
	return out
}

// extractText concatenates the text segments of a message's content blocks.
func extractText(m messageObject) string {
	var text string
	for _, block := range m.Content {
		if block.Type == "text" && block.Text != nil {
			if text != "" {
				text += "\n"
			}
			text += block.Text.Value
		}
	}
	return text
}
