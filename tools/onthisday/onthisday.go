// Package onthisday provides historical events for a calendar date, backed by
// the byabbe.se "on this day" API over Wikipedia data.
package onthisday

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hverduzco/atiende"
)

const defaultBaseURL = "https://byabbe.se/on-this-day"

// maxEvents caps how many events are returned to the assistant.
const maxEvents = 5

// Tool looks up notable historical events for a given day and month.
type Tool struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

var _ atiende.Tool = (*Tool)(nil)

// Option configures the tool.
type Option func(*Tool)

// WithBaseURL overrides the API endpoint. Used in tests.
func WithBaseURL(u string) Option {
	return func(t *Tool) { t.baseURL = strings.TrimRight(u, "/") }
}

// New creates an on-this-day tool with a 10-second timeout.
func New(opts ...Option) *Tool {
	t := &Tool{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Definitions() []atiende.ToolDefinition {
	return []atiende.ToolDefinition{{
		Name:        "on_this_day",
		Description: "Get notable historical events for a calendar date. Defaults to today when no date is given.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"month":{"type":"integer","description":"Month 1-12"},"day":{"type":"integer","description":"Day of month 1-31"}},"required":[]}`),
	}}
}

type eventsResponse struct {
	Date   string `json:"date"`
	Events []struct {
		Year        string `json:"year"`
		Description string `json:"description"`
	} `json:"events"`
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (atiende.ToolResult, error) {
	var params struct {
		Month int `json:"month"`
		Day   int `json:"day"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return atiende.ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
	}
	if params.Month == 0 && params.Day == 0 {
		now := t.now()
		params.Month = int(now.Month())
		params.Day = now.Day()
	}
	if params.Month < 1 || params.Month > 12 || params.Day < 1 || params.Day > 31 {
		return atiende.ToolResult{Error: fmt.Sprintf("invalid date: month %d day %d", params.Month, params.Day)}, nil
	}

	events, err := t.fetch(ctx, params.Month, params.Day)
	if err != nil {
		return atiende.ToolResult{Error: err.Error()}, nil
	}
	return atiende.ToolResult{Content: events}, nil
}

func (t *Tool) fetch(ctx context.Context, month, day int) (string, error) {
	u := fmt.Sprintf("%s/%d/%d/events.json", t.baseURL, month, day)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("events request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("events fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("events service HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("events read: %w", err)
	}

	var er eventsResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return "", fmt.Errorf("events decode: %w", err)
	}
	if len(er.Events) == 0 {
		return "", fmt.Errorf("no events found for %d/%d", month, day)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "On %s:\n", er.Date)
	// Most recent events last in the API; take the tail for recency.
	events := er.Events
	if len(events) > maxEvents {
		events = events[len(events)-maxEvents:]
	}
	for _, e := range events {
		fmt.Fprintf(&b, "- %s: %s\n", e.Year, e.Description)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
