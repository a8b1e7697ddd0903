// Package clock provides the assistant with the current date and time.
package clock

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hverduzco/atiende"
)

// Tool reports the current time, optionally in a requested IANA time zone.
type Tool struct {
	now func() time.Time
}

var _ atiende.Tool = (*Tool)(nil)

// New creates a clock tool.
func New() *Tool {
	return &Tool{now: time.Now}
}

func (t *Tool) Definitions() []atiende.ToolDefinition {
	return []atiende.ToolDefinition{{
		Name:        "current_time",
		Description: "Get the current date and time. Use when the customer asks about dates, times, opening hours, or deadlines.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"timezone":{"type":"string","description":"IANA time zone, e.g. America/Mexico_City. Defaults to UTC."}},"required":[]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (atiende.ToolResult, error) {
	var params struct {
		Timezone string `json:"timezone"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return atiende.ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
	}

	loc := time.UTC
	if params.Timezone != "" {
		l, err := time.LoadLocation(params.Timezone)
		if err != nil {
			return atiende.ToolResult{Error: "unknown timezone: " + params.Timezone}, nil
		}
		loc = l
	}

	return atiende.ToolResult{
		Content: t.now().In(loc).Format("Monday, 2 January 2006, 15:04 MST"),
	}, nil
}
