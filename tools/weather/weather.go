// Package weather provides current weather lookups via the wttr.in service.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hverduzco/atiende"
)

const defaultBaseURL = "https://wttr.in"

// Tool fetches current weather conditions for a location.
type Tool struct {
	baseURL string
	client  *http.Client
}

var _ atiende.Tool = (*Tool)(nil)

// Option configures the weather tool.
type Option func(*Tool)

// WithBaseURL overrides the wttr.in endpoint. Used in tests.
func WithBaseURL(u string) Option {
	return func(t *Tool) { t.baseURL = strings.TrimRight(u, "/") }
}

// New creates a weather tool with a 10-second timeout.
func New(opts ...Option) *Tool {
	t := &Tool{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Definitions() []atiende.ToolDefinition {
	return []atiende.ToolDefinition{{
		Name:        "weather",
		Description: "Get the current weather for a city. Use when the customer asks about weather conditions.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"location":{"type":"string","description":"City name, e.g. Madrid"}},"required":["location"]}`),
	}}
}

// wttr.in JSON response, limited to the fields reported back.
type wttrResponse struct {
	CurrentCondition []struct {
		TempC       string `json:"temp_C"`
		FeelsLikeC  string `json:"FeelsLikeC"`
		Humidity    string `json:"humidity"`
		WeatherDesc []struct {
			Value string `json:"value"`
		} `json:"weatherDesc"`
	} `json:"current_condition"`
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (atiende.ToolResult, error) {
	var params struct {
		Location string `json:"location"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return atiende.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if params.Location == "" {
		return atiende.ToolResult{Error: "location is required"}, nil
	}

	report, err := t.fetch(ctx, params.Location)
	if err != nil {
		return atiende.ToolResult{Error: err.Error()}, nil
	}
	return atiende.ToolResult{Content: report}, nil
}

func (t *Tool) fetch(ctx context.Context, location string) (string, error) {
	u := t.baseURL + "/" + url.PathEscape(location) + "?format=j1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("weather request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("weather fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather service HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("weather read: %w", err)
	}

	var w wttrResponse
	if err := json.Unmarshal(body, &w); err != nil {
		return "", fmt.Errorf("weather decode: %w", err)
	}
	if len(w.CurrentCondition) == 0 {
		return "", fmt.Errorf("no weather data for %s", location)
	}

	cc := w.CurrentCondition[0]
	desc := ""
	if len(cc.WeatherDesc) > 0 {
		desc = cc.WeatherDesc[0].Value
	}
	return fmt.Sprintf("%s: %s, %s°C (feels like %s°C), humidity %s%%",
		location, desc, cc.TempC, cc.FeelsLikeC, cc.Humidity), nil
}
