package observer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hverduzco/atiende"
)

// mockClient for observer tests.
type mockClient struct {
	run       atiende.Run
	runErr    error
	cancelled int
}

func (m *mockClient) CreateThread(context.Context) (string, error) { return "thread-1", nil }
func (m *mockClient) AppendMessage(context.Context, string, string, string) error {
	return nil
}
func (m *mockClient) CreateRun(context.Context, string, []atiende.ToolDefinition) (atiende.Run, error) {
	return m.run, m.runErr
}
func (m *mockClient) GetRun(context.Context, string, string) (atiende.Run, error) {
	return m.run, m.runErr
}
func (m *mockClient) CancelRun(context.Context, string, string) error {
	m.cancelled++
	return nil
}
func (m *mockClient) ListMessages(context.Context, string, int) ([]atiende.ThreadMessage, error) {
	return nil, nil
}
func (m *mockClient) SubmitToolOutputs(context.Context, string, string, []atiende.ToolOutput) (atiende.Run, error) {
	return m.run, m.runErr
}

// mockTool for observer tests.
type mockTool struct {
	defs   []atiende.ToolDefinition
	result atiende.ToolResult
	err    error
}

func (m *mockTool) Definitions() []atiende.ToolDefinition { return m.defs }
func (m *mockTool) Execute(context.Context, string, json.RawMessage) (atiende.ToolResult, error) {
	return m.result, m.err
}

// testInstruments creates a no-op Instruments using the global OTEL providers
// (which are no-ops by default). This is safe for testing delegation behavior
// without any real OTEL backend.
func testInstruments(t *testing.T) *Instruments {
	t.Helper()
	inst, err := newInstruments()
	if err != nil {
		t.Fatalf("newInstruments: %v", err)
	}
	return inst
}

func TestObservedClientDelegates(t *testing.T) {
	inner := &mockClient{run: atiende.Run{ID: "run-1", Status: atiende.RunCompleted}}
	c := WrapClient(inner, testInstruments(t))
	ctx := context.Background()

	id, err := c.CreateThread(ctx)
	if err != nil || id != "thread-1" {
		t.Errorf("CreateThread = %q, %v", id, err)
	}
	run, err := c.CreateRun(ctx, "thread-1", nil)
	if err != nil || run.ID != "run-1" {
		t.Errorf("CreateRun = %+v, %v", run, err)
	}
	if err := c.CancelRun(ctx, "thread-1", "run-1"); err != nil {
		t.Errorf("CancelRun: %v", err)
	}
	if inner.cancelled != 1 {
		t.Errorf("cancel not delegated, count %d", inner.cancelled)
	}
}

func TestObservedClientPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	c := WrapClient(&mockClient{runErr: wantErr}, testInstruments(t))

	_, err := c.GetRun(context.Background(), "thread-1", "run-1")
	if !errors.Is(err, wantErr) {
		t.Errorf("GetRun error = %v", err)
	}
}

func TestObservedToolDelegates(t *testing.T) {
	inner := &mockTool{
		defs:   []atiende.ToolDefinition{{Name: "clock"}},
		result: atiende.ToolResult{Content: "noon"},
	}
	tool := WrapTool(inner, testInstruments(t))

	defs := tool.Definitions()
	if len(defs) != 1 || defs[0].Name != "clock" {
		t.Errorf("Definitions = %+v", defs)
	}
	res, err := tool.Execute(context.Background(), "clock", nil)
	if err != nil || res.Content != "noon" {
		t.Errorf("Execute = %+v, %v", res, err)
	}
}

func TestObservedToolPropagatesToolError(t *testing.T) {
	inner := &mockTool{result: atiende.ToolResult{Error: "unknown city"}}
	tool := WrapTool(inner, testInstruments(t))

	res, err := tool.Execute(context.Background(), "weather", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Error != "unknown city" {
		t.Errorf("Error = %q", res.Error)
	}
}
