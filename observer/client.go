package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hverduzco/atiende"
)

// ObservedClient wraps an atiende.AssistantClient with OTEL instrumentation.
// Every API call gets a span and a duration sample; run creation and
// cancellation additionally feed the run counters.
type ObservedClient struct {
	inner atiende.AssistantClient
	inst  *Instruments
}

var _ atiende.AssistantClient = (*ObservedClient)(nil)

// WrapClient returns an instrumented assistant client.
func WrapClient(inner atiende.AssistantClient, inst *Instruments) *ObservedClient {
	return &ObservedClient{inner: inner, inst: inst}
}

func (o *ObservedClient) CreateThread(ctx context.Context) (string, error) {
	ctx, finish := o.startCall(ctx, "threads.create")
	id, err := o.inner.CreateThread(ctx)
	finish(err)
	return id, err
}

func (o *ObservedClient) AppendMessage(ctx context.Context, threadID, role, text string) error {
	ctx, finish := o.startCall(ctx, "messages.create", AttrThreadID.String(threadID))
	err := o.inner.AppendMessage(ctx, threadID, role, text)
	finish(err)
	return err
}

func (o *ObservedClient) CreateRun(ctx context.Context, threadID string, tools []atiende.ToolDefinition) (atiende.Run, error) {
	ctx, finish := o.startCall(ctx, "runs.create", AttrThreadID.String(threadID))
	run, err := o.inner.CreateRun(ctx, threadID, tools)
	finish(err)
	if err == nil {
		o.inst.RunsStarted.Add(ctx, 1)
	}
	return run, err
}

func (o *ObservedClient) GetRun(ctx context.Context, threadID, runID string) (atiende.Run, error) {
	ctx, finish := o.startCall(ctx, "runs.get",
		AttrThreadID.String(threadID), AttrRunID.String(runID))
	run, err := o.inner.GetRun(ctx, threadID, runID)
	finish(err)
	return run, err
}

func (o *ObservedClient) CancelRun(ctx context.Context, threadID, runID string) error {
	ctx, finish := o.startCall(ctx, "runs.cancel",
		AttrThreadID.String(threadID), AttrRunID.String(runID))
	err := o.inner.CancelRun(ctx, threadID, runID)
	finish(err)
	if err == nil {
		o.inst.RunsCancelled.Add(ctx, 1)
	}
	return err
}

func (o *ObservedClient) ListMessages(ctx context.Context, threadID string, limit int) ([]atiende.ThreadMessage, error) {
	ctx, finish := o.startCall(ctx, "messages.list", AttrThreadID.String(threadID))
	msgs, err := o.inner.ListMessages(ctx, threadID, limit)
	finish(err)
	return msgs, err
}

func (o *ObservedClient) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []atiende.ToolOutput) (atiende.Run, error) {
	ctx, finish := o.startCall(ctx, "runs.submit_tool_outputs",
		AttrThreadID.String(threadID), AttrRunID.String(runID))
	run, err := o.inner.SubmitToolOutputs(ctx, threadID, runID, outputs)
	finish(err)
	return run, err
}

// startCall opens a span for one API call and returns a finish func that
// closes it and records the request counter and duration sample.
func (o *ObservedClient) startCall(ctx context.Context, method string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	spanAttrs := append([]attribute.KeyValue{AttrAPIMethod.String(method)}, attrs...)
	ctx, span := o.inst.Tracer.Start(ctx, "assistant."+method, trace.WithAttributes(spanAttrs...))
	start := time.Now()

	return ctx, func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		o.inst.APIRequests.Add(ctx, 1, metric.WithAttributes(
			AttrAPIMethod.String(method),
			AttrRunStatus.String(status),
		))
		o.inst.APIDuration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(
			AttrAPIMethod.String(method),
		))
	}
}
