package atiende

import (
	"context"
	"errors"
	"testing"
	"time"
)

// scriptedInvoker fails attempts until succeedOn (1-based); 0 never succeeds.
type scriptedInvoker struct {
	succeedOn int
	reply     string
	err       error

	budgets []time.Duration
}

func (s *scriptedInvoker) Invoke(_ context.Context, _, _ string, _ bool, budget time.Duration) (string, error) {
	s.budgets = append(s.budgets, budget)
	if s.succeedOn > 0 && len(s.budgets) >= s.succeedOn {
		return s.reply, nil
	}
	err := s.err
	if err == nil {
		err = &ErrRunTimeout{RunID: "r", Budget: budget}
	}
	return "", err
}

func TestProcessFirstRungSuccess(t *testing.T) {
	stub := &scriptedInvoker{succeedOn: 1, reply: "hi"}
	stats := NewStats()
	e := NewEscalator(stub, WithEscalatorStats(stats))

	if got := e.Process(context.Background(), "555", "hola", false); got != "hi" {
		t.Errorf("got %q, want %q", got, "hi")
	}
	s := stats.Snapshot()
	if s.Successes != 1 || s.RetrySuccesses != 0 || s.Timeouts != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestProcessRetrySuccess(t *testing.T) {
	stub := &scriptedInvoker{succeedOn: 2, reply: "hi"}
	stats := NewStats()
	e := NewEscalator(stub, WithEscalatorStats(stats))

	if got := e.Process(context.Background(), "555", "hola", false); got != "hi" {
		t.Errorf("got %q, want %q", got, "hi")
	}
	s := stats.Snapshot()
	if s.Successes != 0 || s.RetrySuccesses != 1 {
		t.Errorf("expected retry success, got %+v", s)
	}
	if s.Timeouts != 1 {
		t.Errorf("expected 1 timeout for the failed rung, got %d", s.Timeouts)
	}
}

func TestProcessLadderMonotonicAndBounded(t *testing.T) {
	stub := &scriptedInvoker{} // never succeeds
	stats := NewStats()
	e := NewEscalator(stub, WithEscalatorStats(stats))

	got := e.Process(context.Background(), "555", "hola", false)
	if got != DefaultFallbackReply {
		t.Errorf("expected fallback reply, got %q", got)
	}
	if len(stub.budgets) != len(defaultLadder) {
		t.Fatalf("expected %d attempts, got %d", len(defaultLadder), len(stub.budgets))
	}
	for i := 1; i < len(stub.budgets); i++ {
		if stub.budgets[i] >= stub.budgets[i-1] {
			t.Errorf("budget %d (%s) not smaller than budget %d (%s)",
				i, stub.budgets[i], i-1, stub.budgets[i-1])
		}
	}
	s := stats.Snapshot()
	if s.Timeouts != int64(len(defaultLadder)) {
		t.Errorf("expected %d timeouts, got %d", len(defaultLadder), s.Timeouts)
	}
	if s.Errors != 1 {
		t.Errorf("expected 1 exhaustion error, got %d", s.Errors)
	}
}

func TestProcessErrorClassDoesNotChangeLadder(t *testing.T) {
	for name, err := range map[string]error{
		"terminal":  &ErrRunTerminal{Status: RunFailed, Reason: "boom"},
		"thread":    &ErrThreadCreate{Cause: errors.New("down")},
		"transport": &ErrHTTP{Status: 500, Body: "oops"},
	} {
		t.Run(name, func(t *testing.T) {
			stub := &scriptedInvoker{err: err}
			e := NewEscalator(stub)
			if got := e.Process(context.Background(), "555", "hola", false); got != DefaultFallbackReply {
				t.Errorf("expected fallback, got %q", got)
			}
			if len(stub.budgets) != len(defaultLadder) {
				t.Errorf("expected %d attempts, got %d", len(defaultLadder), len(stub.budgets))
			}
		})
	}
}

func TestProcessCustomLadderAndFallback(t *testing.T) {
	stub := &scriptedInvoker{}
	e := NewEscalator(stub,
		WithLadder(30*time.Second, 10*time.Second),
		WithFallbackReply("ahorita no puedo, intenta más tarde"),
	)

	got := e.Process(context.Background(), "555", "hola", false)
	if got != "ahorita no puedo, intenta más tarde" {
		t.Errorf("custom fallback not used: %q", got)
	}
	if len(stub.budgets) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(stub.budgets))
	}
}
