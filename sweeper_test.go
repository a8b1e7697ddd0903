package atiende

import (
	"context"
	"testing"
	"time"
)

func TestNewSweeperRejectsBadSchedule(t *testing.T) {
	fake := newFakeAssistant("ok")
	tracker := NewRunTracker(fake)
	if _, err := NewSweeper(tracker, "not a schedule"); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestNewSweeperAcceptsCronAndDescriptor(t *testing.T) {
	fake := newFakeAssistant("ok")
	tracker := NewRunTracker(fake)
	for _, expr := range []string{"* * * * *", "*/5 * * * *", "@every 1m"} {
		if _, err := NewSweeper(tracker, expr); err != nil {
			t.Errorf("%q: %v", expr, err)
		}
	}
}

func TestSweeperReclaimsStaleRuns(t *testing.T) {
	fake := newFakeAssistant("ok")
	tracker := NewRunTracker(fake, WithSettleWindow(10*time.Millisecond, time.Millisecond))
	tracker.registerAt("leaked", "t1", "c1", time.Now().Add(-time.Hour))
	tracker.Register("fresh", "t1", "c2")

	stats := NewStats()
	s, err := NewSweeper(tracker, "@every 10ms",
		WithSweepMaxAge(time.Minute),
		WithSweeperStats(stats),
	)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for tracker.Len() > 1 {
		select {
		case <-deadline:
			t.Fatal("sweep never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	recs := tracker.Snapshot()
	if len(recs) != 1 || recs[0].RunID != "fresh" {
		t.Errorf("expected only the fresh run to remain, got %+v", recs)
	}
	if fake.cancelCount() != 1 {
		t.Errorf("expected 1 remote cancel, got %d", fake.cancelCount())
	}
	if stats.Snapshot().Cancellations != 1 {
		t.Errorf("expected 1 recorded cancellation, got %d", stats.Snapshot().Cancellations)
	}
}

func TestSweeperEvictsIdleBindings(t *testing.T) {
	fake := newFakeAssistant("ok")
	tracker := NewRunTracker(fake)
	registry := NewThreadRegistry(fake)
	ctx := context.Background()

	registry.Resolve(ctx, "dormant")
	registry.mu.Lock()
	registry.bindings["dormant"].lastUsed = time.Now().Add(-time.Hour)
	registry.mu.Unlock()

	s, err := NewSweeper(tracker, "@every 10ms",
		WithIdleBindings(registry, time.Minute),
	)
	if err != nil {
		t.Fatal(err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		s.Run(runCtx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for registry.Len() > 0 {
		select {
		case <-deadline:
			t.Fatal("binding never evicted")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
