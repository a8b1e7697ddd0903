package atiende

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultSettleCeiling = 2 * time.Second
	defaultSettleStep    = 100 * time.Millisecond
)

// RunRecord is the local bookkeeping entry for one in-flight remote run.
type RunRecord struct {
	RunID          string
	ThreadID       string
	ConversationID string
	StartedAt      time.Time
}

// Age returns how long the run has been in flight.
func (r RunRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.StartedAt)
}

// RunTracker tracks in-flight runs. A record exists iff the corresponding
// remote run has been started and not yet observed as terminal, cancelled, or
// swept. It is the only structure shared between all conversation drain loops
// and the background sweeper, so every operation is atomic with respect to
// the run table.
//
// Local bookkeeping never retains a record the remote side considers gone:
// cancellation drops records regardless of the remote cancel outcome.
type RunTracker struct {
	client  AssistantClient
	logger  *slog.Logger
	ceiling time.Duration // max wait for a cancelled run to quiesce
	step    time.Duration // poll interval during the quiesce wait

	mu   sync.Mutex
	runs map[string]RunRecord
}

// TrackerOption configures a RunTracker.
type TrackerOption func(*RunTracker)

// WithTrackerLogger sets the structured logger for tracker events.
func WithTrackerLogger(l *slog.Logger) TrackerOption {
	return func(t *RunTracker) { t.logger = l }
}

// WithSettleWindow tunes the post-cancel quiesce wait: after cancelling runs
// on a thread the tracker polls each run every step until it reports a
// terminal status or ceiling elapses, so the thread is observably free for
// new writes before the caller proceeds.
func WithSettleWindow(ceiling, step time.Duration) TrackerOption {
	return func(t *RunTracker) {
		t.ceiling = ceiling
		t.step = step
	}
}

// NewRunTracker creates a RunTracker.
func NewRunTracker(client AssistantClient, opts ...TrackerOption) *RunTracker {
	t := &RunTracker{
		client:  client,
		ceiling: defaultSettleCeiling,
		step:    defaultSettleStep,
		runs:    make(map[string]RunRecord),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = nopLogger
	}
	return t
}

// Register inserts a record for a freshly started run. Duplicate run ids are
// a programming error and panic.
func (t *RunTracker) Register(runID, threadID, conversationID string) {
	t.registerAt(runID, threadID, conversationID, time.Now())
}

// registerAt is Register with an explicit start time, for sweep tests.
func (t *RunTracker) registerAt(runID, threadID, conversationID string, startedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.runs[runID]; exists {
		panic(fmt.Sprintf("atiende: run %s registered twice", runID))
	}
	t.runs[runID] = RunRecord{
		RunID:          runID,
		ThreadID:       threadID,
		ConversationID: conversationID,
		StartedAt:      startedAt,
	}
}

// Deregister removes a record. Idempotent; absent ids are a no-op.
func (t *RunTracker) Deregister(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.runs, runID)
}

// CancelAllOnThread cancels every tracked run on the thread and removes the
// records. The remote cancel outcome is ignored (the run may already be
// terminal); the quiesce wait afterwards gives the remote side time to
// release the thread for new writes. Returns the number of records removed.
//
// Calling this on a thread with no tracked runs is a no-op returning 0.
func (t *RunTracker) CancelAllOnThread(ctx context.Context, threadID string) int {
	t.mu.Lock()
	var victims []RunRecord
	for id, rec := range t.runs {
		if rec.ThreadID == threadID {
			victims = append(victims, rec)
			delete(t.runs, id)
		}
	}
	t.mu.Unlock()

	if len(victims) == 0 {
		return 0
	}

	for _, rec := range victims {
		if err := t.client.CancelRun(ctx, rec.ThreadID, rec.RunID); err != nil {
			t.logger.Warn("cancel run", "run_id", rec.RunID, "thread_id", rec.ThreadID, "error", err)
		} else {
			t.logger.Info("run cancelled", "run_id", rec.RunID, "thread_id", rec.ThreadID)
		}
	}
	t.awaitQuiesce(ctx, victims)
	return len(victims)
}

// CancelAll cancels every tracked run across all threads. Used for the
// administrative reset. Returns the number of runs removed and the number of
// distinct threads affected.
func (t *RunTracker) CancelAll(ctx context.Context) (count, threads int) {
	t.mu.Lock()
	victims := make([]RunRecord, 0, len(t.runs))
	seen := make(map[string]struct{})
	for id, rec := range t.runs {
		victims = append(victims, rec)
		seen[rec.ThreadID] = struct{}{}
		delete(t.runs, id)
	}
	t.mu.Unlock()

	for _, rec := range victims {
		if err := t.client.CancelRun(ctx, rec.ThreadID, rec.RunID); err != nil {
			t.logger.Warn("cancel run", "run_id", rec.RunID, "thread_id", rec.ThreadID, "error", err)
		}
	}
	t.awaitQuiesce(ctx, victims)
	return len(victims), len(seen)
}

// SweepStale removes every record older than maxAge, issuing fire-and-forget
// remote cancels. Cancel failures are swallowed: the local table follows the
// age ceiling regardless of what the remote side does, and a later sweep
// catches anything that never actually stopped. Runs off the request path.
func (t *RunTracker) SweepStale(ctx context.Context, maxAge time.Duration) int {
	now := time.Now()

	t.mu.Lock()
	var stale []RunRecord
	for id, rec := range t.runs {
		if rec.Age(now) > maxAge {
			stale = append(stale, rec)
			delete(t.runs, id)
		}
	}
	t.mu.Unlock()

	for _, rec := range stale {
		err := t.client.CancelRun(ctx, rec.ThreadID, rec.RunID)
		t.logger.Info("stale run swept",
			"run_id", rec.RunID,
			"thread_id", rec.ThreadID,
			"age", rec.Age(now).Round(time.Second),
			"cancel_error", err)
	}
	return len(stale)
}

// Len returns the number of tracked runs.
func (t *RunTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.runs)
}

// Snapshot returns a copy of all tracked records.
func (t *RunTracker) Snapshot() []RunRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]RunRecord, 0, len(t.runs))
	for _, rec := range t.runs {
		out = append(out, rec)
	}
	return out
}

// awaitQuiesce polls each cancelled run until the remote side reports a
// terminal status or the ceiling elapses. The remote API rejects writes to a
// thread while a run is active, so a cancel request alone is not enough - the
// cancellation has to be observed before the thread is safe to mutate.
func (t *RunTracker) awaitQuiesce(ctx context.Context, cancelled []RunRecord) {
	deadline := time.Now().Add(t.ceiling)
	for _, rec := range cancelled {
		for {
			run, err := t.client.GetRun(ctx, rec.ThreadID, rec.RunID)
			if err != nil || run.Status.Terminal() {
				break
			}
			if time.Now().After(deadline) {
				t.logger.Warn("run did not quiesce within ceiling",
					"run_id", rec.RunID, "thread_id", rec.ThreadID, "ceiling", t.ceiling)
				return
			}
			timer := time.NewTimer(t.step)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}
