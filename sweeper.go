package atiende

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultSweepMaxAge = 10 * time.Minute

// sweepParser accepts standard 5-field cron expressions plus descriptors
// like "@every 1m".
var sweepParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Sweeper periodically reclaims run records that exceeded the age ceiling
// without reaching a terminal status - runs whose local owner died or whose
// timeout cancel never landed remotely.
type Sweeper struct {
	tracker  *RunTracker
	schedule cron.Schedule
	maxAge   time.Duration
	logger   *slog.Logger
	stats    *Stats

	registry   *ThreadRegistry
	bindingTTL time.Duration
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepMaxAge sets the age ceiling past which a run is reclaimed
// (default: 10m). Must exceed the escalator's largest budget or the sweeper
// will fight live invocations.
func WithSweepMaxAge(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.maxAge = d }
}

// WithSweeperStats sets the stats sink for sweep cancellations.
func WithSweeperStats(st *Stats) SweeperOption {
	return func(s *Sweeper) { s.stats = st }
}

// WithSweeperLogger sets the structured logger.
func WithSweeperLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = l }
}

// WithIdleBindings additionally evicts thread bindings idle longer than ttl
// on every sweep, so the binding table stops growing with conversation churn.
func WithIdleBindings(registry *ThreadRegistry, ttl time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.registry = registry
		s.bindingTTL = ttl
	}
}

// NewSweeper creates a Sweeper firing on the given cron expression
// (e.g. "@every 1m" or "*/5 * * * *").
func NewSweeper(tracker *RunTracker, expr string, opts ...SweeperOption) (*Sweeper, error) {
	sched, err := sweepParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", expr, err)
	}
	s := &Sweeper{
		tracker:  tracker,
		schedule: sched,
		maxAge:   defaultSweepMaxAge,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = nopLogger
	}
	return s, nil
}

// Run fires SweepStale on the schedule until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("sweeper started", "max_age", s.maxAge)
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("sweeper stopped")
			return
		case <-timer.C:
		}

		if n := s.tracker.SweepStale(ctx, s.maxAge); n > 0 {
			if s.stats != nil {
				s.stats.Cancellations(n)
			}
			s.logger.Info("sweep reclaimed runs", "count", n)
		}
		if s.registry != nil && s.bindingTTL > 0 {
			s.registry.EvictIdle(s.bindingTTL)
		}
	}
}
