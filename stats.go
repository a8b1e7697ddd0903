package atiende

import (
	"sync"
	"time"
)

// maxLatencySamples bounds the latency sample buffer: only the most recent
// samples are retained.
const maxLatencySamples = 50

// Stats accumulates process-wide counters for the lifetime of the service.
// All methods are safe for concurrent use.
type Stats struct {
	mu sync.Mutex

	startedAt time.Time

	received       int64 // inbound platform messages seen
	filtered       int64 // dropped before the queue (group, echo, empty, human mode)
	successes      int64 // replies produced on the first rung
	retrySuccesses int64 // replies produced on a later rung
	timeouts       int64 // failed rungs, any error class
	cancellations  int64 // runs cancelled (superseded, timed out, or swept)
	errors         int64 // messages that exhausted the ladder

	latencies []time.Duration
}

// NewStats creates a Stats with the uptime clock started now.
func NewStats() *Stats {
	return &Stats{startedAt: time.Now()}
}

func (s *Stats) Received()     { s.add(&s.received) }
func (s *Stats) Filtered()     { s.add(&s.filtered) }
func (s *Stats) Timeout()      { s.add(&s.timeouts) }
func (s *Stats) Cancellation() { s.add(&s.cancellations) }
func (s *Stats) Error()        { s.add(&s.errors) }

// Cancellations records n cancellations at once (bulk cancel paths).
func (s *Stats) Cancellations(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.cancellations += int64(n)
	s.mu.Unlock()
}

// Success records a completed reply. rung is the zero-based escalation rung
// that produced it; rung 0 counts as a first-attempt success, anything later
// as a retry success. latency is the full time from enqueue to reply.
func (s *Stats) Success(rung int, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rung == 0 {
		s.successes++
	} else {
		s.retrySuccesses++
	}
	s.latencies = append(s.latencies, latency)
	if len(s.latencies) > maxLatencySamples {
		s.latencies = s.latencies[len(s.latencies)-maxLatencySamples:]
	}
}

func (s *Stats) add(field *int64) {
	s.mu.Lock()
	*field++
	s.mu.Unlock()
}

// StatsSnapshot is a point-in-time copy of all counters.
type StatsSnapshot struct {
	Received       int64         `json:"received"`
	Filtered       int64         `json:"filtered"`
	Successes      int64         `json:"successes"`
	RetrySuccesses int64         `json:"retry_successes"`
	Timeouts       int64         `json:"timeouts"`
	Cancellations  int64         `json:"cancellations"`
	Errors         int64         `json:"errors"`
	AvgLatencyMS   int64         `json:"avg_latency_ms"`
	Samples        int           `json:"latency_samples"`
	Uptime         time.Duration `json:"uptime"`
}

// Snapshot returns a consistent copy of all counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var avg time.Duration
	if len(s.latencies) > 0 {
		var sum time.Duration
		for _, d := range s.latencies {
			sum += d
		}
		avg = sum / time.Duration(len(s.latencies))
	}

	return StatsSnapshot{
		Received:       s.received,
		Filtered:       s.filtered,
		Successes:      s.successes,
		RetrySuccesses: s.retrySuccesses,
		Timeouts:       s.timeouts,
		Cancellations:  s.cancellations,
		Errors:         s.errors,
		AvgLatencyMS:   avg.Milliseconds(),
		Samples:        len(s.latencies),
		Uptime:         time.Since(s.startedAt),
	}
}
