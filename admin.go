package atiende

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Admin handles the operator command surface. Commands arrive as regular
// platform messages on the configured admin conversation and invoke core
// operations directly, bypassing the queue and the assistant.
type Admin struct {
	tracker  *RunTracker
	registry *ThreadRegistry
	stats    *Stats
	store    ConversationStore
	logger   *slog.Logger
}

// NewAdmin creates an Admin command handler.
func NewAdmin(tracker *RunTracker, registry *ThreadRegistry, stats *Stats, store ConversationStore, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = nopLogger
	}
	return &Admin{tracker: tracker, registry: registry, stats: stats, store: store, logger: logger}
}

// Handle executes one admin command and returns the reply text. The second
// return value is false when text is not a recognized command.
func (a *Admin) Handle(ctx context.Context, text string) (string, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "!") {
		return "", false
	}
	cmd, args := fields[0], fields[1:]
	a.logger.Info("admin command", "command", cmd)

	switch cmd {
	case "!stats":
		return a.formatStats(), true

	case "!status":
		return fmt.Sprintf("active runs: %d\nthread bindings: %d\nuptime: %s",
			a.tracker.Len(), a.registry.Len(),
			a.stats.Snapshot().Uptime.Round(time.Second)), true

	case "!cleanup":
		count, threads := a.tracker.CancelAll(ctx)
		a.stats.Cancellations(count)
		return fmt.Sprintf("cancelled %d run(s) across %d thread(s)", count, threads), true

	case "!human", "!ai":
		if len(args) != 1 {
			return fmt.Sprintf("usage: %s <conversation-id>", cmd), true
		}
		enabled := cmd == "!human"
		if err := a.store.SetHumanMode(ctx, args[0], enabled); err != nil {
			return "error: " + err.Error(), true
		}
		mode := "assistant"
		if enabled {
			mode = "human"
		}
		return fmt.Sprintf("conversation %s now in %s mode", args[0], mode), true

	case "!help":
		return strings.Join([]string{
			"!stats - counters and latency",
			"!status - active runs, bindings, uptime",
			"!cleanup - cancel every tracked run",
			"!human <id> - hand a conversation to a human",
			"!ai <id> - return a conversation to the assistant",
			"!help - this text",
		}, "\n"), true
	}

	return fmt.Sprintf("unknown command %s (try !help)", cmd), true
}

func (a *Admin) formatStats() string {
	s := a.stats.Snapshot()
	return fmt.Sprintf(
		"received: %d\nfiltered: %d\nsuccesses: %d (first attempt) + %d (retry)\n"+
			"timeouts: %d\ncancellations: %d\nerrors: %d\n"+
			"avg latency: %dms over %d samples\nuptime: %s",
		s.Received, s.Filtered, s.Successes, s.RetrySuccesses,
		s.Timeouts, s.Cancellations, s.Errors,
		s.AvgLatencyMS, s.Samples, s.Uptime.Round(time.Second))
}
