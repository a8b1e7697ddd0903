package atiende

import "log/slog"

// nopLogger discards all output. Used as the fallback when no logger is
// injected, so components never need nil checks.
var nopLogger = slog.New(slog.DiscardHandler)
