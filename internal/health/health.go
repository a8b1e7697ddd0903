// Package health serves the liveness and status endpoints.
package health

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/hverduzco/atiende"
)

// Server exposes GET /healthz and GET /statusz over HTTP.
type Server struct {
	echo    *echo.Echo
	tracker *atiende.RunTracker
	stats   *atiende.Stats
	logger  *slog.Logger
}

// New creates a health server reporting on the given tracker and stats.
func New(tracker *atiende.RunTracker, stats *atiende.Stats, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		echo:    echo.New(),
		tracker: tracker,
		stats:   stats,
		logger:  logger,
	}
	s.echo.GET("/healthz", s.healthz)
	s.echo.GET("/statusz", s.statusz)
	return s
}

func (s *Server) healthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	ActiveRuns     int   `json:"activeRuns"`
	Received       int64 `json:"received"`
	Filtered       int64 `json:"filtered"`
	Successes      int64 `json:"successes"`
	RetrySuccesses int64 `json:"retrySuccesses"`
	Timeouts       int64 `json:"timeouts"`
	Cancellations  int64 `json:"cancellations"`
	Errors         int64 `json:"errors"`
	AvgLatencyMS   int64 `json:"avgLatencyMs"`
	UptimeSeconds  int64 `json:"uptimeSeconds"`
}

func (s *Server) statusz(c *echo.Context) error {
	snap := s.stats.Snapshot()
	return c.JSON(http.StatusOK, statusResponse{
		ActiveRuns:     s.tracker.Len(),
		Received:       snap.Received,
		Filtered:       snap.Filtered,
		Successes:      snap.Successes,
		RetrySuccesses: snap.RetrySuccesses,
		Timeouts:       snap.Timeouts,
		Cancellations:  snap.Cancellations,
		Errors:         snap.Errors,
		AvgLatencyMS:   snap.AvgLatencyMS,
		UptimeSeconds:  int64(snap.Uptime / time.Second),
	})
}

// Handler returns the underlying HTTP handler. Used in tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.echo}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("health server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
