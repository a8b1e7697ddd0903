// Package sqlite implements atiende.ConversationStore using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hverduzco/atiende"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including timing
// and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store implements atiende.ConversationStore backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ atiende.ConversationStore = (*Store)(nil)

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the conversations table. Idempotent.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		human_mode INTEGER NOT NULL DEFAULT 0,
		known INTEGER NOT NULL DEFAULT 0,
		failures INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	s.logger.Debug("sqlite: init completed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// GetOrCreateConversation returns the record for id, inserting a fresh row
// with zero values on first contact.
func (s *Store) GetOrCreateConversation(ctx context.Context, id string) (atiende.Conversation, error) {
	now := atiende.NowUnix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`, id, now, now)
	if err != nil {
		return atiende.Conversation{}, fmt.Errorf("upsert conversation: %w", err)
	}

	var c atiende.Conversation
	var humanMode, known int
	err = s.db.QueryRowContext(ctx,
		`SELECT id, human_mode, known, failures, created_at, updated_at
		 FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &humanMode, &known, &c.Failures, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return atiende.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	c.HumanMode = humanMode != 0
	c.Known = known != 0
	return c, nil
}

// SetHumanMode toggles human handoff for a conversation.
func (s *Store) SetHumanMode(ctx context.Context, id string, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET human_mode = ?, updated_at = ? WHERE id = ?`,
		v, atiende.NowUnix(), id)
	if err != nil {
		return fmt.Errorf("set human mode: %w", err)
	}
	s.logger.Debug("sqlite: human mode set", "conversation", id, "enabled", enabled)
	return nil
}

// MarkKnown records that the conversation has completed first contact.
func (s *Store) MarkKnown(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET known = 1, updated_at = ? WHERE id = ?`,
		atiende.NowUnix(), id)
	if err != nil {
		return fmt.Errorf("mark known: %w", err)
	}
	return nil
}

// IncrementFailures bumps the consecutive failure counter and returns the
// new value.
func (s *Store) IncrementFailures(ctx context.Context, id string) (int, error) {
	var failures int
	err := s.db.QueryRowContext(ctx,
		`UPDATE conversations SET failures = failures + 1, updated_at = ?
		 WHERE id = ? RETURNING failures`,
		atiende.NowUnix(), id).Scan(&failures)
	if err != nil {
		return 0, fmt.Errorf("increment failures: %w", err)
	}
	s.logger.Debug("sqlite: failures incremented", "conversation", id, "failures", failures)
	return failures, nil
}

// ResetFailures zeroes the consecutive failure counter.
func (s *Store) ResetFailures(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET failures = 0, updated_at = ? WHERE id = ?`,
		atiende.NowUnix(), id)
	if err != nil {
		return fmt.Errorf("reset failures: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
