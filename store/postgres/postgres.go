// Package postgres implements atiende.ConversationStore using PostgreSQL.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor injection.
// The caller creates and closes the pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hverduzco/atiende"
)

// Store implements atiende.ConversationStore backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ atiende.ConversationStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the conversations table. Idempotent.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		human_mode BOOLEAN NOT NULL DEFAULT FALSE,
		known BOOLEAN NOT NULL DEFAULT FALSE,
		failures INTEGER NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// GetOrCreateConversation returns the record for id, inserting a fresh row
// with zero values on first contact.
func (s *Store) GetOrCreateConversation(ctx context.Context, id string) (atiende.Conversation, error) {
	now := atiende.NowUnix()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, created_at, updated_at) VALUES ($1, $2, $2)
		 ON CONFLICT (id) DO NOTHING`, id, now)
	if err != nil {
		return atiende.Conversation{}, fmt.Errorf("upsert conversation: %w", err)
	}

	var c atiende.Conversation
	err = s.pool.QueryRow(ctx,
		`SELECT id, human_mode, known, failures, created_at, updated_at
		 FROM conversations WHERE id = $1`, id).
		Scan(&c.ID, &c.HumanMode, &c.Known, &c.Failures, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return atiende.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

// SetHumanMode toggles human handoff for a conversation.
func (s *Store) SetHumanMode(ctx context.Context, id string, enabled bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE conversations SET human_mode = $1, updated_at = $2 WHERE id = $3`,
		enabled, atiende.NowUnix(), id)
	if err != nil {
		return fmt.Errorf("set human mode: %w", err)
	}
	return nil
}

// MarkKnown records that the conversation has completed first contact.
func (s *Store) MarkKnown(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE conversations SET known = TRUE, updated_at = $1 WHERE id = $2`,
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
	err := s.pool.QueryRow(ctx,
		`UPDATE conversations SET failures = failures + 1, updated_at = $1
		 WHERE id = $2 RETURNING failures`,
		atiende.NowUnix(), id).Scan(&failures)
	if err != nil {
		return 0, fmt.Errorf("increment failures: %w", err)
	}
	return failures, nil
}

// ResetFailures zeroes the consecutive failure counter.
func (s *Store) ResetFailures(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE conversations SET failures = 0, updated_at = $1 WHERE id = $2`,
		atiende.NowUnix(), id)
	if err != nil {
		return fmt.Errorf("reset failures: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *Store) Close() error { return nil }
