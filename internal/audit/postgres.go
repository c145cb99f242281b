package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists relay events in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS relay_events (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			conn_id TEXT NOT NULL DEFAULT '',
			subject TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL DEFAULT '',
			attempt INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_relay_events_kind_created ON relay_events (kind, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SessionInit(ctx context.Context, connID, subject, outcome string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO relay_events (id, kind, conn_id, subject, outcome, created_at)
		 VALUES ($1, 'session_init', $2, $3, $4, $5)`,
		uuid.NewString(),
		connID,
		subject,
		outcome,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record session init: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpstreamReconnect(ctx context.Context, attempt int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO relay_events (id, kind, attempt, created_at)
		 VALUES ($1, 'upstream_reconnect', $2, $3)`,
		uuid.NewString(),
		attempt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record reconnect: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
