package audit

import (
	"context"
	"strings"
)

// Store records operational relay events: session inits, upstream
// reconnects, degraded enrichment fetches. It is an operations log, not a
// conversation transcript; no audio or dialogue content ever passes through
// it.
type Store interface {
	SessionInit(ctx context.Context, connID, subject, outcome string) error
	UpstreamReconnect(ctx context.Context, attempt int) error
	Close()
}

// NewStore creates a postgres-backed store when configured, otherwise a
// no-op store.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NoopStore{}, nil
	}
	return NewPostgresStore(ctx, databaseURL)
}

// NoopStore discards every event.
type NoopStore struct{}

func (NoopStore) SessionInit(context.Context, string, string, string) error { return nil }
func (NoopStore) UpstreamReconnect(context.Context, int) error              { return nil }
func (NoopStore) Close()                                                    {}
