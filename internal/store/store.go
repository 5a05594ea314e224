package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS calls (
	call_sid     TEXT PRIMARY KEY,
	destination  TEXT,
	launched_at  TIMESTAMPTZ,
	ended_at     TIMESTAMPTZ,
	end_reason   TEXT,
	caller_turns INT,
	transcript   JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lead_qualifications (
	id                 UUID PRIMARY KEY,
	call_sid           TEXT NOT NULL REFERENCES calls (call_sid) ON DELETE CASCADE,
	interested         BOOLEAN NOT NULL,
	wants_catalogue    BOOLEAN NOT NULL,
	callback_requested BOOLEAN NOT NULL,
	business_type      TEXT NOT NULL,
	summary            TEXT NOT NULL,
	confidence         DOUBLE PRECISION NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS lead_qualifications_call_sid_idx ON lead_qualifications (call_sid);
`

// EnsureSchema creates the ledger tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
