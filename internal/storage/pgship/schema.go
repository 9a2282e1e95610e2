package pgship

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS me_credentials (
  id BIGSERIAL PRIMARY KEY,
  account_id TEXT NOT NULL,
  provider TEXT NOT NULL,
  access_token TEXT NOT NULL,
  refresh_token TEXT NOT NULL,
  token_type TEXT NOT NULL DEFAULT 'Bearer',
  scope TEXT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (account_id, provider)
)`,
		`
CREATE TABLE IF NOT EXISTS me_shipments (
  order_id TEXT PRIMARY KEY,
  protocol TEXT NOT NULL,
  status TEXT NOT NULL,
  recipient_name TEXT NOT NULL,
  recipient_phone_e164 TEXT NULL,
  tracking_code TEXT NOT NULL,
  tracking_url TEXT NULL,
  raw_payload JSONB NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_me_shipments_status ON me_shipments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_me_shipments_tracking_code ON me_shipments(tracking_code)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
