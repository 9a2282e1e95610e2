package pgship

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/rbxlabs/shipbox/internal/models"
)

// GetCredential returns the stored credential for (accountID, provider), or
// nil when the account has never completed the OAuth flow.
func (s *Storage) GetCredential(ctx context.Context, accountID, provider string) (*models.Credential, error) {
	var c models.Credential
	var scope *string
	err := s.db.QueryRow(ctx, `
SELECT account_id, provider, access_token, refresh_token, token_type, scope, expires_at, created_at, updated_at
FROM me_credentials
WHERE account_id = $1 AND provider = $2
`, accountID, provider).Scan(
		&c.AccountID, &c.Provider,
		&c.AccessToken, &c.RefreshToken, &c.TokenType,
		&scope, &c.ExpiresAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select credential")
	}
	c.Scope = scope
	return &c, nil
}

// UpsertCredential writes a credential keyed by (account_id, provider).
// Every refresh overwrites the same row, so an account has at most one
// credential per provider.
func (s *Storage) UpsertCredential(ctx context.Context, c *models.Credential) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
INSERT INTO me_credentials (
  account_id, provider, access_token, refresh_token, token_type, scope, expires_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
ON CONFLICT (account_id, provider)
DO UPDATE SET
  access_token = EXCLUDED.access_token,
  refresh_token = EXCLUDED.refresh_token,
  token_type = EXCLUDED.token_type,
  scope = EXCLUDED.scope,
  expires_at = EXCLUDED.expires_at,
  updated_at = EXCLUDED.updated_at
`, c.AccountID, c.Provider, c.AccessToken, c.RefreshToken, c.TokenType, c.Scope, c.ExpiresAt.UTC(), now)
	return errors.Wrap(err, "upsert credential")
}
