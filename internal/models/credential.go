package models

import "time"

// ProviderMelhorEnvio is the only shipping provider we integrate with today.
// Credentials are keyed by (account_id, provider) so a second provider can be
// added without a schema change.
const ProviderMelhorEnvio = "melhor_envio"

type Credential struct {
	AccountID    string
	Provider     string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        *string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
