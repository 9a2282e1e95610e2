package tokens

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/rbxlabs/shipbox/internal/models"
)

// Leeway is subtracted from the real expiry before a token is treated as
// stale, so a token never expires mid-flight of a request validated just
// before use.
const Leeway = 10 * time.Minute

type Store interface {
	GetCredential(ctx context.Context, accountID, provider string) (*models.Credential, error)
	UpsertCredential(ctx context.Context, c *models.Credential) error
}

type Config struct {
	TokenEndpoint string // e.g. https://melhorenvio.com.br/oauth/token
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	UserAgent     string
}

type Manager struct {
	store Store
	httpc *http.Client
	cfg   Config
	now   func() time.Time

	mu        sync.Mutex
	accountMu map[string]*sync.Mutex
}

func New(store Store, httpc *http.Client, cfg Config) *Manager {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Manager{
		store:     store,
		httpc:     httpc,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		accountMu: map[string]*sync.Mutex{},
	}
}

// WithNow overrides the clock (tests).
func (m *Manager) WithNow(now func() time.Time) *Manager {
	m.now = now
	return m
}

// NeedsRefresh reports whether the credential is stale at "now". The leeway
// boundary itself counts as stale.
func NeedsRefresh(c *models.Credential, now time.Time) bool {
	return !c.ExpiresAt.After(now.Add(Leeway))
}

// GetCurrent returns the stored credential without refreshing it.
func (m *Manager) GetCurrent(ctx context.Context, accountID string) (*models.Credential, error) {
	c, err := m.store.GetCredential(ctx, accountID, models.ProviderMelhorEnvio)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotAuthorized
	}
	return c, nil
}

// EnsureValid returns a credential guaranteed not to need refresh at call
// time, refreshing and persisting a new one when the stored one is stale.
// The whole observe-stale/refresh/persist section runs under a per-account
// lock, so two concurrent callers share one refresh instead of racing
// independent provider calls.
func (m *Manager) EnsureValid(ctx context.Context, accountID string) (*models.Credential, error) {
	lock := m.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	cur, err := m.GetCurrent(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !NeedsRefresh(cur, m.now()) {
		return cur, nil
	}

	payload := map[string]any{
		"grant_type":    "refresh_token",
		"client_id":     m.clientIDValue(),
		"client_secret": m.cfg.ClientSecret,
		"refresh_token": cur.RefreshToken,
	}

	tr, status, body, err := m.postToken(ctx, payload)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, &RefreshFailedError{Status: status, Body: body}
	}

	next := m.credentialFromResponse(accountID, tr)
	if next.RefreshToken == "" {
		// The provider may omit a new refresh token; the old one stays valid.
		next.RefreshToken = cur.RefreshToken
	}
	if err := m.store.UpsertCredential(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// ExchangeCode performs the one-shot authorization-code exchange and persists
// the initial credential. Used by the OAuth callback and the bootstrap CLI.
func (m *Manager) ExchangeCode(ctx context.Context, accountID, code string) (*models.Credential, error) {
	if accountID == "" {
		accountID = "default"
	}

	payload := map[string]any{
		"grant_type":    "authorization_code",
		"code":          code,
		"client_id":     m.clientIDValue(),
		"client_secret": m.cfg.ClientSecret,
		"redirect_uri":  m.cfg.RedirectURI,
	}

	tr, status, body, err := m.postToken(ctx, payload)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, &ExchangeFailedError{Status: status, Body: body}
	}

	c := m.credentialFromResponse(accountID, tr)
	if err := m.store.UpsertCredential(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

type tokenResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	TokenType    string  `json:"token_type"`
	Scope        *string `json:"scope"`
	ExpiresIn    int64   `json:"expires_in"` // seconds, relative
}

func (m *Manager) postToken(ctx context.Context, payload map[string]any) (tokenResponse, int, string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return tokenResponse{}, 0, "", errors.Wrap(err, "marshal token payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenEndpoint, bytes.NewReader(b))
	if err != nil {
		return tokenResponse{}, 0, "", errors.Wrap(err, "new token request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", m.cfg.UserAgent)

	resp, err := m.httpc.Do(req)
	if err != nil {
		return tokenResponse{}, 0, "", errors.Wrap(err, "token request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokenResponse{}, 0, "", errors.Wrap(err, "read token response")
	}
	if resp.StatusCode/100 != 2 {
		return tokenResponse{}, resp.StatusCode, string(raw), nil
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return tokenResponse{}, 0, "", errors.Wrap(err, "decode token response")
	}
	return tr, resp.StatusCode, "", nil
}

func (m *Manager) credentialFromResponse(accountID string, tr tokenResponse) *models.Credential {
	tokenType := tr.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &models.Credential{
		AccountID:    accountID,
		Provider:     models.ProviderMelhorEnvio,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tokenType,
		Scope:        tr.Scope,
		ExpiresAt:    m.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
}

// Melhor Envio expects a numeric client_id in the JSON body.
func (m *Manager) clientIDValue() any {
	if n, err := strconv.Atoi(m.cfg.ClientID); err == nil {
		return n
	}
	return m.cfg.ClientID
}

func (m *Manager) lockFor(accountID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.accountMu[accountID]
	if !ok {
		l = &sync.Mutex{}
		m.accountMu[accountID] = l
	}
	return l
}
