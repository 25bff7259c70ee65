// Package auth manages the OAuth2 token lifecycle against the Constant
// Contact authorization server: refresh-token exchanges, rotation
// persistence, and the one-shot authorization-code-with-PKCE flow.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/akeating/ccontacts/internal/credentials"
)

const (
	// defaultLifetime is assumed when the server omits expires_in.
	defaultLifetime = 3600 * time.Second

	// expiryMargin shortens the server-declared lifetime so tokens are
	// refreshed before clock skew or request latency can bite.
	expiryMargin = 0.9

	requestTimeout = 30 * time.Second
)

// HTTPDoer is the part of *http.Client the manager needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ManagerConfig carries the dependencies of a Manager. ClientID and
// RefreshToken are required; everything else has a default.
type ManagerConfig struct {
	ClientID     string
	RefreshToken string

	// AuthBaseURL is the authorization server base, without /token.
	AuthBaseURL string

	// Store receives rotated refresh tokens. Nil disables persistence.
	Store *credentials.Store

	// OnPersistWarning is invoked when a rotated refresh token could not
	// be written to the store. The in-memory refresh still succeeds.
	OnPersistWarning func(error)

	HTTPClient HTTPDoer
	Logger     zerolog.Logger
}

// Manager owns one set of OAuth2 credentials and a cached access token.
// All callers share a single critical section around check-then-refresh,
// so at most one refresh exchange is in flight at a time and a rotated
// refresh token is never exchanged twice.
type Manager struct {
	clientID    string
	configured  bool
	authBaseURL string
	store       *credentials.Store
	onWarn      func(error)
	httpClient  HTTPDoer
	logger      zerolog.Logger
	now         func() time.Time

	mu           sync.Mutex
	refreshToken string
	token        AccessToken
}

// NewManager creates a token manager from the given configuration.
func NewManager(cfg ManagerConfig) *Manager {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Manager{
		clientID:     cfg.ClientID,
		configured:   cfg.ClientID != "" && cfg.RefreshToken != "",
		refreshToken: cfg.RefreshToken,
		authBaseURL:  strings.TrimSuffix(cfg.AuthBaseURL, "/"),
		store:        cfg.Store,
		onWarn:       cfg.OnPersistWarning,
		httpClient:   httpClient,
		logger:       cfg.Logger,
		now:          time.Now,
	}
}

// Token returns a currently-valid access token, refreshing it first when
// the cache is empty or past its expiry margin. Concurrent callers with a
// stale cache serialize behind the lock and reuse the winner's result.
func (m *Manager) Token(ctx context.Context) (AccessToken, error) {
	if !m.configured {
		return AccessToken{}, ErrMissingCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token.Valid(m.now()) {
		return m.token, nil
	}
	if err := m.refreshLocked(ctx); err != nil {
		return AccessToken{}, err
	}
	return m.token, nil
}

// ForceRefresh discards the cached token and performs a refresh exchange.
// Intended for callers that just saw a 401 despite holding a token the
// manager considered valid.
func (m *Manager) ForceRefresh(ctx context.Context) error {
	if !m.configured {
		return ErrMissingCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx)
}

// RefreshToken returns the current (possibly rotated) refresh token.
func (m *Manager) RefreshToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshToken
}

// refreshLocked performs the refresh exchange. Callers must hold m.mu.
// On failure no cached or persisted state is touched.
func (m *Manager) refreshLocked(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", m.clientID)
	form.Set("refresh_token", m.refreshToken)

	resp, err := postForm(ctx, m.httpClient, m.authBaseURL+"/token", form)
	if err != nil {
		return &ExchangeError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return &ExchangeError{Status: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return &ExchangeError{Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return &ExchangeError{Err: fmt.Errorf("token response missing access_token")}
	}

	lifetime := defaultLifetime
	if tr.ExpiresIn > 0 {
		lifetime = time.Duration(tr.ExpiresIn) * time.Second
	}
	now := m.now()
	m.token = AccessToken{
		Value:     tr.AccessToken,
		ExpiresAt: now.Add(time.Duration(float64(lifetime) * expiryMargin)),
	}

	m.logger.Debug().
		Time("expires_at", m.token.ExpiresAt).
		Msg("access token refreshed")

	if tr.RefreshToken != "" && tr.RefreshToken != m.refreshToken {
		m.refreshToken = tr.RefreshToken
		if err := m.store.SaveRefreshToken(tr.RefreshToken, m.clientID); err != nil {
			m.logger.Warn().Err(err).
				Msg("rotated refresh token could not be persisted; next restart will use a stale token")
			if m.onWarn != nil {
				m.onWarn(err)
			}
		}
	}

	return nil
}

// postForm submits a form-encoded POST the way the authorization server
// expects, honoring the caller's context.
func postForm(ctx context.Context, client HTTPDoer, endpoint string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return client.Do(req)
}
