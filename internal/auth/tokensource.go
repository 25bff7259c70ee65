package auth

import (
	"context"

	"golang.org/x/oauth2"
)

// tokenSource adapts a Manager to oauth2.TokenSource so the manager's
// refresh and rotation handling can back oauth2-based HTTP clients.
type tokenSource struct {
	ctx context.Context
	m   *Manager
}

// TokenSource returns an oauth2.TokenSource backed by this manager.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, m: m}
}

// Token implements oauth2.TokenSource.
func (t *tokenSource) Token() (*oauth2.Token, error) {
	tok, err := t.m.Token(t.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: tok.Value,
		TokenType:   "Bearer",
		Expiry:      tok.ExpiresAt,
	}, nil
}
