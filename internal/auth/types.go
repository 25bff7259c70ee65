package auth

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingCredentials indicates the client id or refresh token was not
// configured. This is fatal at startup; there is nothing to retry.
var ErrMissingCredentials = errors.New("missing CC_CLIENT_ID or CC_REFRESH_TOKEN")

// ExchangeError is returned when the authorization server rejects a token
// exchange, or when the exchange fails at the network level (Status 0).
// It is never retried by the manager itself.
type ExchangeError struct {
	Status int
	Body   string
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("token exchange failed with status %d: %s", e.Status, e.Body)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// AccessToken is a short-lived bearer credential with its refresh-early
// expiry already applied.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token is usable at the given instant.
func (t AccessToken) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// tokenResponse is the authorization server's JSON answer to both the
// refresh and the authorization-code exchanges.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}
