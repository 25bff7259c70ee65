package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// AuthorizeRequest holds the parameters of an authorization-code request.
type AuthorizeRequest struct {
	ClientID      string
	RedirectURI   string
	Scopes        string
	CodeChallenge string
	State         string
}

// AuthorizeURL builds the URL a user visits to grant access. State is
// generated when not supplied so callers can correlate the callback.
func AuthorizeURL(authBaseURL string, req AuthorizeRequest) (authorizeURL, state string) {
	if req.State == "" {
		req.State = uuid.NewString()
	}

	q := url.Values{}
	q.Set("client_id", req.ClientID)
	q.Set("redirect_uri", req.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", req.Scopes)
	q.Set("code_challenge", req.CodeChallenge)
	q.Set("code_challenge_method", "S256")
	q.Set("state", req.State)

	return authBaseURL + "/authorize?" + q.Encode(), req.State
}

// ExchangeCode exchanges an authorization code for tokens using the PKCE
// code verifier. Used once per interactive login; rotation afterwards goes
// through the Manager's refresh exchange.
func ExchangeCode(ctx context.Context, client HTTPDoer, authBaseURL, clientID, code, redirectURI, codeVerifier string) (accessToken, refreshToken string, expiresIn int, err error) {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", clientID)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("code_verifier", codeVerifier)

	resp, err := postForm(ctx, client, authBaseURL+"/token", form)
	if err != nil {
		return "", "", 0, &ExchangeError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return "", "", 0, &ExchangeError{Status: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", "", 0, &ExchangeError{Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		return "", "", 0, &ExchangeError{Err: fmt.Errorf("token response missing access_token or refresh_token")}
	}

	expiresIn = tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = int(defaultLifetime / time.Second)
	}
	return tr.AccessToken, tr.RefreshToken, expiresIn, nil
}
