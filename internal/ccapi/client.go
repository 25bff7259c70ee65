// Package ccapi is a thin bearer-authenticated client for the Constant
// Contact v3 resource API: contact lists, contacts, and the sign_up_form
// upsert.
package ccapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/akeating/ccontacts/internal/auth"
)

// HTTPClient is an interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient creates the default HTTP client for API calls.
func NewHTTPClient() HTTPClient {
	return &http.Client{
		Timeout: 30 * time.Second,
	}
}

// TokenProvider supplies valid bearer tokens and a forced refresh for the
// 401 retry path. *auth.Manager satisfies it.
type TokenProvider interface {
	Token(ctx context.Context) (auth.AccessToken, error)
	ForceRefresh(ctx context.Context) error
}

// Client calls the resource API, attaching a bearer token to every
// request. A 401 triggers exactly one forced refresh and one retry.
type Client struct {
	baseURL    string
	tokens     TokenProvider
	httpClient HTTPClient
	logger     zerolog.Logger
}

// New creates a resource API client. A nil httpClient gets the default.
func New(baseURL string, tokens TokenProvider, httpClient HTTPClient, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ListContactLists fetches all contact lists.
func (c *Client) ListContactLists(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/contact_lists", nil)
}

// CreateList creates a new contact list.
func (c *Client) CreateList(ctx context.Context, req ListRequest) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/contact_lists", req)
}

// CreateContact creates a new contact.
func (c *Client) CreateContact(ctx context.Context, req ContactRequest) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/contacts", req)
}

// UpsertContact creates or updates a contact via the sign_up_form endpoint.
func (c *Client) UpsertContact(ctx context.Context, req UpsertRequest) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/contacts/sign_up_form", req)
}

// do performs one API call. On a 401 it forces a token refresh and retries
// the request once; a second 401 is returned as an APIError like any other
// failure, never looped on.
func (c *Client) do(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request payload: %w", err)
		}
		body = b
	}

	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		c.logger.Debug().Str("path", path).Msg("got 401, forcing token refresh and retrying once")
		if err := c.tokens.ForceRefresh(ctx); err != nil {
			return nil, err
		}
		resp, err = c.send(ctx, method, path, body)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(raw)}
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api request: %w", err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()
}
