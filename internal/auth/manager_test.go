package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/akeating/ccontacts/internal/credentials"
)

// tokenServer serves the refresh exchange, counting calls and asserting
// the wire format.
func tokenServer(t *testing.T, calls *atomic.Int64, response func() (int, map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.NotEmpty(t, r.PostForm.Get("client_id"))
		assert.NotEmpty(t, r.PostForm.Get("refresh_token"))

		status, body := response()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func newTestManager(srvURL string, store *credentials.Store) (*Manager, *time.Time) {
	m := NewManager(ManagerConfig{
		ClientID:     "client-abc",
		RefreshToken: "refresh-old",
		AuthBaseURL:  srvURL,
		Store:        store,
		Logger:       zerolog.Nop(),
	})
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	clock := &now
	m.now = func() time.Time { return *clock }
	return m, clock
}

func TestTokenAppliesExpiryMargin(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, func() (int, map[string]any) {
		return http.StatusOK, map[string]any{"access_token": "A1", "expires_in": 3600}
	})
	defer srv.Close()

	m, clock := newTestManager(srv.URL, nil)

	tok, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A1", tok.Value)
	assert.Equal(t, clock.Add(3240*time.Second), tok.ExpiresAt)
}

func TestTokenDefaultsLifetimeWhenOmitted(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, func() (int, map[string]any) {
		return http.StatusOK, map[string]any{"access_token": "A1"}
	})
	defer srv.Close()

	m, clock := newTestManager(srv.URL, nil)

	tok, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clock.Add(3240*time.Second), tok.ExpiresAt)
}

func TestTokenFastPathSkipsNetwork(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, func() (int, map[string]any) {
		return http.StatusOK, map[string]any{"access_token": "A1", "expires_in": 3600}
	})
	defer srv.Close()

	m, _ := newTestManager(srv.URL, nil)

	first, err := m.Token(context.Background())
	require.NoError(t, err)
	second, err := m.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), calls.Load())
}

func TestTokenRefreshesAfterExpiry(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, func() (int, map[string]any) {
		return http.StatusOK, map[string]any{"access_token": "A1", "expires_in": 3600}
	})
	defer srv.Close()

	m, clock := newTestManager(srv.URL, nil)

	_, err := m.Token(context.Background())
	require.NoError(t, err)

	*clock = clock.Add(3241 * time.Second)

	tok, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
	assert.True(t, tok.Valid(*clock))
}

func TestFailedExchangeLeavesStateUntouched(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "creds.env")
	require.NoError(t, os.WriteFile(storePath, []byte("CC_REFRESH_TOKEN=refresh-old\n"), 0o600))
	store := credentials.NewStore(storePath)

	var calls atomic.Int64
	fail := false
	srv := tokenServer(t, &calls, func() (int, map[string]any) {
		if fail {
			return http.StatusBadRequest, map[string]any{"error": "invalid_grant"}
		}
		return http.StatusOK, map[string]any{"access_token": "A1", "expires_in": 3600}
	})
	defer srv.Close()

	m, clock := newTestManager(srv.URL, store)

	first, err := m.Token(context.Background())
	require.NoError(t, err)

	fail = true
	*clock = clock.Add(4000 * time.Second)

	_, err = m.Token(context.Background())
	var exchangeErr *ExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	assert.Equal(t, http.StatusBadRequest, exchangeErr.Status)
	assert.Contains(t, exchangeErr.Body, "invalid_grant")

	// Cached token and refresh token are unchanged in memory and on disk.
	assert.Equal(t, first, m.token)
	assert.Equal(t, "refresh-old", m.RefreshToken())
	content, err := os.ReadFile(storePath)
	require.NoError(t, err)
	assert.Equal(t, "CC_REFRESH_TOKEN=refresh-old\n", string(content))
}

func TestRotationIsPersisted(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "creds.env")
	require.NoError(t, os.WriteFile(storePath, []byte("CC_CLIENT_ID=client-abc\nCC_REFRESH_TOKEN=refresh-old\n"), 0o600))

	var calls atomic.Int64
	srv := tokenServer(t, &calls, func() (int, map[string]any) {
		return http.StatusOK, map[string]any{
			"access_token":  "A2",
			"expires_in":    1800,
			"refresh_token": "R2",
		}
	})
	defer srv.Close()

	m, clock := newTestManager(srv.URL, credentials.NewStore(storePath))

	tok, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A2", tok.Value)
	assert.Equal(t, clock.Add(1620*time.Second), tok.ExpiresAt)
	assert.Equal(t, "R2", m.RefreshToken())

	content, err := os.ReadFile(storePath)
	require.NoError(t, err)
	assert.Equal(t, "CC_CLIENT_ID=client-abc\nCC_REFRESH_TOKEN=R2\n", string(content))
}

func TestNoRotationMeansNoWrite(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "creds.env")
	// The store file intentionally does not exist: any persistence attempt
	// would create it.

	var calls atomic.Int64
	srv := tokenServer(t, &calls, func() (int, map[string]any) {
		return http.StatusOK, map[string]any{"access_token": "A1", "expires_in": 3600}
	})
	defer srv.Close()

	m, _ := newTestManager(srv.URL, credentials.NewStore(storePath))

	_, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refresh-old", m.RefreshToken())

	_, err = os.Stat(storePath)
	assert.True(t, os.IsNotExist(err), "no rotation in the response must not touch the store")
}

func TestPersistFailureIsAWarningNotAnError(t *testing.T) {
	// Point the store into a directory that does not exist so the write
	// fails while the refresh itself succeeds.
	storePath := filepath.Join(t.TempDir(), "missing", "creds.env")

	var calls atomic.Int64
	srv := tokenServer(t, &calls, func() (int, map[string]any) {
		return http.StatusOK, map[string]any{
			"access_token":  "A2",
			"expires_in":    1800,
			"refresh_token": "R2",
		}
	})
	defer srv.Close()

	var warned error
	m := NewManager(ManagerConfig{
		ClientID:         "client-abc",
		RefreshToken:     "refresh-old",
		AuthBaseURL:      srv.URL,
		Store:            credentials.NewStore(storePath),
		OnPersistWarning: func(err error) { warned = err },
		Logger:           zerolog.Nop(),
	})

	tok, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A2", tok.Value)
	assert.Equal(t, "R2", m.RefreshToken(), "in-memory rotation still happens")
	assert.Error(t, warned)
}

func TestMissingCredentials(t *testing.T) {
	m := NewManager(ManagerConfig{Logger: zerolog.Nop()})

	_, err := m.Token(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.ErrorIs(t, m.ForceRefresh(context.Background()), ErrMissingCredentials)
}

func TestConcurrentCallersShareOneRefresh(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, func() (int, map[string]any) {
		time.Sleep(20 * time.Millisecond) // widen the race window
		return http.StatusOK, map[string]any{"access_token": "A1", "expires_in": 3600}
	})
	defer srv.Close()

	m, _ := newTestManager(srv.URL, nil)

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			tok, err := m.Token(context.Background())
			if err != nil {
				return err
			}
			if tok.Value != "A1" {
				return errors.New("unexpected token")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(1), calls.Load(), "exactly one refresh exchange may reach the server")
}

func TestNetworkFailureMapsToExchangeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // refuse connections

	m, _ := newTestManager(srv.URL, nil)

	_, err := m.Token(context.Background())
	var exchangeErr *ExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	assert.Zero(t, exchangeErr.Status)
}
