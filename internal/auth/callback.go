package auth

import (
	"context"
	"fmt"
	"html"
	"net"
	"net/http"
	"sync"
	"time"
)

// CallbackServer receives the authorization-code redirect on a loopback
// port during an interactive login.
type CallbackServer struct {
	mu            sync.Mutex
	port          int
	path          string
	expectedState string
	codeCh        chan string
	errCh         chan error
	server        *http.Server
	listener      net.Listener
}

// NewCallbackServer creates a callback server for the given loopback port
// and redirect path. The expectedState must match the state sent in the
// authorization URL.
func NewCallbackServer(port int, path, expectedState string) *CallbackServer {
	if path == "" {
		path = "/oauth/callback"
	}
	return &CallbackServer{
		port:          port,
		path:          path,
		expectedState: expectedState,
		codeCh:        make(chan string, 1),
		errCh:         make(chan error, 1),
	}
}

// Start begins listening. With port 0 an available port is chosen; Port()
// reports the one in use.
func (s *CallbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = listener
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errCh <- err:
			default:
			}
		}
	}()

	return nil
}

// Port returns the port the server is listening on.
func (s *CallbackServer) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// WaitForCode blocks until the redirect delivers a code, an error occurs,
// or the context is done.
func (s *CallbackServer) WaitForCode(ctx context.Context) (string, error) {
	select {
	case code := <-s.codeCh:
		return code, nil
	case err := <-s.errCh:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Stop shuts the server down.
func (s *CallbackServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		errDesc := r.URL.Query().Get("error_description")
		s.deliverErr(fmt.Errorf("authorization error: %s - %s", errParam, errDesc))
		writePage(w, "Authorization failed: "+html.EscapeString(errDesc))
		return
	}

	if state := r.URL.Query().Get("state"); state != s.expectedState {
		s.deliverErr(fmt.Errorf("state mismatch in callback"))
		writePage(w, "Authorization failed: invalid state parameter")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		s.deliverErr(fmt.Errorf("no authorization code received"))
		writePage(w, "Authorization failed: no code received")
		return
	}

	select {
	case s.codeCh <- code:
	default:
	}
	writePage(w, "Authorization successful. You can close this window and return to the terminal.")
}

func (s *CallbackServer) deliverErr(err error) {
	select {
	case s.errCh <- err:
	default:
	}
}

func writePage(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, "<html><body><p>%s</p></body></html>", msg)
}
