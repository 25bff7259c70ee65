// Package credentials persists OAuth credentials to a flat KEY=value file,
// the same .env file godotenv loads at startup.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Keys recognised in the persisted store.
const (
	KeyClientID     = "CC_CLIENT_ID"
	KeyRefreshToken = "CC_REFRESH_TOKEN"
)

// Store mirrors the rotating refresh token into a KEY=value text file.
// A Store with an empty Path persists nothing. Only one process is
// expected to own a given path at a time.
type Store struct {
	Path string
}

// NewStore creates a store backed by the file at path. An empty path
// yields a no-op store.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Enabled reports whether the store has a backing file configured.
func (s *Store) Enabled() bool {
	return s != nil && s.Path != ""
}

// SaveRefreshToken rewrites the backing file with the new refresh token.
// The CC_REFRESH_TOKEN line is replaced in place if present, appended
// otherwise; CC_CLIENT_ID is appended when missing and clientID is known.
// Every other line (comments, blanks, unrelated keys) is preserved
// verbatim and in order. No-op when no path is configured.
func (s *Store) SaveRefreshToken(newToken, clientID string) error {
	if !s.Enabled() {
		return nil
	}

	lines, hadTrailingNewline, err := readLines(s.Path)
	if err != nil {
		return fmt.Errorf("read credentials store: %w", err)
	}

	replaced := false
	hasClientID := false
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, KeyRefreshToken+"="):
			if !replaced {
				lines[i] = KeyRefreshToken + "=" + newToken
				replaced = true
			}
		case strings.HasPrefix(line, KeyClientID+"="):
			hasClientID = true
		}
	}
	if !replaced {
		lines = append(lines, KeyRefreshToken+"="+newToken)
	}
	if clientID != "" && !hasClientID {
		lines = append(lines, KeyClientID+"="+clientID)
	}

	content := strings.Join(lines, "\n")
	if hadTrailingNewline || !replaced || (clientID != "" && !hasClientID) {
		content += "\n"
	}

	return writeFileAtomic(s.Path, []byte(content), 0o600)
}

// Seed writes a fresh store containing the client id and refresh token,
// creating parent directories as needed. Used after an interactive login
// when no store exists yet.
func (s *Store) Seed(clientID, refreshToken string) error {
	if !s.Enabled() {
		return fmt.Errorf("no credentials store path configured")
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create credentials store directory: %w", err)
	}
	if _, err := os.Stat(s.Path); err == nil {
		// Existing file: go through the preserving rewrite instead.
		return s.SaveRefreshToken(refreshToken, clientID)
	}
	content := KeyClientID + "=" + clientID + "\n" + KeyRefreshToken + "=" + refreshToken + "\n"
	return writeFileAtomic(s.Path, []byte(content), 0o600)
}

// readLines returns the file's lines without terminators. A missing file
// yields no lines and no error: the rewrite will create it.
func readLines(path string) ([]string, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, true, nil
		}
		return nil, false, err
	}
	content := string(b)
	hadTrailingNewline := strings.HasSuffix(content, "\n")
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return nil, hadTrailingNewline, nil
	}
	return strings.Split(content, "\n"), hadTrailingNewline, nil
}

// writeFileAtomic writes to a temp file in the same directory and renames
// it over the target, so a crash mid-write never leaves a half-written
// store behind.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}
