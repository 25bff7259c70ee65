// Package cli implements the ccontacts command tree.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/akeating/ccontacts/internal/auth"
	"github.com/akeating/ccontacts/internal/ccapi"
	"github.com/akeating/ccontacts/internal/config"
	"github.com/akeating/ccontacts/internal/credentials"
	"github.com/akeating/ccontacts/internal/logger"
)

var (
	cfg *config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ccontacts",
	Short: "Manage Constant Contact lists and contacts",
	Long: `ccontacts is a small CLI for the Constant Contact v3 API.

It authenticates with OAuth2 (authorization code + PKCE), refreshes access
tokens on demand, and persists rotated refresh tokens back to the .env file.

Configuration comes from environment variables or a .env file:
  CC_CLIENT_ID       OAuth2 client id (required)
  CC_REFRESH_TOKEN   current refresh token (required for API commands)
  CC_ENV_PATH        file where rotated refresh tokens are persisted

Examples:
  ccontacts auth login
  ccontacts lists
  ccontacts lists create "Newsletter" --favorite
  ccontacts contacts upsert jane@example.com --first Jane --list LIST_ID`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		log = logger.New(cfg.Environment)
		return nil
	},
}

// Execute runs the root command. Errors are logged and mapped to a
// non-zero exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newTokenManager wires a token manager from the loaded configuration.
// Persistence failures are downgraded to warnings on stderr.
func newTokenManager() (*auth.Manager, error) {
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, err
	}
	return auth.NewManager(auth.ManagerConfig{
		ClientID:     cfg.ClientID,
		RefreshToken: cfg.RefreshToken,
		AuthBaseURL:  cfg.AuthBaseURL,
		Store:        credentials.NewStore(cfg.EnvPath),
		Logger:       log,
	}), nil
}

// newAPIClient wires the resource API client on top of a token manager.
func newAPIClient() (*ccapi.Client, error) {
	manager, err := newTokenManager()
	if err != nil {
		return nil, err
	}
	return ccapi.New(cfg.APIBaseURL, manager, nil, log), nil
}

// printJSON writes indented JSON to stdout.
func printJSON(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		// Not JSON after all; print as-is.
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}
