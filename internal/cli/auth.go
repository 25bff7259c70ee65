package cli

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/akeating/ccontacts/internal/auth"
	"github.com/akeating/ccontacts/internal/credentials"
)

// loginTimeout bounds how long `auth login` waits for the browser redirect.
const loginTimeout = 5 * time.Minute

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "OAuth2 helpers: PKCE, authorization URLs, interactive login",
}

var authPkceCmd = &cobra.Command{
	Use:   "pkce",
	Short: "Generate a PKCE code verifier and challenge pair",
	Args:  cobra.NoArgs,
	RunE:  runAuthPkce,
}

var authURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Build a one-shot authorization URL",
	Long: `Build the authorization URL for the code-with-PKCE flow.

Without --challenge a fresh verifier/challenge pair is generated and the
verifier is printed alongside the URL; keep it for the code exchange.`,
	Args: cobra.NoArgs,
	RunE: runAuthURL,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Run the full authorization flow and persist the refresh token",
	Args:  cobra.NoArgs,
	RunE:  runAuthLogin,
}

var authURLChallenge string

func init() {
	authURLCmd.Flags().StringVar(&authURLChallenge, "challenge", "", "Use a pre-computed PKCE code challenge")

	authCmd.AddCommand(authPkceCmd)
	authCmd.AddCommand(authURLCmd)
	authCmd.AddCommand(authLoginCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthPkce(_ *cobra.Command, _ []string) error {
	verifier, err := auth.GenerateCodeVerifier()
	if err != nil {
		return err
	}
	fmt.Println("CODE_VERIFIER =", verifier)
	fmt.Println("CODE_CHALLENGE =", auth.CodeChallenge(verifier))
	return nil
}

func runAuthURL(_ *cobra.Command, _ []string) error {
	if cfg.ClientID == "" {
		return fmt.Errorf("CC_CLIENT_ID is required to build an authorization URL")
	}

	challenge := authURLChallenge
	if challenge == "" {
		verifier, err := auth.GenerateCodeVerifier()
		if err != nil {
			return err
		}
		challenge = auth.CodeChallenge(verifier)
		fmt.Println("CODE_VERIFIER =", verifier)
	}

	authorizeURL, _ := auth.AuthorizeURL(cfg.AuthBaseURL, auth.AuthorizeRequest{
		ClientID:      cfg.ClientID,
		RedirectURI:   cfg.RedirectURI,
		Scopes:        cfg.Scopes,
		CodeChallenge: challenge,
	})
	fmt.Println(authorizeURL)
	return nil
}

func runAuthLogin(cmd *cobra.Command, _ []string) error {
	if cfg.ClientID == "" {
		return fmt.Errorf("CC_CLIENT_ID is required to log in")
	}

	port, path, err := parseRedirectURI(cfg.RedirectURI)
	if err != nil {
		return err
	}

	verifier, err := auth.GenerateCodeVerifier()
	if err != nil {
		return err
	}

	authorizeURL, state := auth.AuthorizeURL(cfg.AuthBaseURL, auth.AuthorizeRequest{
		ClientID:      cfg.ClientID,
		RedirectURI:   cfg.RedirectURI,
		Scopes:        cfg.Scopes,
		CodeChallenge: auth.CodeChallenge(verifier),
	})

	server := auth.NewCallbackServer(port, path, state)
	if err := server.Start(); err != nil {
		return err
	}

	fmt.Println("Open this URL in your browser and approve access:")
	fmt.Println()
	fmt.Println("  " + authorizeURL)
	fmt.Println()

	ctx, cancel := context.WithTimeout(cmd.Context(), loginTimeout)
	defer cancel()

	code, err := server.WaitForCode(ctx)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	_ = server.Stop(stopCtx)
	if err != nil {
		return fmt.Errorf("waiting for authorization callback: %w", err)
	}

	_, refreshToken, _, err := auth.ExchangeCode(ctx, nil, cfg.AuthBaseURL, cfg.ClientID, code, cfg.RedirectURI, verifier)
	if err != nil {
		return err
	}

	storePath := cfg.EnvPath
	if storePath == "" {
		storePath = ".env"
	}
	store := credentials.NewStore(storePath)
	if err := store.Seed(cfg.ClientID, refreshToken); err != nil {
		return fmt.Errorf("persist credentials: %w", err)
	}

	log.Info().Str("path", storePath).Msg("credentials saved")
	fmt.Println("Login successful. Refresh token saved to", storePath)
	return nil
}

// parseRedirectURI extracts the loopback port and callback path from the
// configured redirect URI.
func parseRedirectURI(raw string) (int, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, "", fmt.Errorf("parse CC_REDIRECT_URI: %w", err)
	}

	port := 80
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return 0, "", fmt.Errorf("parse CC_REDIRECT_URI port: %w", err)
		}
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	return port, path, nil
}
