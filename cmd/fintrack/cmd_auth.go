package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	gsheet "fintrack/internal/sheets/google"
)

type authFlags struct {
	port      string
	tokenFile string
	timeout   time.Duration
}

func (a *app) sheetsAuthCmd() *cobra.Command {
	var f authFlags
	cmd := &cobra.Command{
		Use:   "sheets-auth",
		Short: "Authorize Google Sheets access with your own account",
		Long: "Run the OAuth consent flow for the client in GOOGLE_OAUTH_CLIENT_FILE or\n" +
			"GOOGLE_OAUTH_CLIENT_JSON and save the token for the sheets backend.\n" +
			"Add http://localhost:<port>/callback to the client's redirect URIs.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSheetsAuth(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.port, "port", "8085", "local port for the OAuth redirect")
	cmd.Flags().StringVar(&f.tokenFile, "token-file", "", "where to save the token (default GOOGLE_OAUTH_TOKEN_FILE or token.json)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 5*time.Minute, "how long to wait for the browser")
	return cmd
}

func (a *app) runSheetsAuth(ctx context.Context, f authFlags) error {
	opts := gsheet.OAuthOptions{
		ClientJSON: a.cfg.GoogleOAuthClientJSON,
		ClientFile: a.cfg.GoogleOAuthClientFile,
	}
	cfg, err := opts.Config("http://localhost:" + f.port + "/callback")
	if err != nil {
		return err
	}

	out := f.tokenFile
	if out == "" {
		out = a.cfg.GoogleOAuthTokenFile
	}
	if out == "" {
		out = "token.json"
	}

	ln, err := net.Listen("tcp", "127.0.0.1:"+f.port)
	if err != nil {
		return fmt.Errorf("listen for oauth redirect: %w", err)
	}

	state := uuid.NewString()
	codeCh := make(chan string, 1)
	srv := &http.Server{Handler: callbackHandler(state, codeCh), ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	a.printf("Open this URL to authorize:\n%s\n", cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var code string
	select {
	case code = <-codeCh:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.New("authorization timed out")
		}
		return ctx.Err()
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}
	if err := gsheet.SaveToken(out, tok); err != nil {
		return err
	}
	a.printf("Saved token to %s\n", out)
	return nil
}

// callbackHandler accepts the first redirect carrying the expected state and
// hands its code to codeCh.
func callbackHandler(state string, codeCh chan<- string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "OAuth error: "+e, http.StatusBadRequest)
			return
		}
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		select {
		case codeCh <- code:
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
		default:
			http.Error(w, "authorization already received", http.StatusConflict)
		}
	})
	return mux
}
