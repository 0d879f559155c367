package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var (
	ErrNoOAuthClient = errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	ErrNoOAuthToken  = errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
)

// credentialOptions picks user OAuth credentials when a client and token are
// configured and falls back to a service account otherwise.
func credentialOptions(ctx context.Context) ([]goption.ClientOption, error) {
	cfg, cfgErr := OAuthConfigFromEnv()
	tok, tokErr := oauthTokenFromEnv()
	switch {
	case cfgErr == nil && tokErr == nil:
		slog.DebugContext(ctx, "Using OAuth user credentials")
		base := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
		return []goption.ClientOption{goption.WithHTTPClient(cfg.Client(base, tok))}, nil
	case cfgErr != nil && !errors.Is(cfgErr, ErrNoOAuthClient):
		return nil, cfgErr
	case tokErr != nil && !errors.Is(tokErr, ErrNoOAuthToken):
		return nil, tokErr
	}

	data, err := serviceAccountCredentials(ctx)
	if err != nil {
		return nil, err
	}
	creds, err := googleoauth.CredentialsFromJSON(ctx, data, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("service account credentials: %w", err)
	}
	// A custom HTTP client replaces the option's auth, so the token source
	// wraps the pooled transport here.
	base := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	return []goption.ClientOption{goption.WithHTTPClient(oauth2.NewClient(base, creds.TokenSource))}, nil
}

// OAuthConfigFromEnv reads the OAuth client from GOOGLE_OAUTH_CLIENT_JSON or
// GOOGLE_OAUTH_CLIENT_FILE, scoped to spreadsheets.
func OAuthConfigFromEnv() (*oauth2.Config, error) {
	data, err := envOrFile("GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE")
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrNoOAuthClient
	}
	cfg, err := googleoauth.ConfigFromJSON(data, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

func oauthTokenFromEnv() (*oauth2.Token, error) {
	data, err := envOrFile("GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE")
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrNoOAuthToken
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}
	return &tok, nil
}

// envOrFile returns the inline value of jsonKey or the contents of the file
// named by fileKey. Both unset yields nil.
func envOrFile(jsonKey, fileKey string) ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv(jsonKey)); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(os.Getenv(fileKey))
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileKey, err)
	}
	return data, nil
}

// Authorize runs the installed-app consent flow. It listens on
// localhost:port for the redirect, hands the consent URL to prompt and
// exchanges the returned code. Port "0" picks a free port.
func Authorize(ctx context.Context, cfg *oauth2.Config, port string, prompt func(url string)) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:"+port)
	if err != nil {
		return nil, fmt.Errorf("listen for oauth redirect: %w", err)
	}
	conf := *cfg
	conf.RedirectURL = fmt.Sprintf("http://localhost:%d/callback", ln.Addr().(*net.TCPAddr).Port)

	state := uuid.NewString()
	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res result
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		default:
			res.code = q.Get("code")
		}
		if res.err != nil {
			http.Error(w, "OAuth error", http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "Puedes cerrar esta ventana y volver a la terminal.")
		}
		select {
		case results <- res:
		default:
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	prompt(conf.AuthCodeURL(state, oauth2.AccessTypeOffline))

	select {
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		tok, err := conf.Exchange(ctx, res.code)
		if err != nil {
			return nil, fmt.Errorf("token exchange: %w", err)
		}
		return tok, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SaveToken writes tok as JSON readable only by the owner.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return fmt.Errorf("write token: %w", err)
	}
	return f.Close()
}
