package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func clearOAuthEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE",
		"GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE",
	} {
		t.Setenv(key, "")
	}
}

const testClientJSON = `{"installed":{"client_id":"id","client_secret":"secret",
"auth_uri":"https://accounts.example.com/auth","token_uri":"https://accounts.example.com/token",
"redirect_uris":["http://localhost"]}}`

func TestOAuthConfigFromEnv(t *testing.T) {
	clearOAuthEnv(t)
	if _, err := OAuthConfigFromEnv(); !errors.Is(err, ErrNoOAuthClient) {
		t.Fatalf("expected ErrNoOAuthClient, got %v", err)
	}

	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", "invalid-json")
	if _, err := OAuthConfigFromEnv(); err == nil || !strings.Contains(err.Error(), "oauth config") {
		t.Fatalf("expected oauth config error, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "client.json")
	if err := os.WriteFile(path, []byte(testClientJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", "")
	t.Setenv("GOOGLE_OAUTH_CLIENT_FILE", path)
	cfg, err := OAuthConfigFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ClientID != "id" || len(cfg.Scopes) != 1 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestCredentialOptionsReportsBadToken(t *testing.T) {
	clearOAuthEnv(t)
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", testClientJSON)
	t.Setenv("GOOGLE_OAUTH_TOKEN_JSON", "{not json")

	if _, err := credentialOptions(context.Background()); err == nil || !strings.Contains(err.Error(), "oauth token") {
		t.Fatalf("expected token error, got %v", err)
	}
}

func TestCredentialOptionsUsesOAuthToken(t *testing.T) {
	clearOAuthEnv(t)
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", testClientJSON)
	t.Setenv("GOOGLE_OAUTH_TOKEN_JSON", `{"access_token":"test","token_type":"Bearer"}`)
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	opts, err := credentialOptions(context.Background())
	if err != nil || len(opts) != 1 {
		t.Fatalf("expected one client option, got %d %v", len(opts), err)
	}
}

func TestAuthorize(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "the-code" {
			http.Error(w, "bad code", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access",
			"refresh_token": "refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer tokenSrv.Close()

	cfg := &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/auth",
			TokenURL: tokenSrv.URL,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	prompt := func(consent string) {
		u, err := url.Parse(consent)
		if err != nil {
			t.Errorf("parse consent url: %v", err)
			return
		}
		q := u.Query()
		redirect := q.Get("redirect_uri")
		go func() {
			// a forged state is rejected without ending the flow
			if resp, err := http.Get(redirect + "?code=evil&state=forged"); err == nil {
				resp.Body.Close()
			}
			resp, err := http.Get(redirect + "?code=the-code&state=" + url.QueryEscape(q.Get("state")))
			if err != nil {
				t.Errorf("callback: %v", err)
				return
			}
			resp.Body.Close()
		}()
	}

	tok, err := Authorize(ctx, cfg, "0", prompt)
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "access" || tok.RefreshToken != "refresh" {
		t.Fatalf("unexpected token %+v", tok)
	}

	path := filepath.Join(t.TempDir(), "token.json")
	if err := SaveToken(path, tok); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOOGLE_OAUTH_TOKEN_JSON", "")
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", path)
	saved, err := oauthTokenFromEnv()
	if err != nil || saved.RefreshToken != "refresh" {
		t.Fatalf("unexpected saved token %+v %v", saved, err)
	}
	if info, err := os.Stat(path); err != nil || info.Mode().Perm() != 0o600 {
		t.Fatalf("token file should be owner-only: %v %v", info, err)
	}
}

func TestAuthorizeDenied(t *testing.T) {
	cfg := &oauth2.Config{ClientID: "id", Endpoint: oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth"}}
	prompt := func(consent string) {
		u, _ := url.Parse(consent)
		go func() {
			resp, err := http.Get(u.Query().Get("redirect_uri") + "?error=access_denied")
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
	_, err := Authorize(context.Background(), cfg, "0", prompt)
	if err == nil || !strings.Contains(err.Error(), "access_denied") {
		t.Fatalf("expected denial, got %v", err)
	}
}
