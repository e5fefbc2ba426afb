package google

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

const testClientJSON = `{"installed":{"client_id":"client-id","client_secret":"secret","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`

func TestOAuthConfigFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", "")
	t.Setenv("GOOGLE_OAUTH_CLIENT_FILE", "")
	if _, err := OAuthConfigFromEnv(); err != errNoOAuthClient {
		t.Fatalf("expected errNoOAuthClient, got %v", err)
	}

	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", testClientJSON)
	cfg, err := OAuthConfigFromEnv()
	if err != nil {
		t.Fatalf("OAuthConfigFromEnv: %v", err)
	}
	if cfg.ClientID != "client-id" || len(cfg.Scopes) != 1 {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestTokenFile(t *testing.T) {
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", "")
	if TokenFile() != "token.json" {
		t.Errorf("TokenFile() = %q", TokenFile())
	}
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", "/tmp/tok.json")
	if TokenFile() != "/tmp/tok.json" {
		t.Errorf("TokenFile() = %q", TokenFile())
	}
}

func TestWriteReadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	tok := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := WriteToken(path, tok); err != nil {
		t.Fatalf("WriteToken: %v", err)
	}
	got, err := ReadToken(path)
	if err != nil {
		t.Fatalf("ReadToken: %v", err)
	}
	if got.AccessToken != "access" || got.RefreshToken != "refresh" || !got.Expiry.Equal(tok.Expiry) {
		t.Errorf("unexpected token %+v", got)
	}
}

func TestOAuthOption(t *testing.T) {
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", "")
	t.Setenv("GOOGLE_OAUTH_CLIENT_FILE", "")
	opt, err := oauthOption(context.Background())
	if err != nil || opt != nil {
		t.Fatalf("expected no option without an OAuth client, got %v, %v", opt, err)
	}

	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", testClientJSON)
	t.Setenv("GOOGLE_OAUTH_TOKEN_JSON", "")
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", filepath.Join(t.TempDir(), "missing.json"))
	if _, err := oauthOption(context.Background()); err == nil {
		t.Fatal("expected error for a missing token file")
	}

	t.Setenv("GOOGLE_OAUTH_TOKEN_JSON", `{invalid}`)
	if _, err := oauthOption(context.Background()); err == nil {
		t.Fatal("expected error for an invalid token")
	}

	t.Setenv("GOOGLE_OAUTH_TOKEN_JSON", `{"access_token":"test","token_type":"Bearer"}`)
	opt, err = oauthOption(context.Background())
	if err != nil || opt == nil {
		t.Fatalf("expected a token option, got %v, %v", opt, err)
	}
}

func TestNewSheetsService_MissingCredentials(t *testing.T) {
	for _, k := range []string{
		"GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE",
		"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS",
	} {
		t.Setenv(k, "")
	}
	_, err := newSheetsService(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Options{})
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}
