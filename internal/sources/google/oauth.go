package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultTokenFile = "token.json"

var errNoOAuthClient = errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")

// OAuthConfigFromEnv builds the installed-app OAuth config from
// GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE.
func OAuthConfigFromEnv() (*oauth2.Config, error) {
	var b []byte
	switch {
	case strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON")) != "":
		b = []byte(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"))
	case strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE")) != "":
		data, err := os.ReadFile(strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE")))
		if err != nil {
			return nil, fmt.Errorf("read client file: %w", err)
		}
		b = data
	default:
		return nil, errNoOAuthClient
	}

	cfg, err := goauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// TokenFile is GOOGLE_OAUTH_TOKEN_FILE, or token.json.
func TokenFile() string {
	if f := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")); f != "" {
		return f
	}
	return defaultTokenFile
}

func ReadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	return &tok, nil
}

// WriteToken saves tok with owner-only permissions.
func WriteToken(path string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// oauthOption returns a client option backed by a user token from
// GOOGLE_OAUTH_TOKEN_JSON or the token file. It returns nil when no OAuth
// client is configured.
func oauthOption(ctx context.Context) (goption.ClientOption, error) {
	cfg, err := OAuthConfigFromEnv()
	if errors.Is(err, errNoOAuthClient) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tok *oauth2.Token
	if raw := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_JSON")); raw != "" {
		tok = new(oauth2.Token)
		if err := json.Unmarshal([]byte(raw), tok); err != nil {
			return nil, fmt.Errorf("decode GOOGLE_OAUTH_TOKEN_JSON: %w", err)
		}
	} else if tok, err = ReadToken(TokenFile()); err != nil {
		return nil, fmt.Errorf("read oauth token (run openmetric-oauth-init): %w", err)
	}
	return goption.WithTokenSource(cfg.TokenSource(ctx, tok)), nil
}
