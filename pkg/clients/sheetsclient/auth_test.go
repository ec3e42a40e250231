package sheetsclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/jakechorley/mentor-bridge/internal/config"
)

func TestOAuthConfig(t *testing.T) {
	client := &config.OAuthClientConfig{
		Installed: config.OAuthInstalled{
			ClientID:                "client-id",
			ProjectID:               "project",
			AuthURI:                 "https://accounts.google.com/o/oauth2/auth",
			TokenURI:                "https://oauth2.googleapis.com/token",
			AuthProviderX509CertURL: "https://www.googleapis.com/oauth2/v1/certs",
			ClientSecret:            "secret",
			RedirectURIs:            []string{"http://localhost"},
		},
	}

	cfg, err := oauthConfig(client)
	require.NoError(t, err)
	assert.Equal(t, "client-id", cfg.ClientID)
	assert.Equal(t, []string{ScopeSheets}, cfg.Scopes)
	assert.Equal(t, "http://localhost:3000/oauth/callback", cfg.RedirectURL)
}

func TestTokenFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	file, err := tokenFileFor("test")
	require.NoError(t, err)

	missing, err := file.load()
	require.NoError(t, err)
	assert.Nil(t, missing)

	token := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, file.save(token))

	loaded, err := file.load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "access", loaded.AccessToken)
	assert.Equal(t, "refresh", loaded.RefreshToken)
	assert.True(t, token.Expiry.Equal(loaded.Expiry))

	prod, err := tokenFileFor("prod")
	require.NoError(t, err)
	other, err := prod.load()
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, file.remove())
	require.NoError(t, file.remove())
	gone, err := file.load()
	require.NoError(t, err)
	assert.Nil(t, gone)
}

type sequenceSource struct {
	tokens []string
	calls  int
}

func (s *sequenceSource) Token() (*oauth2.Token, error) {
	token := &oauth2.Token{AccessToken: s.tokens[s.calls], RefreshToken: "refresh"}
	if s.calls < len(s.tokens)-1 {
		s.calls++
	}
	return token, nil
}

func TestPersistingSource_StoresRefreshedTokens(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	file, err := tokenFileFor("test")
	require.NoError(t, err)

	src := &persistingSource{
		base:   &sequenceSource{tokens: []string{"first", "second"}},
		file:   file,
		last:   "first",
		logger: zap.NewNop(),
	}

	token, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "first", token.AccessToken)
	stored, err := file.load()
	require.NoError(t, err)
	assert.Nil(t, stored, "an unchanged token is not rewritten")

	token, err = src.Token()
	require.NoError(t, err)
	assert.Equal(t, "second", token.AccessToken)
	stored, err = file.load()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "second", stored.AccessToken)
}

func TestCheckScopes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{"granted", http.StatusOK, `{"scope":"openid ` + ScopeSheets + `"}`, false},
		{"missing scope", http.StatusOK, `{"scope":"openid email"}`, true},
		{"invalid token", http.StatusBadRequest, `{"error":"invalid_token"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "abc", r.URL.Query().Get("access_token"))
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			err := checkScopes(context.Background(), server.URL, "abc")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func callback(t *testing.T, ln net.Listener, query string) {
	t.Helper()
	go func() {
		resp, err := http.Get(fmt.Sprintf("http://%s%s?%s", ln.Addr(), callbackPath, query))
		if err == nil {
			resp.Body.Close()
		}
	}()
}

func TestAwaitCallback(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantCode string
		wantErr  string
	}{
		{"code delivered", "state=s-1&code=auth-code", "auth-code", ""},
		{"state mismatch", "state=forged&code=auth-code", "", "state mismatch"},
		{"consent denied", "state=s-1&error=access_denied", "", "access_denied"},
		{"no code", "state=s-1", "", "no authorization code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			callback(t, ln, tt.query)
			code, err := awaitCallback(ctx, ln, "s-1")
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestAwaitCallback_Timeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = awaitCallback(ctx, ln, "s-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
