package sheetsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jakechorley/mentor-bridge/internal/config"
)

// ScopeSheets lets the CLI publish schedules and read staff rosters
const ScopeSheets = "https://www.googleapis.com/auth/spreadsheets"

const (
	callbackPort   = 3000
	callbackPath   = "/oauth/callback"
	consentTimeout = 5 * time.Minute
	tokenDir       = ".mentor-bridge/tokens"
)

var tokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// oauthConfig builds the installed-app config, redirecting consent to the local callback listener
func oauthConfig(client *config.OAuthClientConfig) (*oauth2.Config, error) {
	raw, err := json.Marshal(client)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal oauth client: %w", err)
	}

	cfg, err := google.ConfigFromJSON(raw, ScopeSheets)
	if err != nil {
		return nil, fmt.Errorf("failed to parse oauth client: %w", err)
	}
	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d%s", callbackPort, callbackPath)
	return cfg, nil
}

// tokenFile is the stored Sheets token of one environment
type tokenFile struct {
	path string
}

func tokenFileFor(env string) (tokenFile, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return tokenFile{}, fmt.Errorf("failed to get home directory: %w", err)
	}
	return tokenFile{path: filepath.Join(home, tokenDir, "sheets-"+env+".json")}, nil
}

// load returns nil without error when nothing is stored yet
func (f tokenFile) load() (*oauth2.Token, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token %s: %w", f.path, err)
	}
	return &token, nil
}

func (f tokenFile) save(token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace token: %w", err)
	}
	return nil
}

func (f tokenFile) remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// persistingSource writes every new access token handed out by base back to file, so a refresh
// during a long interactive session survives the next start
type persistingSource struct {
	mu     sync.Mutex
	base   oauth2.TokenSource
	file   tokenFile
	last   string
	logger *zap.Logger
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if token.AccessToken != s.last {
		s.last = token.AccessToken
		if err := s.file.save(token); err != nil {
			s.logger.Warn("Failed to store refreshed Sheets token", zap.Error(err))
		} else {
			s.logger.Debug("Stored refreshed Sheets token", zap.Time("expiry", token.Expiry))
		}
	}
	return token, nil
}

// checkScopes asks the tokeninfo endpoint whether accessToken was granted the spreadsheets scope
func checkScopes(ctx context.Context, endpoint, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?access_token="+accessToken, nil)
	if err != nil {
		return fmt.Errorf("failed to build tokeninfo request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("tokeninfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("tokeninfo returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info struct {
		Scope string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("failed to decode tokeninfo: %w", err)
	}
	if !slices.Contains(strings.Fields(info.Scope), ScopeSheets) {
		return fmt.Errorf("token was not granted %s; allow spreadsheet access on the consent screen", ScopeSheets)
	}
	return nil
}

// tokenSource returns a refreshing source for env's Sheets token. A stored token is reused while it
// refreshes and carries the spreadsheets scope; otherwise the browser consent flow runs.
func tokenSource(ctx context.Context, cfg *oauth2.Config, env string, logger *zap.Logger) (oauth2.TokenSource, error) {
	file, err := tokenFileFor(env)
	if err != nil {
		return nil, err
	}

	stored, err := file.load()
	if err != nil {
		logger.Warn("Ignoring unreadable Sheets token", zap.Error(err))
	}
	if stored != nil {
		src := &persistingSource{base: cfg.TokenSource(ctx, stored), file: file, last: stored.AccessToken, logger: logger}
		token, err := src.Token()
		if err == nil {
			err = checkScopes(ctx, tokenInfoURL, token.AccessToken)
		}
		if err == nil {
			return src, nil
		}
		logger.Warn("Stored Sheets token is unusable, asking for consent again", zap.Error(err))
		if err := file.remove(); err != nil {
			logger.Warn("Failed to delete stale Sheets token", zap.Error(err))
		}
	}

	logger.Info("Requesting Google Sheets consent", zap.String("env", env))
	token, err := consent(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := checkScopes(ctx, tokenInfoURL, token.AccessToken); err != nil {
		return nil, err
	}
	if err := file.save(token); err != nil {
		logger.Warn("Failed to store Sheets token", zap.Error(err))
	}

	return &persistingSource{base: cfg.TokenSource(ctx, token), file: file, last: token.AccessToken, logger: logger}, nil
}

// consent prints the authorization URL and exchanges the code delivered to the local callback
func consent(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", callbackPort))
	if err != nil {
		return nil, fmt.Errorf("failed to listen for the oauth callback: %w", err)
	}

	state := uuid.NewString()
	fmt.Printf("\nOpen this URL to let mentorctl use Google Sheets:\n%s\n\n",
		cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	waitCtx, cancel := context.WithTimeout(ctx, consentTimeout)
	defer cancel()

	code, err := awaitCallback(waitCtx, ln, state)
	if err != nil {
		return nil, err
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}

type callbackResult struct {
	code string
	err  error
}

// awaitCallback serves callbackPath on ln until one request with the expected state arrives, then
// shuts the listener down
func awaitCallback(ctx context.Context, ln net.Listener, state string) (string, error) {
	results := make(chan callbackResult, 1)
	deliver := func(r callbackResult) {
		select {
		case results <- r:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		switch {
		case query.Get("state") != state:
			http.Error(w, "Authorization state mismatch", http.StatusBadRequest)
			deliver(callbackResult{err: errors.New("oauth callback state mismatch")})
		case query.Get("error") != "":
			http.Error(w, "Authorization denied", http.StatusBadRequest)
			deliver(callbackResult{err: fmt.Errorf("authorization denied: %s", query.Get("error"))})
		case query.Get("code") == "":
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			deliver(callbackResult{err: errors.New("no authorization code received")})
		default:
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html><body><h1>Mentor Bridge is authorized</h1><p>You can close this window.</p></body></html>")
			deliver(callbackResult{code: query.Get("code")})
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deliver(callbackResult{err: fmt.Errorf("oauth callback server: %w", err)})
		}
	}()

	var result callbackResult
	select {
	case result = <-results:
	case <-ctx.Done():
		result.err = fmt.Errorf("waiting for authorization: %w", ctx.Err())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	return result.code, result.err
}
