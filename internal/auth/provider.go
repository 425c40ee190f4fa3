// Package auth owns the Spotify OAuth grant: the authorization-code flow
// behind the browser callback, token persistence between runs, and the
// authenticated HTTP client handed to the catalog.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"sortify/internal/core"
)

const (
	// FilePermission is the permission for token files
	FilePermission = 0o600
	// stateBytes is the entropy of the OAuth state parameter
	stateBytes = 16
)

// Status describes whether an authenticated session is available.
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusAuthenticated   Status = "authenticated"
)

// TokenData is the on-disk token envelope.
type TokenData struct {
	Token *oauth2.Token `json:"token"`
}

type Provider struct {
	config    *core.SpotifyConfig
	logger    *zap.Logger
	auth      *spotifyauth.Authenticator
	transport http.RoundTripper

	mutex      sync.Mutex
	token      *oauth2.Token
	state      string
	httpClient *http.Client
}

// NewProvider builds the authenticator with the scopes the sorter needs:
// reading the library and playlists, and modifying playlists in both
// visibilities.
func NewProvider(config *core.SpotifyConfig, transport http.RoundTripper, logger *zap.Logger) *Provider {
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(config.RedirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserLibraryRead,
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistModifyPublic,
			spotifyauth.ScopePlaylistModifyPrivate,
		),
		spotifyauth.WithClientID(config.ClientID),
		spotifyauth.WithClientSecret(config.ClientSecret),
	)

	return &Provider{
		config:    config,
		logger:    logger,
		auth:      auth,
		transport: transport,
	}
}

// Load restores a previously saved token. Returns the resulting status; a
// missing or unreadable token file is not an error, it just means the user
// has to sign in again.
func (p *Provider) Load() Status {
	token, err := p.loadToken()
	if err != nil {
		p.logger.Info("No saved token found, sign-in required")
		return StatusUnauthenticated
	}

	p.mutex.Lock()
	p.token = token
	p.httpClient = p.buildClient(token)
	p.mutex.Unlock()

	p.logger.Info("Restored saved Spotify token")
	return StatusAuthenticated
}

// Status reports whether a token is currently held.
func (p *Provider) Status() Status {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.token == nil {
		return StatusUnauthenticated
	}
	return StatusAuthenticated
}

// AuthURL starts a new authorization-code flow and returns the URL to send
// the browser to. The state parameter is regenerated per flow.
func (p *Provider) AuthURL() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate OAuth state: %w", err)
	}
	state := hex.EncodeToString(buf)

	p.mutex.Lock()
	p.state = state
	p.mutex.Unlock()

	return p.auth.AuthURL(state), nil
}

// HandleCallback completes the flow from the redirect request: it validates
// the state, exchanges the code and persists the token.
func (p *Provider) HandleCallback(r *http.Request) error {
	p.mutex.Lock()
	expectedState := p.state
	p.mutex.Unlock()

	if expectedState == "" {
		return fmt.Errorf("no authorization flow in progress")
	}
	if got := r.URL.Query().Get("state"); got != expectedState {
		return fmt.Errorf("OAuth state mismatch")
	}

	token, err := p.auth.Token(r.Context(), expectedState, r)
	if err != nil {
		return fmt.Errorf("failed to exchange code for token: %w", err)
	}

	p.mutex.Lock()
	p.token = token
	p.state = ""
	p.httpClient = p.buildClient(token)
	p.mutex.Unlock()

	if saveErr := p.saveToken(token); saveErr != nil {
		p.logger.Warn("Failed to save token", zap.Error(saveErr))
	}

	p.logger.Info("OAuth flow completed successfully")
	return nil
}

// MarkExpired drops the held token after an upstream 401 so the status flips
// to unauthenticated and the UI can prompt for sign-in.
func (p *Provider) MarkExpired() {
	p.mutex.Lock()
	p.token = nil
	p.httpClient = nil
	p.mutex.Unlock()

	if err := os.Remove(p.config.TokenPath); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("Failed to remove expired token file", zap.Error(err))
	}

	p.logger.Info("Spotify token marked expired")
}

// Client returns a stable HTTP client for upstream calls. It can be handed
// out before sign-in completes: each request resolves the current
// authenticated transport, so a token arriving through the browser callback
// takes effect without rebuilding any consumer.
func (p *Provider) Client() *http.Client {
	return &http.Client{
		Transport: &dynamicTransport{provider: p},
		Timeout:   p.config.RequestTimeout,
	}
}

// buildClient wraps token in the oauth2 refresh layer. The token source uses
// whatever client is carried in the context; planting ours there puts the
// limiter and 429 retry underneath the token refresh layer.
func (p *Provider) buildClient(token *oauth2.Token) *http.Client {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{
		Transport: p.transport,
	})
	return p.auth.Client(ctx, token)
}

type dynamicTransport struct {
	provider *Provider
}

func (t *dynamicTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.provider.mutex.Lock()
	client := t.provider.httpClient
	t.provider.mutex.Unlock()

	if client == nil {
		return nil, fmt.Errorf("not authenticated: %w", core.ErrUnauthorized)
	}
	return client.Transport.RoundTrip(req)
}

func (p *Provider) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(p.config.TokenPath)
	if err != nil {
		return nil, err
	}

	var tokenData TokenData
	if err := json.Unmarshal(data, &tokenData); err != nil {
		return nil, err
	}
	if tokenData.Token == nil {
		return nil, fmt.Errorf("token file holds no token")
	}

	return tokenData.Token, nil
}

func (p *Provider) saveToken(token *oauth2.Token) error {
	tokenData := TokenData{Token: token}

	data, err := json.MarshalIndent(tokenData, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(p.config.TokenPath, data, FilePermission)
}
