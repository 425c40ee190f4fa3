package auth

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"sortify/internal/core"
)

func testProvider(t *testing.T) *Provider {
	t.Helper()

	cfg := &core.SpotifyConfig{
		ClientID:       "client",
		ClientSecret:   "secret",
		RedirectURL:    "http://localhost:8080/auth/callback",
		TokenPath:      filepath.Join(t.TempDir(), "token.json"),
		RequestTimeout: time.Second,
	}
	return NewProvider(cfg, http.DefaultTransport, zap.NewNop())
}

func TestProvider_LoadWithoutTokenFile(t *testing.T) {
	provider := testProvider(t)

	if got := provider.Load(); got != StatusUnauthenticated {
		t.Errorf("Missing token file should leave the provider unauthenticated, got %v", got)
	}
	if got := provider.Status(); got != StatusUnauthenticated {
		t.Errorf("Status should be unauthenticated, got %v", got)
	}
}

func TestProvider_TokenRoundTrip(t *testing.T) {
	provider := testProvider(t)

	token := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}
	if err := provider.saveToken(token); err != nil {
		t.Fatalf("saveToken failed: %v", err)
	}

	// The token file must not be world readable
	info, err := os.Stat(provider.config.TokenPath)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != FilePermission {
		t.Errorf("Token file permission should be %o, got %o", FilePermission, perm)
	}

	if got := provider.Load(); got != StatusAuthenticated {
		t.Fatalf("Load should restore the saved token, got %v", got)
	}

	loaded, err := provider.loadToken()
	if err != nil {
		t.Fatalf("loadToken failed: %v", err)
	}
	if loaded.AccessToken != "access" || loaded.RefreshToken != "refresh" {
		t.Errorf("Token mismatch: %+v", loaded)
	}
}

func TestProvider_AuthURLRotatesState(t *testing.T) {
	provider := testProvider(t)

	first, err := provider.AuthURL()
	if err != nil {
		t.Fatalf("AuthURL failed: %v", err)
	}
	second, err := provider.AuthURL()
	if err != nil {
		t.Fatalf("AuthURL failed: %v", err)
	}

	if !strings.Contains(first, "state=") {
		t.Errorf("Authorize URL should carry the state parameter: %s", first)
	}
	if first == second {
		t.Error("Each flow should get a fresh state")
	}
}

func TestProvider_CallbackStateChecks(t *testing.T) {
	provider := testProvider(t)

	// No flow in progress
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=x&state=y", nil)
	if err := provider.HandleCallback(req); err == nil {
		t.Error("Callback without a flow in progress should be rejected")
	}

	// Mismatched state
	if _, err := provider.AuthURL(); err != nil {
		t.Fatalf("AuthURL failed: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/auth/callback?code=x&state=forged", nil)
	if err := provider.HandleCallback(req); err == nil {
		t.Error("Callback with a forged state should be rejected")
	}
}

func TestProvider_MarkExpired(t *testing.T) {
	provider := testProvider(t)

	token := &oauth2.Token{AccessToken: "access", Expiry: time.Now().Add(time.Hour)}
	if err := provider.saveToken(token); err != nil {
		t.Fatalf("saveToken failed: %v", err)
	}
	if got := provider.Load(); got != StatusAuthenticated {
		t.Fatalf("Load should authenticate, got %v", got)
	}

	provider.MarkExpired()

	if got := provider.Status(); got != StatusUnauthenticated {
		t.Errorf("Status should flip to unauthenticated, got %v", got)
	}
	if _, err := os.Stat(provider.config.TokenPath); !os.IsNotExist(err) {
		t.Error("The dead token file should be removed")
	}
}

func TestProvider_ClientBeforeSignIn(t *testing.T) {
	provider := testProvider(t)
	client := provider.Client()

	// The client can be handed out early, but requests fail with the
	// unauthorized class until a token arrives.
	_, err := client.Get("http://127.0.0.1:0/")
	if !core.IsUnauthorized(err) {
		t.Errorf("Requests before sign-in should classify as unauthorized, got %v", err)
	}
}
