package session_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/velofit/velofit/internal/backend"
	"github.com/velofit/velofit/internal/cache"
	"github.com/velofit/velofit/internal/session"
	"github.com/velofit/velofit/internal/telemetry/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// unsignedToken builds a JWT-shaped token with the given expiry; the
// manager never verifies signatures, it only reads the exp claim.
func unsignedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	claims, err := json.Marshal(map[string]any{"sub": "u1", "exp": expiresAt.Unix()})
	require.NoError(t, err)
	payload := base64.RawURLEncoding.EncodeToString(claims)
	return fmt.Sprintf("%s.%s.sig", header, payload)
}

func sessionJSON(accessToken, refreshToken string) string {
	body, _ := json.Marshal(map[string]any{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "bearer",
		"expires_in":    3600,
		"user":          map[string]string{"id": "u1", "email": "coach@velofit.app"},
	})
	return string(body)
}

func TestManager_SignInSignOut(t *testing.T) {
	var signOutCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			_, _ = w.Write([]byte(sessionJSON("at", "rt")))
		case "/auth/v1/logout":
			signOutCalls.Add(1)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	t.Cleanup(server.Close)

	sessionCache := cache.NewSessionCache(1, metrics.NewTestManager())
	sessionCache.Put("clients::list", []string{"stale"}, time.Minute)

	manager := session.NewManager(
		backend.NewAuthClient(server.URL, "key", server.Client()),
		sessionCache,
	)

	var hookRan bool
	manager.OnSignOut(func() { hookRan = true })

	require.NoError(t, manager.SignIn(context.Background(), "coach@velofit.app", "pw"))
	assert.Equal(t, "at", manager.AccessToken())

	user, ok := manager.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "u1", user.ID)

	manager.SignOut(context.Background())
	assert.Equal(t, "", manager.AccessToken())
	_, ok = manager.CurrentUser()
	assert.False(t, ok)
	assert.True(t, hookRan)
	assert.Equal(t, int32(1), signOutCalls.Load())

	// the previous user's cached lists are gone
	var stale []string
	assert.False(t, sessionCache.Get("clients::list", &stale))
}

func TestManager_HandleDeepLink(t *testing.T) {
	manager := session.NewManager(
		backend.NewAuthClient("http://localhost", "key", http.DefaultClient),
		cache.NewSessionCache(1, metrics.NewTestManager()),
	)

	err := manager.HandleDeepLink("velofit://auth#access_token=at123&refresh_token=rt456&type=signup")
	require.NoError(t, err)
	assert.Equal(t, "at123", manager.AccessToken())
}

func TestManager_HandleDeepLink_Error(t *testing.T) {
	manager := session.NewManager(
		backend.NewAuthClient("http://localhost", "key", http.DefaultClient),
		cache.NewSessionCache(1, metrics.NewTestManager()),
	)

	err := manager.HandleDeepLink("velofit://auth#error_description=link+expired")
	require.Error(t, err)

	var remoteErr *backend.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "link expired", remoteErr.Message)
	assert.Equal(t, "", manager.AccessToken())
}

func TestManager_AutoRefresh(t *testing.T) {
	var refreshCalls atomic.Int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/auth/v1/token" && r.URL.Query().Get("grant_type") == "password":
			_, _ = w.Write([]byte(sessionJSON(unsignedToken(t, time.Now().Add(2*time.Second)), "rt1")))
		case r.URL.Path == "/auth/v1/token" && r.URL.Query().Get("grant_type") == "refresh_token":
			refreshCalls.Add(1)
			var payload map[string]string
			_ = json.NewDecoder(r.Body).Decode(&payload)
			assert.Equal(t, "rt1", payload["refresh_token"])
			_, _ = w.Write([]byte(sessionJSON(unsignedToken(t, time.Now().Add(time.Hour)), "rt2")))
		default:
			t.Errorf("unexpected request: %s", r.URL.String())
		}
	}))
	t.Cleanup(server.Close)

	manager := session.NewManager(
		backend.NewAuthClient(server.URL, "key", server.Client()),
		cache.NewSessionCache(1, metrics.NewTestManager()),
	)
	manager.RefreshLeeway = 1900 * time.Millisecond

	require.NoError(t, manager.SignIn(context.Background(), "coach@velofit.app", "pw"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager.StartAutoRefresh(ctx)
	defer manager.StopAutoRefresh()

	require.Eventually(t, func() bool {
		return refreshCalls.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestManager_StopAutoRefresh_NoSession(t *testing.T) {
	manager := session.NewManager(
		backend.NewAuthClient("http://localhost", "key", http.DefaultClient),
		cache.NewSessionCache(1, metrics.NewTestManager()),
	)

	// stopping without a started loop is a no-op
	manager.StopAutoRefresh()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// with no session the loop exits immediately
	manager.StartAutoRefresh(ctx)
	manager.StopAutoRefresh()
}
