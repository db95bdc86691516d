// Package session owns the signed-in user's auth state: the current
// access/refresh token pair, proactive token refresh, deep-link callbacks
// and the teardown that happens on sign-out.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/velofit/velofit/internal/backend"
	"github.com/velofit/velofit/internal/cache"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

const defaultRefreshLeeway = 60 * time.Second

var _ backend.TokenProvider = (*Manager)(nil)

type Manager struct {
	authClient   *backend.AuthClient
	sessionCache cache.Cache

	mu      sync.RWMutex
	current *backend.Session

	hooksMu    sync.Mutex
	onSignOut  []func()
	refreshEnd context.CancelFunc
	refreshed  chan struct{}

	// refresh leeway before token expiry; override in tests
	RefreshLeeway time.Duration
}

func NewManager(authClient *backend.AuthClient, sessionCache cache.Cache) *Manager {
	return &Manager{
		authClient:    authClient,
		sessionCache:  sessionCache,
		RefreshLeeway: defaultRefreshLeeway,
	}
}

func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return ""
	}
	return m.current.AccessToken
}

func (m *Manager) CurrentUser() (backend.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return backend.User{}, false
	}
	return m.current.User, true
}

func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	session, err := m.authClient.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	m.setSession(session)
	log.Debugf("signed in as: %s", session.User.Email)
	return nil
}

func (m *Manager) SignUp(ctx context.Context, email, password string) error {
	session, err := m.authClient.SignUp(ctx, email, password)
	if err != nil {
		return err
	}
	m.setSession(session)
	log.Debugf("signed up as: %s", session.User.Email)
	return nil
}

// OnSignOut registers a teardown hook, e.g. stopping the connection
// listener or clearing a repository's subscription state. Hooks run on
// every sign-out, after the session cache is cleared.
func (m *Manager) OnSignOut(fn func()) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.onSignOut = append(m.onSignOut, fn)
}

// SignOut revokes the session (best effort), drops the local tokens,
// clears the session cache and runs the registered teardown hooks, so a
// subsequent sign-in for a different user never observes the previous
// user's cached lists.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	current := m.current
	m.current = nil
	m.mu.Unlock()

	if current != nil {
		m.authClient.SignOut(ctx, current.AccessToken)
	}

	m.sessionCache.Clear()

	m.hooksMu.Lock()
	hooks := make([]func(), len(m.onSignOut))
	copy(hooks, m.onSignOut)
	m.hooksMu.Unlock()
	for _, hook := range hooks {
		hook()
	}

	log.Debugln("signed out, local session state cleared")
}

// HandleDeepLink applies an auth callback URL (email verification,
// password recovery, OAuth-style token fragment) to the session.
func (m *Manager) HandleDeepLink(rawURL string) error {
	link, err := backend.ParseDeepLink(rawURL)
	if err != nil {
		return err
	}

	if link.Kind == backend.DeepLinkError {
		return &backend.RemoteError{Operation: "deep link", Message: link.ErrorMessage}
	}

	m.setSession(&backend.Session{
		AccessToken:  link.AccessToken,
		RefreshToken: link.RefreshToken,
		ExpiresIn:    link.ExpiresIn,
	})
	log.Debugf("deep link applied: %s", link.Kind)
	return nil
}

func (m *Manager) setSession(session *backend.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = session
}

// StartAutoRefresh keeps the access token fresh from a background
// goroutine: it sleeps until shortly before the token expires, refreshes,
// and repeats. A failed refresh ends the loop; the user has to sign in
// again by hand (no automatic retry).
func (m *Manager) StartAutoRefresh(ctx context.Context) {
	refreshCtx, cancel := context.WithCancel(ctx)
	refreshed := make(chan struct{})

	m.hooksMu.Lock()
	m.refreshEnd = cancel
	m.refreshed = refreshed
	m.hooksMu.Unlock()

	go func() {
		defer close(refreshed)
		for {
			expiry, ok := m.tokenExpiry()
			if !ok {
				log.Debugln("auto refresh: no session or no expiry claim, stopping")
				return
			}

			wait := time.Until(expiry) - m.RefreshLeeway
			if wait < 0 {
				wait = 0
			}

			timer := time.NewTimer(wait)
			select {
			case <-refreshCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			m.mu.RLock()
			var refreshToken string
			if m.current != nil {
				refreshToken = m.current.RefreshToken
			}
			m.mu.RUnlock()

			session, err := m.authClient.RefreshSession(refreshCtx, refreshToken)
			if err != nil {
				log.Errorf("auto refresh failed, manual sign-in required: %s", err)
				return
			}
			m.setSession(session)
			log.Tracef("session token refreshed")
		}
	}()
}

// StopAutoRefresh cancels the refresh loop and waits for it to exit.
func (m *Manager) StopAutoRefresh() {
	m.hooksMu.Lock()
	cancel := m.refreshEnd
	refreshed := m.refreshed
	m.hooksMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-refreshed
}

// tokenExpiry reads the exp claim from the access token. The signature is
// not verified: the backend is the authority on the token, the client only
// needs the expiry instant for scheduling.
func (m *Manager) tokenExpiry() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil || m.current.AccessToken == "" {
		return time.Time{}, false
	}

	token, _, err := jwt.NewParser().ParseUnverified(m.current.AccessToken, jwt.MapClaims{})
	if err != nil {
		log.Errorf("parse access token: %s", err)
		return time.Time{}, false
	}

	expiresAt, err := token.Claims.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return time.Time{}, false
	}
	return expiresAt.Time, true
}
