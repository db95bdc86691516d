package clients_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/velofit/velofit/internal/backend"
	"github.com/velofit/velofit/internal/cache"
	"github.com/velofit/velofit/internal/clients"
	"github.com/velofit/velofit/internal/telemetry/metrics"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct{ token string }

func (s *staticTokens) AccessToken() string { return s.token }

func newTestRepo(t *testing.T, handler http.Handler) (*clients.Repo, *cache.SessionCache) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tokens := &staticTokens{token: "tok"}
	api := backend.NewClient(server.URL, "key", tokens, server.Client(), metrics.NewTestManager())
	storage := backend.NewStorage(server.URL, "key", tokens, server.Client())
	sessionCache := cache.NewSessionCache(1, metrics.NewTestManager())
	return clients.NewRepo(api, storage, sessionCache, "avatars"), sessionCache
}

func clientRows(coachID string, n int) []clients.Client {
	rows := make([]clients.Client, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, clients.Client{
			ID:        fmt.Sprintf("c%d", i+1),
			CoachID:   coachID,
			Name:      gofakeit.Name(),
			Email:     gofakeit.Email(),
			Status:    clients.StatusActive,
			CreatedAt: time.Now().Add(-time.Duration(i) * time.Hour),
		})
	}
	return rows
}

func TestRepo_List_CachesResult(t *testing.T) {
	rows := clientRows("coach1", 3)
	var listCalls atomic.Int32
	repo, _ := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/v1/clients", r.URL.Path)
		assert.Equal(t, "eq.coach1", r.URL.Query().Get("coach_id"))
		assert.Equal(t, "eq.active", r.URL.Query().Get("status"))
		assert.Equal(t, "created_at.desc", r.URL.Query().Get("order"))
		listCalls.Add(1)
		require.NoError(t, json.NewEncoder(w).Encode(rows))
	}))

	ctx := context.Background()
	first, err := repo.List(ctx, "coach1")
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, rows[0].Name, first[0].Name)

	// second read is served from the cache
	second, err := repo.List(ctx, "coach1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), listCalls.Load())
}

func TestRepo_Add_InvalidatesListCache(t *testing.T) {
	var listCalls atomic.Int32
	repo, _ := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			listCalls.Add(1)
			require.NoError(t, json.NewEncoder(w).Encode(clientRows("coach1", int(listCalls.Load()))))
		case http.MethodPost:
			var incoming clients.Client
			require.NoError(t, json.NewDecoder(r.Body).Decode(&incoming))
			assert.Equal(t, clients.StatusActive, incoming.Status)
			incoming.ID = "c-new"
			w.WriteHeader(http.StatusCreated)
			require.NoError(t, json.NewEncoder(w).Encode([]clients.Client{incoming}))
		default:
			t.Errorf("unexpected method: %s", r.Method)
		}
	}))

	ctx := context.Background()
	_, err := repo.List(ctx, "coach1")
	require.NoError(t, err)

	added, err := repo.Add(ctx, clients.Client{CoachID: "coach1", Name: "Mia Kovač"})
	require.NoError(t, err)
	assert.Equal(t, "c-new", added.ID)

	// the add dropped the cached list, so this hits the server again
	refreshed, err := repo.List(ctx, "coach1")
	require.NoError(t, err)
	assert.Len(t, refreshed, 2)
	assert.Equal(t, int32(2), listCalls.Load())
}

func TestRepo_Add_EmptyName(t *testing.T) {
	repo, _ := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for invalid input")
	}))

	_, err := repo.Add(context.Background(), clients.Client{CoachID: "coach1"})
	require.Error(t, err)

	var validationErr *backend.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestRepo_Count_BypassesCache(t *testing.T) {
	var countCalls atomic.Int32
	repo, sessionCache := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		countCalls.Add(1)
		w.Header().Set("Content-Range", "0-24/42")
	}))

	// a stale cached list must not influence the count
	sessionCache.Put("clients::list::coach1", clientRows("coach1", 2), time.Minute)

	count, err := repo.Count(context.Background(), "coach1")
	require.NoError(t, err)
	assert.Equal(t, 42, count)

	count, err = repo.Count(context.Background(), "coach1")
	require.NoError(t, err)
	assert.Equal(t, 42, count)
	assert.Equal(t, int32(2), countCalls.Load())
}

func TestRepo_Archive(t *testing.T) {
	var patched atomic.Bool
	repo, sessionCache := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.c1", r.URL.Query().Get("id"))

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "archived", payload["status"])
		patched.Store(true)
		w.WriteHeader(http.StatusNoContent)
	}))

	sessionCache.Put("clients::list::coach1", clientRows("coach1", 2), time.Minute)

	require.NoError(t, repo.Archive(context.Background(), "c1"))
	assert.True(t, patched.Load())

	var stale []clients.Client
	assert.False(t, sessionCache.Get("clients::list::coach1", &stale))
}

func TestRepo_UploadAvatar(t *testing.T) {
	image := []byte("fake-png-bytes")
	repo, _ := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/storage/v1/object/avatars/c1/avatar":
			assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
			assert.Equal(t, "true", r.Header.Get("x-upsert"))
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPatch && r.URL.Path == "/rest/v1/clients":
			var payload map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Contains(t, payload["avatar_url"], "/storage/v1/object/public/avatars/c1/avatar")
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))

	avatarURL, err := repo.UploadAvatar(context.Background(), "c1", "image/png", image)
	require.NoError(t, err)
	assert.Contains(t, avatarURL, "avatars/c1/avatar")
}
