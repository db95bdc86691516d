package vbt_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/velofit/velofit/internal/backend"
	"github.com/velofit/velofit/internal/telemetry/metrics"
	"github.com/velofit/velofit/internal/vbt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct{}

func (s *staticTokens) AccessToken() string { return "tok" }

func newTestRepo(t *testing.T, handler http.Handler) *vbt.Repo {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return vbt.NewRepo(
		backend.NewClient(server.URL, "key", &staticTokens{}, server.Client(), metrics.NewTestManager()),
	)
}

func TestRepo_StartSession_Validation(t *testing.T) {
	repo := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("invalid input must not reach the network")
	}))

	for name, session := range map[string]vbt.Session{
		"no client":         {Exercise: "back squat", VelocityLossStopPct: 20},
		"no exercise":       {ClientID: "c1", VelocityLossStopPct: 20},
		"threshold too big": {ClientID: "c1", Exercise: "back squat", VelocityLossStopPct: 150},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := repo.StartSession(context.Background(), session)
			require.Error(t, err)

			var validationErr *backend.ValidationError
			assert.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestRepo_AddRep(t *testing.T) {
	repo := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/v1/vbt_reps", r.URL.Path)
		var rep vbt.RepRecord
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rep))
		rep.ID = "rep1"
		w.WriteHeader(http.StatusCreated)
		require.NoError(t, json.NewEncoder(w).Encode([]vbt.RepRecord{rep}))
	}))

	added, err := repo.AddRep(context.Background(), vbt.RepRecord{
		SessionID:    "s1",
		SetNumber:    1,
		RepNumber:    1,
		LoadKg:       100,
		MeanVelocity: 0.62,
	})
	require.NoError(t, err)
	assert.Equal(t, "rep1", added.ID)

	_, err = repo.AddRep(context.Background(), vbt.RepRecord{
		SessionID: "s1", SetNumber: 1, RepNumber: 2, MeanVelocity: 0,
	})
	require.Error(t, err)
}

func TestRepo_RepsForClient_SpansSessions(t *testing.T) {
	repo := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/vbt_sessions":
			assert.Equal(t, "eq.c1", r.URL.Query().Get("client_id"))
			assert.Equal(t, "eq.back squat", r.URL.Query().Get("exercise"))
			require.NoError(t, json.NewEncoder(w).Encode([]vbt.Session{{ID: "s1"}, {ID: "s2"}}))
		case "/rest/v1/vbt_reps":
			assert.Equal(t, "in.(s1,s2)", r.URL.Query().Get("session_id"))
			require.NoError(t, json.NewEncoder(w).Encode([]vbt.RepRecord{
				{ID: "rep1", SessionID: "s1"},
				{ID: "rep2", SessionID: "s2"},
			}))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))

	reps, err := repo.RepsForClient(context.Background(), "c1", "back squat")
	require.NoError(t, err)
	require.Len(t, reps, 2)
}

func TestRepo_RepsForClient_NoSessions(t *testing.T) {
	repo := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/v1/vbt_sessions", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode([]vbt.Session{}))
	}))

	reps, err := repo.RepsForClient(context.Background(), "c1", "back squat")
	require.NoError(t, err)
	assert.Empty(t, reps)
}
