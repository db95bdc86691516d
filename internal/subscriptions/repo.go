// Package subscriptions exposes the coach's billing plan state. The
// actual purchase flow lives in the platform stores; the client only
// reads the resulting entitlements.
package subscriptions

import (
	"context"
	"time"

	"github.com/velofit/velofit/internal/backend"
	"github.com/velofit/velofit/internal/cache"
	"github.com/velofit/velofit/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

const (
	table        = "subscriptions"
	cachePrefix  = "subscriptions::"
	currentTTL   = 10 * time.Minute
	planFree     = "free"
	StatusActive = "active"
)

type Subscription struct {
	ID       string     `json:"id"`
	CoachID  string     `json:"coach_id"`
	Plan     string     `json:"plan"`
	Status   string     `json:"status"`
	RenewsAt *time.Time `json:"renews_at,omitempty"`
}

// IsPro reports whether the subscription unlocks the paid feature set.
func (s *Subscription) IsPro() bool {
	return s != nil && s.Status == StatusActive && s.Plan != planFree
}

type Repo struct {
	api          *backend.Client
	sessionCache cache.Cache
}

func NewRepo(api *backend.Client, sessionCache cache.Cache) *Repo {
	return &Repo{api: api, sessionCache: sessionCache}
}

func currentCacheKey(coachID string) string {
	return cachePrefix + "current::" + coachID
}

// Current returns the coach's subscription, or a free-plan placeholder
// when no row exists yet. Cached; entitlements change rarely.
func (r *Repo) Current(ctx context.Context, coachID string) (_ *Subscription, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.subscriptions.current")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("coach_id", coachID))

	var cached Subscription
	if r.sessionCache.Get(currentCacheKey(coachID), &cached) {
		span.SetAttributes(attribute.Bool("from_cache", true))
		return &cached, nil
	}

	var rows []Subscription
	err = r.api.Select(ctx, table, backend.SelectParams{
		Filters: []backend.Filter{backend.Eq("coach_id", coachID)},
		Limit:   1,
	}, &rows)
	if err != nil {
		return nil, err
	}

	subscription := Subscription{CoachID: coachID, Plan: planFree, Status: StatusActive}
	if len(rows) > 0 {
		subscription = rows[0]
	}

	r.sessionCache.Put(currentCacheKey(coachID), subscription, currentTTL)
	return &subscription, nil
}

// ClearState drops the cached entitlements. Wired as a sign-out hook so
// the next user never inherits the previous user's plan.
func (r *Repo) ClearState() {
	r.sessionCache.InvalidatePrefix(cachePrefix)
}
