package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/velofit/velofit/internal/backend"
	"github.com/velofit/velofit/internal/cache"
	"github.com/velofit/velofit/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	table        = "clients"
	cachePrefix  = "clients::"
	listCacheTTL = 2 * time.Minute
)

type Repo struct {
	api           *backend.Client
	storage       *backend.Storage
	sessionCache  cache.Cache
	avatarsBucket string
}

func NewRepo(api *backend.Client, storage *backend.Storage, sessionCache cache.Cache, avatarsBucket string) *Repo {
	return &Repo{
		api:           api,
		storage:       storage,
		sessionCache:  sessionCache,
		avatarsBucket: avatarsBucket,
	}
}

func listCacheKey(coachID string) string {
	return cachePrefix + "list::" + coachID
}

// List returns the coach's active roster, newest first. Read-mostly, so
// the result is cached for a short TTL; mutations invalidate the prefix.
func (r *Repo) List(ctx context.Context, coachID string) (_ []Client, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.clients.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("coach_id", coachID))

	var cached []Client
	if r.sessionCache.Get(listCacheKey(coachID), &cached) {
		span.SetAttributes(attribute.Bool("from_cache", true))
		return cached, nil
	}

	var clientList []Client
	err = r.api.Select(ctx, table, backend.SelectParams{
		Filters: []backend.Filter{
			backend.Eq("coach_id", coachID),
			backend.Eq("status", string(StatusActive)),
		},
		Order: &backend.Order{Column: "created_at", Desc: true},
	}, &clientList)
	if err != nil {
		return nil, err
	}

	r.sessionCache.Put(listCacheKey(coachID), clientList, listCacheTTL)
	return clientList, nil
}

func (r *Repo) Get(ctx context.Context, id string) (_ *Client, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.clients.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", id))

	var rows []Client
	err = r.api.Select(ctx, table, backend.SelectParams{
		Filters: []backend.Filter{backend.Eq("id", id)},
		Limit:   1,
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &backend.RemoteError{Operation: "get client", Message: "client not found"}
	}
	return &rows[0], nil
}

func (r *Repo) Add(ctx context.Context, client Client) (_ *Client, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.clients.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if client.Name == "" {
		return nil, backend.NewValidationError("client name must not be empty")
	}
	if client.Status == "" {
		client.Status = StatusActive
	}

	var added Client
	if err := r.api.Insert(ctx, table, client, &added); err != nil {
		return nil, err
	}

	r.sessionCache.InvalidatePrefix(cachePrefix)
	log.Debugf("new client added: %s", added.ID)
	return &added, nil
}

func (r *Repo) Archive(ctx context.Context, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.clients.archive")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", id))

	err = r.api.Update(
		ctx, table,
		[]backend.Filter{backend.Eq("id", id)},
		map[string]string{"status": string(StatusArchived)},
		nil,
	)
	if err != nil {
		return err
	}

	r.sessionCache.InvalidatePrefix(cachePrefix)
	return nil
}

// Count queries the source of truth directly, bypassing the cache: the
// dashboard uses it and must never drift from the client table.
func (r *Repo) Count(ctx context.Context, coachID string) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.clients.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("coach_id", coachID))

	return r.api.Count(ctx, table, []backend.Filter{
		backend.Eq("coach_id", coachID),
		backend.Eq("status", string(StatusActive)),
	})
}

// UploadAvatar stores the image under a per-client path (upsert, one
// avatar per client) and writes the resulting public URL to the row.
func (r *Repo) UploadAvatar(ctx context.Context, clientID, contentType string, image []byte) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.clients.uploadAvatar")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("client_id", clientID))

	path := fmt.Sprintf("%s/avatar", clientID)
	avatarURL, err := r.storage.Upload(ctx, r.avatarsBucket, path, contentType, image, true)
	if err != nil {
		return "", err
	}

	err = r.api.Update(
		ctx, table,
		[]backend.Filter{backend.Eq("id", clientID)},
		map[string]string{"avatar_url": avatarURL},
		nil,
	)
	if err != nil {
		return "", err
	}

	r.sessionCache.InvalidatePrefix(cachePrefix)
	return avatarURL, nil
}
