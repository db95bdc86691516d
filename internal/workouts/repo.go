package workouts

import (
	"context"
	"strconv"
	"time"

	"github.com/velofit/velofit/internal/backend"
	"github.com/velofit/velofit/internal/cache"
	"github.com/velofit/velofit/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

const (
	workoutsTable = "workouts"
	setsTable     = "workout_sets"
	cachePrefix   = "workouts::"
	listCacheTTL  = 2 * time.Minute
)

type Repo struct {
	api          *backend.Client
	sessionCache cache.Cache
}

func NewRepo(api *backend.Client, sessionCache cache.Cache) *Repo {
	return &Repo{api: api, sessionCache: sessionCache}
}

func listCacheKey(clientID string) string {
	return cachePrefix + "list::" + clientID
}

func (r *Repo) Create(ctx context.Context, workout Workout) (_ *Workout, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if workout.Name == "" {
		return nil, backend.NewValidationError("workout name must not be empty")
	}
	if workout.ClientID == "" {
		return nil, backend.NewValidationError("workout must be assigned to a client")
	}

	var created Workout
	if err := r.api.Insert(ctx, workoutsTable, workout, &created); err != nil {
		return nil, err
	}

	r.sessionCache.Invalidate(listCacheKey(workout.ClientID))
	return &created, nil
}

// ListForClient returns the client's workout history, newest first,
// cached for a short TTL. Create and LogSet invalidate the entry.
func (r *Repo) ListForClient(ctx context.Context, clientID string) (_ []Workout, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.listForClient")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("client_id", clientID))

	var cached []Workout
	if r.sessionCache.Get(listCacheKey(clientID), &cached) {
		span.SetAttributes(attribute.Bool("from_cache", true))
		return cached, nil
	}

	var workoutList []Workout
	err = r.api.Select(ctx, workoutsTable, backend.SelectParams{
		Filters: []backend.Filter{backend.Eq("client_id", clientID)},
		Order:   &backend.Order{Column: "created_at", Desc: true},
	}, &workoutList)
	if err != nil {
		return nil, err
	}

	r.sessionCache.Put(listCacheKey(clientID), workoutList, listCacheTTL)
	return workoutList, nil
}

func (r *Repo) Get(ctx context.Context, id string) (_ *Workout, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", id))

	var rows []Workout
	err = r.api.Select(ctx, workoutsTable, backend.SelectParams{
		Filters: []backend.Filter{backend.Eq("id", id)},
		Limit:   1,
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &backend.RemoteError{Operation: "get workout", Message: "workout not found"}
	}
	return &rows[0], nil
}

func (r *Repo) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", id))

	if err := r.api.Delete(ctx, workoutsTable, []backend.Filter{backend.Eq("id", id)}); err != nil {
		return err
	}

	// workout rows carry no client id here, drop all cached lists
	r.sessionCache.InvalidatePrefix(cachePrefix)
	return nil
}

// LogSet records one performed set. Reps and set number must be positive;
// load may be zero for bodyweight work but never negative. Rejected input
// never reaches the network.
func (r *Repo) LogSet(ctx context.Context, entry SetEntry) (_ *SetEntry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.logSet")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("workout_id", entry.WorkoutID))

	if entry.WorkoutID == "" {
		return nil, backend.NewValidationError("set entry needs a workout id")
	}
	if entry.Exercise == "" {
		return nil, backend.NewValidationError("set entry needs an exercise name")
	}
	if entry.SetNumber <= 0 {
		return nil, backend.NewValidationError("set number must be positive, got %d", entry.SetNumber)
	}
	if entry.Reps <= 0 {
		return nil, backend.NewValidationError("reps must be positive, got %d", entry.Reps)
	}
	if entry.LoadKg < 0 {
		return nil, backend.NewValidationError("load must not be negative, got %s", strconv.FormatFloat(entry.LoadKg, 'f', -1, 64))
	}

	var logged SetEntry
	if err := r.api.Insert(ctx, setsTable, entry, &logged); err != nil {
		return nil, err
	}

	r.sessionCache.InvalidatePrefix(cachePrefix)
	return &logged, nil
}

// Sets returns the logged sets of a workout in execution order.
func (r *Repo) Sets(ctx context.Context, workoutID string) (_ []SetEntry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.sets")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("workout_id", workoutID))

	var sets []SetEntry
	err = r.api.Select(ctx, setsTable, backend.SelectParams{
		Filters: []backend.Filter{backend.Eq("workout_id", workoutID)},
		Order:   &backend.Order{Column: "set_number", Desc: false},
	}, &sets)
	if err != nil {
		return nil, err
	}
	return sets, nil
}
