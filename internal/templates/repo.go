// Package templates manages reusable workout blueprints a coach builds
// once and assigns to many clients.
package templates

import (
	"context"
	"time"

	"github.com/velofit/velofit/internal/backend"
	"github.com/velofit/velofit/internal/cache"
	"github.com/velofit/velofit/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

const (
	table            = "workout_templates"
	assignmentsTable = "template_assignments"
	cachePrefix      = "templates::"
	listCacheTTL     = 5 * time.Minute
)

type TemplateExercise struct {
	Exercise string  `json:"exercise"`
	Sets     int     `json:"sets"`
	Reps     int     `json:"reps"`
	LoadKg   float64 `json:"load_kg"`
}

type Template struct {
	ID          string             `json:"id"`
	CoachID     string             `json:"coach_id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Exercises   []TemplateExercise `json:"exercises"`
	CreatedAt   time.Time          `json:"created_at"`
}

type Assignment struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"template_id"`
	ClientID   string    `json:"client_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

type Repo struct {
	api          *backend.Client
	sessionCache cache.Cache
}

func NewRepo(api *backend.Client, sessionCache cache.Cache) *Repo {
	return &Repo{api: api, sessionCache: sessionCache}
}

func listCacheKey(coachID string) string {
	return cachePrefix + "list::" + coachID
}

func (r *Repo) List(ctx context.Context, coachID string) (_ []Template, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.templates.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("coach_id", coachID))

	var cached []Template
	if r.sessionCache.Get(listCacheKey(coachID), &cached) {
		span.SetAttributes(attribute.Bool("from_cache", true))
		return cached, nil
	}

	var templateList []Template
	err = r.api.Select(ctx, table, backend.SelectParams{
		Filters: []backend.Filter{backend.Eq("coach_id", coachID)},
		Order:   &backend.Order{Column: "name", Desc: false},
	}, &templateList)
	if err != nil {
		return nil, err
	}

	r.sessionCache.Put(listCacheKey(coachID), templateList, listCacheTTL)
	return templateList, nil
}

func (r *Repo) Create(ctx context.Context, template Template) (_ *Template, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.templates.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if template.Name == "" {
		return nil, backend.NewValidationError("template name must not be empty")
	}
	for _, exercise := range template.Exercises {
		if exercise.Sets <= 0 || exercise.Reps <= 0 {
			return nil, backend.NewValidationError(
				"template exercise %q needs positive sets and reps", exercise.Exercise)
		}
	}

	var created Template
	if err := r.api.Insert(ctx, table, template, &created); err != nil {
		return nil, err
	}

	r.sessionCache.InvalidatePrefix(cachePrefix)
	return &created, nil
}

func (r *Repo) Update(ctx context.Context, template Template) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.templates.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", template.ID))

	if template.ID == "" {
		return backend.NewValidationError("template id must not be empty")
	}

	err = r.api.Update(ctx, table, []backend.Filter{backend.Eq("id", template.ID)}, template, nil)
	if err != nil {
		return err
	}

	r.sessionCache.InvalidatePrefix(cachePrefix)
	return nil
}

func (r *Repo) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.templates.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", id))

	if err := r.api.Delete(ctx, table, []backend.Filter{backend.Eq("id", id)}); err != nil {
		return err
	}

	r.sessionCache.InvalidatePrefix(cachePrefix)
	return nil
}

// Assign links a template to a client. The client's next workouts are
// generated server-side from the assignment.
func (r *Repo) Assign(ctx context.Context, templateID, clientID string) (_ *Assignment, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.templates.assign")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("template_id", templateID))
	span.SetAttributes(attribute.String("client_id", clientID))

	if templateID == "" || clientID == "" {
		return nil, backend.NewValidationError("assignment needs both template and client ids")
	}

	var assignment Assignment
	err = r.api.Insert(ctx, assignmentsTable, Assignment{
		TemplateID: templateID,
		ClientID:   clientID,
	}, &assignment)
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}
