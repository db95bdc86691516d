// Package calendar handles the coach's scheduled sessions and other
// appointments.
package calendar

import (
	"context"
	"time"

	"github.com/velofit/velofit/internal/backend"
	"github.com/velofit/velofit/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

const table = "calendar_events"

type Event struct {
	ID       string    `json:"id"`
	CoachID  string    `json:"coach_id"`
	ClientID string    `json:"client_id,omitempty"`
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type Repo struct {
	api *backend.Client
}

func NewRepo(api *backend.Client) *Repo {
	return &Repo{api: api}
}

// ListRange returns the coach's events with a start inside [from, to),
// soonest first. Calendar data changes too often to be worth caching.
func (r *Repo) ListRange(ctx context.Context, coachID string, from, to time.Time) (_ []Event, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.calendar.listRange")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("coach_id", coachID))

	if !to.After(from) {
		return nil, backend.NewValidationError("calendar range end must be after start")
	}

	var events []Event
	err = r.api.Select(ctx, table, backend.SelectParams{
		Filters: []backend.Filter{
			backend.Eq("coach_id", coachID),
			backend.Gte("starts_at", from.UTC().Format(time.RFC3339)),
			backend.Lt("starts_at", to.UTC().Format(time.RFC3339)),
		},
		Order: &backend.Order{Column: "starts_at", Desc: false},
	}, &events)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ListToday is ListRange for the local calendar day.
func (r *Repo) ListToday(ctx context.Context, coachID string, now time.Time) ([]Event, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return r.ListRange(ctx, coachID, dayStart, dayStart.AddDate(0, 0, 1))
}

func (r *Repo) Create(ctx context.Context, event Event) (_ *Event, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.calendar.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if event.Title == "" {
		return nil, backend.NewValidationError("event title must not be empty")
	}
	if !event.EndsAt.After(event.StartsAt) {
		return nil, backend.NewValidationError("event must end after it starts")
	}

	var created Event
	if err := r.api.Insert(ctx, table, event, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *Repo) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.calendar.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", id))

	return r.api.Delete(ctx, table, []backend.Filter{backend.Eq("id", id)})
}
