package vbt

import (
	"context"
	"time"

	"github.com/velofit/velofit/internal/backend"
	"github.com/velofit/velofit/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

const (
	sessionsTable = "vbt_sessions"
	repsTable     = "vbt_reps"
)

type Repo struct {
	api *backend.Client
}

func NewRepo(api *backend.Client) *Repo {
	return &Repo{api: api}
}

func (r *Repo) StartSession(ctx context.Context, session Session) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.vbt.startSession")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("client_id", session.ClientID))

	if session.ClientID == "" {
		return nil, backend.NewValidationError("session needs a client id")
	}
	if session.Exercise == "" {
		return nil, backend.NewValidationError("session needs an exercise name")
	}
	if session.VelocityLossStopPct < 0 || session.VelocityLossStopPct > 100 {
		return nil, backend.NewValidationError(
			"velocity loss stop threshold must be within [0, 100], got %.1f", session.VelocityLossStopPct)
	}

	var started Session
	if err := r.api.Insert(ctx, sessionsTable, session, &started); err != nil {
		return nil, err
	}
	return &started, nil
}

func (r *Repo) FinishSession(ctx context.Context, sessionID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.vbt.finishSession")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("session_id", sessionID))

	return r.api.Update(
		ctx, sessionsTable,
		[]backend.Filter{backend.Eq("id", sessionID)},
		map[string]string{"finished_at": time.Now().UTC().Format(time.RFC3339)},
		nil,
	)
}

func (r *Repo) AddRep(ctx context.Context, rep RepRecord) (_ *RepRecord, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.vbt.addRep")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("session_id", rep.SessionID))

	if rep.SessionID == "" {
		return nil, backend.NewValidationError("rep needs a session id")
	}
	if rep.SetNumber <= 0 || rep.RepNumber <= 0 {
		return nil, backend.NewValidationError("set and rep numbers must be positive")
	}
	if rep.MeanVelocity <= 0 {
		return nil, backend.NewValidationError("mean velocity must be positive, got %.3f", rep.MeanVelocity)
	}
	if rep.LoadKg < 0 {
		return nil, backend.NewValidationError("load must not be negative, got %.1f", rep.LoadKg)
	}

	var added RepRecord
	if err := r.api.Insert(ctx, repsTable, rep, &added); err != nil {
		return nil, err
	}
	return &added, nil
}

// Reps returns a session's reps in execution order.
func (r *Repo) Reps(ctx context.Context, sessionID string) (_ []RepRecord, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.vbt.reps")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("session_id", sessionID))

	var reps []RepRecord
	err = r.api.Select(ctx, repsTable, backend.SelectParams{
		Filters: []backend.Filter{backend.Eq("session_id", sessionID)},
		Order:   &backend.Order{Column: "created_at", Desc: false},
	}, &reps)
	if err != nil {
		return nil, err
	}
	return reps, nil
}

// SessionsForClient returns the client's finished and running sessions
// for one exercise, newest first.
func (r *Repo) SessionsForClient(ctx context.Context, clientID, exercise string) (_ []Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.vbt.sessionsForClient")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("client_id", clientID))

	var sessions []Session
	err = r.api.Select(ctx, sessionsTable, backend.SelectParams{
		Filters: []backend.Filter{
			backend.Eq("client_id", clientID),
			backend.Eq("exercise", exercise),
		},
		Order: &backend.Order{Column: "started_at", Desc: true},
	}, &sessions)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// RepsForClient returns every rep the client has logged for one exercise,
// across all sessions. Feeds the load-velocity profile.
func (r *Repo) RepsForClient(ctx context.Context, clientID, exercise string) (_ []RepRecord, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.vbt.repsForClient")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("client_id", clientID))

	sessions, err := r.SessionsForClient(ctx, clientID, exercise)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	sessionIDs := make([]string, 0, len(sessions))
	for _, session := range sessions {
		sessionIDs = append(sessionIDs, session.ID)
	}

	var reps []RepRecord
	err = r.api.Select(ctx, repsTable, backend.SelectParams{
		Filters: []backend.Filter{backend.In("session_id", sessionIDs...)},
		Order:   &backend.Order{Column: "created_at", Desc: false},
	}, &reps)
	if err != nil {
		return nil, err
	}
	return reps, nil
}
