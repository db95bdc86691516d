// Package formcheck handles technique review: a client uploads a lift
// video, the coach reviews it and leaves notes.
package formcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/velofit/velofit/internal/backend"
	"github.com/velofit/velofit/internal/telemetry/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const table = "form_checks"

type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusReviewed  Status = "reviewed"
)

type Submission struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	CoachID   string    `json:"coach_id"`
	Exercise  string    `json:"exercise"`
	VideoURL  string    `json:"video_url"`
	Status    Status    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Repo struct {
	api          *backend.Client
	storage      *backend.Storage
	videosBucket string
}

func NewRepo(api *backend.Client, storage *backend.Storage, videosBucket string) *Repo {
	return &Repo{api: api, storage: storage, videosBucket: videosBucket}
}

// Submit uploads the video and creates the review row pointing at it. The
// object path carries a fresh uuid, so resubmitting the same lift never
// overwrites an earlier video.
func (r *Repo) Submit(ctx context.Context, clientID, coachID, exercise, contentType string, video []byte) (_ *Submission, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.formcheck.submit")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("client_id", clientID))
	span.SetAttributes(attribute.Int("video_size", len(video)))

	if exercise == "" {
		return nil, backend.NewValidationError("form check needs an exercise name")
	}

	path := fmt.Sprintf("%s/%s", clientID, uuid.NewString())
	videoURL, err := r.storage.Upload(ctx, r.videosBucket, path, contentType, video, false)
	if err != nil {
		return nil, err
	}

	var submitted Submission
	err = r.api.Insert(ctx, table, Submission{
		ClientID: clientID,
		CoachID:  coachID,
		Exercise: exercise,
		VideoURL: videoURL,
		Status:   StatusSubmitted,
	}, &submitted)
	if err != nil {
		return nil, err
	}
	return &submitted, nil
}

// ListPending returns the coach's unreviewed submissions, oldest first,
// so the queue is worked in arrival order.
func (r *Repo) ListPending(ctx context.Context, coachID string) (_ []Submission, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.formcheck.listPending")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("coach_id", coachID))

	var submissions []Submission
	err = r.api.Select(ctx, table, backend.SelectParams{
		Filters: []backend.Filter{
			backend.Eq("coach_id", coachID),
			backend.Eq("status", string(StatusSubmitted)),
		},
		Order: &backend.Order{Column: "created_at", Desc: false},
	}, &submissions)
	if err != nil {
		return nil, err
	}
	return submissions, nil
}

// Review closes a submission with the coach's notes.
func (r *Repo) Review(ctx context.Context, submissionID, notes string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.formcheck.review")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("submission_id", submissionID))

	if notes == "" {
		return backend.NewValidationError("review notes must not be empty")
	}

	return r.api.Update(
		ctx, table,
		[]backend.Filter{backend.Eq("id", submissionID)},
		map[string]string{
			"status": string(StatusReviewed),
			"notes":  notes,
		},
		nil,
	)
}
