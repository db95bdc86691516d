// Package connections handles coach-client connection requests: the
// request list, the atomic accept/decline call and a realtime listener
// that keeps the pending list fresh without polling.
package connections

import (
	"context"
	"time"

	"github.com/velofit/velofit/internal/backend"
	"github.com/velofit/velofit/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

const table = "connection_requests"

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
)

type ConnectionRequest struct {
	ID            string     `json:"id"`
	RequesterID   string     `json:"requester_id"`
	RequesterName string     `json:"requester_name"`
	RecipientID   string     `json:"recipient_id"`
	Status        Status     `json:"status"`
	RequestedAt   time.Time  `json:"requested_at"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
}

type Repo struct {
	api *backend.Client
}

func NewRepo(api *backend.Client) *Repo {
	return &Repo{api: api}
}

// ListForUser returns every connection request addressed to the user,
// newest first, regardless of status.
func (r *Repo) ListForUser(ctx context.Context, userID string) (_ []ConnectionRequest, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.connections.listForUser")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user_id", userID))

	var requests []ConnectionRequest
	err = r.api.Select(ctx, table, backend.SelectParams{
		Filters: []backend.Filter{backend.Eq("recipient_id", userID)},
		Order:   &backend.Order{Column: "requested_at", Desc: true},
	}, &requests)
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// Respond accepts or declines a request through a single remote
// procedure. The transition and its side effects (creating the client
// association on accept) run atomically server-side; the client only
// reflects the returned record and never computes the new status from a
// read-modify-write, so two devices answering the same request cannot
// lose an update.
func (r *Repo) Respond(ctx context.Context, requestID string, accept bool) (_ *ConnectionRequest, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.connections.respond")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("request_id", requestID))
	span.SetAttributes(attribute.Bool("accept", accept))

	if requestID == "" {
		return nil, backend.NewValidationError("request id must not be empty")
	}

	var responded ConnectionRequest
	err = r.api.Rpc(ctx, "respond_to_connection", map[string]any{
		"request_id": requestID,
		"accept":     accept,
	}, &responded)
	if err != nil {
		return nil, err
	}
	return &responded, nil
}

// Pending filters requests down to the ones still awaiting an answer.
func Pending(requests []ConnectionRequest) []ConnectionRequest {
	pending := requests[:0:0]
	for _, request := range requests {
		if request.Status == StatusPending {
			pending = append(pending, request)
		}
	}
	return pending
}
