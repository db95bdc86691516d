// Package assistant is the thin client for the server-hosted coaching
// assistant. Prompt handling, model access and safety filtering all live
// behind a remote procedure; this side only keeps the thread history.
package assistant

import (
	"context"
	"time"

	"github.com/velofit/velofit/internal/backend"
	"github.com/velofit/velofit/internal/telemetry/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const messagesTable = "assistant_messages"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Client struct {
	api *backend.Client
}

func NewClient(api *backend.Client) *Client {
	return &Client{api: api}
}

// NewThreadID mints a thread identifier; threads exist implicitly through
// the messages referencing them.
func NewThreadID() string {
	return uuid.NewString()
}

// Ask sends the prompt and returns the assistant's reply. The remote
// procedure persists both messages to the thread before returning.
func (c *Client) Ask(ctx context.Context, threadID, prompt string) (_ *Message, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "assistant.ask")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("thread_id", threadID))

	if prompt == "" {
		return nil, backend.NewValidationError("prompt must not be empty")
	}
	if threadID == "" {
		return nil, backend.NewValidationError("thread id must not be empty")
	}

	var reply Message
	err = c.api.Rpc(ctx, "assistant_reply", map[string]string{
		"thread_id": threadID,
		"prompt":    prompt,
	}, &reply)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// History returns a thread's messages in conversation order.
func (c *Client) History(ctx context.Context, threadID string) (_ []Message, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "assistant.history")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("thread_id", threadID))

	var messages []Message
	err = c.api.Select(ctx, messagesTable, backend.SelectParams{
		Filters: []backend.Filter{backend.Eq("thread_id", threadID)},
		Order:   &backend.Order{Column: "created_at", Desc: false},
	}, &messages)
	if err != nil {
		return nil, err
	}
	return messages, nil
}
