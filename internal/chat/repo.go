// Package chat is the coach-client messaging layer: conversations,
// paginated history and unread counts. Live delivery arrives through the
// realtime subscription on the messages table; this repo covers the
// request/response side.
package chat

import (
	"context"
	"strconv"
	"time"

	"github.com/velofit/velofit/internal/backend"
	"github.com/velofit/velofit/internal/telemetry/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	conversationsTable = "conversations"
	messagesTable      = "messages"

	DefaultPageSize = 50
)

type Conversation struct {
	ID            string    `json:"id"`
	CoachID       string    `json:"coach_id"`
	ClientID      string    `json:"client_id"`
	LastMessageAt time.Time `json:"last_message_at"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	RecipientID    string    `json:"recipient_id"`
	Body           string    `json:"body"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

type Repo struct {
	api *backend.Client
}

func NewRepo(api *backend.Client) *Repo {
	return &Repo{api: api}
}

// ListConversations returns the coach's conversations, most recently
// active first.
func (r *Repo) ListConversations(ctx context.Context, coachID string) (_ []Conversation, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.chat.listConversations")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("coach_id", coachID))

	var conversations []Conversation
	err = r.api.Select(ctx, conversationsTable, backend.SelectParams{
		Filters: []backend.Filter{backend.Eq("coach_id", coachID)},
		Order:   &backend.Order{Column: "last_message_at", Desc: true},
	}, &conversations)
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

// Messages returns one page of a conversation's history, most recent
// first. Page numbering starts at zero.
func (r *Repo) Messages(ctx context.Context, conversationID string, page, pageSize int) (_ []Message, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.chat.messages")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("conversation_id", conversationID))
	span.SetAttributes(attribute.Int("page", page))

	if page < 0 {
		return nil, backend.NewValidationError("page must not be negative, got %d", page)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var messages []Message
	err = r.api.Select(ctx, messagesTable, backend.SelectParams{
		Filters: []backend.Filter{backend.Eq("conversation_id", conversationID)},
		Order:   &backend.Order{Column: "created_at", Desc: true},
		Limit:   pageSize,
		Offset:  page * pageSize,
	}, &messages)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Send inserts a message with a client-generated id, so a retried send
// after a timeout upserts the same row instead of duplicating it.
func (r *Repo) Send(ctx context.Context, conversationID, senderID, recipientID, body string) (_ *Message, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.chat.send")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("conversation_id", conversationID))

	if body == "" {
		return nil, backend.NewValidationError("message body must not be empty")
	}

	message := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		RecipientID:    recipientID,
		Body:           body,
	}

	var sent Message
	if err := r.api.Upsert(ctx, messagesTable, message, &sent); err != nil {
		return nil, err
	}
	return &sent, nil
}

// MarkRead flags every unread message in the conversation that was not
// sent by the reader.
func (r *Repo) MarkRead(ctx context.Context, conversationID, readerID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.chat.markRead")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("conversation_id", conversationID))

	return r.api.Update(ctx, messagesTable, []backend.Filter{
		backend.Eq("conversation_id", conversationID),
		backend.Neq("sender_id", readerID),
		backend.Eq("read", "false"),
	}, map[string]bool{"read": true}, nil)
}

// UnreadCount counts unread messages addressed to the user across all
// conversations. Count-only query; no rows cross the wire.
func (r *Repo) UnreadCount(ctx context.Context, userID string) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.chat.unreadCount")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user_id", userID))

	count, err := r.api.Count(ctx, messagesTable, []backend.Filter{
		backend.Eq("recipient_id", userID),
		backend.Eq("read", "false"),
	})
	if err != nil {
		return -1, err
	}
	span.SetAttributes(attribute.String("count", strconv.Itoa(count)))
	return count, nil
}
