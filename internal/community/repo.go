// Package community is the social feed: posts, likes and comments shared
// between coaches on the platform.
package community

import (
	"context"

	"github.com/velofit/velofit/internal/backend"
	"github.com/velofit/velofit/internal/telemetry/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	feedTable     = "feed_posts"
	commentsTable = "post_comments"
)

var _ FeedRepo = (*Repo)(nil)

type Repo struct {
	api *backend.Client
}

func NewRepo(api *backend.Client) *Repo {
	return &Repo{api: api}
}

// Feed reads one page of the feed, newest first. The feed_posts view
// already carries the viewer-relative like state and preview comments.
func (r *Repo) Feed(ctx context.Context, page, pageSize int) (_ []Post, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.community.feed")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("page", page))

	if page < 0 {
		return nil, backend.NewValidationError("page must not be negative, got %d", page)
	}

	var posts []Post
	err = r.api.Select(ctx, feedTable, backend.SelectParams{
		Order:  &backend.Order{Column: "created_at", Desc: true},
		Limit:  pageSize,
		Offset: page * pageSize,
	}, &posts)
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// ToggleLike flips the viewer's like on a post through an atomic remote
// procedure. The server owns the transition; two devices toggling the
// same post concurrently cannot lose an update here.
func (r *Repo) ToggleLike(ctx context.Context, postID string, like bool) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.community.toggleLike")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("post_id", postID))
	span.SetAttributes(attribute.Bool("like", like))

	return r.api.Rpc(ctx, "toggle_post_like", map[string]any{
		"post_id": postID,
		"like":    like,
	}, nil)
}

// AddComment inserts a comment with a client-generated id so a retried
// insert cannot duplicate it.
func (r *Repo) AddComment(ctx context.Context, postID, authorID, body string) (_ *Comment, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.community.addComment")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("post_id", postID))

	if body == "" {
		return nil, backend.NewValidationError("comment body must not be empty")
	}

	comment := Comment{
		ID:       uuid.NewString(),
		PostID:   postID,
		AuthorID: authorID,
		Body:     body,
	}

	var added Comment
	if err := r.api.Upsert(ctx, commentsTable, comment, &added); err != nil {
		return nil, err
	}
	return &added, nil
}
