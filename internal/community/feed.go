package community

import (
	"context"
	"sync"

	"github.com/velofit/velofit/internal/statestream"
	"github.com/velofit/velofit/internal/telemetry/metrics"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=feed_mocks_test.go -package=community_test

type FeedRepo interface {
	Feed(ctx context.Context, page, pageSize int) ([]Post, error)
	ToggleLike(ctx context.Context, postID string, like bool) error
	AddComment(ctx context.Context, postID, authorID, body string) (*Comment, error)
}

const (
	defaultPageSize      = 20
	previewCommentsLimit = 3
)

// Feed is the feed screen's view-model. It owns the displayed post list,
// applies like taps and new comments optimistically, and reconciles with
// the backend outcome: success keeps the optimistic state, failure rolls
// it back.
type Feed struct {
	repo           FeedRepo
	metricsManager *metrics.Manager
	state          *statestream.Value[[]Post]
	toggles        *likeToggle

	mu       sync.Mutex
	nextPage int
	pageSize int
}

func NewFeed(repo FeedRepo, metricsManager *metrics.Manager) *Feed {
	return &Feed{
		repo:           repo,
		metricsManager: metricsManager,
		state:          statestream.NewValue[[]Post](),
		toggles:        newLikeToggle(),
		pageSize:       defaultPageSize,
	}
}

// State streams the displayed post list; subscribe via State().Subscribe.
func (f *Feed) State() *statestream.Value[[]Post] {
	return f.state
}

// Load replaces the feed with its first page.
func (f *Feed) Load(ctx context.Context) error {
	f.mu.Lock()
	pageSize := f.pageSize
	f.mu.Unlock()

	posts, err := f.repo.Feed(ctx, 0, pageSize)
	if err != nil {
		return err
	}

	f.state.Set(posts)
	f.mu.Lock()
	f.nextPage = 1
	f.mu.Unlock()
	return nil
}

// LoadMore appends the next page to the current feed.
func (f *Feed) LoadMore(ctx context.Context) error {
	f.mu.Lock()
	page := f.nextPage
	pageSize := f.pageSize
	f.mu.Unlock()

	posts, err := f.repo.Feed(ctx, page, pageSize)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		return nil
	}

	f.state.Update(func(current []Post) []Post {
		return append(current, posts...)
	})
	f.mu.Lock()
	f.nextPage = page + 1
	f.mu.Unlock()
	return nil
}

// ToggleLike handles a like tap on a post. The local state flips before
// the network call; while the call is in flight further taps on the same
// post are ignored. On failure the flip is reverted and the user has to
// tap again, there is no automatic retry.
func (f *Feed) ToggleLike(ctx context.Context, postID string) error {
	post, found := f.findPost(postID)
	if !found {
		log.Warnf("like tap on unknown post: %s", postID)
		return nil
	}

	direction := directionLiking
	if post.IsLiked {
		direction = directionUnliking
	}

	if !f.toggles.begin(postID, direction) {
		log.Tracef("like tap ignored, toggle already in flight: %s", postID)
		return nil
	}
	defer f.toggles.end(postID)

	f.patchPost(postID, func(p *Post) {
		applyLike(p, direction == directionLiking)
	})

	if err := f.repo.ToggleLike(ctx, postID, direction == directionLiking); err != nil {
		f.patchPost(postID, func(p *Post) {
			applyLike(p, direction != directionLiking)
		})
		f.metricsManager.CounterOptimisticRollbacks.Inc()
		log.Errorf("toggle like [%s, %s]: %s", postID, direction, err)
		return err
	}
	return nil
}

// AddComment shows the comment immediately and reconciles with the stored
// row once the insert returns. On failure the optimistic comment is
// removed again.
func (f *Feed) AddComment(ctx context.Context, postID, authorID, authorName, body string) error {
	post, found := f.findPost(postID)
	if !found {
		log.Warnf("comment on unknown post: %s", postID)
		return nil
	}

	// kept aside for the rollback: prepending the optimistic comment may
	// evict the oldest preview comment, which removal alone cannot undo
	priorPreview := append([]Comment(nil), post.PreviewComments...)

	// placeholder id, replaced by the stored row's id on success
	optimistic := Comment{
		ID:         uuid.NewString(),
		PostID:     postID,
		AuthorID:   authorID,
		AuthorName: authorName,
		Body:       body,
	}
	f.patchPost(postID, func(p *Post) {
		p.CommentCount++
		p.PreviewComments = prependComment(p.PreviewComments, optimistic)
	})

	added, err := f.repo.AddComment(ctx, postID, authorID, body)
	if err != nil {
		f.patchPost(postID, func(p *Post) {
			if p.CommentCount > 0 {
				p.CommentCount--
			}
			p.PreviewComments = append([]Comment(nil), priorPreview...)
		})
		f.metricsManager.CounterOptimisticRollbacks.Inc()
		log.Errorf("add comment [post %s]: %s", postID, err)
		return err
	}

	// swap the placeholder for the stored row
	f.patchPost(postID, func(p *Post) {
		for i := range p.PreviewComments {
			if p.PreviewComments[i].ID == optimistic.ID {
				p.PreviewComments[i] = *added
				return
			}
		}
	})
	return nil
}

// Close tears the view-model down; subscribers' channels are closed.
func (f *Feed) Close() {
	f.state.Close()
}

func (f *Feed) findPost(postID string) (Post, bool) {
	posts, ok := f.state.Get()
	if !ok {
		return Post{}, false
	}
	for _, post := range posts {
		if post.ID == postID {
			return post, true
		}
	}
	return Post{}, false
}

func (f *Feed) patchPost(postID string, patch func(p *Post)) {
	f.state.Update(func(current []Post) []Post {
		updated := make([]Post, len(current))
		copy(updated, current)
		for i := range updated {
			if updated[i].ID == postID {
				patch(&updated[i])
				break
			}
		}
		return updated
	})
}

// applyLike sets the viewer's like state on a post. The clamp keeps the
// count from going negative when a rollback races with an already-low
// server count.
func applyLike(p *Post, liked bool) {
	p.IsLiked = liked
	if liked {
		p.LikeCount++
		return
	}
	if p.LikeCount > 0 {
		p.LikeCount--
	}
}

func prependComment(comments []Comment, comment Comment) []Comment {
	updated := append([]Comment{comment}, comments...)
	if len(updated) > previewCommentsLimit {
		updated = updated[:previewCommentsLimit]
	}
	return updated
}
