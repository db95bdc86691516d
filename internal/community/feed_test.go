package community_test

import (
	"context"
	"testing"
	"time"

	"github.com/velofit/velofit/internal/backend"
	"github.com/velofit/velofit/internal/community"
	"github.com/velofit/velofit/internal/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testPosts() []community.Post {
	return []community.Post{
		{ID: "p1", AuthorName: "Ana", Body: "new squat PR", LikeCount: 5, CommentCount: 1},
		{ID: "p2", AuthorName: "Luka", Body: "deload week", LikeCount: 0, IsLiked: false},
	}
}

func currentPosts(t *testing.T, feed *community.Feed) []community.Post {
	t.Helper()
	posts, ok := feed.State().Get()
	require.True(t, ok, "feed state not loaded")
	return posts
}

func loadedFeed(t *testing.T, repoMock *MockFeedRepo) *community.Feed {
	t.Helper()
	feed := community.NewFeed(repoMock, metrics.NewTestManager())
	t.Cleanup(feed.Close)

	repoMock.EXPECT().
		Feed(gomock.Any(), 0, gomock.Any()).
		Return(testPosts(), nil)
	require.NoError(t, feed.Load(context.Background()))
	return feed
}

func TestFeed_LoadAndLoadMore(t *testing.T) {
	ctrl := gomock.NewController(t)
	repoMock := NewMockFeedRepo(ctrl)
	feed := loadedFeed(t, repoMock)

	assert.Len(t, currentPosts(t, feed), 2)

	repoMock.EXPECT().
		Feed(gomock.Any(), 1, gomock.Any()).
		Return([]community.Post{{ID: "p3", Body: "rest day thoughts"}}, nil)
	require.NoError(t, feed.LoadMore(context.Background()))

	posts := currentPosts(t, feed)
	require.Len(t, posts, 3)
	assert.Equal(t, "p3", posts[2].ID)
}

func TestFeed_ToggleLike_Optimistic(t *testing.T) {
	ctrl := gomock.NewController(t)
	repoMock := NewMockFeedRepo(ctrl)
	feed := loadedFeed(t, repoMock)

	repoMock.EXPECT().
		ToggleLike(gomock.Any(), "p1", true).
		Return(nil)

	require.NoError(t, feed.ToggleLike(context.Background(), "p1"))

	posts := currentPosts(t, feed)
	assert.True(t, posts[0].IsLiked)
	assert.Equal(t, 6, posts[0].LikeCount)

	// second tap now unlikes
	repoMock.EXPECT().
		ToggleLike(gomock.Any(), "p1", false).
		Return(nil)
	require.NoError(t, feed.ToggleLike(context.Background(), "p1"))

	posts = currentPosts(t, feed)
	assert.False(t, posts[0].IsLiked)
	assert.Equal(t, 5, posts[0].LikeCount)
}

func TestFeed_ToggleLike_RollbackOnFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	repoMock := NewMockFeedRepo(ctrl)

	metricsManager := metrics.NewTestManager()
	feed := community.NewFeed(repoMock, metricsManager)
	t.Cleanup(feed.Close)

	repoMock.EXPECT().
		Feed(gomock.Any(), 0, gomock.Any()).
		Return(testPosts(), nil)
	require.NoError(t, feed.Load(context.Background()))

	repoMock.EXPECT().
		ToggleLike(gomock.Any(), "p1", true).
		Return(&backend.RemoteError{Operation: "rpc toggle_post_like", Message: "boom"})

	err := feed.ToggleLike(context.Background(), "p1")
	require.Error(t, err)

	// optimistic flip reverted, no retry
	posts := currentPosts(t, feed)
	assert.False(t, posts[0].IsLiked)
	assert.Equal(t, 5, posts[0].LikeCount)
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterOptimisticRollbacks))
}

func TestFeed_ToggleLike_SecondTapWhilePendingIsNoOp(t *testing.T) {
	ctrl := gomock.NewController(t)
	repoMock := NewMockFeedRepo(ctrl)
	feed := loadedFeed(t, repoMock)

	started := make(chan struct{})
	release := make(chan struct{})
	repoMock.EXPECT().
		ToggleLike(gomock.Any(), "p1", true).
		DoAndReturn(func(ctx context.Context, postID string, like bool) error {
			close(started)
			<-release
			return nil
		}).
		Times(1)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- feed.ToggleLike(context.Background(), "p1")
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first toggle never reached the repo")
	}

	// in-flight: this tap must be ignored, no second repo call
	require.NoError(t, feed.ToggleLike(context.Background(), "p1"))

	close(release)
	require.NoError(t, <-firstDone)

	posts := currentPosts(t, feed)
	assert.True(t, posts[0].IsLiked)
	assert.Equal(t, 6, posts[0].LikeCount)
}

func TestFeed_ToggleLike_UnlikeNeverGoesNegative(t *testing.T) {
	ctrl := gomock.NewController(t)
	repoMock := NewMockFeedRepo(ctrl)

	feed := community.NewFeed(repoMock, metrics.NewTestManager())
	t.Cleanup(feed.Close)

	// inconsistent server data: liked but zero count
	repoMock.EXPECT().
		Feed(gomock.Any(), 0, gomock.Any()).
		Return([]community.Post{{ID: "p1", IsLiked: true, LikeCount: 0}}, nil)
	require.NoError(t, feed.Load(context.Background()))

	repoMock.EXPECT().
		ToggleLike(gomock.Any(), "p1", false).
		Return(nil)
	require.NoError(t, feed.ToggleLike(context.Background(), "p1"))

	posts := currentPosts(t, feed)
	assert.False(t, posts[0].IsLiked)
	assert.Equal(t, 0, posts[0].LikeCount)
}

func TestFeed_AddComment_ReplacesPlaceholder(t *testing.T) {
	ctrl := gomock.NewController(t)
	repoMock := NewMockFeedRepo(ctrl)
	feed := loadedFeed(t, repoMock)

	stored := &community.Comment{ID: "srv-1", PostID: "p1", AuthorID: "u1", Body: "strong work"}
	repoMock.EXPECT().
		AddComment(gomock.Any(), "p1", "u1", "strong work").
		Return(stored, nil)

	require.NoError(t, feed.AddComment(context.Background(), "p1", "u1", "Coach", "strong work"))

	posts := currentPosts(t, feed)
	assert.Equal(t, 2, posts[0].CommentCount)
	require.NotEmpty(t, posts[0].PreviewComments)
	assert.Equal(t, "srv-1", posts[0].PreviewComments[0].ID)
}

func TestFeed_AddComment_RollbackOnFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	repoMock := NewMockFeedRepo(ctrl)
	feed := loadedFeed(t, repoMock)

	repoMock.EXPECT().
		AddComment(gomock.Any(), "p1", "u1", "nice").
		Return(nil, &backend.RemoteError{Operation: "upsert post_comments", Message: "boom"})

	err := feed.AddComment(context.Background(), "p1", "u1", "Coach", "nice")
	require.Error(t, err)

	posts := currentPosts(t, feed)
	assert.Equal(t, 1, posts[0].CommentCount)
	assert.Empty(t, posts[0].PreviewComments)
}

func TestFeed_AddComment_RollbackRestoresEvictedPreview(t *testing.T) {
	ctrl := gomock.NewController(t)
	repoMock := NewMockFeedRepo(ctrl)

	feed := community.NewFeed(repoMock, metrics.NewTestManager())
	t.Cleanup(feed.Close)

	// preview already full: the optimistic comment will evict "c3"
	fullPreview := []community.Comment{
		{ID: "c1", PostID: "p1", Body: "first"},
		{ID: "c2", PostID: "p1", Body: "second"},
		{ID: "c3", PostID: "p1", Body: "third"},
	}
	repoMock.EXPECT().
		Feed(gomock.Any(), 0, gomock.Any()).
		Return([]community.Post{{ID: "p1", CommentCount: 3, PreviewComments: fullPreview}}, nil)
	require.NoError(t, feed.Load(context.Background()))

	repoMock.EXPECT().
		AddComment(gomock.Any(), "p1", "u1", "nice").
		Return(nil, &backend.RemoteError{Operation: "upsert post_comments", Message: "boom"})

	err := feed.AddComment(context.Background(), "p1", "u1", "Coach", "nice")
	require.Error(t, err)

	// the evicted comment is back, the preview matches the pre-tap state
	posts := currentPosts(t, feed)
	assert.Equal(t, 3, posts[0].CommentCount)
	assert.Equal(t, fullPreview, posts[0].PreviewComments)
}
