package community

import "sync"

type toggleDirection int

const (
	directionLiking toggleDirection = iota
	directionUnliking
)

func (d toggleDirection) String() string {
	if d == directionLiking {
		return "liking"
	}
	return "unliking"
}

// likeToggle tracks which posts have a like request in flight. A post is
// either idle or pending in one direction; a second tap while pending is
// ignored, so at most one toggle request per post is on the wire. Purely
// per-post: no ordering is enforced across different posts, and a failed
// toggle is not retried.
type likeToggle struct {
	mu      sync.Mutex
	pending map[string]toggleDirection
}

func newLikeToggle() *likeToggle {
	return &likeToggle{pending: make(map[string]toggleDirection)}
}

// begin moves the post from idle to pending. Returns false when the post
// is already pending, in which case the caller must not start a request.
func (l *likeToggle) begin(postID string, direction toggleDirection) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, inFlight := l.pending[postID]; inFlight {
		return false
	}
	l.pending[postID] = direction
	return true
}

// end returns the post to idle, regardless of request outcome.
func (l *likeToggle) end(postID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, postID)
}
