package community

import "time"

// Post is one entry in the community feed as the current viewer sees it:
// IsLiked and LikeCount are viewer-relative, computed server-side, and
// mutated optimistically on this client between tap and confirmation.
type Post struct {
	ID              string    `json:"id"`
	AuthorID        string    `json:"author_id"`
	AuthorName      string    `json:"author_name"`
	Body            string    `json:"body"`
	ImageURL        string    `json:"image_url,omitempty"`
	LikeCount       int       `json:"like_count"`
	IsLiked         bool      `json:"is_liked"`
	CommentCount    int       `json:"comment_count"`
	PreviewComments []Comment `json:"preview_comments,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type Comment struct {
	ID         string    `json:"id"`
	PostID     string    `json:"post_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}
