package clients

import "time"

type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Client is one coached athlete, connected to the coach through an
// accepted connection request.
type Client struct {
	ID        string    `json:"id"`
	CoachID   string    `json:"coach_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
