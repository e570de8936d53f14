package conversation

import "time"

// Session captures a transient anonymous tutoring conversation.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
