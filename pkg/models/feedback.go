package models

import "time"

// Feedback is a user rating for a finished session. Multiple submissions
// are kept; reads return the most recent.
type Feedback struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
