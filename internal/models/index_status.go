package models

import "time"

// IndexStatus tracks the state of an index session.
type IndexStatus struct {
	SessionID string    `json:"session_id"`
	ShareCode string    `json:"share_code"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
