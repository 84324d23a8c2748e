package models

import "time"

// IndexFailure is the payload written to the DLQ topic when a crawl aborts.
type IndexFailure struct {
	SessionID string    `json:"session_id"`
	ShareCode string    `json:"share_code"`
	RootID    string    `json:"root_id"`
	Error     string    `json:"error"`
	FailedAt  time.Time `json:"failed_at"`
}
