package models

import "time"

// IndexJob represents a unit of work for the share-indexer frontier.
type IndexJob struct {
	SessionID   string    `json:"session_id"`
	ShareCode   string    `json:"share_code"`
	ReceiveCode string    `json:"receive_code"`
	RootID      string    `json:"root_id"`
	CreatedAt   time.Time `json:"created_at"`
}
