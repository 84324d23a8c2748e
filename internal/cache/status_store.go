package cache

import (
	"context"

	"drivebridge/internal/models"
)

// StatusStore persists index session status.
type StatusStore interface {
	SetStatus(ctx context.Context, status models.IndexStatus) error
	GetStatus(ctx context.Context, sessionID string) (models.IndexStatus, bool, error)
}
