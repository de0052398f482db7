package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/autobond/internal/models"
)

// RunStorage persists per-user outcomes of batch runs
type RunStorage interface {
	Save(ctx context.Context, record *models.RunRecord) error
	// List returns the most recent records first
	List(ctx context.Context, limit int) ([]models.RunRecord, error)
	ListByRun(ctx context.Context, runID string) ([]models.RunRecord, error)
	// Prune deletes records finished before cutoff and returns how many were removed
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}
