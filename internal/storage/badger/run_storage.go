package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/autobond/internal/interfaces"
	"github.com/ternarybob/autobond/internal/models"
)

// RunStorage implements interfaces.RunStorage for Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RunStorage) Save(ctx context.Context, record *models.RunRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.RunID == "" {
		return fmt.Errorf("run ID is required")
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}
	return nil
}

func (s *RunStorage) List(ctx context.Context, limit int) ([]models.RunRecord, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("FinishedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []models.RunRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list run records: %w", err)
	}
	return records, nil
}

func (s *RunStorage) ListByRun(ctx context.Context, runID string) ([]models.RunRecord, error) {
	var records []models.RunRecord
	query := badgerhold.Where("RunID").Eq(runID).SortBy("StartedAt")
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list records of run %s: %w", runID, err)
	}
	return records, nil
}

func (s *RunStorage) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	query := badgerhold.Where("FinishedAt").Lt(cutoff)

	var stale []models.RunRecord
	if err := s.db.Store().Find(&stale, query); err != nil {
		return 0, fmt.Errorf("failed to find stale run records: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if err := s.db.Store().DeleteMatching(&models.RunRecord{}, badgerhold.Where("FinishedAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to prune run records: %w", err)
	}

	s.logger.Debug().Int("deleted", len(stale)).Str("cutoff", cutoff.Format(time.RFC3339)).Msg("Pruned run history")
	return len(stale), nil
}

func (s *RunStorage) Close() error {
	return s.db.Close()
}
