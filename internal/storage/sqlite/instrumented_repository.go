package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/download_scheduler/internal/storage"
	"github.com/italolelis/download_scheduler/internal/telemetry"
)

// InstrumentedArchiveRepository wraps ArchiveRepository with telemetry.
type InstrumentedArchiveRepository struct {
	repo      *ArchiveRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedArchiveRepository creates a new instrumented archive repository.
func NewInstrumentedArchiveRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedArchiveRepository {
	return &InstrumentedArchiveRepository{
		repo:      NewArchiveRepository(dbConn),
		telemetry: tel,
	}
}

// Archive records a finished download with telemetry.
func (r *InstrumentedArchiveRepository) Archive(d storage.ArchivedDownload) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "archive", func(ctx context.Context) error {
		return r.repo.Archive(d)
	})
}

// DeleteArchived purges a download from the archive with telemetry.
func (r *InstrumentedArchiveRepository) DeleteArchived(downloadID uint64) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "delete_archived", func(ctx context.Context) error {
		return r.repo.DeleteArchived(downloadID)
	})
}

// GetArchived retrieves all archived downloads with telemetry.
func (r *InstrumentedArchiveRepository) GetArchived() ([]storage.ArchivedDownload, error) {
	var result []storage.ArchivedDownload

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "get_archived", func(ctx context.Context) error {
		result, err = r.repo.GetArchived()

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// GetArchivedByState retrieves archived downloads by state with telemetry.
func (r *InstrumentedArchiveRepository) GetArchivedByState(state string) ([]storage.ArchivedDownload, error) {
	var result []storage.ArchivedDownload

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "get_archived_by_state", func(ctx context.Context) error {
		result, err = r.repo.GetArchivedByState(state)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}
