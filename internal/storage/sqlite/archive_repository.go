package sqlite

import (
	"database/sql"
	"time"

	"github.com/italolelis/download_scheduler/internal/storage"
)

// ArchiveRepository persists finished downloads in SQLite.
type ArchiveRepository struct {
	db *sql.DB
}

func NewArchiveRepository(dbConn *sql.DB) *ArchiveRepository {
	return &ArchiveRepository{db: dbConn}
}

// Archive upserts a finished download keyed by its id.
func (r *ArchiveRepository) Archive(d storage.ArchivedDownload) error {
	_, err := r.db.Exec(`
		INSERT INTO archived_downloads (download_id, remote, local, size, priority, state, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(download_id) DO UPDATE SET
			state = excluded.state,
			completed_at = excluded.completed_at
	`, d.DownloadID, d.Remote, d.Local, d.Size, d.Priority, d.State, d.CompletedAt.Format(time.RFC3339))

	return err
}

// DeleteArchived removes a download from the archive.
func (r *ArchiveRepository) DeleteArchived(downloadID uint64) error {
	_, err := r.db.Exec(`DELETE FROM archived_downloads WHERE download_id = ?`, downloadID)

	return err
}

// GetArchived returns every archived download, oldest first.
func (r *ArchiveRepository) GetArchived() ([]storage.ArchivedDownload, error) {
	return r.query(`SELECT download_id, remote, local, size, priority, state, completed_at
		FROM archived_downloads ORDER BY download_id`)
}

// GetArchivedByState returns archived downloads in the given terminal state.
func (r *ArchiveRepository) GetArchivedByState(state string) ([]storage.ArchivedDownload, error) {
	return r.query(`SELECT download_id, remote, local, size, priority, state, completed_at
		FROM archived_downloads WHERE state = ? ORDER BY download_id`, state)
}

func (r *ArchiveRepository) query(q string, args ...any) ([]storage.ArchivedDownload, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var downloads []storage.ArchivedDownload

	for rows.Next() {
		var record storage.ArchivedDownload

		var completedAt sql.NullString

		if err := rows.Scan(&record.DownloadID, &record.Remote, &record.Local,
			&record.Size, &record.Priority, &record.State, &completedAt); err != nil {
			return nil, err
		}

		if completedAt.Valid {
			if ts, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
				record.CompletedAt = ts
			}
		}

		downloads = append(downloads, record)
	}

	return downloads, rows.Err()
}
