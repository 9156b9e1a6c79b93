// Package storage persists the completion archive: a durable record of every
// download that reached a terminal state, surviving scheduler restarts.
package storage

import "time"

// ArchivedDownload is the durable form of a finished download.
type ArchivedDownload struct {
	DownloadID  uint64
	Remote      string
	Local       string
	Size        int64
	Priority    string
	State       string
	CompletedAt time.Time
}

// ArchiveReadRepository reads finished downloads back out of the archive.
type ArchiveReadRepository interface {
	GetArchived() ([]ArchivedDownload, error)
	GetArchivedByState(state string) ([]ArchivedDownload, error)
}

// ArchiveWriteRepository records and prunes finished downloads.
type ArchiveWriteRepository interface {
	Archive(d ArchivedDownload) error
	DeleteArchived(downloadID uint64) error
}
