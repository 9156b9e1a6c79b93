package sqlite

import (
	"database/sql"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite archive at path and creates the schema if needed.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS archived_downloads (
		download_id INTEGER PRIMARY KEY,
		remote TEXT NOT NULL,
		local TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		priority TEXT NOT NULL DEFAULT 'normal',
		state TEXT NOT NULL,
		completed_at DATETIME
	)`)

	if err != nil {
		return nil, err
	}

	return db, nil
}
