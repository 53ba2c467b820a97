package store

import (
	"database/sql"
	"time"
)

// SetImportedFileHash records the checksum of an uploaded definition file.
func (s *Store) SetImportedFileHash(filename, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (filename, sha256, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT(filename) DO UPDATE SET sha256 = excluded.sha256, imported_at = excluded.imported_at`,
		filename, hash, time.Now(),
	)
	return err
}

// GetImportedFileHash returns the stored checksum for filename.
// Returns empty string and nil error if the file was never imported.
func (s *Store) GetImportedFileHash(filename string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT sha256 FROM imported_files WHERE filename = ?`, filename).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}
