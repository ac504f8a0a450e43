package repository

import (
	"database/sql"
	"fmt"

	"github.com/nivlheim/nivlheim/internal/models"
)

// FileRepository handles the files table. The write methods take the
// per-archive transaction so that one archive is ingested all-or-nothing.
type FileRepository struct {
	db *sql.DB
}

// NewFileRepository creates a new file repository
func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

// LatestCRC returns the crc32 of the most recently received version of a
// file, or ErrNotFound if the file has never been seen for this host.
func (r *FileRepository) LatestCRC(tx *sql.Tx, certfp, filename string) (int32, error) {
	var crc sql.NullInt64

	err := tx.QueryRow(`
		SELECT crc32 FROM files
		WHERE certfp = ? AND filename = ?
		ORDER BY received DESC, fileid DESC
		LIMIT 1
	`, certfp, filename).Scan(&crc)

	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get latest crc: %w", err)
	}
	if !crc.Valid {
		return 0, ErrNotFound
	}

	return int32(crc.Int64), nil
}

// MarkAllNonCurrent clears the current flag on every files row for a
// host. Issued once per archive before the first insert; the inserts in
// the same transaction then own the current flag.
func (r *FileRepository) MarkAllNonCurrent(tx *sql.Tx, certfp string) error {
	if _, err := tx.Exec(`UPDATE files SET current = 0 WHERE certfp = ? AND current`, certfp); err != nil {
		return fmt.Errorf("failed to mark files non-current: %w", err)
	}
	return nil
}

// Insert stores a new file version with current=1. The originalcertid
// column is resolved from the certificates table at insert time, so the
// row keeps pointing at the certificate that submitted it even after the
// certfp is rewritten by a renewal.
func (r *FileRepository) Insert(tx *sql.Tx, rec *models.FileRecord) error {
	isCommand := 0
	if rec.IsCommand {
		isCommand = 1
	}

	result, err := tx.Exec(`
		INSERT INTO files (certfp, filename, received, mtime, content, crc32,
			is_command, clientversion, ipaddr, os_hostname, certcn, originalcertid, current)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			(SELECT certid FROM certificates WHERE fingerprint = ?), 1)
	`, rec.CertFP, rec.Filename, rec.Received, rec.MTime, rec.Content, int64(rec.CRC32),
		isCommand, rec.ClientVersion, rec.IPAddr, rec.OSHostname, rec.CertCN, rec.CertFP)
	if err != nil {
		return fmt.Errorf("failed to insert file record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rec.FileID = id
	rec.Current = true
	return nil
}

// CountCurrent returns the number of current rows for a (certfp, filename)
// pair. Used by consistency checks and tests.
func (r *FileRepository) CountCurrent(certfp, filename string) (int, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM files
		WHERE certfp = ? AND filename = ? AND current
	`, certfp, filename).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count current files: %w", err)
	}
	return n, nil
}
