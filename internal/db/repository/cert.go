package repository

import (
	"database/sql"
	"fmt"

	"github.com/nivlheim/nivlheim/internal/models"
)

// CertRepository handles certificate record data access
type CertRepository struct {
	db *sql.DB
}

// NewCertRepository creates a new certificate repository
func NewCertRepository(db *sql.DB) *CertRepository {
	return &CertRepository{db: db}
}

// GetByFingerprint retrieves a certificate by its SHA-1 fingerprint.
// Returns ErrNotFound if no certificate matches.
func (r *CertRepository) GetByFingerprint(fp string) (*models.Certificate, error) {
	query := `
		SELECT certid, issued, fingerprint, commonname, revoked, previous, first, cert
		FROM certificates
		WHERE fingerprint = ?
	`

	cert := &models.Certificate{}
	var revoked int
	var first sql.NullInt64

	err := r.db.QueryRow(query, fp).Scan(
		&cert.CertID,
		&cert.Issued,
		&cert.Fingerprint,
		&cert.CommonName,
		&revoked,
		&cert.Previous,
		&first,
		&cert.CertPEM,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}

	cert.Revoked = revoked != 0
	if first.Valid {
		cert.First = first.Int64
	}

	return cert, nil
}

// InsertIssued stores a freshly issued certificate. For a root enrollment
// (no previous certificate) the first column is backfilled with the new
// certid inside the same transaction, so the chain invariant holds at
// commit time.
func (r *CertRepository) InsertIssued(cert *models.Certificate) (int64, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var first sql.NullInt64
	if cert.Previous.Valid {
		first = sql.NullInt64{Int64: cert.First, Valid: true}
	}

	result, err := tx.Exec(`
		INSERT INTO certificates (fingerprint, commonname, revoked, previous, first, cert)
		VALUES (?, ?, 0, ?, ?, ?)
	`, cert.Fingerprint, cert.CommonName, cert.Previous, first, cert.CertPEM)
	if err != nil {
		return 0, fmt.Errorf("failed to insert certificate: %w", err)
	}

	certid, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	if !cert.Previous.Valid {
		if _, err := tx.Exec(`UPDATE certificates SET first = ? WHERE certid = ?`, certid, certid); err != nil {
			return 0, fmt.Errorf("failed to set first certid: %w", err)
		}
		cert.First = certid
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	cert.CertID = certid
	return certid, nil
}

// SetRevoked marks the certificate with the given fingerprint as revoked.
func (r *CertRepository) SetRevoked(fp string) error {
	result, err := r.db.Exec(`UPDATE certificates SET revoked = 1 WHERE fingerprint = ?`, fp)
	if err != nil {
		return fmt.Errorf("failed to revoke certificate: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}
