package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nivlheim/nivlheim/internal/models"
)

// HostInfoRepository handles the hostinfo table.
type HostInfoRepository struct {
	db *sql.DB
}

// NewHostInfoRepository creates a new host info repository
func NewHostInfoRepository(db *sql.DB) *HostInfoRepository {
	return &HostInfoRepository{db: db}
}

// GetByFingerprint retrieves the host info row for a certificate
// fingerprint. Returns ErrNotFound if the host has never been seen.
func (r *HostInfoRepository) GetByFingerprint(fp string) (*models.HostInfo, error) {
	query := `
		SELECT certfp, ipaddr, hostname, os_hostname, lastseen, clientversion, dnsttl
		FROM hostinfo
		WHERE certfp = ?
	`

	info := &models.HostInfo{}
	var ipaddr, osHostname, clientversion sql.NullString
	var lastseen sql.NullTime

	err := r.db.QueryRow(query, fp).Scan(
		&info.CertFP,
		&ipaddr,
		&info.Hostname,
		&osHostname,
		&lastseen,
		&clientversion,
		&info.DNSTTL,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get host info: %w", err)
	}

	info.IPAddr = ipaddr.String
	info.OSHostname = osHostname.String
	info.ClientVersion = clientversion.String
	if lastseen.Valid {
		info.LastSeen = lastseen.Time
	}

	return info, nil
}

// RewriteFingerprint atomically repoints the hostinfo row and every files
// row from the old fingerprint to the new one. Called after a certificate
// renewal so that auxiliary tables follow the host identity. The old
// certificate row itself is left untouched.
func (r *HostInfoRepository) RewriteFingerprint(oldFp, newFp string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE hostinfo SET certfp = ? WHERE certfp = ?`, newFp, oldFp); err != nil {
		return fmt.Errorf("failed to rewrite hostinfo fingerprint: %w", err)
	}

	if _, err := tx.Exec(`UPDATE files SET certfp = ? WHERE certfp = ?`, newFp, oldFp); err != nil {
		return fmt.Errorf("failed to rewrite files fingerprint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

// Touch records host liveness within an ingestion transaction. The row is
// created if missing; lastseen only ever moves forward, so archives
// replayed out of order cannot rewind it. An IP address or OS hostname
// change invalidates the cached DNS state by clearing dnsttl.
func (r *HostInfoRepository) Touch(tx *sql.Tx, certfp, ipaddr, osHostname, clientversion string, received time.Time) error {
	if _, err := tx.Exec(`
		INSERT INTO hostinfo (certfp, ipaddr, os_hostname, lastseen, clientversion)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(certfp) DO NOTHING
	`, certfp, ipaddr, osHostname, received, clientversion); err != nil {
		return fmt.Errorf("failed to upsert host info: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE hostinfo SET lastseen = ?, clientversion = ?
		WHERE certfp = ? AND lastseen < ?
	`, received, clientversion, certfp, received); err != nil {
		return fmt.Errorf("failed to update lastseen: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE hostinfo SET ipaddr = ?, os_hostname = ?, dnsttl = NULL
		WHERE (ipaddr != ? OR os_hostname != ?) AND certfp = ?
	`, ipaddr, osHostname, ipaddr, osHostname, certfp); err != nil {
		return fmt.Errorf("failed to update host identity: %w", err)
	}

	return nil
}

// SetHostname stores the DNS-verified hostname for a fingerprint.
func (r *HostInfoRepository) SetHostname(fp, hostname string) error {
	if _, err := r.db.Exec(`UPDATE hostinfo SET hostname = ? WHERE certfp = ?`, hostname, fp); err != nil {
		return fmt.Errorf("failed to set hostname: %w", err)
	}
	return nil
}
