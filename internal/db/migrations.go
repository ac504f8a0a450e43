package db

import (
	"database/sql"
	"fmt"
)

// RunMigrations executes all database migrations
func RunMigrations(db *DB) error {
	// Check if schema_version table exists
	var tableExists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	}

	if !tableExists {
		// First time initialization
		if err := initializeSchema(db); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		return nil
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow(`
		SELECT version FROM schema_version
		ORDER BY applied_at DESC LIMIT 1
	`).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Apply migrations if needed
	// Currently only version 1 exists
	if currentVersion < 1 {
		return fmt.Errorf("invalid schema version: %d", currentVersion)
	}

	return nil
}

// initializeSchema creates all tables for a new database
func initializeSchema(db *DB) error {
	tx, err := db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Schema version table
	if err := execSQL(tx, schemaVersionTable); err != nil {
		return err
	}

	// Certificates table
	if err := execSQL(tx, certificatesTable); err != nil {
		return err
	}
	if err := execSQL(tx, certificatesIndexes); err != nil {
		return err
	}

	// Host info table
	if err := execSQL(tx, hostInfoTable); err != nil {
		return err
	}
	if err := execSQL(tx, hostInfoIndexes); err != nil {
		return err
	}

	// Files table
	if err := execSQL(tx, filesTable); err != nil {
		return err
	}
	if err := execSQL(tx, filesIndexes); err != nil {
		return err
	}

	// Waiting list table
	if err := execSQL(tx, waitingTable); err != nil {
		return err
	}

	// IP ranges table
	if err := execSQL(tx, ipRangesTable); err != nil {
		return err
	}

	// Insert initial schema version
	if err := execSQL(tx, `INSERT INTO schema_version (version) VALUES (1)`); err != nil {
		return err
	}

	return tx.Commit()
}

// execSQL executes a SQL statement
func execSQL(tx *sql.Tx, query string) error {
	_, err := tx.Exec(query)
	return err
}

// Schema definitions
const (
	schemaVersionTable = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	certificatesTable = `
CREATE TABLE certificates (
    certid      INTEGER PRIMARY KEY AUTOINCREMENT,
    issued      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    fingerprint TEXT NOT NULL UNIQUE,
    commonname  TEXT NOT NULL,
    revoked     INTEGER NOT NULL DEFAULT 0,
    previous    INTEGER,
    first       INTEGER,
    cert        TEXT NOT NULL,

    FOREIGN KEY (previous) REFERENCES certificates(certid)
)`

	certificatesIndexes = `
CREATE INDEX idx_certs_fingerprint ON certificates(fingerprint);
CREATE INDEX idx_certs_first ON certificates(first);
CREATE INDEX idx_certs_commonname ON certificates(commonname)`

	hostInfoTable = `
CREATE TABLE hostinfo (
    certfp        TEXT NOT NULL UNIQUE,
    ipaddr        TEXT,
    hostname      TEXT,
    os_hostname   TEXT,
    lastseen      DATETIME,
    clientversion TEXT,
    dnsttl        DATETIME
)`

	hostInfoIndexes = `
CREATE INDEX idx_hostinfo_hostname ON hostinfo(hostname);
CREATE INDEX idx_hostinfo_lastseen ON hostinfo(lastseen)`

	filesTable = `
CREATE TABLE files (
    fileid         INTEGER PRIMARY KEY AUTOINCREMENT,
    certfp         TEXT NOT NULL,
    filename       TEXT NOT NULL,
    received       DATETIME NOT NULL,
    mtime          DATETIME,
    content        TEXT,
    crc32          INTEGER,
    is_command     INTEGER NOT NULL DEFAULT 0,
    clientversion  TEXT,
    ipaddr         TEXT,
    os_hostname    TEXT,
    certcn         TEXT,
    originalcertid INTEGER,
    current        INTEGER NOT NULL DEFAULT 1
)`

	filesIndexes = `
CREATE INDEX idx_files_certfp_filename ON files(certfp, filename);
CREATE INDEX idx_files_certfp_current ON files(certfp, current);
CREATE INDEX idx_files_received ON files(received)`

	waitingTable = `
CREATE TABLE waiting_for_approval (
    ipaddr   TEXT PRIMARY KEY,
    hostname TEXT,
    received DATETIME NOT NULL,
    approved INTEGER NOT NULL DEFAULT 0
)`

	ipRangesTable = `
CREATE TABLE ipranges (
    iprange TEXT PRIMARY KEY
)`
)
