package models

import (
	"database/sql"
	"time"
)

// FileRecord represents a row in the files table. Rows are append-only;
// the current flag is toggled so that at most one row per
// (certfp, filename) pair is current at any time.
type FileRecord struct {
	FileID         int64
	CertFP         string
	Filename       string
	Received       time.Time
	MTime          time.Time
	Content        string
	CRC32          int32
	IsCommand      bool
	ClientVersion  string
	IPAddr         string
	OSHostname     string
	CertCN         string
	OriginalCertID sql.NullInt64
	Current        bool
}
