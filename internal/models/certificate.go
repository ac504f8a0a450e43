package models

import (
	"database/sql"
	"time"
)

// Certificate represents a row in the certificates table. Rows are
// append-only; only the revoked flag is ever mutated after insert.
type Certificate struct {
	CertID      int64
	Issued      time.Time
	Fingerprint string
	CommonName  string
	Revoked     bool
	Previous    sql.NullInt64
	First       int64
	CertPEM     string
}

// IsRootEnrollment reports whether this certificate started a new
// identity chain rather than renewing an existing one.
func (c *Certificate) IsRootEnrollment() bool {
	return !c.Previous.Valid
}
