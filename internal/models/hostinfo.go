package models

import (
	"database/sql"
	"time"
)

// HostInfo represents a row in the hostinfo table. There is at most one
// row per certificate fingerprint; the fingerprint is rewritten in place
// when the host renews its certificate.
type HostInfo struct {
	CertFP        string
	IPAddr        string
	Hostname      sql.NullString
	OSHostname    string
	LastSeen      time.Time
	ClientVersion string
	DNSTTL        sql.NullTime
}
