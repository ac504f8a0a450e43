package models

import "time"

// WaitingEntry represents a row in the waiting_for_approval table: an
// enrollment request from outside the auto-approved ranges, parked until
// an administrator approves or denies it. Keyed by IP address.
type WaitingEntry struct {
	IPAddr   string
	Hostname string
	Received time.Time
	Approved bool
}
