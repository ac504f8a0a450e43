package repository

import "errors"

// ErrNotFound is returned by lookup methods when no row matches.
// Lookups never create rows as a side effect.
var ErrNotFound = errors.New("not found")
