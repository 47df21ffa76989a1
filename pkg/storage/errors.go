package storage

import "errors"

// ErrNotFound is returned when a hostname has no matching node record.
var ErrNotFound = errors.New("storage: node not found")
