// Package swapstore persists swap records to SQLite with composite-index
// queries, grounded on internal/storage's WAL pragma, single-writer pool,
// and schema+migration discipline.
package swapstore

import "errors"

// ErrStoreUnavailable wraps failures the caller should retry (§4.1): the
// database file is locked, busy, or the connection dropped.
var ErrStoreUnavailable = errors.New("swapstore: store unavailable")

// ErrSerializationError is fatal for the one record it applies to: its
// swap_data/payload could not round-trip through JSON. The caller quarantines
// the swap rather than retrying.
var ErrSerializationError = errors.New("swapstore: serialization error")

// ErrNotFound is returned by Get when no record matches the given ID.
var ErrNotFound = errors.New("swapstore: record not found")
