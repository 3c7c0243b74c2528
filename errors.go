// Package ironbase is an embedded, single-file, document-oriented database
// exposing a MongoDB-compatible API: persistent storage with crash recovery,
// a B+Tree index subsystem with two-phase index commit, a query/aggregation
// engine, and a WAL-backed transaction manager.
package ironbase

import "errors"

// Sentinel errors returned by database operations. Op-specific context is
// attached with fmt.Errorf("op: %w", ...) rather than by defining a new
// sentinel per call site.
var (
	// ErrIo wraps an underlying file operation failure.
	ErrIo = errors.New("ironbase: i/o error")

	// ErrCorruption is returned when a structural invariant is violated:
	// bad magic, malformed header, record or metadata frame, metadata
	// overflow. A WAL frame with a bad CRC is not reported with it: replay
	// treats that frame as the end of the log.
	ErrCorruption = errors.New("ironbase: corruption")

	// ErrCollectionNotFound names a collection that does not exist. No
	// operation returns it: Database.Collection creates a collection on
	// first use.
	ErrCollectionNotFound = errors.New("ironbase: collection not found")

	// ErrCollectionExists names a collection that already exists. No
	// operation returns it, for the same reason.
	ErrCollectionExists = errors.New("ironbase: collection already exists")

	// ErrDocumentNotFound names a document id with no live record in the
	// collection's catalog. No operation returns it: FindOne reports a
	// missing document through its found result.
	ErrDocumentNotFound = errors.New("ironbase: document not found")

	// ErrDocumentTooLarge is returned when a document's encoded size
	// exceeds DocumentSizeLimit.
	ErrDocumentTooLarge = errors.New("ironbase: document exceeds size limit")

	// ErrDuplicateKey is returned when a unique-index constraint is
	// violated, detected before commit.
	ErrDuplicateKey = errors.New("ironbase: duplicate key")

	// ErrImmutableField is returned on any attempt to modify _id.
	ErrImmutableField = errors.New("ironbase: field is immutable")

	// ErrInvalidUpdateSpec is returned when an update document's shape
	// or operators cannot be parsed.
	ErrInvalidUpdateSpec = errors.New("ironbase: invalid update specification")

	// ErrInvalidQuery is returned when a filter document's shape or
	// operators cannot be parsed.
	ErrInvalidQuery = errors.New("ironbase: invalid query")

	// ErrUnsupportedOperator is returned for a query/update operator
	// this engine does not implement.
	ErrUnsupportedOperator = errors.New("ironbase: unsupported operator")

	// ErrUnsupportedStage is returned for an aggregation pipeline stage
	// this engine does not implement.
	ErrUnsupportedStage = errors.New("ironbase: unsupported pipeline stage")

	// ErrQueryError covers recursion-depth overflow and other runtime
	// filter-evaluation failures.
	ErrQueryError = errors.New("ironbase: query evaluation error")

	// ErrIndexNotFound is returned when an index name or hint does not
	// resolve to an existing index.
	ErrIndexNotFound = errors.New("ironbase: index not found")

	// ErrIndexBuildFailed is returned when CreateIndex is given a name
	// already used by an index on the collection. A duplicate key found
	// while backfilling is reported as ErrDuplicateKey instead.
	ErrIndexBuildFailed = errors.New("ironbase: index build failed")

	// ErrTransactionAborted is returned by any operation attempted
	// against a transaction that has already rolled back.
	ErrTransactionAborted = errors.New("ironbase: transaction aborted")

	// ErrTransactionNotFound is returned when a transaction handle does
	// not correspond to an active transaction on this Database.
	ErrTransactionNotFound = errors.New("ironbase: transaction not found")

	// ErrNotImplemented guards features out of this engine's scope
	// (language bindings, MCP server, schema validation, telemetry).
	ErrNotImplemented = errors.New("ironbase: not implemented")

	// ErrClosed is returned when operating on a closed Database.
	ErrClosed = errors.New("ironbase: database is closed")
)
