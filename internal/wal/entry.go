// Package wal implements the durable operation log IronBase appends to
// before mutating the data file: CRC-validated framing, linear replay, and
// the entry vocabulary the two-phase commit protocol drives.
package wal

import json "github.com/goccy/go-json"

// EntryType tags a WAL frame's payload shape.
type EntryType uint8

const (
	Begin EntryType = iota + 1
	Operation
	IndexChange
	Commit
	Abort
)

// OpKind distinguishes the three data operations a transaction can log.
type OpKind uint8

const (
	OpInsert OpKind = iota + 1
	OpUpdate
	OpDelete
)

// OperationPayload is the decoded form of an Operation entry: Insert carries
// Document, Update carries OldDocID and the new Document, Delete carries
// only DocID.
type OperationPayload struct {
	Kind       OpKind         `json:"k"`
	Collection string         `json:"c"`
	DocID      any            `json:"id,omitempty"`
	OldDocID   any            `json:"old_id,omitempty"`
	Document   map[string]any `json:"doc,omitempty"`
}

// IndexChangeKind distinguishes the three index mutations a transaction can
// stage alongside its data operations.
type IndexChangeKind uint8

const (
	IndexInsert IndexChangeKind = iota + 1
	IndexDelete
	IndexUpdate
)

// IndexChangePayload is the decoded form of an IndexChange entry. Key and
// OldKey are opaque JSON values — the caller (the root package, which owns
// the IndexKey encoding) is responsible for translating them back into a
// concrete key type during recovery.
type IndexChangePayload struct {
	IndexName string          `json:"idx"`
	Kind      IndexChangeKind `json:"k"`
	Key       any             `json:"key,omitempty"`
	OldKey    any             `json:"old_key,omitempty"`
	DocID     any             `json:"doc_id"`
}

// EncodeOperation and EncodeIndexChange marshal their payload to the bytes
// an Entry carries; DecodeOperation/DecodeIndexChange are their inverses.
func EncodeOperation(p OperationPayload) ([]byte, error) { return json.Marshal(p) }

func DecodeOperation(b []byte) (OperationPayload, error) {
	var p OperationPayload
	err := json.Unmarshal(b, &p)
	return p, err
}

func EncodeIndexChange(p IndexChangePayload) ([]byte, error) { return json.Marshal(p) }

func DecodeIndexChange(b []byte) (IndexChangePayload, error) {
	var p IndexChangePayload
	err := json.Unmarshal(b, &p)
	return p, err
}
