package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// Transaction is one fully-replayed, committed transaction: every
// Operation and IndexChange entry logged between its Begin and Commit
// frames, in the order they were appended.
type Transaction struct {
	ID           uint64
	Operations   []OperationPayload
	IndexChanges []IndexChangePayload
}

// Replay reads every frame in path from the start, grouping entries by
// transaction id. A transaction is returned only if its Commit frame was
// found; any transaction without one — including the one in flight when a
// crash truncated the log — is silently discarded, per the log's
// torn-write-tolerant recovery contract. A CRC mismatch on any frame (a
// write interrupted mid-append) stops replay at that point rather than
// failing it: everything durably written before the tear is still honored.
func Replay(path string) ([]Transaction, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wal: open for replay: %w", err)
	}
	defer f.Close()

	building := make(map[uint64]*Transaction)
	var committed []Transaction

	header := make([]byte, frameHeaderSize)
	for {
		if _, err := io.ReadFull(f, header); err != nil {
			break // EOF or a short trailing header: nothing more to replay
		}
		entryType := EntryType(header[0])
		txID := binary.LittleEndian.Uint64(header[1:9])
		payloadLen := binary.LittleEndian.Uint32(header[9:13])

		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(f, payload); err != nil {
			break
		}
		crcBuf := make([]byte, 4)
		if _, err := io.ReadFull(f, crcBuf); err != nil {
			break
		}

		frame := append(append([]byte{}, header...), payload...)
		want := binary.LittleEndian.Uint32(crcBuf)
		if crc32.ChecksumIEEE(frame) != want {
			break // torn write: stop here, discard the in-flight transaction below
		}

		switch entryType {
		case Begin:
			building[txID] = &Transaction{ID: txID}
		case Operation:
			tx, ok := building[txID]
			if !ok {
				continue // Operation without a preceding Begin is not replayable
			}
			op, err := DecodeOperation(payload)
			if err != nil {
				continue
			}
			tx.Operations = append(tx.Operations, op)
		case IndexChange:
			tx, ok := building[txID]
			if !ok {
				continue
			}
			ic, err := DecodeIndexChange(payload)
			if err != nil {
				continue
			}
			tx.IndexChanges = append(tx.IndexChanges, ic)
		case Commit:
			if tx, ok := building[txID]; ok {
				committed = append(committed, *tx)
				delete(building, txID)
			}
		case Abort:
			delete(building, txID)
		}
	}

	return committed, nil
}
