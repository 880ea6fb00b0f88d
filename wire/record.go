// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/luxfi/ids"
)

// RecordType tags the WAL record union: LogEntry, Snapshot, Metadata, or
// Commit.
type RecordType uint8

const (
	RecordLogEntry RecordType = iota + 1
	RecordSnapshot
	RecordMetadata
	RecordCommit
)

// Record is a single WAL record. Only the fields relevant to Type are
// populated by the matching constructor.
type Record struct {
	Type RecordType

	// RecordLogEntry
	Entry LogEntry

	// RecordSnapshot (a snapshot recorded directly into the WAL rather
	// than the snapshot store)
	Snapshot Snapshot

	// RecordMetadata
	CurrentTerm uint64
	HasVotedFor bool
	VotedFor    ids.NodeID

	// RecordCommit
	CommitIndex uint64
}

// NewLogEntryRecord builds a RecordLogEntry record.
func NewLogEntryRecord(e LogEntry) Record {
	return Record{Type: RecordLogEntry, Entry: e}
}

// NewSnapshotRecord builds a RecordSnapshot record.
func NewSnapshotRecord(s Snapshot) Record {
	return Record{Type: RecordSnapshot, Snapshot: s}
}

// NewMetadataRecord builds a RecordMetadata record.
func NewMetadataRecord(currentTerm uint64, hasVotedFor bool, votedFor ids.NodeID) Record {
	return Record{Type: RecordMetadata, CurrentTerm: currentTerm, HasVotedFor: hasVotedFor, VotedFor: votedFor}
}

// NewCommitRecord builds a RecordCommit record.
func NewCommitRecord(index uint64) Record {
	return Record{Type: RecordCommit, CommitIndex: index}
}

const (
	fieldRecordType        protowire.Number = 1
	fieldRecordEntry       protowire.Number = 2
	fieldRecordSnapshot    protowire.Number = 3
	fieldRecordCurrentTerm protowire.Number = 4
	fieldRecordHasVoted    protowire.Number = 5
	fieldRecordVotedFor    protowire.Number = 6
	fieldRecordCommitIndex protowire.Number = 7
)

// EncodeRecord serializes r canonically.
func EncodeRecord(r Record) []byte {
	var b []byte
	b = appendUint64(b, fieldRecordType, uint64(r.Type))
	switch r.Type {
	case RecordLogEntry:
		b = appendBytes(b, fieldRecordEntry, EncodeLogEntry(r.Entry))
	case RecordSnapshot:
		b = appendBytes(b, fieldRecordSnapshot, EncodeSnapshot(r.Snapshot))
	case RecordMetadata:
		b = appendUint64(b, fieldRecordCurrentTerm, r.CurrentTerm)
		b = appendBool(b, fieldRecordHasVoted, r.HasVotedFor)
		if r.HasVotedFor {
			b = appendBytes(b, fieldRecordVotedFor, r.VotedFor[:])
		}
	case RecordCommit:
		b = appendUint64(b, fieldRecordCommitIndex, r.CommitIndex)
	}
	return b
}

// DecodeRecord parses bytes produced by EncodeRecord.
func DecodeRecord(b []byte) (Record, error) {
	var r Record
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Record{}, fmt.Errorf("wire: decode record: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldRecordType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Record{}, fmt.Errorf("wire: decode record.type: %w", protowire.ParseError(n))
			}
			r.Type = RecordType(v)
			b = b[n:]
		case fieldRecordEntry:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Record{}, fmt.Errorf("wire: decode record.entry: %w", protowire.ParseError(n))
			}
			e, err := DecodeLogEntry(v)
			if err != nil {
				return Record{}, err
			}
			r.Entry = e
			b = b[n:]
		case fieldRecordSnapshot:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Record{}, fmt.Errorf("wire: decode record.snapshot: %w", protowire.ParseError(n))
			}
			s, err := DecodeSnapshot(v)
			if err != nil {
				return Record{}, err
			}
			r.Snapshot = s
			b = b[n:]
		case fieldRecordCurrentTerm:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Record{}, fmt.Errorf("wire: decode record.current_term: %w", protowire.ParseError(n))
			}
			r.CurrentTerm = v
			b = b[n:]
		case fieldRecordHasVoted:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Record{}, fmt.Errorf("wire: decode record.has_voted: %w", protowire.ParseError(n))
			}
			r.HasVotedFor = v != 0
			b = b[n:]
		case fieldRecordVotedFor:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Record{}, fmt.Errorf("wire: decode record.voted_for: %w", protowire.ParseError(n))
			}
			copy(r.VotedFor[:], v)
			b = b[n:]
		case fieldRecordCommitIndex:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Record{}, fmt.Errorf("wire: decode record.commit_index: %w", protowire.ParseError(n))
			}
			r.CommitIndex = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Record{}, fmt.Errorf("wire: decode record: skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return r, nil
}

// AppendLengthPrefixed appends a u32-little-endian length prefix followed
// by payload, the WAL segment's record framing.
func AppendLengthPrefixed(b []byte, payload []byte) []byte {
	var lenBuf [4]byte
	lenBuf[0] = byte(len(payload))
	lenBuf[1] = byte(len(payload) >> 8)
	lenBuf[2] = byte(len(payload) >> 16)
	lenBuf[3] = byte(len(payload) >> 24)
	b = append(b, lenBuf[:]...)
	return append(b, payload...)
}
