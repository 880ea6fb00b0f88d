// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/veritasdb/vsmraft/state"
)

// LogEntry is the canonical wire shape of a consensus log entry:
// term, index, and the transition it carries.
type LogEntry struct {
	Term       uint64
	Index      uint64
	Transition state.Transition
}

const (
	fieldEntryTerm       protowire.Number = 1
	fieldEntryIndex      protowire.Number = 2
	fieldEntryTransition protowire.Number = 3
)

// EncodeLogEntry serializes e canonically.
func EncodeLogEntry(e LogEntry) []byte {
	var b []byte
	b = appendUint64(b, fieldEntryTerm, e.Term)
	b = appendUint64(b, fieldEntryIndex, e.Index)
	b = appendBytes(b, fieldEntryTransition, EncodeTransition(e.Transition))
	return b
}

// DecodeLogEntry parses bytes produced by EncodeLogEntry.
func DecodeLogEntry(b []byte) (LogEntry, error) {
	var e LogEntry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return LogEntry{}, fmt.Errorf("wire: decode log entry: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldEntryTerm:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return LogEntry{}, fmt.Errorf("wire: decode entry.term: %w", protowire.ParseError(n))
			}
			e.Term = v
			b = b[n:]
		case fieldEntryIndex:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return LogEntry{}, fmt.Errorf("wire: decode entry.index: %w", protowire.ParseError(n))
			}
			e.Index = v
			b = b[n:]
		case fieldEntryTransition:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return LogEntry{}, fmt.Errorf("wire: decode entry.transition: %w", protowire.ParseError(n))
			}
			tr, err := DecodeTransition(v)
			if err != nil {
				return LogEntry{}, err
			}
			e.Transition = tr
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return LogEntry{}, fmt.Errorf("wire: decode log entry: skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return e, nil
}
