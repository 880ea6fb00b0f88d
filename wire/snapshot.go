// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/veritasdb/vsmraft/state"
)

// Snapshot is the canonical wire shape of {last_index, last_term, state,
// timestamp}. Timestamp is metadata only: apply and digest computation
// never read it.
type Snapshot struct {
	LastIndex uint64
	LastTerm  uint64
	State     state.State
	Timestamp int64
}

const (
	fieldSnapLastIndex protowire.Number = 1
	fieldSnapLastTerm  protowire.Number = 2
	fieldSnapState     protowire.Number = 3
	fieldSnapTimestamp protowire.Number = 4
)

// EncodeSnapshot serializes s canonically.
func EncodeSnapshot(s Snapshot) []byte {
	var b []byte
	b = appendUint64(b, fieldSnapLastIndex, s.LastIndex)
	b = appendUint64(b, fieldSnapLastTerm, s.LastTerm)
	b = appendBytes(b, fieldSnapState, EncodeState(s.State))
	if s.Timestamp != 0 {
		b = protowire.AppendTag(b, fieldSnapTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.Timestamp))
	}
	return b
}

// DecodeSnapshot parses bytes produced by EncodeSnapshot.
func DecodeSnapshot(b []byte) (Snapshot, error) {
	s := Snapshot{State: state.New()}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Snapshot{}, fmt.Errorf("wire: decode snapshot: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldSnapLastIndex:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Snapshot{}, fmt.Errorf("wire: decode snapshot.last_index: %w", protowire.ParseError(n))
			}
			s.LastIndex = v
			b = b[n:]
		case fieldSnapLastTerm:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Snapshot{}, fmt.Errorf("wire: decode snapshot.last_term: %w", protowire.ParseError(n))
			}
			s.LastTerm = v
			b = b[n:]
		case fieldSnapState:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Snapshot{}, fmt.Errorf("wire: decode snapshot.state: %w", protowire.ParseError(n))
			}
			st, err := DecodeState(v)
			if err != nil {
				return Snapshot{}, err
			}
			s.State = st
			b = b[n:]
		case fieldSnapTimestamp:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Snapshot{}, fmt.Errorf("wire: decode snapshot.timestamp: %w", protowire.ParseError(n))
			}
			s.Timestamp = int64(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Snapshot{}, fmt.Errorf("wire: decode snapshot: skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return s, nil
}
