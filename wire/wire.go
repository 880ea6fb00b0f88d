// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wire implements the canonical binary encoding used for State,
// Transition, log entries, WAL records and replica RPCs.
// Encoding is built on protobuf's low-level wire primitives
// (google.golang.org/protobuf/encoding/protowire) rather than full
// generated messages: every message here has a small, fixed shape that we
// control completely, and protowire gives the varint/length-delimited
// framing those shapes need without a .proto/codegen step.
//
// Determinism is the only requirement that matters: the same value must
// always serialize to the same bytes, on every platform and run. Fields
// are written in a fixed order; zero-value scalar fields are omitted
// (proto3-style implicit presence), which is still deterministic because
// omission is itself a pure function of the value.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/luxfi/ids"
	"github.com/veritasdb/vsmraft/state"
)

const (
	fieldStateClock     protowire.Number = 1
	fieldStateTerm      protowire.Number = 2
	fieldStateHasLeader protowire.Number = 3
	fieldStateLeader    protowire.Number = 4
	fieldStateMember    protowire.Number = 5
	fieldStateDataEntry protowire.Number = 6

	fieldDataEntryKey   protowire.Number = 1
	fieldDataEntryValue protowire.Number = 2
)

func appendUint64(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// EncodeState serializes s canonically: fixed field order, Members
// ascending by node-id bytes (already the State invariant), Data entries
// ascending by key. It is exactly the concatenation of
// EncodeStateControl, EncodeStateMembers and EncodeStateData, in that
// order — digest.Incremental relies on that identity to recompute only
// the segment a transition actually touches.
func EncodeState(s state.State) []byte {
	b := EncodeStateControl(s)
	b = append(b, EncodeStateMembers(s)...)
	b = append(b, EncodeStateData(s)...)
	return b
}

// EncodeStateControl serializes the clock/term/leader fields (1-4).
func EncodeStateControl(s state.State) []byte {
	var b []byte
	b = appendUint64(b, fieldStateClock, s.Clock)
	b = appendUint64(b, fieldStateTerm, s.Term)
	b = appendBool(b, fieldStateHasLeader, s.HasLeader)
	if s.HasLeader {
		b = appendBytes(b, fieldStateLeader, s.Leader[:])
	}
	return b
}

// EncodeStateMembers serializes the repeated member field (5).
func EncodeStateMembers(s state.State) []byte {
	var b []byte
	for _, m := range s.Members {
		b = appendBytes(b, fieldStateMember, m[:])
	}
	return b
}

// EncodeStateData serializes the repeated data-entry field (6), ascending
// by key.
func EncodeStateData(s state.State) []byte {
	var b []byte
	for _, k := range s.SortedKeys() {
		var entry []byte
		entry = appendBytes(entry, fieldDataEntryKey, []byte(k))
		entry = appendBytes(entry, fieldDataEntryValue, s.Data[k])
		b = appendBytes(b, fieldStateDataEntry, entry)
	}
	return b
}

// DecodeState parses bytes produced by EncodeState.
func DecodeState(b []byte) (state.State, error) {
	s := state.New()
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return state.State{}, fmt.Errorf("wire: decode state: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldStateClock:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return state.State{}, fmt.Errorf("wire: decode state.clock: %w", protowire.ParseError(n))
			}
			s.Clock = v
			b = b[n:]
		case fieldStateTerm:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return state.State{}, fmt.Errorf("wire: decode state.term: %w", protowire.ParseError(n))
			}
			s.Term = v
			b = b[n:]
		case fieldStateHasLeader:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return state.State{}, fmt.Errorf("wire: decode state.has_leader: %w", protowire.ParseError(n))
			}
			s.HasLeader = v != 0
			b = b[n:]
		case fieldStateLeader:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return state.State{}, fmt.Errorf("wire: decode state.leader: %w", protowire.ParseError(n))
			}
			copy(s.Leader[:], v)
			b = b[n:]
		case fieldStateMember:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return state.State{}, fmt.Errorf("wire: decode state.member: %w", protowire.ParseError(n))
			}
			var node ids.NodeID
			copy(node[:], v)
			s.Members = append(s.Members, node)
			b = b[n:]
		case fieldStateDataEntry:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return state.State{}, fmt.Errorf("wire: decode state.data: %w", protowire.ParseError(n))
			}
			key, val, err := decodeDataEntry(v)
			if err != nil {
				return state.State{}, err
			}
			s.Data[key] = val
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return state.State{}, fmt.Errorf("wire: decode state: skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return s, nil
}

func decodeDataEntry(b []byte) (string, []byte, error) {
	var key string
	var val []byte
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, fmt.Errorf("wire: decode data entry: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldDataEntryKey:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", nil, fmt.Errorf("wire: decode data entry key: %w", protowire.ParseError(n))
			}
			key = string(v)
			b = b[n:]
		case fieldDataEntryValue:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", nil, fmt.Errorf("wire: decode data entry value: %w", protowire.ParseError(n))
			}
			val = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", nil, fmt.Errorf("wire: decode data entry: skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if val == nil {
		val = []byte{}
	}
	return key, val, nil
}
