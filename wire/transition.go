// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/veritasdb/vsmraft/state"
)

const (
	fieldTransitionKind  protowire.Number = 1
	fieldTransitionKey   protowire.Number = 2
	fieldTransitionValue protowire.Number = 3
	fieldTransitionNode  protowire.Number = 4
	fieldTransitionTerm  protowire.Number = 5
)

// EncodeTransition serializes a Transition canonically.
func EncodeTransition(t state.Transition) []byte {
	var b []byte
	b = appendUint64(b, fieldTransitionKind, uint64(t.Kind))
	b = appendBytes(b, fieldTransitionKey, []byte(t.Key))
	b = appendBytes(b, fieldTransitionValue, t.Value)
	b = appendBytes(b, fieldTransitionNode, t.Node[:])
	b = appendUint64(b, fieldTransitionTerm, t.Term)
	return b
}

// DecodeTransition parses bytes produced by EncodeTransition.
func DecodeTransition(b []byte) (state.Transition, error) {
	var t state.Transition
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return state.Transition{}, fmt.Errorf("wire: decode transition: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldTransitionKind:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return state.Transition{}, fmt.Errorf("wire: decode transition.kind: %w", protowire.ParseError(n))
			}
			t.Kind = state.Kind(v)
			b = b[n:]
		case fieldTransitionKey:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return state.Transition{}, fmt.Errorf("wire: decode transition.key: %w", protowire.ParseError(n))
			}
			t.Key = string(v)
			b = b[n:]
		case fieldTransitionValue:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return state.Transition{}, fmt.Errorf("wire: decode transition.value: %w", protowire.ParseError(n))
			}
			t.Value = append([]byte(nil), v...)
			b = b[n:]
		case fieldTransitionNode:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return state.Transition{}, fmt.Errorf("wire: decode transition.node: %w", protowire.ParseError(n))
			}
			copy(t.Node[:], v)
			b = b[n:]
		case fieldTransitionTerm:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return state.Transition{}, fmt.Errorf("wire: decode transition.term: %w", protowire.ParseError(n))
			}
			t.Term = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return state.Transition{}, fmt.Errorf("wire: decode transition: skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return t, nil
}
