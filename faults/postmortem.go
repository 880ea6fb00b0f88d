// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package faults

import (
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/veritasdb/vsmraft/digest"
	"github.com/veritasdb/vsmraft/state"
	"github.com/veritasdb/vsmraft/wire"
)

// PostMortem is the structured dump written on a divergence halt: the
// state the VSM applied to, the transition applied, both digests, and
// the term/index under dispute. StateBefore is captured before the
// apply step runs, not reconstructed afterward.
type PostMortem struct {
	StateBefore    state.State
	Transition     state.Transition
	ExpectedDigest digest.Digest
	ActualDigest   digest.Digest
	Term           uint64
	Index          uint64
}

const (
	fieldPMStateBefore    protowire.Number = 1
	fieldPMTransition     protowire.Number = 2
	fieldPMExpectedDigest protowire.Number = 3
	fieldPMActualDigest   protowire.Number = 4
	fieldPMTerm           protowire.Number = 5
	fieldPMIndex          protowire.Number = 6
)

// Encode serializes p canonically, using the same wire primitives as
// every other on-disk/on-wire shape in this repository.
func (p PostMortem) Encode() []byte {
	var b []byte
	b = wire.AppendBytesField(b, fieldPMStateBefore, wire.EncodeState(p.StateBefore))
	b = wire.AppendBytesField(b, fieldPMTransition, wire.EncodeTransition(p.Transition))
	b = wire.AppendBytesField(b, fieldPMExpectedDigest, p.ExpectedDigest[:])
	b = wire.AppendBytesField(b, fieldPMActualDigest, p.ActualDigest[:])
	b = wire.AppendUint64Field(b, fieldPMTerm, p.Term)
	b = wire.AppendUint64Field(b, fieldPMIndex, p.Index)
	return b
}

// DecodePostMortem parses bytes produced by PostMortem.Encode.
func DecodePostMortem(b []byte) (PostMortem, error) {
	var p PostMortem
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return PostMortem{}, fmt.Errorf("faults: decode postmortem: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldPMStateBefore:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return PostMortem{}, fmt.Errorf("faults: decode postmortem.state_before: %w", protowire.ParseError(n))
			}
			s, err := wire.DecodeState(v)
			if err != nil {
				return PostMortem{}, err
			}
			p.StateBefore = s
			b = b[n:]
		case fieldPMTransition:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return PostMortem{}, fmt.Errorf("faults: decode postmortem.transition: %w", protowire.ParseError(n))
			}
			tr, err := wire.DecodeTransition(v)
			if err != nil {
				return PostMortem{}, err
			}
			p.Transition = tr
			b = b[n:]
		case fieldPMExpectedDigest:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return PostMortem{}, fmt.Errorf("faults: decode postmortem.expected_digest: %w", protowire.ParseError(n))
			}
			copy(p.ExpectedDigest[:], v)
			b = b[n:]
		case fieldPMActualDigest:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return PostMortem{}, fmt.Errorf("faults: decode postmortem.actual_digest: %w", protowire.ParseError(n))
			}
			copy(p.ActualDigest[:], v)
			b = b[n:]
		case fieldPMTerm:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return PostMortem{}, fmt.Errorf("faults: decode postmortem.term: %w", protowire.ParseError(n))
			}
			p.Term = v
			b = b[n:]
		case fieldPMIndex:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return PostMortem{}, fmt.Errorf("faults: decode postmortem.index: %w", protowire.ParseError(n))
			}
			p.Index = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return PostMortem{}, fmt.Errorf("faults: decode postmortem: skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return p, nil
}

// WritePostMortem writes p into dir (the replica's data directory) as
// halt-<index>.postmortem, via write-temp-then-rename so a crash mid-write
// never leaves a partial post-mortem record behind.
func WritePostMortem(dir string, p PostMortem) error {
	final := filepath.Join(dir, fmt.Sprintf("halt-%020d.postmortem", p.Index))
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, p.Encode(), 0o644); err != nil {
		return DurabilityFailure(err, "write post-mortem record")
	}
	if err := os.Rename(tmp, final); err != nil {
		return DurabilityFailure(err, "publish post-mortem record")
	}
	return nil
}
