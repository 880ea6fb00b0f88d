// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package digest

import (
	"crypto/sha256"

	"github.com/veritasdb/vsmraft/state"
	"github.com/veritasdb/vsmraft/wire"
)

// Incremental maintains a digest cache keyed by which State segment a
// transition touches (clock/term/leader vs members vs data), so Update
// need not re-encode segments a transition didn't change. It is purely
// an optimization: Canonical remains the correctness oracle, and
// Incremental's cached control/members/data byte segments concatenate to
// exactly what wire.EncodeState would produce, so Digest() always equals
// Canonical(s) for the state last passed to New or Update.
type Incremental struct {
	control []byte
	members []byte
	data    []byte
	digest  Digest
}

// New seeds an Incremental cache from s's full encoding.
func New(s state.State) *Incremental {
	c := &Incremental{
		control: wire.EncodeStateControl(s),
		members: wire.EncodeStateMembers(s),
		data:    wire.EncodeStateData(s),
	}
	c.rehash()
	return c
}

// Digest returns the digest of the state last passed to New or Update.
func (c *Incremental) Digest() Digest {
	return c.digest
}

// Update recomputes the cache for next given the transition that produced
// it from some prior state, re-encoding only the segment(s) t's kind can
// touch. The control segment is always re-encoded because Clock advances
// on every transition.
func (c *Incremental) Update(t state.Transition, next state.State) Digest {
	c.control = wire.EncodeStateControl(next)
	switch t.Kind {
	case state.KindAddMember, state.KindRemoveMember:
		c.members = wire.EncodeStateMembers(next)
	case state.KindWrite, state.KindDelete:
		c.data = wire.EncodeStateData(next)
	case state.KindElectLeader:
		// control only; members and data are untouched by ElectLeader.
	default:
		// Unknown kind: be conservative and re-encode everything.
		c.members = wire.EncodeStateMembers(next)
		c.data = wire.EncodeStateData(next)
	}
	c.rehash()
	return c.digest
}

func (c *Incremental) rehash() {
	h := sha256.New()
	h.Write(c.control)
	h.Write(c.members)
	h.Write(c.data)
	var d Digest
	copy(d[:], h.Sum(nil))
	c.digest = d
}
