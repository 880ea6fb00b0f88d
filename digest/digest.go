// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package digest computes the collision-resistant fingerprint the
// verifier compares between the live state machine and its shadow
// model. Hashing over the canonical wire encoding (package wire) means
// two States compare equal as digests iff they would also compare
// byte-equal on the wire, which is what makes the comparison meaningful
// across process boundaries (snapshots, WAL replay, peer catch-up).
package digest

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/veritasdb/vsmraft/state"
	"github.com/veritasdb/vsmraft/wire"
)

// Digest is a 256-bit collision-resistant fingerprint of a State.
//
// sha256 is standard library rather than an ecosystem dependency: a
// non-keyed fixed-output digest like this has no suitable third-party
// replacement worth swapping in for crypto/sha256.
type Digest [sha256.Size]byte

// String renders d as lowercase hex, the form used in log fields and
// PostMortem records.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the zero digest (never a valid digest of
// an actual state, since even the empty State encodes to a non-empty
// canonical form once Clock is nonzero; used as a "not yet computed"
// sentinel).
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Canonical computes the full digest of s by hashing its canonical wire
// encoding. This is the correctness oracle: Incremental's cached results
// are only ever validated against this function's output.
func Canonical(s state.State) Digest {
	return sha256.Sum256(wire.EncodeState(s))
}
