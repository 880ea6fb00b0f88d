// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package verify implements the verified state machine (VSM): a live
// State paired with an independent shadow State, compared by digest on
// every transition before the change is allowed to persist or
// propagate.
package verify

import (
	"errors"

	"github.com/veritasdb/vsmraft/digest"
	"github.com/veritasdb/vsmraft/faults"
	"github.com/veritasdb/vsmraft/state"
)

// CorruptionHook is invoked, if set, between the live apply and the
// digest computation, so tests can manufacture a memory-corruption class
// of divergence fault without an actual faulty apply implementation. Not
// wired to any production code path.
type CorruptionHook func(live *state.State)

// VSM wraps a live State and an independent shadow State. Both start
// from the same value and are driven through Execute in lockstep; any
// divergence between their digests is treated as a fault, never as a
// bug in whichever apply the caller trusts more.
type VSM struct {
	live   state.State
	shadow state.State

	liveDigest   *digest.Incremental
	shadowDigest *digest.Incremental

	halted     bool
	haltReason error

	// Corrupt, if set, is invoked on the live state after apply and
	// before digest computation. Test-only seam; see CorruptionHook.
	Corrupt CorruptionHook
}

// New returns a VSM seeded with initial as both the live and shadow
// state.
func New(initial state.State) *VSM {
	return &VSM{
		live:         initial.Clone(),
		shadow:       initial.Clone(),
		liveDigest:   digest.New(initial),
		shadowDigest: digest.New(initial),
	}
}

// Live returns a copy of the current live state.
func (v *VSM) Live() state.State { return v.live.Clone() }

// Halted reports whether a divergence fault has halted this VSM. Once
// true, Execute always fails and the replica must stop advancing its
// applied index.
func (v *VSM) Halted() bool { return v.halted }

// HaltReason returns the error that halted the VSM, or nil if it has not
// been halted.
func (v *VSM) HaltReason() error { return v.haltReason }

// Execute applies t to both the shadow and live state and compares their
// digests. On success it returns the new live state and its digest, and
// the VSM adopts both updated states as current. On divergence it halts
// the VSM (permanently: a halted VSM never runs another transition) and
// returns a faults.KindDivergenceFault error; the caller is responsible
// for writing the PostMortem record, since only the caller knows the log
// term/index under dispute.
func (v *VSM) Execute(t state.Transition) (state.State, digest.Digest, error) {
	if v.halted {
		return state.State{}, digest.Digest{}, faults.DivergenceFault(v.haltReason, "VSM already halted")
	}

	nextShadow := state.Apply(v.shadow, t)
	expected := v.shadowDigest.Update(t, nextShadow)

	nextLive := state.Apply(v.live, t)
	if v.Corrupt != nil {
		v.Corrupt(&nextLive)
	}
	actual := v.liveDigest.Update(t, nextLive)

	if expected != actual {
		v.halted = true
		v.haltReason = faults.DivergenceFault(
			digestMismatchError(expected, actual),
			"shadow/live digest mismatch",
		)
		// Undo the incremental caches' view of the (rejected) live
		// state so a future Digest() call (if the process survives
		// long enough to be asked) still reflects last-good state.
		v.liveDigest = digest.New(v.live)
		return state.State{}, digest.Digest{}, v.haltReason
	}

	v.shadow = nextShadow
	v.live = nextLive
	return v.live.Clone(), actual, nil
}

type digestMismatch struct {
	expected, actual digest.Digest
}

func (d *digestMismatch) Error() string {
	return "digest mismatch: expected " + d.expected.String() + " got " + d.actual.String()
}

func digestMismatchError(expected, actual digest.Digest) error {
	return &digestMismatch{expected: expected, actual: actual}
}

// Digests extracts the expected/actual digest pair from a divergence
// error returned by Execute, for callers (the consensus package's apply
// rule) that need them to fill out a faults.PostMortem record. ok is
// false for any other error shape.
func Digests(err error) (expected, actual digest.Digest, ok bool) {
	var dm *digestMismatch
	if errors.As(err, &dm) {
		return dm.expected, dm.actual, true
	}
	return digest.Digest{}, digest.Digest{}, false
}
