// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// client.go holds the operations the replica pipeline drives on behalf
// of a client or operator, as opposed to the peer-to-peer RPC handlers
// in rpc.go: proposing transitions, reading with a barrier, and the
// leader-transfer/status surface.
package consensus

import (
	"context"
	"errors"

	"github.com/luxfi/ids"

	"github.com/veritasdb/vsmraft/faults"
	"github.com/veritasdb/vsmraft/state"
	"github.com/veritasdb/vsmraft/transport"
	"github.com/veritasdb/vsmraft/wire"
)

// Sentinel errors for client-facing rejections, one per invariant,
// matching the config package's Validate()-returns-a-sentinel idiom.
var (
	errNotLeader        = errors.New("consensus: not the leader")
	errHalted           = errors.New("consensus: replica is halted")
	errTransferPending  = errors.New("consensus: leadership transfer in progress, proposals refused")
	errNoTransferTarget = errors.New("consensus: no eligible leadership transfer target")
)

// Propose implements Protocol: only a Leader not currently mid-transfer
// accepts a client transition, appending it to its own log and
// returning the index it was assigned. Replication to followers
// happens on the next Tick; for a single-node cluster (no peers) commit
// and apply happen synchronously here since quorum is met by self
// alone.
func (r *Replica) Propose(t state.Transition) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.role == Halted {
		return 0, faults.ClientValidation(errHalted, "cannot propose to a halted replica")
	}
	if r.role != Leader {
		return 0, faults.ClientValidation(errNotLeader, "proposals must go to the leader")
	}
	if r.hasTransferTarget {
		return 0, faults.ClientValidation(errTransferPending, "leadership transfer pending")
	}

	index := r.lastLogIndexLocked() + 1
	entry := wire.LogEntry{Term: r.currentTerm, Index: index, Transition: t}
	r.log = append(r.log, entry)
	if err := r.persistEntryLocked(entry); err != nil {
		return 0, r.haltOnDurabilityFailureLocked(err)
	}

	if err := r.advanceCommitIndexLocked(); err != nil {
		return 0, err
	}
	r.applyCommittedLocked()
	if r.role == Halted {
		return 0, r.haltErr
	}

	return index, nil
}

// ReadAt blocks until last_applied >= minAppliedIndex or ctx is done,
// whichever comes first, then returns a read-only copy of the live
// state. Reads go to the live state of any replica whose applied index
// meets the caller's read barrier.
func (r *Replica) ReadAt(ctx context.Context, minAppliedIndex uint64) (state.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.cond.Broadcast()
	})
	defer stop()

	for r.lastApplied < minAppliedIndex && r.role != Halted {
		if err := ctx.Err(); err != nil {
			return state.State{}, err
		}
		r.cond.Wait()
	}
	if r.role == Halted {
		return state.State{}, r.haltErr
	}
	return r.vsm.Live(), nil
}

// LiveState returns a snapshot of the current live state without a
// read barrier, used by the replica pipeline's snapshot/backup operator
// surface.
func (r *Replica) LiveState() state.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vsm.Live()
}

// SnapshotInfo returns the (index, term) of the highest applied log
// entry, the coordinates a forced snapshot publishes under.
func (r *Replica) SnapshotInfo() (lastIndex, lastTerm uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lastIndex = r.lastApplied
	if lastIndex > 0 {
		lastTerm, _ = r.termAtLocked(lastIndex)
	}
	return lastIndex, lastTerm
}

// TransferLeadership implements the leader-transfer extension: the
// leader picks the peer with the highest match_index (or the caller's
// chosen target), sends it a TimeoutNow, and refuses new proposals
// until a new leader is observed.
func (r *Replica) TransferLeadership(target ids.NodeID) ([]transport.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.role != Leader {
		return nil, faults.ClientValidation(errNotLeader, "transfer_leadership requires leader role")
	}

	if target == ids.EmptyNodeID {
		var best ids.NodeID
		var bestMatch uint64
		found := false
		for _, p := range r.cfg.Members {
			if p == r.cfg.Self {
				continue
			}
			if !found || r.matchIndex[p] > bestMatch {
				best, bestMatch, found = p, r.matchIndex[p], true
			}
		}
		if !found {
			return nil, faults.ClientValidation(errNoTransferTarget, "no peers to transfer leadership to")
		}
		target = best
	}

	r.hasTransferTarget = true
	r.transferTarget = target
	return []transport.Message{{
		Kind: transport.KindTimeoutNow,
		From: r.cfg.Self, To: target, Term: r.currentTerm,
	}}, nil
}
