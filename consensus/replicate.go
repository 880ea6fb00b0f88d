// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"github.com/luxfi/ids"

	"github.com/veritasdb/vsmraft/faults"
	"github.com/veritasdb/vsmraft/transport"
	"github.com/veritasdb/vsmraft/verify"
	"github.com/veritasdb/vsmraft/wire"
)

// appendEntriesForLocked builds the AppendEntries message this leader
// should currently send peer, driven entirely by peer's next_index.
func (r *Replica) appendEntriesForLocked(peer ids.NodeID) transport.Message {
	next := r.nextIndex[peer]
	if next <= r.snapshotIndex {
		// Entries at or below the snapshot boundary are no longer held
		// entry-by-entry; the closest prefix this leader can still
		// serve starts right after it.
		next = r.snapshotIndex + 1
	}
	prevIndex := next - 1
	prevTerm, _ := r.termAtLocked(prevIndex)

	var entries []wire.LogEntry
	if next <= r.lastLogIndexLocked() {
		entries = append(entries, r.log[next-r.snapshotIndex-1:]...)
	}

	return transport.Message{
		Kind:         transport.KindAppendEntries,
		From:         r.cfg.Self,
		To:           peer,
		Term:         r.currentTerm,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: r.commitIndex,
	}
}

// replicateToAllLocked sends every non-self peer an AppendEntries built
// from its own next_index; with no entries pending it degenerates into
// a heartbeat. On each heartbeat tick, the leader sends AppendEntries
// from next_index, possibly empty.
func (r *Replica) replicateToAllLocked() []transport.Message {
	if r.role != Leader {
		return nil
	}
	var out []transport.Message
	for _, peer := range r.cfg.Members {
		if peer == r.cfg.Self {
			continue
		}
		out = append(out, r.appendEntriesForLocked(peer))
	}
	return out
}

// advanceCommitIndexLocked finds the highest index N > commit_index
// such that a majority of match_index values are >= N and
// log[N].term == current_term. A leader may only count its own-term
// entries directly; earlier-term entries ride along once a later
// own-term entry commits.
func (r *Replica) advanceCommitIndexLocked() error {
	if r.role != Leader {
		return nil
	}
	majority := len(r.cfg.Members)/2 + 1
	newCommit := r.commitIndex
	for n := r.commitIndex + 1; n <= r.lastLogIndexLocked(); n++ {
		term, _ := r.termAtLocked(n)
		if term != r.currentTerm {
			continue
		}
		count := 1 // self
		for _, peer := range r.cfg.Members {
			if peer == r.cfg.Self {
				continue
			}
			if r.matchIndex[peer] >= n {
				count++
			}
		}
		if count >= majority {
			newCommit = n
		}
	}
	if newCommit == r.commitIndex {
		return nil
	}
	r.commitIndex = newCommit
	if err := r.persistCommitLocked(); err != nil {
		return r.haltOnDurabilityFailureLocked(err)
	}
	r.metrics.CommitIndex.Set(float64(r.commitIndex))
	return nil
}

// applyCommittedLocked delivers every log entry in (last_applied,
// commit_index] to the VSM. A divergence fault halts the replica and
// writes a post-mortem record, with state_before captured pre-apply.
func (r *Replica) applyCommittedLocked() []transport.Message {
	for r.lastApplied < r.commitIndex {
		idx := r.lastApplied + 1
		entry := r.entryAtLocked(idx)

		before := r.vsm.Live()
		_, _, err := r.vsm.Execute(entry.Transition)
		if err != nil {
			expected, actual, _ := verify.Digests(err)
			pm := faults.PostMortem{
				StateBefore:    before,
				Transition:     entry.Transition,
				ExpectedDigest: expected,
				ActualDigest:   actual,
				Term:           entry.Term,
				Index:          idx,
			}
			if werr := faults.WritePostMortem(r.cfg.DataDir, pm); werr != nil {
				r.logger.Error("failed writing post-mortem record", "err", werr)
			}
			r.haltOnDivergenceLocked(err)
			return nil
		}

		r.lastApplied = idx
		r.metrics.LastApplied.Set(float64(r.lastApplied))
		if r.cond != nil {
			r.cond.Broadcast()
		}
	}
	return nil
}
