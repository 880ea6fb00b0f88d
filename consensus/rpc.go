// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"errors"
	"time"

	"github.com/veritasdb/vsmraft/faults"
	"github.com/veritasdb/vsmraft/transport"
)

var errDuplicateLeader = errors.New("consensus: observed AppendEntries from a second leader in the current term")

// Handle implements Protocol. It dispatches on msg.Kind to the matching
// RPC handler; each handler runs to completion before Handle returns, so
// inbound messages are never interleaved with each other.
func (r *Replica) Handle(now time.Time, msg transport.Message) []transport.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.role == Halted {
		return nil
	}

	switch msg.Kind {
	case transport.KindRequestVote:
		return r.handleRequestVoteLocked(now, msg)
	case transport.KindRequestVoteResponse:
		return r.handleRequestVoteResponseLocked(now, msg)
	case transport.KindAppendEntries:
		return r.handleAppendEntriesLocked(now, msg)
	case transport.KindAppendEntriesResponse:
		return r.handleAppendEntriesResponseLocked(now, msg)
	case transport.KindTimeoutNow:
		return r.handleTimeoutNowLocked(now, msg)
	default:
		r.logger.Warn("dropping message of unknown kind", "kind", msg.Kind, "from", msg.From)
		return nil
	}
}

// maybeStepDownOnTermLocked reverts the replica to Follower under the new
// term whenever a peer message carries a higher term than ours. Returns
// false if the replica halted while persisting the new term.
func (r *Replica) maybeStepDownOnTermLocked(msgTerm uint64, now time.Time) bool {
	if msgTerm <= r.currentTerm {
		return true
	}
	return r.stepDownLocked(msgTerm, now) == nil
}

// becomeFollowerSameTermLocked converts a Candidate to Follower without
// changing term or vote: the vote already cast for this term stands,
// only the role changes.
func (r *Replica) becomeFollowerSameTermLocked(now time.Time) {
	r.role = Follower
	r.tally = nil
	r.nextIndex = nil
	r.matchIndex = nil
	r.hasTransferTarget = false
	r.resetElectionTimerLocked(now)
	r.metrics.RoleTransitions.WithLabelValues(Follower.String()).Inc()
}

// handleRequestVoteLocked decides whether to grant a vote to a candidate.
func (r *Replica) handleRequestVoteLocked(now time.Time, msg transport.Message) []transport.Message {
	if !r.maybeStepDownOnTermLocked(msg.Term, now) {
		return nil
	}

	reply := transport.Message{
		Kind: transport.KindRequestVoteResponse,
		From: r.cfg.Self,
		To:   msg.From,
		Term: r.currentTerm,
	}

	if msg.Term < r.currentTerm {
		reply.VoteGranted = false
		return []transport.Message{reply}
	}

	alreadyVotedElsewhere := r.hasVotedFor && r.votedFor != msg.From
	candidateUpToDate := msg.LastLogTerm > r.lastLogTermLocked() ||
		(msg.LastLogTerm == r.lastLogTermLocked() && msg.LastLogIndex >= r.lastLogIndexLocked())

	if !alreadyVotedElsewhere && candidateUpToDate {
		r.hasVotedFor = true
		r.votedFor = msg.From
		if err := r.persistMetadataLocked(); err != nil {
			r.haltOnDurabilityFailureLocked(err)
			return nil
		}
		r.resetElectionTimerLocked(now)
		reply.VoteGranted = true
	}

	return []transport.Message{reply}
}

// handleRequestVoteResponseLocked tallies a vote response against the
// candidate's in-flight election; a strict majority of the voter set in
// the same term promotes the candidate to leader.
func (r *Replica) handleRequestVoteResponseLocked(now time.Time, msg transport.Message) []transport.Message {
	if !r.maybeStepDownOnTermLocked(msg.Term, now) {
		return nil
	}
	if r.role != Candidate || msg.Term != r.currentTerm || !msg.VoteGranted {
		return nil
	}
	r.tally.Grant(msg.From)
	if r.tally.HasMajority() {
		return r.becomeLeaderLocked(now)
	}
	return nil
}

// conflictHintLocked computes a follower-supplied backtrack hint so the
// leader can skip straight to the first index of the conflicting term
// instead of decrementing next_index one entry at a time; returns one
// past the end of the log if prevIndex doesn't exist at all.
func (r *Replica) conflictHintLocked(prevIndex uint64) uint64 {
	if prevIndex <= r.snapshotIndex || prevIndex > r.lastLogIndexLocked() {
		return r.lastLogIndexLocked() + 1
	}
	conflictTerm := r.entryAtLocked(prevIndex).Term
	i := prevIndex
	for i > r.snapshotIndex+1 && r.entryAtLocked(i-1).Term == conflictTerm {
		i--
	}
	return i
}

// handleAppendEntriesLocked validates and appends a leader's replicated
// entries, enforcing the prev_log_index/prev_log_term consistency check
// before accepting anything onto the local log.
func (r *Replica) handleAppendEntriesLocked(now time.Time, msg transport.Message) []transport.Message {
	reject := func() []transport.Message {
		return []transport.Message{{
			Kind: transport.KindAppendEntriesResponse,
			From: r.cfg.Self, To: msg.From, Term: r.currentTerm,
			Success: false,
		}}
	}

	if msg.Term < r.currentTerm {
		return reject()
	}
	if msg.Term > r.currentTerm {
		if err := r.stepDownLocked(msg.Term, now); err != nil {
			return nil
		}
	} else if r.role == Candidate {
		r.becomeFollowerSameTermLocked(now)
	} else if r.role == Leader {
		// Two leaders in the same term would violate election safety;
		// treat as a protocol violation from a confused/stale peer and
		// drop it rather than stepping down.
		err := faults.ProtocolViolation(errDuplicateLeader, "duplicate leader observed in current term")
		r.logger.Warn("dropping AppendEntries from another leader in our own term",
			"term", msg.Term, "from", msg.From, "err", err)
		return nil
	}

	r.hasLeader = true
	r.leaderID = msg.From
	r.resetElectionTimerLocked(now)

	// A prev index at or below our snapshot boundary is committed and
	// subsumed, so it matches by construction; only held entries need
	// the term check.
	if msg.PrevLogIndex > r.snapshotIndex {
		term, ok := r.termAtLocked(msg.PrevLogIndex)
		if !ok || term != msg.PrevLogTerm {
			reply := transport.Message{
				Kind: transport.KindAppendEntriesResponse,
				From: r.cfg.Self, To: msg.From, Term: r.currentTerm,
				Success:       false,
				ConflictIndex: r.conflictHintLocked(msg.PrevLogIndex),
			}
			return []transport.Message{reply}
		}
	}

	for i, e := range msg.Entries {
		idx := msg.PrevLogIndex + uint64(i) + 1
		if idx <= r.snapshotIndex {
			continue
		}
		if idx <= r.lastLogIndexLocked() {
			if r.entryAtLocked(idx).Term == e.Term {
				continue
			}
			// Conflicting entry: truncate the suffix from here on.
			// Safe because a leader never asks a follower to
			// overwrite an entry already known committed.
			r.log = r.log[:idx-r.snapshotIndex-1]
		}
		r.log = append(r.log, e)
		if err := r.persistEntryLocked(e); err != nil {
			r.haltOnDurabilityFailureLocked(err)
			return nil
		}
	}

	matchIndex := msg.PrevLogIndex
	if len(msg.Entries) > 0 {
		matchIndex = msg.PrevLogIndex + uint64(len(msg.Entries))
	}

	if msg.LeaderCommit > r.commitIndex {
		newCommit := msg.LeaderCommit
		if matchIndex < newCommit {
			newCommit = matchIndex
		}
		r.commitIndex = newCommit
		if err := r.persistCommitLocked(); err != nil {
			r.haltOnDurabilityFailureLocked(err)
			return nil
		}
		r.metrics.CommitIndex.Set(float64(r.commitIndex))
	}

	return []transport.Message{{
		Kind: transport.KindAppendEntriesResponse,
		From: r.cfg.Self, To: msg.From, Term: r.currentTerm,
		Success: true, MatchIndex: matchIndex,
	}}
}

// handleAppendEntriesResponseLocked updates peer-progress tracking and
// drives commit-index advancement once the follower's match index moves.
func (r *Replica) handleAppendEntriesResponseLocked(now time.Time, msg transport.Message) []transport.Message {
	if !r.maybeStepDownOnTermLocked(msg.Term, now) {
		return nil
	}
	if r.role != Leader || msg.Term != r.currentTerm {
		return nil
	}

	if !msg.Success {
		if msg.ConflictIndex > 0 {
			r.nextIndex[msg.From] = msg.ConflictIndex
		} else if r.nextIndex[msg.From] > 1 {
			r.nextIndex[msg.From]--
		}
		return []transport.Message{r.appendEntriesForLocked(msg.From)}
	}

	if msg.MatchIndex > r.matchIndex[msg.From] {
		r.matchIndex[msg.From] = msg.MatchIndex
	}
	r.nextIndex[msg.From] = msg.MatchIndex + 1
	r.metrics.ReplicationLag.WithLabelValues(msg.From.String()).Set(float64(r.lastLogIndexLocked() - r.matchIndex[msg.From]))

	if err := r.advanceCommitIndexLocked(); err != nil {
		return nil
	}
	return r.applyCommittedLocked()
}

// handleTimeoutNowLocked handles a leadership-transfer request: a peer
// asked to take over immediately starts an election without waiting out
// its own timer.
func (r *Replica) handleTimeoutNowLocked(now time.Time, msg transport.Message) []transport.Message {
	if msg.Term < r.currentTerm {
		return nil
	}
	return r.startElectionLocked(now)
}
