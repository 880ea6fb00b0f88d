// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package consensus implements the per-node role machine:
// Follower/Candidate/Leader, persistent term+vote+log, volatile
// commit/apply indexes, and leader-only peer progress tracking. One
// mutex-guarded struct drives the role state machine to completion per
// event; events are never interleaved.
package consensus

import (
	"math/rand"
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/veritasdb/vsmraft/config"
	"github.com/veritasdb/vsmraft/faults"
	"github.com/veritasdb/vsmraft/internal/metrics"
	"github.com/veritasdb/vsmraft/internal/votes"
	nooplog "github.com/veritasdb/vsmraft/log"
	"github.com/veritasdb/vsmraft/transport"
	"github.com/veritasdb/vsmraft/verify"
	"github.com/veritasdb/vsmraft/wal"
	"github.com/veritasdb/vsmraft/wire"
)

// Init seeds a Replica's persistent and volatile state, normally
// produced by recovery.Recover on replica start: the replica enters
// Follower role with the recovered term.
type Init struct {
	CurrentTerm uint64
	HasVotedFor bool
	VotedFor    ids.NodeID
	// Log is dense, starting at SnapshotIndex+1.
	Log []wire.LogEntry
	// SnapshotIndex/SnapshotTerm are the coordinates of the last entry
	// subsumed by the recovered snapshot; zero on a fresh replica.
	SnapshotIndex uint64
	SnapshotTerm  uint64
	CommitIndex   uint64
	LastApplied   uint64
}

// Replica is the crash-fault-tolerant consensus role machine. It owns
// no transport and no timers of its own; Tick is driven by the replica
// pipeline's actor loop.
type Replica struct {
	cfg     config.ReplicaConfig
	wal     wal.Log
	vsm     *verify.VSM
	metrics *metrics.Metrics
	logger  log.Logger
	rnd     *rand.Rand

	mu sync.Mutex

	role        Role
	currentTerm uint64
	hasVotedFor bool
	votedFor    ids.NodeID
	log         []wire.LogEntry // log[i] has Index snapshotIndex+i+1

	// snapshotIndex/snapshotTerm mark where the in-memory log begins:
	// everything at or below snapshotIndex is subsumed by a snapshot
	// and no longer held entry-by-entry.
	snapshotIndex uint64
	snapshotTerm  uint64

	commitIndex uint64
	lastApplied uint64

	hasLeader bool
	leaderID  ids.NodeID

	electionDeadline  time.Time
	heartbeatDeadline time.Time

	tally *votes.Tally // non-nil only while role == Candidate

	nextIndex  map[ids.NodeID]uint64 // leader only
	matchIndex map[ids.NodeID]uint64 // leader only

	hasTransferTarget bool
	transferTarget    ids.NodeID

	haltErr error

	// cond is broadcast whenever lastApplied advances or the replica
	// halts, so ReadAt's lease-read path can wait on it instead of
	// polling.
	cond *sync.Cond
}

// New constructs a Replica from cfg and a recovered Init, starting in
// Follower role with its election timer freshly reset.
func New(cfg config.ReplicaConfig, w wal.Log, vsm *verify.VSM, init Init, m *metrics.Metrics, logger log.Logger, now time.Time) *Replica {
	if m == nil {
		m = metrics.NoOp()
	}
	if logger == nil {
		logger = nooplog.NewNoOpLogger()
	}
	r := &Replica{
		cfg:         cfg,
		wal:         w,
		vsm:         vsm,
		metrics:     m,
		logger:      logger,
		rnd:         rand.New(rand.NewSource(seedFromNodeID(cfg.Self))),
		role:          Follower,
		currentTerm:   init.CurrentTerm,
		hasVotedFor:   init.HasVotedFor,
		votedFor:      init.VotedFor,
		log:           append([]wire.LogEntry(nil), init.Log...),
		snapshotIndex: init.SnapshotIndex,
		snapshotTerm:  init.SnapshotTerm,
		commitIndex:   init.CommitIndex,
		lastApplied:   init.LastApplied,
	}
	r.cond = sync.NewCond(&r.mu)
	r.resetElectionTimerLocked(now)
	r.metrics.Term.Set(float64(r.currentTerm))
	return r
}

func seedFromNodeID(id ids.NodeID) int64 {
	var seed int64
	for i, b := range id {
		seed = seed<<1 ^ int64(b) ^ int64(i)
	}
	if seed == 0 {
		seed = 1
	}
	return seed
}

// Status implements Protocol.
func (r *Replica) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Role:        r.role,
		Term:        r.currentTerm,
		CommitIndex: r.commitIndex,
		LastApplied: r.lastApplied,
		Healthy:     r.role != Halted,
	}
}

func (r *Replica) lastLogIndexLocked() uint64 {
	return r.snapshotIndex + uint64(len(r.log))
}

func (r *Replica) lastLogTermLocked() uint64 {
	if len(r.log) == 0 {
		return r.snapshotTerm
	}
	return r.log[len(r.log)-1].Term
}

// entryAtLocked returns the log entry at index, which must be in
// (snapshotIndex, lastLogIndex].
func (r *Replica) entryAtLocked(index uint64) wire.LogEntry {
	return r.log[index-r.snapshotIndex-1]
}

// termAtLocked returns the term of the entry at index. ok=true covers
// both held entries and the snapshot boundary itself (index 0 on a
// fresh replica is the conceptual entry before the log begins, term 0).
func (r *Replica) termAtLocked(index uint64) (term uint64, ok bool) {
	if index == r.snapshotIndex {
		return r.snapshotTerm, true
	}
	if index < r.snapshotIndex || index > r.lastLogIndexLocked() {
		return 0, false
	}
	return r.entryAtLocked(index).Term, true
}

func (r *Replica) persistLocked(rec wire.Record) error {
	start := time.Now()
	err := r.wal.Append(rec)
	if err == nil {
		r.metrics.WALAppendLatency.Observe(time.Since(start).Seconds())
	}
	return err
}

func (r *Replica) persistMetadataLocked() error {
	return r.persistLocked(wire.NewMetadataRecord(r.currentTerm, r.hasVotedFor, r.votedFor))
}

func (r *Replica) persistEntryLocked(e wire.LogEntry) error {
	return r.persistLocked(wire.NewLogEntryRecord(e))
}

func (r *Replica) persistCommitLocked() error {
	return r.persistLocked(wire.NewCommitRecord(r.commitIndex))
}

// stepDownLocked converts the replica to Follower under newTerm,
// durably persisting the term and clearing voted_for. Any role steps
// down to Follower on observing a strictly greater term.
func (r *Replica) stepDownLocked(newTerm uint64, now time.Time) error {
	if r.role == Halted {
		return nil
	}
	r.role = Follower
	r.currentTerm = newTerm
	r.hasVotedFor = false
	r.votedFor = ids.EmptyNodeID
	r.tally = nil
	r.nextIndex = nil
	r.matchIndex = nil
	r.hasTransferTarget = false
	if err := r.persistMetadataLocked(); err != nil {
		return r.haltOnDurabilityFailureLocked(err)
	}
	r.resetElectionTimerLocked(now)
	r.metrics.Term.Set(float64(r.currentTerm))
	r.metrics.RoleTransitions.WithLabelValues(Follower.String()).Inc()
	return nil
}

func (r *Replica) resetElectionTimerLocked(now time.Time) {
	span := r.cfg.ElectionTimeoutMax - r.cfg.ElectionTimeoutMin
	jitter := time.Duration(0)
	if span > 0 {
		jitter = time.Duration(r.rnd.Int63n(int64(span)))
	}
	r.electionDeadline = now.Add(r.cfg.ElectionTimeoutMin + jitter)
}

func (r *Replica) haltOnDurabilityFailureLocked(err error) error {
	r.role = Halted
	r.haltErr = faults.DurabilityFailure(err, "wal append failed, halting replica")
	r.metrics.DivergenceFaults.Inc()
	if r.cond != nil {
		r.cond.Broadcast()
	}
	return r.haltErr
}

func (r *Replica) haltOnDivergenceLocked(err error) error {
	r.role = Halted
	r.haltErr = err
	r.metrics.DivergenceFaults.Inc()
	if r.cond != nil {
		r.cond.Broadcast()
	}
	return err
}

// Tick implements Protocol: it advances the election/heartbeat timers
// and, if this replica is the leader, drives the replication loop.
func (r *Replica) Tick(now time.Time) []transport.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.role == Halted {
		return nil
	}

	var out []transport.Message

	if r.role != Leader && !now.Before(r.electionDeadline) {
		out = append(out, r.startElectionLocked(now)...)
	}

	if r.role == Leader && !now.Before(r.heartbeatDeadline) {
		out = append(out, r.replicateToAllLocked()...)
		r.heartbeatDeadline = now.Add(r.cfg.HeartbeatInterval)
	}

	out = append(out, r.applyCommittedLocked()...)
	return out
}

// startElectionLocked converts the replica to Candidate for term+1 and
// returns RequestVote messages to every other member. A Follower
// becomes a Candidate when its election timeout elapses with no valid
// leader contact.
func (r *Replica) startElectionLocked(now time.Time) []transport.Message {
	r.role = Candidate
	r.currentTerm++
	r.hasVotedFor = true
	r.votedFor = r.cfg.Self
	r.hasLeader = false
	r.tally = votes.NewTally(len(r.cfg.Members))
	r.tally.Grant(r.cfg.Self)

	if err := r.persistMetadataLocked(); err != nil {
		r.haltOnDurabilityFailureLocked(err)
		return nil
	}
	r.resetElectionTimerLocked(now)
	r.metrics.Term.Set(float64(r.currentTerm))
	r.metrics.RoleTransitions.WithLabelValues(Candidate.String()).Inc()

	// A self-vote alone constitutes a majority in a single-replica (or
	// already-degenerate) cluster; no RequestVoteResponse will ever
	// arrive to trigger becomeLeaderLocked in that case, so check here
	// too.
	if r.tally.HasMajority() {
		return r.becomeLeaderLocked(now)
	}

	msg := transport.Message{
		Kind:         transport.KindRequestVote,
		From:         r.cfg.Self,
		Term:         r.currentTerm,
		LastLogIndex: r.lastLogIndexLocked(),
		LastLogTerm:  r.lastLogTermLocked(),
	}

	var out []transport.Message
	for _, peer := range r.cfg.Members {
		if peer == r.cfg.Self {
			continue
		}
		m := msg
		m.To = peer
		out = append(out, m)
	}
	return out
}

// becomeLeaderLocked converts the replica to Leader, reinitializing
// peer-progress state: next_index resets to log.length + 1 and
// match_index resets to 0 for every peer.
func (r *Replica) becomeLeaderLocked(now time.Time) []transport.Message {
	r.role = Leader
	r.hasLeader = true
	r.leaderID = r.cfg.Self
	r.tally = nil

	r.nextIndex = make(map[ids.NodeID]uint64, len(r.cfg.Members))
	r.matchIndex = make(map[ids.NodeID]uint64, len(r.cfg.Members))
	for _, peer := range r.cfg.Members {
		if peer == r.cfg.Self {
			continue
		}
		r.nextIndex[peer] = r.lastLogIndexLocked() + 1
		r.matchIndex[peer] = 0
	}

	r.metrics.RoleTransitions.WithLabelValues(Leader.String()).Inc()
	r.heartbeatDeadline = now
	return r.replicateToAllLocked()
}

