// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus_test

import (
	"errors"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/veritasdb/vsmraft/config"
	"github.com/veritasdb/vsmraft/consensus"
	"github.com/veritasdb/vsmraft/faults"
	"github.com/veritasdb/vsmraft/state"
	"github.com/veritasdb/vsmraft/transport"
	"github.com/veritasdb/vsmraft/verify"
	"github.com/veritasdb/vsmraft/wal"
	"github.com/veritasdb/vsmraft/wal/walmock"
	"github.com/veritasdb/vsmraft/wire"
)

var epoch = time.Unix(0, 0)

func newReplica(t *testing.T, self ids.NodeID, members []ids.NodeID) *consensus.Replica {
	t.Helper()
	w, err := wal.Open(t.TempDir(), 1<<20, config.DurabilityFsync)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	cfg := config.DefaultReplicaConfig(self, members, t.TempDir())
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.ElectionTimeoutMin = 100 * time.Millisecond
	cfg.ElectionTimeoutMax = 200 * time.Millisecond

	vsm := verify.New(state.New())
	return consensus.New(cfg, w, vsm, consensus.Init{}, nil, nil, epoch)
}

func threeNodeCluster(t *testing.T) (a, b, c ids.NodeID, replicas map[ids.NodeID]*consensus.Replica) {
	t.Helper()
	a = ids.GenerateTestNodeID()
	b = ids.GenerateTestNodeID()
	c = ids.GenerateTestNodeID()
	members := []ids.NodeID{a, b, c}
	replicas = map[ids.NodeID]*consensus.Replica{
		a: newReplica(t, a, members),
		b: newReplica(t, b, members),
		c: newReplica(t, c, members),
	}
	return
}

func TestElectionAfterTimeoutBecomesCandidateAndRequestsVotes(t *testing.T) {
	a, _, _, replicas := threeNodeCluster(t)
	out := replicas[a].Tick(epoch.Add(time.Second))

	require.Equal(t, consensus.Candidate, replicas[a].Status().Role)
	require.Len(t, out, 2)
	for _, m := range out {
		require.Equal(t, transport.KindRequestVote, m.Kind)
		require.Equal(t, a, m.From)
	}
	require.Equal(t, uint64(1), replicas[a].Status().Term)
}

func TestMajorityVotesElectLeader(t *testing.T) {
	a, b, _, replicas := threeNodeCluster(t)
	replicas[a].Tick(epoch.Add(time.Second))

	grant := transport.Message{Kind: transport.KindRequestVoteResponse, From: b, To: a, Term: 1, VoteGranted: true}
	out := replicas[a].Handle(epoch.Add(time.Second), grant)

	require.Equal(t, consensus.Leader, replicas[a].Status().Role)
	// becomeLeader immediately replicates (heartbeats) to both peers.
	require.Len(t, out, 2)
}

func TestOneVoteShortOfMajorityStaysCandidate(t *testing.T) {
	a, _, _, replicas := threeNodeCluster(t)
	replicas[a].Tick(epoch.Add(time.Second))
	require.Equal(t, consensus.Candidate, replicas[a].Status().Role)
	// No RequestVoteResponse delivered at all: a 3-node cluster needs 2
	// votes (self doesn't suffice), so the candidate must not have
	// promoted itself already.
	require.Equal(t, consensus.Candidate, replicas[a].Status().Role)
}

func TestSingleReplicaClusterSelfElectsImmediately(t *testing.T) {
	self := ids.GenerateTestNodeID()
	r := newReplica(t, self, []ids.NodeID{self})
	r.Tick(epoch.Add(time.Second))
	require.Equal(t, consensus.Leader, r.Status().Role)
}

func TestHigherTermMessageForcesStepDown(t *testing.T) {
	a, b, _, replicas := threeNodeCluster(t)
	replicas[a].Tick(epoch.Add(time.Second)) // a: candidate, term 1

	higherTerm := transport.Message{Kind: transport.KindAppendEntries, From: b, To: a, Term: 5}
	replicas[a].Handle(epoch.Add(time.Second), higherTerm)

	st := replicas[a].Status()
	require.Equal(t, consensus.Follower, st.Role)
	require.Equal(t, uint64(5), st.Term)
}

func TestAppendEntriesAcceptedOnEmptyFollowerLogWithZeroPrevIndex(t *testing.T) {
	a, b, _, replicas := threeNodeCluster(t)

	msg := transport.Message{
		Kind: transport.KindAppendEntries, From: b, To: a, Term: 1,
		PrevLogIndex: 0, PrevLogTerm: 0,
	}
	out := replicas[a].Handle(epoch, msg)
	require.Len(t, out, 1)
	require.Equal(t, transport.KindAppendEntriesResponse, out[0].Kind)
	require.True(t, out[0].Success)
}

func TestAppendEntriesRejectsOnLogMismatch(t *testing.T) {
	a, b, _, replicas := threeNodeCluster(t)

	msg := transport.Message{
		Kind: transport.KindAppendEntries, From: b, To: a, Term: 1,
		PrevLogIndex: 5, PrevLogTerm: 3,
	}
	out := replicas[a].Handle(epoch, msg)
	require.Len(t, out, 1)
	require.False(t, out[0].Success)
	require.Equal(t, uint64(1), out[0].ConflictIndex)
}

func TestProposeRejectedWhenNotLeader(t *testing.T) {
	a, _, _, replicas := threeNodeCluster(t)
	_, err := replicas[a].Propose(state.Write("k", []byte("v")))
	require.Error(t, err)
	require.Equal(t, faults.KindClientValidation, faults.Classify(err))
}

func TestSingleReplicaProposeCommitsAndAppliesSynchronously(t *testing.T) {
	self := ids.GenerateTestNodeID()
	r := newReplica(t, self, []ids.NodeID{self})
	r.Tick(epoch.Add(time.Second)) // self-elects

	index, err := r.Propose(state.Write("k", []byte("v")))
	require.NoError(t, err)
	require.Equal(t, uint64(1), index)

	st := r.Status()
	require.Equal(t, uint64(1), st.CommitIndex)
	require.Equal(t, uint64(1), st.LastApplied)
}

func TestCommitIndexWaitsForMajorityAck(t *testing.T) {
	self := ids.GenerateTestNodeID()
	peer := ids.GenerateTestNodeID()
	r := newReplica(t, self, []ids.NodeID{self, peer})
	r.Tick(epoch.Add(time.Second)) // candidate, term 1
	r.Handle(epoch.Add(time.Second), transport.Message{
		Kind: transport.KindRequestVoteResponse, From: peer, To: self, Term: 1, VoteGranted: true,
	})
	require.Equal(t, consensus.Leader, r.Status().Role)

	index, err := r.Propose(state.Write("k", []byte("v")))
	require.NoError(t, err)
	require.Equal(t, uint64(0), r.Status().CommitIndex, "not yet committed: peer hasn't acked")

	ack := transport.Message{
		Kind: transport.KindAppendEntriesResponse, From: peer, To: self, Term: 1,
		Success: true, MatchIndex: index,
	}
	r.Handle(epoch.Add(time.Second), ack)
	require.Equal(t, index, r.Status().CommitIndex)
	require.Equal(t, index, r.Status().LastApplied)
}

// mockedReplica builds a replica whose WAL is a walmock.MockLog, for
// asserting on exactly what gets persisted and when.
func mockedReplica(t *testing.T, ctrl *gomock.Controller, self ids.NodeID, members []ids.NodeID) (*consensus.Replica, *walmock.MockLog) {
	t.Helper()
	w := walmock.NewMockLog(ctrl)
	cfg := config.DefaultReplicaConfig(self, members, t.TempDir())
	return consensus.New(cfg, w, verify.New(state.New()), consensus.Init{}, nil, nil, epoch), w
}

func TestVoteGrantPersistsMetadataBeforeReplying(t *testing.T) {
	ctrl := gomock.NewController(t)
	self := ids.GenerateTestNodeID()
	candidate := ids.GenerateTestNodeID()
	r, w := mockedReplica(t, ctrl, self, []ids.NodeID{self, candidate})

	// Two durable writes precede the reply: the term bump from stepping
	// down to the candidate's term, then the vote itself.
	var persisted []wire.Record
	w.EXPECT().Append(gomock.Any()).DoAndReturn(func(rec wire.Record) error {
		persisted = append(persisted, rec)
		return nil
	}).Times(2)

	out := r.Handle(epoch, transport.Message{
		Kind: transport.KindRequestVote, From: candidate, To: self, Term: 1,
	})
	require.Len(t, out, 1)
	require.True(t, out[0].VoteGranted)

	require.Len(t, persisted, 2)
	vote := persisted[1]
	require.Equal(t, wire.RecordMetadata, vote.Type)
	require.True(t, vote.HasVotedFor)
	require.Equal(t, candidate, vote.VotedFor)
}

func TestWALFailureDuringVotePersistHaltsWithoutReplying(t *testing.T) {
	ctrl := gomock.NewController(t)
	self := ids.GenerateTestNodeID()
	candidate := ids.GenerateTestNodeID()
	r, w := mockedReplica(t, ctrl, self, []ids.NodeID{self, candidate})

	w.EXPECT().Append(gomock.Any()).Return(errors.New("device lost"))

	out := r.Handle(epoch, transport.Message{
		Kind: transport.KindRequestVote, From: candidate, To: self, Term: 1,
	})
	// The vote must not be acknowledged when its durability failed, and
	// the replica cannot continue as if the record were durable.
	require.Nil(t, out)
	require.Equal(t, consensus.Halted, r.Status().Role)
}

// snapshotInit builds the Init and VSM a replica would recover with
// after a snapshot at index 5, term 1: five writes applied, the log
// itself compacted away.
func snapshotInit(t *testing.T) (consensus.Init, *verify.VSM) {
	t.Helper()
	s := state.New()
	for i := 0; i < 5; i++ {
		s = state.Apply(s, state.Write("k", []byte{byte('0' + i)}))
	}
	init := consensus.Init{
		CurrentTerm:   1,
		SnapshotIndex: 5,
		SnapshotTerm:  1,
		CommitIndex:   5,
		LastApplied:   5,
	}
	return init, verify.New(s)
}

func TestProposeAfterSnapshotRecoveryContinuesIndexing(t *testing.T) {
	w, err := wal.Open(t.TempDir(), 1<<20, config.DurabilityFsync)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	self := ids.GenerateTestNodeID()
	cfg := config.DefaultReplicaConfig(self, []ids.NodeID{self}, t.TempDir())
	init, vsm := snapshotInit(t)

	r := consensus.New(cfg, w, vsm, init, nil, nil, epoch)
	r.Tick(epoch.Add(time.Second)) // self-elects
	require.Equal(t, consensus.Leader, r.Status().Role)

	index, err := r.Propose(state.Write("k", []byte("after")))
	require.NoError(t, err)
	require.Equal(t, uint64(6), index)

	st := r.Status()
	require.Equal(t, uint64(6), st.CommitIndex)
	require.Equal(t, uint64(6), st.LastApplied)
	require.Equal(t, uint64(6), r.LiveState().Clock)
}

func TestAppendEntriesAcceptedAtSnapshotBoundary(t *testing.T) {
	w, err := wal.Open(t.TempDir(), 1<<20, config.DurabilityFsync)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	self := ids.GenerateTestNodeID()
	leader := ids.GenerateTestNodeID()
	cfg := config.DefaultReplicaConfig(self, []ids.NodeID{self, leader}, t.TempDir())
	init, vsm := snapshotInit(t)

	r := consensus.New(cfg, w, vsm, init, nil, nil, epoch)

	// prev_log_index sits exactly on the snapshot boundary: the entry
	// is subsumed by the snapshot, so the consistency check passes.
	msg := transport.Message{
		Kind: transport.KindAppendEntries, From: leader, To: self, Term: 1,
		PrevLogIndex: 5, PrevLogTerm: 1,
		Entries:      []wire.LogEntry{{Term: 1, Index: 6, Transition: state.Write("k", []byte("after"))}},
		LeaderCommit: 6,
	}
	out := r.Handle(epoch, msg)
	require.Len(t, out, 1)
	require.True(t, out[0].Success)
	require.Equal(t, uint64(6), out[0].MatchIndex)

	r.Tick(epoch) // applies the newly committed entry
	require.Equal(t, uint64(6), r.Status().LastApplied)
}

func TestDivergenceFaultHaltsReplicaAndRefusesFurtherRPCs(t *testing.T) {
	w, err := wal.Open(t.TempDir(), 1<<20, config.DurabilityFsync)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	self := ids.GenerateTestNodeID()
	cfg := config.DefaultReplicaConfig(self, []ids.NodeID{self}, t.TempDir())
	vsm := verify.New(state.New())
	vsm.Corrupt = func(live *state.State) { live.Clock += 1000 }

	r := consensus.New(cfg, w, vsm, consensus.Init{}, nil, nil, epoch)
	r.Tick(epoch.Add(time.Second))

	_, err = r.Propose(state.Write("k", []byte("v")))
	require.Error(t, err)
	require.Equal(t, consensus.Halted, r.Status().Role)
	require.False(t, r.Status().Healthy)

	out := r.Handle(epoch.Add(time.Second), transport.Message{Kind: transport.KindAppendEntries, From: self, Term: 99})
	require.Nil(t, out)
}
