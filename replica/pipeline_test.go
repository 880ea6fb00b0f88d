// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replica_test

import (
	"context"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/veritasdb/vsmraft/config"
	"github.com/veritasdb/vsmraft/digest"
	"github.com/veritasdb/vsmraft/replica"
	"github.com/veritasdb/vsmraft/state"
	"github.com/veritasdb/vsmraft/transport"
	"github.com/veritasdb/vsmraft/transport/transportmock"
)

func testConfig(self ids.NodeID, members []ids.NodeID, dir string) config.ReplicaConfig {
	cfg := config.DefaultReplicaConfig(self, members, dir)
	cfg.HeartbeatInterval = 3 * time.Millisecond
	cfg.ElectionTimeoutMin = 30 * time.Millisecond
	cfg.ElectionTimeoutMax = 60 * time.Millisecond
	return cfg
}

// TestSingleReplicaDurabilityAcrossRestart checks that writes and a
// delete survive a restart, with the deleted key absent and the clock
// reflecting every applied transition.
func TestSingleReplicaDurabilityAcrossRestart(t *testing.T) {
	self := ids.GenerateTestNodeID()
	dir := t.TempDir()
	cfg := testConfig(self, []ids.NodeID{self}, dir)

	net := transport.NewNetwork()
	tr := net.NewTransport(self)
	p, err := replica.Open(cfg, tr, prometheus.NewRegistry(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		return p.Status().Role.String() == "leader"
	}, time.Second, time.Millisecond)

	callCtx, callCancel := context.WithTimeout(context.Background(), time.Second)
	defer callCancel()
	_, err = p.Propose(callCtx, state.Write("k", []byte("v1")))
	require.NoError(t, err)
	_, err = p.Propose(callCtx, state.Write("k", []byte("v2")))
	require.NoError(t, err)
	_, err = p.Propose(callCtx, state.Delete("k"))
	require.NoError(t, err)

	cancel()
	require.NoError(t, <-done)

	// Simulate a crash-restart: reopen the same data directory and let
	// recovery reconstruct state from the WAL.
	net2 := transport.NewNetwork()
	tr2 := net2.NewTransport(self)
	p2, err := replica.Open(cfg, tr2, prometheus.NewRegistry(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p2 })

	readCtx, readCancel := context.WithTimeout(context.Background(), time.Second)
	defer readCancel()
	live, err := p2.ReadAt(readCtx, 3)
	require.NoError(t, err)
	_, hasKey := live.Data["k"]
	require.False(t, hasKey)
	require.Equal(t, uint64(3), live.Clock)
}

// TestRunStartsAndStopsTransport pins the pipeline's transport
// lifecycle: handler registration at Open, Start when Run begins, Stop
// during graceful shutdown.
func TestRunStartsAndStopsTransport(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := transportmock.NewMockTransport(ctrl)
	tr.EXPECT().RegisterHandler(gomock.Any())
	tr.EXPECT().Start(gomock.Any()).Return(nil)
	tr.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	tr.EXPECT().Stop().Return(nil)

	self := ids.GenerateTestNodeID()
	cfg := testConfig(self, []ids.NodeID{self}, t.TempDir())
	p, err := replica.Open(cfg, tr, prometheus.NewRegistry(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))
}

// TestSnapshotCompactRestartRecoversSameState takes a snapshot, compacts
// the WAL behind it, restarts the replica, and checks recovery lands on
// the same state digest the live replica had before the crash.
func TestSnapshotCompactRestartRecoversSameState(t *testing.T) {
	self := ids.GenerateTestNodeID()
	dir := t.TempDir()
	cfg := testConfig(self, []ids.NodeID{self}, dir)

	net := transport.NewNetwork()
	p, err := replica.Open(cfg, net.NewTransport(self), prometheus.NewRegistry(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		return p.Status().Role.String() == "leader"
	}, time.Second, time.Millisecond)

	callCtx, callCancel := context.WithTimeout(context.Background(), time.Second)
	defer callCancel()
	var lastIndex uint64
	for i := 0; i < 5; i++ {
		lastIndex, err = p.Propose(callCtx, state.Write("k", []byte{byte('0' + i)}))
		require.NoError(t, err)
	}

	snapCtx, snapCancel := context.WithTimeout(context.Background(), time.Second)
	defer snapCancel()
	require.NoError(t, p.Snapshot(snapCtx))

	before, err := p.ReadAt(callCtx, lastIndex)
	require.NoError(t, err)

	cancel()
	require.NoError(t, <-done)

	net2 := transport.NewNetwork()
	p2, err := replica.Open(cfg, net2.NewTransport(self), prometheus.NewRegistry(), nil)
	require.NoError(t, err)

	after, err := p2.ReadAt(callCtx, 0)
	require.NoError(t, err)
	require.Equal(t, digest.Canonical(before), digest.Canonical(after))

	// Indexing continues past the snapshot boundary after restart.
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	go p2.Run(ctx2)

	require.Eventually(t, func() bool {
		return p2.Status().Role.String() == "leader"
	}, time.Second, time.Millisecond)

	proposeCtx, proposeCancel := context.WithTimeout(context.Background(), time.Second)
	defer proposeCancel()
	index, err := p2.Propose(proposeCtx, state.Write("k2", []byte("v")))
	require.NoError(t, err)
	require.Equal(t, lastIndex+1, index)
}

// TestThreeReplicaClusterElectsLeaderAndReplicates checks that a write
// proposed at the elected leader reaches every replica's applied state.
func TestThreeReplicaClusterElectsLeaderAndReplicates(t *testing.T) {
	a := ids.GenerateTestNodeID()
	b := ids.GenerateTestNodeID()
	c := ids.GenerateTestNodeID()
	members := []ids.NodeID{a, b, c}
	net := transport.NewNetwork()

	pipelines := make(map[ids.NodeID]*replica.Pipeline, 3)
	for _, id := range members {
		cfg := testConfig(id, members, t.TempDir())
		p, err := replica.Open(cfg, net.NewTransport(id), prometheus.NewRegistry(), nil)
		require.NoError(t, err)
		pipelines[id] = p
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, p := range pipelines {
		go p.Run(ctx)
	}

	var leader *replica.Pipeline
	require.Eventually(t, func() bool {
		count := 0
		for _, p := range pipelines {
			if p.Status().Role.String() == "leader" {
				count++
				leader = p
			}
		}
		return count == 1
	}, 2*time.Second, 2*time.Millisecond)

	proposeCtx, proposeCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer proposeCancel()
	index, err := leader.Propose(proposeCtx, state.Write("x", []byte("1")))
	require.NoError(t, err)

	for _, p := range pipelines {
		readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
		live, err := p.ReadAt(readCtx, index)
		readCancel()
		require.NoError(t, err)
		require.Equal(t, []byte("1"), live.Data["x"])
	}
}
