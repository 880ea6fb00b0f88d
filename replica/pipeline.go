// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package replica implements the replica pipeline: the single-actor tick
// loop that drives timers, drains inbound RPCs into the consensus role
// machine, drives leader replication, advances applied entries into the
// VSM, and emits outbound RPCs — wiring together wal, snapshot,
// recovery, consensus and transport.
package replica

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/veritasdb/vsmraft/config"
	"github.com/veritasdb/vsmraft/consensus"
	"github.com/veritasdb/vsmraft/faults"
	"github.com/veritasdb/vsmraft/internal/metrics"
	nooplog "github.com/veritasdb/vsmraft/log"
	"github.com/veritasdb/vsmraft/recovery"
	"github.com/veritasdb/vsmraft/snapshot"
	"github.com/veritasdb/vsmraft/state"
	"github.com/veritasdb/vsmraft/transport"
	"github.com/veritasdb/vsmraft/wal"
	"github.com/veritasdb/vsmraft/wire"
)

// inboxSize bounds how many inbound RPCs may queue between ticks before
// the transport handler starts dropping them; dropped RPCs are retried
// by the sender's own backoff.
const inboxSize = 256

// Pipeline wires one replica's durability, verification, and consensus
// layers together and drives them from a single tick loop; all state
// mutation happens on that one goroutine.
type Pipeline struct {
	cfg       config.ReplicaConfig
	wal       wal.Log
	snapshots *snapshot.Store
	consensus *consensus.Replica
	transport transport.Transport
	metrics   *metrics.Metrics
	logger    log.Logger

	tickInterval time.Duration

	inbox chan transport.Message

	entriesSinceSnapshot int

	mu      sync.Mutex
	stopped bool
}

// Open opens (or recovers) the on-disk state in cfg.DataDir and
// constructs a Pipeline ready to Run. It performs the recovery
// procedure (load latest snapshot, replay the WAL suffix) before
// returning.
func Open(cfg config.ReplicaConfig, tr transport.Transport, reg prometheus.Registerer, logger log.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = nooplog.NewNoOpLogger()
	}

	w, err := wal.Open(filepath.Join(cfg.DataDir, "wal"), cfg.WALSegmentBytes, cfg.Durability)
	if err != nil {
		return nil, err
	}
	snaps, err := snapshot.Open(filepath.Join(cfg.DataDir, "snapshots"), cfg.SnapshotRetention)
	if err != nil {
		return nil, err
	}

	result, err := recovery.Recover(w, snaps)
	if err != nil {
		return nil, err
	}

	m := metrics.New(reg)
	rep := consensus.New(cfg, w, result.VSM, consensus.Init{
		CurrentTerm:   result.CurrentTerm,
		HasVotedFor:   result.HasVotedFor,
		VotedFor:      result.VotedFor,
		Log:           result.Log,
		SnapshotIndex: result.SnapshotIndex,
		SnapshotTerm:  result.SnapshotTerm,
		CommitIndex:   result.CommitIndex,
		LastApplied:   result.LastApplied,
	}, m, logger, time.Now())

	p := &Pipeline{
		cfg:          cfg,
		wal:          w,
		snapshots:    snaps,
		consensus:    rep,
		transport:    tr,
		metrics:      m,
		logger:       logger,
		tickInterval: tickIntervalFor(cfg),
		inbox:        make(chan transport.Message, inboxSize),
	}

	tr.RegisterHandler(func(from ids.NodeID, msg transport.Message) {
		select {
		case p.inbox <- msg:
		default:
			p.logger.Warn("dropping inbound RPC, pipeline inbox full", "from", from, "kind", msg.Kind)
		}
	})

	return p, nil
}

// tickIntervalFor picks a tick cadence fine enough to keep the
// heartbeat and election timers accurate without busy-looping: a
// fraction of the heartbeat interval.
func tickIntervalFor(cfg config.ReplicaConfig) time.Duration {
	interval := cfg.HeartbeatInterval / 4
	if interval <= 0 {
		interval = time.Millisecond
	}
	return interval
}

// Run drives the tick loop until ctx is cancelled: each iteration drives
// timers, drains inbound RPCs, drives leader replication, advances
// last_applied, and emits outbound messages. It returns after a
// graceful-shutdown sequence: drain inbound queues, flush the WAL,
// exit.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.transport.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.shutdown()
		case msg := <-p.inbox:
			out := p.consensus.Handle(time.Now(), msg)
			if err := p.flushBatched(); err != nil {
				return err
			}
			p.send(ctx, out)
		case now := <-ticker.C:
			out := p.consensus.Tick(now)
			if err := p.flushBatched(); err != nil {
				return err
			}
			p.send(ctx, out)
			p.maybeAutoSnapshot()
		}
	}
}

// flushBatched applies the durability barrier once per batch of work
// under DurabilityBatched, before any message depending on the batch's
// appends is sent; under DurabilityFsync every append already synced
// itself. A failed barrier is fatal: the replica must not continue as if
// the records were durable.
func (p *Pipeline) flushBatched() error {
	if p.cfg.Durability != config.DurabilityBatched {
		return nil
	}
	start := time.Now()
	if err := p.wal.Sync(); err != nil {
		return err
	}
	p.metrics.WALFlushLatency.Observe(time.Since(start).Seconds())
	return nil
}

// send dispatches every outbound message to its addressed peer,
// tolerating per-peer send failures: the next tick's replication pass
// retries whatever didn't get through.
func (p *Pipeline) send(ctx context.Context, out []transport.Message) {
	for _, m := range out {
		if err := p.transport.Send(ctx, m.To, m); err != nil {
			p.logger.Warn("send failed, will retry on next tick", "to", m.To, "kind", m.Kind, "err", err)
		}
	}
}

func (p *Pipeline) shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true

	// Drain anything still queued; nothing further will be dispatched
	// once stopped, and no best-effort persistence is left in memory.
	for {
		select {
		case <-p.inbox:
		default:
			goto drained
		}
	}
drained:
	var errs faults.Errs
	errs.Add(p.transport.Stop())
	errs.Add(p.wal.Sync())
	errs.Add(p.wal.Close())
	return errs.Err()
}

// Propose appends t to the leader's log and blocks, cooperatively, until
// the entry is committed and applied without fault or ctx is done.
func (p *Pipeline) Propose(ctx context.Context, t state.Transition) (uint64, error) {
	index, err := p.consensus.Propose(t)
	if err != nil {
		return 0, err
	}
	if _, err := p.consensus.ReadAt(ctx, index); err != nil {
		return 0, err
	}
	return index, nil
}

// ReadAt exposes the read-barrier path directly, for reads that don't
// need to propose anything new.
func (p *Pipeline) ReadAt(ctx context.Context, minAppliedIndex uint64) (state.State, error) {
	return p.consensus.ReadAt(ctx, minAppliedIndex)
}

// Status reports the replica's current role, term, and index state.
func (p *Pipeline) Status() consensus.Status {
	return p.consensus.Status()
}

// AddMember proposes a transition admitting node into state.Members.
func (p *Pipeline) AddMember(ctx context.Context, node ids.NodeID) (uint64, error) {
	return p.Propose(ctx, state.AddMember(node))
}

// RemoveMember proposes a transition removing node from state.Members.
func (p *Pipeline) RemoveMember(ctx context.Context, node ids.NodeID) (uint64, error) {
	return p.Propose(ctx, state.RemoveMember(node))
}

// TransferLeadership asks the leader to hand off to target immediately;
// target may be the zero ids.NodeID to let the leader pick the
// best-positioned peer itself.
func (p *Pipeline) TransferLeadership(ctx context.Context, target ids.NodeID) error {
	out, err := p.consensus.TransferLeadership(target)
	if err != nil {
		return err
	}
	p.send(ctx, out)
	return nil
}

// Snapshot forces an immediate snapshot of the current live state, then
// compacts the WAL up to the snapshotted index.
func (p *Pipeline) Snapshot(ctx context.Context) error {
	lastIndex, lastTerm := p.consensus.SnapshotInfo()
	snap := wire.Snapshot{
		LastIndex: lastIndex,
		LastTerm:  lastTerm,
		State:     p.consensus.LiveState(),
	}
	freed, err := p.snapshots.Save(snap)
	if err != nil {
		return err
	}
	p.metrics.SnapshotsTaken.Inc()
	p.metrics.SnapshotBytesFreed.Add(float64(freed))
	p.entriesSinceSnapshot = 0
	return p.wal.Compact(lastIndex)
}

// Compact runs WAL compaction directly, independent of taking a new
// snapshot (e.g. after an out-of-band snapshot transfer during
// catch-up).
func (p *Pipeline) Compact(beforeIndex uint64) error {
	return p.wal.Compact(beforeIndex)
}

// maybeAutoSnapshot takes a snapshot once SnapshotThresholdEntries
// newly-applied entries have accumulated since the last one. It is an
// opt-in automatic policy layered on top of the operator-triggered
// Snapshot; zero disables it.
func (p *Pipeline) maybeAutoSnapshot() {
	if p.cfg.SnapshotThresholdEntries <= 0 {
		return
	}
	status := p.consensus.Status()
	p.entriesSinceSnapshot = int(status.LastApplied) - p.lastSnapshotIndex()
	if p.entriesSinceSnapshot < p.cfg.SnapshotThresholdEntries {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.tickInterval)
	defer cancel()
	if err := p.Snapshot(ctx); err != nil {
		p.logger.Warn("automatic snapshot failed", "err", err)
	}
}

func (p *Pipeline) lastSnapshotIndex() int {
	snap, ok, err := p.snapshots.LoadLatest()
	if err != nil || !ok {
		return 0
	}
	return int(snap.LastIndex)
}
