// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines the replica's static configuration: data
// directories, peer set, timeouts, and durability knobs. Validate
// returns the first violated invariant, the same sentinel-error idiom
// used throughout this module.
package config

import (
	"errors"
	"time"

	"github.com/luxfi/ids"

	"github.com/veritasdb/vsmraft/internal/nodeset"
)

// Sentinel errors for ReplicaConfig.Validate, one per invariant.
var (
	ErrNoDataDir               = errors.New("config: data directory is required")
	ErrEmptyMemberSet          = errors.New("config: member set must be non-empty")
	ErrDuplicateMember         = errors.New("config: member set contains a duplicate node id")
	ErrSelfNotMember           = errors.New("config: self must be a member of the replica set")
	ErrHeartbeatTooLow         = errors.New("config: heartbeat interval must be > 0")
	ErrElectionMinTooLow       = errors.New("config: election_min must be >= 10x heartbeat_interval")
	ErrElectionMaxOutOfRange   = errors.New("config: election_max must be in (election_min, 2x election_min]")
	ErrWALSegmentBytesTooLow   = errors.New("config: wal segment byte budget must be > 0")
	ErrSnapshotRetentionTooLow = errors.New("config: snapshot retention count must be >= 1")
)

// DurabilityMode selects how aggressively the WAL syncs to stable storage.
type DurabilityMode uint8

const (
	// DurabilityFsync calls fsync after every WAL append before
	// acknowledging it as durable. The safe default.
	DurabilityFsync DurabilityMode = iota
	// DurabilityBatched fsyncs once per handled pipeline event (each
	// tick and each inbound RPC) rather than after every append,
	// trading a bounded durability window for throughput. Only
	// appropriate where the deployment accepts that bound.
	DurabilityBatched
)

// ReplicaConfig is the static configuration of one replica process.
type ReplicaConfig struct {
	// Self is this replica's own node identity.
	Self ids.NodeID
	// Members is the initial replica set, self included.
	Members []ids.NodeID

	// DataDir is the directory owned exclusively by this replica,
	// holding both the WAL segment files and the snapshot store.
	DataDir string

	// HeartbeatInterval is how often a leader sends AppendEntries to
	// idle followers.
	HeartbeatInterval time.Duration
	// ElectionTimeoutMin/Max bound the randomized election timeout:
	// heartbeat_interval < election_min < election_max <=
	// 2*election_min, and election_min >= 10*heartbeat_interval.
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration

	// WALSegmentBytes is the byte budget that triggers segment
	// roll-over.
	WALSegmentBytes int64
	// Durability selects the fsync policy.
	Durability DurabilityMode

	// SnapshotRetention is how many snapshots the snapshot store keeps
	// before garbage-collecting the oldest.
	SnapshotRetention int
	// SnapshotThresholdEntries triggers an automatic snapshot once the
	// log has this many entries since the last snapshot. Zero disables
	// automatic snapshotting (operator-triggered only).
	SnapshotThresholdEntries int
}

// DefaultReplicaConfig returns a ReplicaConfig with the default timeout
// relationship applied, for the given self/members/dataDir; all other
// fields still carry sane defaults the caller may override.
func DefaultReplicaConfig(self ids.NodeID, members []ids.NodeID, dataDir string) ReplicaConfig {
	const heartbeat = 50 * time.Millisecond
	return ReplicaConfig{
		Self:                     self,
		Members:                  members,
		DataDir:                  dataDir,
		HeartbeatInterval:        heartbeat,
		ElectionTimeoutMin:       10 * heartbeat,
		ElectionTimeoutMax:       20 * heartbeat,
		WALSegmentBytes:          64 << 20,
		Durability:               DurabilityFsync,
		SnapshotRetention:        3,
		SnapshotThresholdEntries: 10_000,
	}
}

// Validate validates c, returning the first violated invariant.
func (c ReplicaConfig) Validate() error {
	if c.DataDir == "" {
		return ErrNoDataDir
	}
	if len(c.Members) == 0 {
		return ErrEmptyMemberSet
	}
	members := nodeset.Of(c.Members...)
	if members.Len() != len(c.Members) {
		return ErrDuplicateMember
	}
	if !members.Contains(c.Self) {
		return ErrSelfNotMember
	}
	if c.HeartbeatInterval <= 0 {
		return ErrHeartbeatTooLow
	}
	if c.ElectionTimeoutMin < 10*c.HeartbeatInterval {
		return ErrElectionMinTooLow
	}
	if c.ElectionTimeoutMax <= c.ElectionTimeoutMin || c.ElectionTimeoutMax > 2*c.ElectionTimeoutMin {
		return ErrElectionMaxOutOfRange
	}
	if c.WALSegmentBytes <= 0 {
		return ErrWALSegmentBytesTooLow
	}
	if c.SnapshotRetention < 1 {
		return ErrSnapshotRetentionTooLow
	}
	return nil
}
