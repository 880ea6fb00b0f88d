// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"time"

	"github.com/veritasdb/vsmraft/state"
	"github.com/veritasdb/vsmraft/transport"
)

// Status is a point-in-time snapshot of a replica's role machine: role,
// term, commit index, last applied index, and a health flag.
type Status struct {
	Role        Role
	Term        uint64
	CommitIndex uint64
	LastApplied uint64
	Healthy     bool
}

// Protocol is the role-and-protocol interface the VSM/WAL/recovery
// layers are written against, so that a Byzantine (PBFT) or
// geo-distributed (EPaxos) variant could implement it without touching
// those layers. *Replica is the crash-fault-tolerant implementation;
// no other implementation is required here.
type Protocol interface {
	// Tick advances timers and drives the leader replication loop,
	// returning any outbound messages the caller (the replica
	// pipeline) must send.
	Tick(now time.Time) []transport.Message

	// Handle processes one inbound RPC, returning any outbound
	// messages it produces (a direct reply, and/or further replication
	// traffic it triggers). now is supplied by the caller (the replica
	// pipeline) so timer resets stay deterministic and testable, the
	// same way Tick takes now rather than reading the wall clock
	// itself.
	Handle(now time.Time, msg transport.Message) []transport.Message

	// Propose appends a client transition to the leader's log and
	// begins replicating it. Returns the log index it was assigned.
	// Fails with faults.KindClientValidation if this replica is not
	// the leader.
	Propose(t state.Transition) (index uint64, err error)

	// Status returns a point-in-time snapshot for the status query
	// operation.
	Status() Status
}

var _ Protocol = (*Replica)(nil)
