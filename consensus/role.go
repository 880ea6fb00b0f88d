// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

// Role is one of the three roles a replica cycles through, plus the
// terminal Halted mode a divergence or durability fault forces it into.
type Role uint8

const (
	// Follower is the initial role and the role every replica returns
	// to on seeing a strictly greater term.
	Follower Role = iota
	// Candidate is soliciting votes for a term it started itself.
	Candidate
	// Leader has received a majority of votes for its term and
	// replicates entries to the other members.
	Leader
	// Halted is terminal: the replica serves no RPCs and accepts no
	// proposals.
	Halted
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	case Halted:
		return "halted"
	default:
		return "unknown"
	}
}
