// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state defines the replicated data model and the deterministic
// apply function that advances it. Everything here must be pure: no
// wall-clock, no randomness, no iteration over an unordered container.
package state

import (
	"bytes"
	"errors"
	"sort"

	"github.com/luxfi/ids"
)

// State is the replicated value. It is owned by whichever VSM holds it;
// callers that need to keep a copy must call Clone.
type State struct {
	Clock     uint64
	Term      uint64
	HasLeader bool
	Leader    ids.NodeID
	// Members is kept sorted ascending by node-id bytes at all times so
	// that iteration order is reproducible without extra sorting at
	// digest time.
	Members []ids.NodeID
	Data    map[string][]byte
}

// New returns an empty initial state.
func New() State {
	return State{
		Data: make(map[string][]byte),
	}
}

// Clone returns a deep, independent copy of s.
func (s State) Clone() State {
	members := make([]ids.NodeID, len(s.Members))
	copy(members, s.Members)

	data := make(map[string][]byte, len(s.Data))
	for k, v := range s.Data {
		cp := make([]byte, len(v))
		copy(cp, v)
		data[k] = cp
	}

	return State{
		Clock:     s.Clock,
		Term:      s.Term,
		HasLeader: s.HasLeader,
		Leader:    s.Leader,
		Members:   members,
		Data:      data,
	}
}

// SortedKeys returns the keys of Data in ascending order, the order used by
// canonical serialization and digest computation.
func (s State) SortedKeys() []string {
	keys := make([]string, 0, len(s.Data))
	for k := range s.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var (
	// ErrDuplicateMember is returned by Validate when Members contains
	// the same node id more than once.
	ErrDuplicateMember = errors.New("state: duplicate member")
	// ErrLeaderNotMember is returned by Validate when Leader is set but
	// absent from Members.
	ErrLeaderNotMember = errors.New("state: leader is not a member")
)

// Validate checks the invariants that must hold of any single state:
// members uniqueness and leader-in-members. Clock monotonicity is a
// cross-transition property, not a single-state property, and is not
// checked here.
func (s State) Validate() error {
	seen := make(map[ids.NodeID]struct{}, len(s.Members))
	for _, m := range s.Members {
		if _, ok := seen[m]; ok {
			return ErrDuplicateMember
		}
		seen[m] = struct{}{}
	}
	if s.HasLeader {
		if _, ok := seen[s.Leader]; !ok {
			return ErrLeaderNotMember
		}
	}
	return nil
}

func nodeLess(a, b ids.NodeID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// addMember inserts node into members, keeping ascending order, and is a
// no-op if node is already present: AddMember is idempotent.
func addMember(members []ids.NodeID, node ids.NodeID) []ids.NodeID {
	i := sort.Search(len(members), func(i int) bool { return !nodeLess(members[i], node) })
	if i < len(members) && members[i] == node {
		return members
	}
	members = append(members, ids.EmptyNodeID)
	copy(members[i+1:], members[i:])
	members[i] = node
	return members
}

// removeMember deletes every occurrence of node (there should be at most
// one, since addMember is idempotent, but RemoveMember's contract is
// "removes all occurrences").
func removeMember(members []ids.NodeID, node ids.NodeID) []ids.NodeID {
	out := members[:0]
	for _, m := range members {
		if m != node {
			out = append(out, m)
		}
	}
	return out
}
