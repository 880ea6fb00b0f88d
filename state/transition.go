// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import "github.com/luxfi/ids"

// Kind tags the variant a Transition carries.
type Kind uint8

const (
	// KindWrite sets Data[Key] = Value.
	KindWrite Kind = iota + 1
	// KindDelete removes Key from Data.
	KindDelete
	// KindAddMember idempotently inserts Node into Members.
	KindAddMember
	// KindRemoveMember removes every occurrence of Node from Members.
	KindRemoveMember
	// KindElectLeader sets Leader = Node if Term exceeds the current term.
	KindElectLeader
)

func (k Kind) String() string {
	switch k {
	case KindWrite:
		return "Write"
	case KindDelete:
		return "Delete"
	case KindAddMember:
		return "AddMember"
	case KindRemoveMember:
		return "RemoveMember"
	case KindElectLeader:
		return "ElectLeader"
	default:
		return "Unknown"
	}
}

// Transition is a tagged variant describing one deterministic change to
// State. Only the fields relevant to Kind are meaningful; Apply ignores the
// rest. Transitions are immutable once appended to a log.
type Transition struct {
	Kind  Kind
	Key   string
	Value []byte
	Node  ids.NodeID
	Term  uint64
}

// Write returns a Transition that sets key to value.
func Write(key string, value []byte) Transition {
	return Transition{Kind: KindWrite, Key: key, Value: value}
}

// Delete returns a Transition that removes key.
func Delete(key string) Transition {
	return Transition{Kind: KindDelete, Key: key}
}

// AddMember returns a Transition that idempotently adds node.
func AddMember(node ids.NodeID) Transition {
	return Transition{Kind: KindAddMember, Node: node}
}

// RemoveMember returns a Transition that removes every occurrence of node.
func RemoveMember(node ids.NodeID) Transition {
	return Transition{Kind: KindRemoveMember, Node: node}
}

// ElectLeader returns a Transition that installs node as leader under term,
// a no-op at apply time unless term strictly exceeds the current term.
func ElectLeader(node ids.NodeID, term uint64) Transition {
	return Transition{Kind: KindElectLeader, Node: node, Term: term}
}

// Apply is the total, pure, deterministic state transition function.
// It never consults wall-clock, randomness, or unordered-container
// iteration order, and it always increments Clock.
func Apply(s State, t Transition) State {
	next := s.Clone()
	next.Clock++

	switch t.Kind {
	case KindWrite:
		v := make([]byte, len(t.Value))
		copy(v, t.Value)
		next.Data[t.Key] = v
	case KindDelete:
		delete(next.Data, t.Key)
	case KindAddMember:
		next.Members = addMember(next.Members, t.Node)
	case KindRemoveMember:
		next.Members = removeMember(next.Members, t.Node)
		if next.HasLeader && next.Leader == t.Node {
			// Removing the current leader also clears leadership,
			// rather than leaving a dangling reference to a node
			// that is no longer a member.
			next.HasLeader = false
			next.Leader = ids.EmptyNodeID
		}
	case KindElectLeader:
		if t.Term > next.Term {
			next.Term = t.Term
			next.HasLeader = true
			next.Leader = t.Node
		}
		// else: no-op, since a term must strictly increase to install
		// a new leader, but Clock still advances regardless — apply
		// is unconditional about the counter.
	}

	return next
}
