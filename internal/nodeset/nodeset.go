// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package nodeset provides a set of replica node identifiers with stable,
// deterministic iteration order, used by config.Validate to detect
// duplicate members. Members are conceptually a set, but digests
// need a stable ordering, so List returns results in the ascending byte
// order the wire and digest packages require rather than arbitrary map
// iteration.
package nodeset

import (
	"bytes"
	"sort"

	"golang.org/x/exp/maps"

	"github.com/luxfi/ids"
)

const minSize = 8

// Set is a set of node identifiers.
type Set map[ids.NodeID]struct{}

// Of returns a Set initialized with nodeIDs.
func Of(nodeIDs ...ids.NodeID) Set {
	s := make(Set, max(minSize, 2*len(nodeIDs)))
	s.Add(nodeIDs...)
	return s
}

// Add inserts elts into the set; duplicates are no-ops.
func (s *Set) Add(elts ...ids.NodeID) {
	if *s == nil {
		*s = make(Set, max(minSize, 2*len(elts)))
	}
	for _, e := range elts {
		(*s)[e] = struct{}{}
	}
}

// Remove deletes elts from the set.
func (s *Set) Remove(elts ...ids.NodeID) {
	for _, e := range elts {
		delete(*s, e)
	}
}

// Contains reports whether the set contains elt.
func (s Set) Contains(elt ids.NodeID) bool {
	_, ok := s[elt]
	return ok
}

// Len returns the number of elements in the set.
func (s Set) Len() int {
	return len(s)
}

// List returns the set's elements in ascending node-id byte order, the
// order State.Members and wire.EncodeStateMembers require for
// deterministic digests.
func (s Set) List() []ids.NodeID {
	elts := maps.Keys(s)
	sort.Slice(elts, func(i, j int) bool {
		return bytes.Compare(elts[i][:], elts[j][:]) < 0
	})
	return elts
}

// Equals reports whether s and other contain the same elements.
func (s Set) Equals(other Set) bool {
	return maps.Equal(s, other)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
