// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package votes tallies RequestVote responses during a candidate's
// election. It narrows a generic vote-counting bag down to the one
// thing a candidate's tally needs: has a majority of the configured
// member set granted yet. Quorum counting cares about distinct
// granters, not repeated counts.
package votes

import "github.com/luxfi/ids"

// Tally counts distinct granted votes for a single election term.
type Tally struct {
	granted map[ids.NodeID]struct{}
	total   int
}

// NewTally returns an empty tally for a cluster of the given total member
// count (self included).
func NewTally(total int) *Tally {
	return &Tally{granted: make(map[ids.NodeID]struct{}, total), total: total}
}

// Grant records that voter granted its vote. Recording the same voter
// twice is a no-op: the tally tracks whether a voter has granted, not
// how many times.
func (t *Tally) Grant(voter ids.NodeID) {
	t.granted[voter] = struct{}{}
}

// Count returns the number of distinct voters that have granted so far.
func (t *Tally) Count() int {
	return len(t.granted)
}

// HasMajority reports whether enough distinct voters have granted to
// constitute a majority of total. A candidate wins an election upon
// receiving votes from a majority of the configured member set,
// including itself.
func (t *Tally) HasMajority() bool {
	return t.Count() > t.total/2
}
