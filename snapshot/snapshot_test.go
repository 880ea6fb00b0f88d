// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package snapshot_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veritasdb/vsmraft/snapshot"
	"github.com/veritasdb/vsmraft/state"
	"github.com/veritasdb/vsmraft/wire"
)

func TestSaveAndLoadLatest(t *testing.T) {
	store, err := snapshot.Open(t.TempDir(), 3)
	require.NoError(t, err)

	s := state.Apply(state.New(), state.Write("k", []byte("v")))
	_, err = store.Save(wire.Snapshot{LastIndex: 1, LastTerm: 1, State: s})
	require.NoError(t, err)

	got, ok, err := store.LoadLatest()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), got.LastIndex)
	require.Equal(t, []byte("v"), got.State.Data["k"])
}

func TestLoadLatestEmptyStore(t *testing.T) {
	store, err := snapshot.Open(t.TempDir(), 3)
	require.NoError(t, err)

	_, ok, err := store.LoadLatest()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLoadLatestReturnsHighestIndex(t *testing.T) {
	store, err := snapshot.Open(t.TempDir(), 3)
	require.NoError(t, err)

	for _, idx := range []uint64{1, 5, 3} {
		_, err := store.Save(wire.Snapshot{LastIndex: idx})
		require.NoError(t, err)
	}

	got, ok, err := store.LoadLatest()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(5), got.LastIndex)
}

func TestRetentionGarbageCollectsOldest(t *testing.T) {
	store, err := snapshot.Open(t.TempDir(), 2)
	require.NoError(t, err)

	for idx := uint64(1); idx <= 4; idx++ {
		_, err := store.Save(wire.Snapshot{LastIndex: idx})
		require.NoError(t, err)
	}

	// Only the 2 most recent (3, 4) should survive.
	got, ok, err := store.LoadLatest()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(4), got.LastIndex)
}
