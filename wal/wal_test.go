// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veritasdb/vsmraft/config"
	"github.com/veritasdb/vsmraft/state"
	"github.com/veritasdb/vsmraft/wal"
	"github.com/veritasdb/vsmraft/wire"
)

func TestAppendAndReadAllRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := wal.Open(dir, 1<<20, config.DurabilityFsync)
	require.NoError(t, err)
	defer w.Close()

	entries := []wire.Record{
		wire.NewMetadataRecord(1, false, [20]byte{}),
		wire.NewLogEntryRecord(wire.LogEntry{Term: 1, Index: 1, Transition: state.Write("k", []byte("v"))}),
		wire.NewCommitRecord(1),
	}
	for _, rec := range entries {
		require.NoError(t, w.Append(rec))
	}

	got, err := w.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, wire.RecordMetadata, got[0].Type)
	require.Equal(t, wire.RecordLogEntry, got[1].Type)
	require.Equal(t, uint64(1), got[1].Entry.Index)
	require.Equal(t, wire.RecordCommit, got[2].Type)
}

func TestOpenTwiceFailsWithoutClose(t *testing.T) {
	dir := t.TempDir()
	w, err := wal.Open(dir, 1<<20, config.DurabilityFsync)
	require.NoError(t, err)
	defer w.Close()

	_, err = wal.Open(dir, 1<<20, config.DurabilityFsync)
	require.Error(t, err)
}

func TestOpenAfterCloseReopens(t *testing.T) {
	dir := t.TempDir()
	w, err := wal.Open(dir, 1<<20, config.DurabilityFsync)
	require.NoError(t, err)
	require.NoError(t, w.Append(wire.NewCommitRecord(1)))
	require.NoError(t, w.Close())

	w2, err := wal.Open(dir, 1<<20, config.DurabilityFsync)
	require.NoError(t, err)
	defer w2.Close()

	got, err := w2.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestTruncatesTrailingPartialRecordOnOpen(t *testing.T) {
	dir := t.TempDir()
	w, err := wal.Open(dir, 1<<20, config.DurabilityFsync)
	require.NoError(t, err)
	require.NoError(t, w.Append(wire.NewCommitRecord(1)))
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var segPath string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" {
			segPath = filepath.Join(dir, e.Name())
		}
	}
	require.NotEmpty(t, segPath)

	f, err := os.OpenFile(segPath, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x01, 0x02})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w2, err := wal.Open(dir, 1<<20, config.DurabilityFsync)
	require.NoError(t, err)
	defer w2.Close()

	got, err := w2.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestRotateCreatesNewSegment(t *testing.T) {
	dir := t.TempDir()
	w, err := wal.Open(dir, 1<<20, config.DurabilityFsync)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(wire.NewCommitRecord(1)))
	require.NoError(t, w.Rotate())
	require.NoError(t, w.Append(wire.NewCommitRecord(2)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	logCount := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" {
			logCount++
		}
	}
	require.Equal(t, 2, logCount)

	got, err := w.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestCompactDropsEntriesBeforeIndex(t *testing.T) {
	dir := t.TempDir()
	w, err := wal.Open(dir, 1<<20, config.DurabilityFsync)
	require.NoError(t, err)
	defer w.Close()

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, w.Append(wire.NewLogEntryRecord(wire.LogEntry{Term: 1, Index: i})))
	}

	require.NoError(t, w.Compact(4))

	got, err := w.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, uint64(4), got[0].Entry.Index)
	require.Equal(t, uint64(5), got[1].Entry.Index)
}
