// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replica_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/veritasdb/vsmraft/replica"
	"github.com/veritasdb/vsmraft/state"
	"github.com/veritasdb/vsmraft/transport"
)

// TestBackupRestoreRoundTrip checks that archiving a replica's data
// directory and restoring it into a fresh one lets the restored replica
// recover the same live state.
func TestBackupRestoreRoundTrip(t *testing.T) {
	self := ids.GenerateTestNodeID()
	cfg := testConfig(self, []ids.NodeID{self}, t.TempDir())

	net := transport.NewNetwork()
	p, err := replica.Open(cfg, net.NewTransport(self), prometheus.NewRegistry(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		return p.Status().Role.String() == "leader"
	}, time.Second, time.Millisecond)

	callCtx, callCancel := context.WithTimeout(context.Background(), time.Second)
	defer callCancel()
	index, err := p.Propose(callCtx, state.Write("k", []byte("v")))
	require.NoError(t, err)
	require.NoError(t, p.Snapshot(callCtx))

	var archive bytes.Buffer
	require.NoError(t, p.Backup(&archive))

	cancel()

	restoredDir := t.TempDir() + "/restored"
	require.NoError(t, replica.Restore(restoredDir, bytes.NewReader(archive.Bytes())))

	restoredCfg := testConfig(self, []ids.NodeID{self}, restoredDir)
	net2 := transport.NewNetwork()
	p2, err := replica.Open(restoredCfg, net2.NewTransport(self), prometheus.NewRegistry(), nil)
	require.NoError(t, err)

	readCtx, readCancel := context.WithTimeout(context.Background(), time.Second)
	defer readCancel()
	live, err := p2.ReadAt(readCtx, index)
	require.NoError(t, err)
	require.Equal(t, []byte("v"), live.Data["k"])
}

// TestRestoreRejectsEscapingArchivePath guards against a crafted
// archive entry traversing out of the target data directory.
func TestRestoreRejectsEscapingArchivePath(t *testing.T) {
	var archive bytes.Buffer
	gz := gzip.NewWriter(&archive)
	tw := tar.NewWriter(gz)
	content := []byte("x")
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "../escape",
		Mode:     0o644,
		Size:     int64(len(content)),
		Typeflag: tar.TypeReg,
	}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	parent := t.TempDir()
	dir := filepath.Join(parent, "restored")
	err = replica.Restore(dir, bytes.NewReader(archive.Bytes()))
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(parent, "escape"))
	require.True(t, os.IsNotExist(statErr))
}

// TestRestoreRefusesNonEmptyDataDir guards the "install archive into an
// empty data directory" precondition.
func TestRestoreRefusesNonEmptyDataDir(t *testing.T) {
	dir := t.TempDir()
	self := ids.GenerateTestNodeID()
	cfg := testConfig(self, []ids.NodeID{self}, dir)

	net := transport.NewNetwork()
	p, err := replica.Open(cfg, net.NewTransport(self), prometheus.NewRegistry(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p })

	var archive bytes.Buffer
	require.NoError(t, p.Backup(&archive))

	err = replica.Restore(dir, bytes.NewReader(archive.Bytes()))
	require.Error(t, err)
}
