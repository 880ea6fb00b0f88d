// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config_test

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/veritasdb/vsmraft/config"
)

func testMembers() (ids.NodeID, []ids.NodeID) {
	self := ids.GenerateTestNodeID()
	return self, []ids.NodeID{self, ids.GenerateTestNodeID(), ids.GenerateTestNodeID()}
}

func TestDefaultConfigIsValid(t *testing.T) {
	self, members := testMembers()
	c := config.DefaultReplicaConfig(self, members, t.TempDir())
	require.NoError(t, c.Validate())
}

func TestValidateRejectsMissingDataDir(t *testing.T) {
	self, members := testMembers()
	c := config.DefaultReplicaConfig(self, members, "")
	require.ErrorIs(t, c.Validate(), config.ErrNoDataDir)
}

func TestValidateRejectsSelfNotMember(t *testing.T) {
	self, members := testMembers()
	c := config.DefaultReplicaConfig(ids.GenerateTestNodeID(), members, t.TempDir())
	_ = self
	require.ErrorIs(t, c.Validate(), config.ErrSelfNotMember)
}

func TestValidateRejectsDuplicateMember(t *testing.T) {
	self, members := testMembers()
	c := config.DefaultReplicaConfig(self, append(members, members[1]), t.TempDir())
	require.ErrorIs(t, c.Validate(), config.ErrDuplicateMember)
}

func TestValidateRejectsElectionMinTooLow(t *testing.T) {
	self, members := testMembers()
	c := config.DefaultReplicaConfig(self, members, t.TempDir())
	c.ElectionTimeoutMin = c.HeartbeatInterval
	require.ErrorIs(t, c.Validate(), config.ErrElectionMinTooLow)
}

func TestValidateRejectsElectionMaxOutOfRange(t *testing.T) {
	self, members := testMembers()
	c := config.DefaultReplicaConfig(self, members, t.TempDir())
	c.ElectionTimeoutMax = c.ElectionTimeoutMin * 3
	require.ErrorIs(t, c.Validate(), config.ErrElectionMaxOutOfRange)
}

func TestValidateRejectsZeroSnapshotRetention(t *testing.T) {
	self, members := testMembers()
	c := config.DefaultReplicaConfig(self, members, t.TempDir())
	c.SnapshotRetention = 0
	require.ErrorIs(t, c.Validate(), config.ErrSnapshotRetentionTooLow)
}
