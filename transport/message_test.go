// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport_test

import (
	"context"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/veritasdb/vsmraft/state"
	"github.com/veritasdb/vsmraft/transport"
	"github.com/veritasdb/vsmraft/wire"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	from := ids.GenerateTestNodeID()
	to := ids.GenerateTestNodeID()

	msg := transport.Message{
		Kind:         transport.KindAppendEntries,
		From:         from,
		To:           to,
		Term:         7,
		PrevLogIndex: 3,
		PrevLogTerm:  6,
		LeaderCommit: 2,
		Entries: []wire.LogEntry{
			{Term: 7, Index: 4, Transition: state.Write("k", []byte("v"))},
		},
	}

	got, err := transport.Decode(transport.Encode(msg))
	require.NoError(t, err)
	require.Equal(t, msg.Kind, got.Kind)
	require.Equal(t, msg.From, got.From)
	require.Equal(t, msg.To, got.To)
	require.Equal(t, msg.Term, got.Term)
	require.Equal(t, msg.PrevLogIndex, got.PrevLogIndex)
	require.Equal(t, msg.PrevLogTerm, got.PrevLogTerm)
	require.Equal(t, msg.LeaderCommit, got.LeaderCommit)
	require.Len(t, got.Entries, 1)
	require.Equal(t, msg.Entries[0].Term, got.Entries[0].Term)
	require.Equal(t, msg.Entries[0].Index, got.Entries[0].Index)
}

func TestDecodeEmptyMessageIsZeroValue(t *testing.T) {
	got, err := transport.Decode(nil)
	require.NoError(t, err)
	require.Equal(t, transport.Message{}, got)
}

func TestMemoryNetworkDispatchesToRegisteredHandler(t *testing.T) {
	net := transport.NewNetwork()
	a := net.NewTransport(ids.GenerateTestNodeID())
	b := net.NewTransport(ids.GenerateTestNodeID())

	received := make(chan transport.Message, 1)
	b.RegisterHandler(func(from ids.NodeID, msg transport.Message) {
		received <- msg
	})

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))

	sent := transport.Message{Kind: transport.KindRequestVote, From: a.NodeID(), To: b.NodeID(), Term: 1}
	require.NoError(t, a.Send(ctx, b.NodeID(), sent))

	select {
	case got := <-received:
		require.Equal(t, sent.Term, got.Term)
		require.Equal(t, sent.Kind, got.Kind)
	default:
		t.Fatal("handler was not invoked synchronously")
	}
}

func TestMemoryNetworkBroadcastSkipsSender(t *testing.T) {
	net := transport.NewNetwork()
	a := net.NewTransport(ids.GenerateTestNodeID())
	b := net.NewTransport(ids.GenerateTestNodeID())

	selfReceived := false
	a.RegisterHandler(func(ids.NodeID, transport.Message) { selfReceived = true })

	received := make(chan transport.Message, 1)
	b.RegisterHandler(func(from ids.NodeID, msg transport.Message) { received <- msg })

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))

	require.NoError(t, a.Broadcast(ctx, transport.Message{Kind: transport.KindRequestVote, Term: 2}))

	require.False(t, selfReceived)
	select {
	case <-received:
	default:
		t.Fatal("broadcast did not reach peer")
	}
}
