// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/ids"

	"github.com/veritasdb/vsmraft/faults"
)

// Network is a shared registry of in-memory Transports, used to exercise
// the consensus and replica packages without real sockets: a small
// addressable switchboard that peers register themselves on.
type Network struct {
	mu    sync.Mutex
	peers map[ids.NodeID]*Memory
}

// NewNetwork returns an empty switchboard.
func NewNetwork() *Network {
	return &Network{peers: make(map[ids.NodeID]*Memory)}
}

// Memory is an in-process Transport backed by a Network. Send/Broadcast
// dispatch synchronously into the target's registered Handler.
type Memory struct {
	net     *Network
	id      ids.NodeID
	mu      sync.Mutex
	handler Handler
	started bool
}

// NewTransport registers and returns a Memory transport for id on net.
func (net *Network) NewTransport(id ids.NodeID) *Memory {
	net.mu.Lock()
	defer net.mu.Unlock()
	t := &Memory{net: net, id: id}
	net.peers[id] = t
	return t
}

// NodeID implements Transport.
func (t *Memory) NodeID() ids.NodeID { return t.id }

// Connect is a no-op: every node sharing a Network is already reachable.
func (t *Memory) Connect(ids.NodeID, string) error { return nil }

// Send implements Transport.
func (t *Memory) Send(ctx context.Context, peerID ids.NodeID, msg Message) error {
	t.net.mu.Lock()
	peer, ok := t.net.peers[peerID]
	t.net.mu.Unlock()
	if !ok {
		// The peer may simply not have joined the switchboard yet;
		// the sender's replication loop retries on its next tick.
		return faults.TransientIO(fmt.Errorf("transport: unknown peer %s", peerID), "")
	}
	peer.deliver(t.id, msg)
	return nil
}

// Broadcast implements Transport.
func (t *Memory) Broadcast(ctx context.Context, msg Message) error {
	t.net.mu.Lock()
	peers := make([]*Memory, 0, len(t.net.peers))
	for id, p := range t.net.peers {
		if id == t.id {
			continue
		}
		peers = append(peers, p)
	}
	t.net.mu.Unlock()
	for _, p := range peers {
		p.deliver(t.id, msg)
	}
	return nil
}

// RegisterHandler implements Transport.
func (t *Memory) RegisterHandler(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Start implements Transport.
func (t *Memory) Start(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = true
	return nil
}

// Stop implements Transport.
func (t *Memory) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = false
	return nil
}

func (t *Memory) deliver(from ids.NodeID, msg Message) {
	t.mu.Lock()
	h := t.handler
	started := t.started
	t.mu.Unlock()
	if !started || h == nil {
		return
	}
	h(from, msg)
}
