// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"

	"github.com/luxfi/ids"
)

// Handler processes an inbound RPC. It is invoked on the transport's own
// goroutine; implementations that need to touch replica state must
// synchronize themselves (the replica pipeline serializes through its
// own tick loop).
type Handler func(from ids.NodeID, msg Message)

//go:generate mockgen -package=transportmock -destination=transportmock/mock.go github.com/veritasdb/vsmraft/transport Transport

// Transport is the networking seam the replica pipeline drives RPCs
// through.
type Transport interface {
	// NodeID returns this replica's own identity.
	NodeID() ids.NodeID

	// Connect establishes (or refreshes) a connection to a peer at
	// endpoint. Implementations may treat this as a no-op hint for
	// connectionless transports.
	Connect(peerID ids.NodeID, endpoint string) error

	// Send delivers msg to a single peer. It does not block on the
	// peer processing the message, only on handing it to the
	// transport; callers needing a reply correlate it via msg.Term and
	// the peer's own From/To pair on the response they receive through
	// RegisterHandler.
	Send(ctx context.Context, peerID ids.NodeID, msg Message) error

	// Broadcast delivers msg to every connected peer. The replica
	// pipeline does not use it; it sends every message with Send.
	Broadcast(ctx context.Context, msg Message) error

	// RegisterHandler installs the callback invoked for every inbound
	// message regardless of Kind; dispatch on msg.Kind is the handler's
	// responsibility.
	RegisterHandler(h Handler)

	// Start begins accepting connections and delivering inbound
	// messages to the registered handler.
	Start(ctx context.Context) error

	// Stop shuts the transport down, releasing any listening sockets.
	Stop() error
}
