// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wal

import "github.com/veritasdb/vsmraft/wire"

//go:generate mockgen -package=walmock -destination=walmock/mock.go github.com/veritasdb/vsmraft/wal Log

// Log is the durability seam the consensus and replica packages depend
// on, satisfied by *WAL. Extracted as an interface so those packages can
// be tested against wal/walmock instead of real files.
type Log interface {
	Append(rec wire.Record) error
	Sync() error
	Rotate() error
	Compact(beforeIndex uint64) error
	ReadAll() ([]wire.Record, error)
	Close() error
}

var _ Log = (*WAL)(nil)
