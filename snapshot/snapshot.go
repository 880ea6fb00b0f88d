// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package snapshot implements the snapshot store: periodic full-state
// captures, published atomically and garbage-collected by retention
// count.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/veritasdb/vsmraft/faults"
	"github.com/veritasdb/vsmraft/wire"
)

const (
	filePrefix = "snapshot-"
	fileSuffix = ".snap"
	fileDigits = 8
)

// Store manages the snapshot files in dir.
type Store struct {
	dir    string
	retain int
}

// Open returns a Store rooted at dir, creating it if necessary. retain
// is the number of snapshots kept before the oldest is garbage
// collected.
func Open(dir string, retain int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, faults.DurabilityFailure(err, "create snapshot directory")
	}
	if retain < 1 {
		retain = 1
	}
	return &Store{dir: dir, retain: retain}, nil
}

// Save publishes snap as a new snapshot file, then garbage collects
// snapshots beyond the retention count (oldest first), returning the
// bytes reclaimed.
func (s *Store) Save(snap wire.Snapshot) (bytesFreed int64, err error) {
	if snap.Timestamp == 0 {
		snap.Timestamp = time.Now().Unix()
	}

	final := filePath(s.dir, snap.LastIndex)
	tmp := final + ".tmp"

	if err := os.WriteFile(tmp, wire.EncodeSnapshot(snap), 0o644); err != nil {
		return 0, faults.DurabilityFailure(err, "write snapshot temp file")
	}
	if err := os.Rename(tmp, final); err != nil {
		return 0, faults.DurabilityFailure(err, "publish snapshot")
	}

	return s.gc()
}

// LoadLatest returns the most recent snapshot (highest last_index), or
// ok=false if the store is empty (a fresh replica with no snapshot yet).
func (s *Store) LoadLatest() (snap wire.Snapshot, ok bool, err error) {
	files, err := s.list()
	if err != nil {
		return wire.Snapshot{}, false, err
	}
	if len(files) == 0 {
		return wire.Snapshot{}, false, nil
	}
	latest := files[len(files)-1]
	data, err := os.ReadFile(latest.path)
	if err != nil {
		return wire.Snapshot{}, false, faults.DurabilityFailure(err, "read latest snapshot")
	}
	snap, err = wire.DecodeSnapshot(data)
	if err != nil {
		return wire.Snapshot{}, false, faults.ProtocolViolation(err, "decode snapshot")
	}
	return snap, true, nil
}

type snapFile struct {
	index int64
	path  string
	size  int64
}

func filePath(dir string, lastIndex uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%s%0*d%s", filePrefix, fileDigits, lastIndex, fileSuffix))
}

func (s *Store) list() ([]snapFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, faults.DurabilityFailure(err, "list snapshot directory")
	}
	var files []snapFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		n, err := strconv.ParseInt(numStr, 10, 64)
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, snapFile{index: n, path: filepath.Join(s.dir, name), size: info.Size()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].index < files[j].index })
	return files, nil
}

// gc deletes the oldest snapshots beyond the retention count, returning
// the bytes reclaimed.
func (s *Store) gc() (int64, error) {
	files, err := s.list()
	if err != nil {
		return 0, err
	}
	if len(files) <= s.retain {
		return 0, nil
	}

	var freed int64
	toRemove := files[:len(files)-s.retain]
	for _, f := range toRemove {
		if err := os.Remove(f.path); err != nil {
			return freed, faults.DurabilityFailure(err, "remove stale snapshot")
		}
		freed += f.size
	}
	return freed, nil
}
