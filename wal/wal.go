// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wal implements the write-ahead log: append-only, length-prefixed
// segment files with rotation and a crash-safe fsync durability barrier.
package wal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/veritasdb/vsmraft/config"
	"github.com/veritasdb/vsmraft/faults"
	"github.com/veritasdb/vsmraft/wire"
)

const (
	segmentPrefix = "wal-"
	segmentSuffix = ".log"
	segmentDigits = 10
	lockFileName  = "LOCK"
)

// WAL is an append-only log of wire.Record, split across rotating
// segment files in dir.
type WAL struct {
	mu sync.Mutex

	dir          string
	segmentBytes int64
	durability   config.DurabilityMode

	segmentIndex int
	file         *os.File
	size         int64

	lockPath string
}

// Open opens (or creates) the WAL directory at dir, acquiring exclusive
// ownership of it for the lifetime of the WAL, and truncates any
// trailing partial record left by a prior crash.
func Open(dir string, segmentBytes int64, durability config.DurabilityMode) (*WAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, faults.DurabilityFailure(err, "create wal directory")
	}

	lockPath := filepath.Join(dir, lockFileName)
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, faults.DurabilityFailure(err, "wal directory already owned by another replica")
		}
		return nil, faults.DurabilityFailure(err, "acquire wal directory lock")
	}
	_ = lockFile.Close()

	segments, err := listSegments(dir)
	if err != nil {
		return nil, err
	}

	w := &WAL{dir: dir, segmentBytes: segmentBytes, durability: durability, lockPath: lockPath}

	if len(segments) == 0 {
		if err := w.openSegment(1); err != nil {
			return nil, err
		}
		return w, nil
	}

	last := segments[len(segments)-1]
	if err := truncateTrailingPartial(last.path); err != nil {
		return nil, err
	}
	if err := w.openExisting(last.index, last.path); err != nil {
		return nil, err
	}
	return w, nil
}

// Close closes the current segment, without an fsync of its own, and
// releases the directory lock.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var err error
	if w.file != nil {
		err = w.file.Close()
	}
	_ = os.Remove(w.lockPath)
	return err
}

// Append writes rec to the current segment, rotating first if the
// segment would exceed its byte budget, and fsyncs according to the
// configured durability mode before returning.
func (w *WAL) Append(rec wire.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	payload := wire.AppendLengthPrefixed(nil, wire.EncodeRecord(rec))
	if w.size > 0 && w.size+int64(len(payload)) > w.segmentBytes {
		if err := w.rotateLocked(); err != nil {
			return err
		}
	}

	n, err := w.file.Write(payload)
	if err != nil {
		return faults.DurabilityFailure(err, "append wal record")
	}
	w.size += int64(n)

	if w.durability == config.DurabilityFsync {
		if err := w.file.Sync(); err != nil {
			return faults.DurabilityFailure(err, "fsync wal record")
		}
	}
	return nil
}

// Sync fsyncs the current segment. Used by the replica pipeline under
// config.DurabilityBatched to flush once per handled event (each tick
// and each inbound RPC) rather than once per append.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return faults.DurabilityFailure(err, "fsync wal")
	}
	return nil
}

// Rotate forces roll-over to a new segment file.
func (w *WAL) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotateLocked()
}

func (w *WAL) rotateLocked() error {
	if w.file != nil {
		if err := w.file.Sync(); err != nil {
			return faults.DurabilityFailure(err, "fsync before wal rotation")
		}
		if err := w.file.Close(); err != nil {
			return faults.DurabilityFailure(err, "close wal segment before rotation")
		}
	}
	return w.openSegment(w.segmentIndex + 1)
}

func (w *WAL) openSegment(index int) error {
	path := segmentPath(w.dir, index)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return faults.DurabilityFailure(err, "open wal segment")
	}
	w.file = f
	w.segmentIndex = index
	w.size = 0
	return nil
}

func (w *WAL) openExisting(index int, path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return faults.DurabilityFailure(err, "stat wal segment")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return faults.DurabilityFailure(err, "reopen wal segment")
	}
	w.file = f
	w.segmentIndex = index
	w.size = fi.Size()
	return nil
}

// ReadAll returns every record across every segment, in file order, for
// recovery replay. Must be called before any Append on a freshly Open'd
// WAL in the typical recovery flow, though nothing enforces that
// ordering here.
func (w *WAL) ReadAll() ([]wire.Record, error) {
	segments, err := listSegments(w.dir)
	if err != nil {
		return nil, err
	}

	var records []wire.Record
	for _, seg := range segments {
		recs, err := readSegment(seg.path)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	return records, nil
}

type segmentFile struct {
	index int
	path  string
}

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%0*d%s", segmentPrefix, segmentDigits, index, segmentSuffix))
}

func listSegments(dir string) ([]segmentFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, faults.DurabilityFailure(err, "list wal directory")
	}
	var segments []segmentFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentSuffix) {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), segmentSuffix)
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		segments = append(segments, segmentFile{index: n, path: filepath.Join(dir, name)})
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].index < segments[j].index })
	return segments, nil
}

// readSegment reads every complete length-prefixed record in path,
// silently dropping a trailing partial record (the file is expected to
// have already been truncated by truncateTrailingPartial on Open; this
// is a second line of defense for segments read without having been the
// "current" segment at Open time).
func readSegment(path string) ([]wire.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.DurabilityFailure(err, "read wal segment")
	}

	var records []wire.Record
	offset := 0
	for offset < len(data) {
		payload, next, ok := readLengthPrefixed(data, offset)
		if !ok {
			break
		}
		rec, err := wire.DecodeRecord(payload)
		if err != nil {
			return nil, faults.ProtocolViolation(err, "decode wal record")
		}
		records = append(records, rec)
		offset = next
	}
	return records, nil
}

// truncateTrailingPartial drops any bytes at the end of path that don't
// form a complete length-prefixed record.
func truncateTrailingPartial(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return faults.DurabilityFailure(err, "read wal segment for recovery")
	}

	offset := 0
	for offset < len(data) {
		_, next, ok := readLengthPrefixed(data, offset)
		if !ok {
			break
		}
		offset = next
	}

	if offset == len(data) {
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return faults.DurabilityFailure(err, "open wal segment to truncate")
	}
	defer f.Close()
	if err := f.Truncate(int64(offset)); err != nil {
		return faults.DurabilityFailure(err, "truncate partial wal record")
	}
	return nil
}

// readLengthPrefixed reads one len:u32-little-endian-prefixed record
// starting at offset. ok is false if fewer than a full record (length
// prefix plus payload) remains, signaling a trailing partial record.
func readLengthPrefixed(data []byte, offset int) (payload []byte, next int, ok bool) {
	if offset+4 > len(data) {
		return nil, 0, false
	}
	length := int(data[offset]) | int(data[offset+1])<<8 | int(data[offset+2])<<16 | int(data[offset+3])<<24
	start := offset + 4
	end := start + length
	if length < 0 || end > len(data) {
		return nil, 0, false
	}
	return data[start:end], end, true
}

var _ io.Closer = (*WAL)(nil)
