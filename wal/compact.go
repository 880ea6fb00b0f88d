// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wal

import (
	"os"

	"github.com/veritasdb/vsmraft/faults"
	"github.com/veritasdb/vsmraft/wire"
)

// Compact rewrites the WAL to drop log entries before beforeIndex,
// keeping only the most recent metadata record and any commit/log-entry
// records at or after beforeIndex. Callers must only compact up to an
// index already covered by a published snapshot: recovery reconstructs
// state from snapshot + WAL suffix, so entries the snapshot already
// subsumes are safe to drop.
func (w *WAL) Compact(beforeIndex uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		if err := w.file.Sync(); err != nil {
			return faults.DurabilityFailure(err, "fsync before wal compaction")
		}
		if err := w.file.Close(); err != nil {
			return faults.DurabilityFailure(err, "close wal segment before compaction")
		}
		w.file = nil
	}

	segments, err := listSegments(w.dir)
	if err != nil {
		return err
	}

	var kept []wire.Record
	var latestMetadata *wire.Record
	for _, seg := range segments {
		recs, err := readSegment(seg.path)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			switch rec.Type {
			case wire.RecordMetadata:
				r := rec
				latestMetadata = &r
			case wire.RecordLogEntry:
				if rec.Entry.Index >= beforeIndex {
					kept = append(kept, rec)
				}
			case wire.RecordCommit:
				if rec.CommitIndex >= beforeIndex {
					kept = append(kept, rec)
				}
			case wire.RecordSnapshot:
				if rec.Snapshot.LastIndex >= beforeIndex {
					kept = append(kept, rec)
				}
			}
		}
	}

	var out []wire.Record
	if latestMetadata != nil {
		out = append(out, *latestMetadata)
	}
	out = append(out, kept...)

	tmpPath := segmentPath(w.dir, 1) + ".compact.tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return faults.DurabilityFailure(err, "open wal compaction temp file")
	}
	var buf []byte
	for _, rec := range out {
		buf = wire.AppendLengthPrefixed(buf, wire.EncodeRecord(rec))
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return faults.DurabilityFailure(err, "write compacted wal")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return faults.DurabilityFailure(err, "fsync compacted wal")
	}
	if err := tmp.Close(); err != nil {
		return faults.DurabilityFailure(err, "close compacted wal temp file")
	}

	for _, seg := range segments {
		if err := os.Remove(seg.path); err != nil {
			return faults.DurabilityFailure(err, "remove old wal segment")
		}
	}

	finalPath := segmentPath(w.dir, 1)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return faults.DurabilityFailure(err, "publish compacted wal")
	}

	return w.openExisting(1, finalPath)
}
