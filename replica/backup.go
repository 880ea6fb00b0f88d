// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replica

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// errNotEmptyDataDir guards Restore's precondition that the target
	// directory is empty.
	errNotEmptyDataDir = errors.New("replica: restore target data directory is not empty")
	// errUnsafeArchivePath rejects archive entries whose name would
	// resolve outside the target data directory.
	errUnsafeArchivePath = errors.New("replica: archive entry path escapes the data directory")
)

// Backup archives the WAL segment and snapshot directories under
// cfg.DataDir into a single gzip-compressed tar stream written to w.
// Backup may run concurrently with Pipeline.Run; it reads whatever WAL
// segments and snapshots are on disk at the moment of the walk, which is
// always a safe (if possibly slightly stale) recovery starting point
// since recovery replays forward from whatever snapshot and WAL suffix
// it finds.
func (p *Pipeline) Backup(w io.Writer) error {
	return BackupDataDir(p.cfg.DataDir, w)
}

// BackupDataDir is the standalone form of Backup, usable by an operator
// tool against a data directory with no Pipeline currently open on it
// (e.g. a stopped replica, for an offline backup).
func BackupDataDir(dataDir string, w io.Writer) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		// The WAL directory lock file is process-local and must not be
		// restored verbatim into a fresh data directory: Restore creates
		// its own when the recovered WAL is opened.
		if d.Name() == "LOCK" {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dataDir, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// Restore installs the archive produced by Backup (or Pipeline.Backup)
// into dataDir, which must not already exist or must be empty, so that a
// subsequent Open of the same dataDir starts by recovery from exactly
// the snapshot and WAL suffix the archive captured. Restore does not
// itself open or validate the WAL; Open's own recovery pass is the
// correctness check.
func Restore(dataDir string, r io.Reader) error {
	if err := ensureEmptyDataDir(dataDir); err != nil {
		return err
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gz.Close()
	tr := tar.NewReader(gz)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		dest, err := safeRestorePath(dataDir, hdr.Name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := writeRestoredFile(dest, tr, hdr.Mode); err != nil {
			return err
		}
	}
}

// safeRestorePath resolves an archive entry name under dataDir,
// rejecting absolute names and any name that traverses out of the
// target directory: archives come from arbitrary operator input, and a
// crafted entry like "../../etc/passwd" must never escape dataDir.
func safeRestorePath(dataDir, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) ||
		cleaned == ".." ||
		strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", errUnsafeArchivePath, name)
	}
	return filepath.Join(dataDir, cleaned), nil
}

func writeRestoredFile(dest string, r io.Reader, mode int64) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(mode))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}

func ensureEmptyDataDir(dataDir string) error {
	entries, err := os.ReadDir(dataDir)
	if errors.Is(err, fs.ErrNotExist) {
		return os.MkdirAll(dataDir, 0o755)
	}
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return errNotEmptyDataDir
	}
	return nil
}
