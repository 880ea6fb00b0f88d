// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package faults

import (
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// Errs collects multiple independent errors (e.g. one per peer contacted
// during a broadcast) into a single reportable error. A single collected
// error is returned as is and keeps its Kind for Classify; several are
// joined into one message-only error that Classify reports as
// KindUnknown.
type Errs struct {
	mu   sync.Mutex
	errs []error
}

// Add appends err to the collection. A nil err is a no-op.
func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

// Errored reports whether any error has been added.
func (e *Errs) Errored() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs) > 0
}

// Len returns the number of errors collected.
func (e *Errs) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs)
}

// Err returns the collected errors as a single error: nil if none, the
// sole error if exactly one (preserving its Kind for Classify), or a
// combined multi-error otherwise.
func (e *Errs) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch len(e.errs) {
	case 0:
		return nil
	case 1:
		return e.errs[0]
	default:
		return errors.New(e.string())
	}
}

func (e *Errs) string() string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(e.errs[0].Error()))
	for _, err := range e.errs[1:] {
		sb.WriteString("; ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}
