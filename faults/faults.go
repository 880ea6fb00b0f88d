// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package faults implements an error taxonomy: errors are classified by
// kind, not by Go type, so the replica pipeline can decide how to
// propagate an error (retry locally, halt, drop-and-log, or reject
// synchronously) without a type switch over every concrete error the
// WAL/transport/consensus/verify packages might return.
//
// Errors wrap via github.com/cockroachdb/errors for stack-trace-carrying
// chains; Classify unwraps through its Cause chain the same way an
// errors.Is-based dispatch would.
package faults

import (
	"github.com/cockroachdb/errors"
)

// Kind classifies an error for propagation purposes.
type Kind uint8

const (
	// KindUnknown is returned by Classify for errors not tagged with
	// any of the kinds below; the pipeline treats unknown errors as
	// fatal, the conservative choice.
	KindUnknown Kind = iota
	// KindTransientIO covers network send/receive failure and disk
	// write timeout. Retried locally, surfaced as observability events.
	KindTransientIO
	// KindDurabilityFailure covers an operation required to be durable
	// reporting failure. Fatal: the replica must step down.
	KindDurabilityFailure
	// KindProtocolViolation covers receipt of a malformed or impossible
	// peer message. Logged and dropped, never fatal locally.
	KindProtocolViolation
	// KindDivergenceFault covers shadow digest != live digest. Fatal
	// and terminal: Halted.
	KindDivergenceFault
	// KindInvariantViolation covers a failed post-apply invariant
	// check. Treated as divergence: Halted.
	KindInvariantViolation
	// KindClientValidation covers a structurally invalid client
	// proposal. Rejected synchronously; leader state unchanged.
	KindClientValidation
)

func (k Kind) String() string {
	switch k {
	case KindTransientIO:
		return "transient_io"
	case KindDurabilityFailure:
		return "durability_failure"
	case KindProtocolViolation:
		return "protocol_violation"
	case KindDivergenceFault:
		return "divergence_fault"
	case KindInvariantViolation:
		return "invariant_violation"
	case KindClientValidation:
		return "client_validation"
	default:
		return "unknown"
	}
}

// Fatal reports whether errors of this kind must halt the replica:
// durability and divergence faults propagate upward and halt it, while
// transient and protocol errors are contained locally.
func (k Kind) Fatal() bool {
	switch k {
	case KindDurabilityFailure, KindDivergenceFault, KindInvariantViolation:
		return true
	default:
		return false
	}
}

type kinded struct {
	kind Kind
	err  error
}

func (k *kinded) Error() string { return k.err.Error() }
func (k *kinded) Cause() error  { return k.err }
func (k *kinded) Unwrap() error { return k.err }

// Tag wraps err so Classify(err) returns kind. msg, if non-empty, is
// attached via cockroachdb/errors.Wrap; pass "" to tag without adding
// context.
func Tag(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	if msg != "" {
		err = errors.Wrap(err, msg)
	}
	return &kinded{kind: kind, err: err}
}

// TransientIO tags err as a retryable transient I/O failure.
func TransientIO(err error, msg string) error { return Tag(KindTransientIO, err, msg) }

// DurabilityFailure tags err as a fatal durability failure.
func DurabilityFailure(err error, msg string) error { return Tag(KindDurabilityFailure, err, msg) }

// ProtocolViolation tags err as a contained peer protocol violation.
func ProtocolViolation(err error, msg string) error { return Tag(KindProtocolViolation, err, msg) }

// DivergenceFault tags err as a fatal shadow/live digest mismatch.
func DivergenceFault(err error, msg string) error { return Tag(KindDivergenceFault, err, msg) }

// InvariantViolation tags err as a fatal post-apply invariant failure.
func InvariantViolation(err error, msg string) error { return Tag(KindInvariantViolation, err, msg) }

// ClientValidation tags err as a synchronously-rejected invalid proposal.
func ClientValidation(err error, msg string) error { return Tag(KindClientValidation, err, msg) }

// Classify returns the Kind err was tagged with, or KindUnknown if err
// (or nothing in its cause chain) was ever tagged.
func Classify(err error) Kind {
	var k *kinded
	if errors.As(err, &k) {
		return k.kind
	}
	return KindUnknown
}
