// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import "google.golang.org/protobuf/encoding/protowire"

// The Append*Field helpers let other packages (transport, in particular,
// for RPC envelopes) compose canonical, deterministic encodings out of the
// same primitives State/Transition use, without duplicating the
// omit-zero-value convention documented in the package comment.

// AppendUint64Field appends num=v as a varint field, omitted when v == 0.
func AppendUint64Field(b []byte, num protowire.Number, v uint64) []byte {
	return appendUint64(b, num, v)
}

// AppendBoolField appends num=v as a varint 0/1 field, omitted when v is
// false.
func AppendBoolField(b []byte, num protowire.Number, v bool) []byte {
	return appendBool(b, num, v)
}

// AppendBytesField appends num=v as a length-delimited field, omitted when
// v is empty.
func AppendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	return appendBytes(b, num, v)
}
