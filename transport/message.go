// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transport defines the RPCs replicas exchange and the Transport
// interface the replica pipeline drives them through.
package transport

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/luxfi/ids"
	"github.com/veritasdb/vsmraft/wire"
)

// Kind tags the RPC variant a Message carries.
type Kind uint8

const (
	// KindRequestVote is sent candidate -> peer.
	KindRequestVote Kind = iota + 1
	// KindRequestVoteResponse is the peer's reply.
	KindRequestVoteResponse
	// KindAppendEntries is sent leader -> peer (possibly empty, as a
	// heartbeat).
	KindAppendEntries
	// KindAppendEntriesResponse is the peer's reply.
	KindAppendEntriesResponse
	// KindTimeoutNow asks a peer to start an election immediately, used
	// by TransferLeadership.
	KindTimeoutNow
)

func (k Kind) String() string {
	switch k {
	case KindRequestVote:
		return "RequestVote"
	case KindRequestVoteResponse:
		return "RequestVoteResponse"
	case KindAppendEntries:
		return "AppendEntries"
	case KindAppendEntriesResponse:
		return "AppendEntriesResponse"
	case KindTimeoutNow:
		return "TimeoutNow"
	default:
		return "Unknown"
	}
}

// Message is the envelope every RPC travels in: {from, to, term} plus a
// variant payload. Only the fields relevant to Kind are meaningful.
type Message struct {
	Kind Kind
	From ids.NodeID
	To   ids.NodeID
	Term uint64

	// RequestVote: From doubles as candidate_id.
	LastLogIndex uint64
	LastLogTerm  uint64

	// RequestVoteResponse
	VoteGranted bool

	// AppendEntries: From doubles as leader_id.
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []wire.LogEntry
	LeaderCommit uint64

	// AppendEntriesResponse
	Success bool
	// MatchIndex is the index of the last new entry on success (or the
	// receiver's existing matching index if Entries was empty).
	MatchIndex uint64
	// ConflictIndex is an optional backtrack hint so the leader can
	// decrement NextIndex faster than one at a time.
	ConflictIndex uint64
}

const (
	fieldMsgKind          protowire.Number = 1
	fieldMsgFrom          protowire.Number = 2
	fieldMsgTo            protowire.Number = 3
	fieldMsgTerm          protowire.Number = 4
	fieldMsgLastLogIndex  protowire.Number = 5
	fieldMsgLastLogTerm   protowire.Number = 6
	fieldMsgVoteGranted   protowire.Number = 7
	fieldMsgPrevLogIndex  protowire.Number = 8
	fieldMsgPrevLogTerm   protowire.Number = 9
	fieldMsgEntry         protowire.Number = 10
	fieldMsgLeaderCommit  protowire.Number = 11
	fieldMsgSuccess       protowire.Number = 12
	fieldMsgMatchIndex    protowire.Number = 13
	fieldMsgConflictIndex protowire.Number = 14
)

// Encode serializes m canonically. The length prefix used for stream
// framing is added by the transport implementation, not here.
func Encode(m Message) []byte {
	var b []byte
	b = wire.AppendUint64Field(b, fieldMsgKind, uint64(m.Kind))
	b = wire.AppendBytesField(b, fieldMsgFrom, m.From[:])
	b = wire.AppendBytesField(b, fieldMsgTo, m.To[:])
	b = wire.AppendUint64Field(b, fieldMsgTerm, m.Term)
	b = wire.AppendUint64Field(b, fieldMsgLastLogIndex, m.LastLogIndex)
	b = wire.AppendUint64Field(b, fieldMsgLastLogTerm, m.LastLogTerm)
	b = wire.AppendBoolField(b, fieldMsgVoteGranted, m.VoteGranted)
	b = wire.AppendUint64Field(b, fieldMsgPrevLogIndex, m.PrevLogIndex)
	b = wire.AppendUint64Field(b, fieldMsgPrevLogTerm, m.PrevLogTerm)
	for _, e := range m.Entries {
		b = wire.AppendBytesField(b, fieldMsgEntry, wire.EncodeLogEntry(e))
	}
	b = wire.AppendUint64Field(b, fieldMsgLeaderCommit, m.LeaderCommit)
	b = wire.AppendBoolField(b, fieldMsgSuccess, m.Success)
	b = wire.AppendUint64Field(b, fieldMsgMatchIndex, m.MatchIndex)
	b = wire.AppendUint64Field(b, fieldMsgConflictIndex, m.ConflictIndex)
	return b
}

// Decode parses bytes produced by Encode.
func Decode(b []byte) (Message, error) {
	var m Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, fmt.Errorf("transport: decode message: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldMsgKind:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("transport: decode kind: %w", protowire.ParseError(n))
			}
			m.Kind = Kind(v)
			b = b[n:]
		case fieldMsgFrom:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Message{}, fmt.Errorf("transport: decode from: %w", protowire.ParseError(n))
			}
			copy(m.From[:], v)
			b = b[n:]
		case fieldMsgTo:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Message{}, fmt.Errorf("transport: decode to: %w", protowire.ParseError(n))
			}
			copy(m.To[:], v)
			b = b[n:]
		case fieldMsgTerm:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("transport: decode term: %w", protowire.ParseError(n))
			}
			m.Term = v
			b = b[n:]
		case fieldMsgLastLogIndex:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("transport: decode last_log_index: %w", protowire.ParseError(n))
			}
			m.LastLogIndex = v
			b = b[n:]
		case fieldMsgLastLogTerm:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("transport: decode last_log_term: %w", protowire.ParseError(n))
			}
			m.LastLogTerm = v
			b = b[n:]
		case fieldMsgVoteGranted:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("transport: decode vote_granted: %w", protowire.ParseError(n))
			}
			m.VoteGranted = v != 0
			b = b[n:]
		case fieldMsgPrevLogIndex:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("transport: decode prev_log_index: %w", protowire.ParseError(n))
			}
			m.PrevLogIndex = v
			b = b[n:]
		case fieldMsgPrevLogTerm:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("transport: decode prev_log_term: %w", protowire.ParseError(n))
			}
			m.PrevLogTerm = v
			b = b[n:]
		case fieldMsgEntry:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Message{}, fmt.Errorf("transport: decode entry: %w", protowire.ParseError(n))
			}
			e, err := wire.DecodeLogEntry(v)
			if err != nil {
				return Message{}, err
			}
			m.Entries = append(m.Entries, e)
			b = b[n:]
		case fieldMsgLeaderCommit:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("transport: decode leader_commit: %w", protowire.ParseError(n))
			}
			m.LeaderCommit = v
			b = b[n:]
		case fieldMsgSuccess:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("transport: decode success: %w", protowire.ParseError(n))
			}
			m.Success = v != 0
			b = b[n:]
		case fieldMsgMatchIndex:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("transport: decode match_index: %w", protowire.ParseError(n))
			}
			m.MatchIndex = v
			b = b[n:]
		case fieldMsgConflictIndex:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("transport: decode conflict_index: %w", protowire.ParseError(n))
			}
			m.ConflictIndex = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Message{}, fmt.Errorf("transport: decode message: skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return m, nil
}
