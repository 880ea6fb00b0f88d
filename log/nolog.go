// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package log provides the no-op github.com/luxfi/log.Logger implementation
// the replica falls back to when its embedding driver supplies none; the
// command-line driver owns real log sinks, the core only needs something
// to call.
package log

import (
	"context"
	"io"
	"log/slog"

	"github.com/luxfi/log"
)

// NoLog is a no-op logger implementation of the luxfi/log.Logger
// interface.
type NoLog struct{}

// NewNoOpLogger returns a Logger whose calls are all no-ops.
func NewNoOpLogger() log.Logger {
	return &NoLog{}
}

func (NoLog) Trace(msg string, ctx ...interface{})                {}
func (NoLog) Debug(msg string, ctx ...interface{})                {}
func (NoLog) Info(msg string, ctx ...interface{})                 {}
func (NoLog) Warn(msg string, ctx ...interface{})                 {}
func (NoLog) Error(msg string, ctx ...interface{})                {}
func (NoLog) Fatal(msg string, ctx ...interface{})                {}
func (NoLog) Panic(msg string, ctx ...interface{})                {}
func (NoLog) Crit(msg string, ctx ...interface{})                 {}
func (NoLog) Verbo(msg string, ctx ...interface{})                {}
func (NoLog) Log(level log.Level, msg string, ctx ...interface{}) {}

func (n NoLog) With() log.Context                 { return log.Context{} }
func (n NoLog) New(ctx ...interface{}) log.Logger { return n }
func (n NoLog) Output(w io.Writer) log.Logger     { return n }

func (n NoLog) Level(lvl log.Level) log.Logger                   { return n }
func (NoLog) GetLevel() log.Level                                { return log.Disabled }
func (NoLog) Enabled(ctx context.Context, level slog.Level) bool { return false }

func (NoLog) TraceEvent() *log.Event               { return nil }
func (NoLog) DebugEvent() *log.Event               { return nil }
func (NoLog) InfoEvent() *log.Event                { return nil }
func (NoLog) WarnEvent() *log.Event                { return nil }
func (NoLog) ErrorEvent() *log.Event               { return nil }
func (NoLog) FatalEvent() *log.Event               { return nil }
func (NoLog) PanicEvent() *log.Event               { return nil }
func (NoLog) Err(err error) *log.Event             { return nil }
func (NoLog) WithLevel(level log.Level) *log.Event { return nil }
func (NoLog) LogEvent() *log.Event                 { return nil }

func (n NoLog) Sample(s log.Sampler) log.Logger      { return n }
func (n NoLog) Hook(hooks ...log.Hook) log.Logger    { return n }
func (NoLog) Print(v ...interface{})                 {}
func (NoLog) Printf(format string, v ...interface{}) {}
func (NoLog) Write(p []byte) (n int, err error)      { return len(p), nil }

func (NoLog) SetLogLevel(level string) error { return nil }
func (NoLog) RecoverAndPanic(fn func())      { fn() }

func (NoLog) IsZero() bool { return true }
