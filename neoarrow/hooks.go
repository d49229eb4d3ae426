// © Copyright 2025-2026, Graphfoundry Authors
// SPDX-License-Identifier: Apache-2.0

package neoarrow

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// Call kind string constants for CallInfo.Kind.
const (
	CallKindAction = "action"
	CallKindPut    = "put"
	CallKindGet    = "get"
)

// CallHook provides observability callpoints around client calls.
// Implementations must be safe for concurrent use (uploads are concurrent).
type CallHook interface {
	OnCallStart(ctx context.Context, info CallInfo) (context.Context, HookToken)
	OnCallEnd(ctx context.Context, token HookToken, info CallInfo, stats *CallStatistics, err error)
}

// HookToken is an opaque value returned by OnCallStart and passed back to
// OnCallEnd. Only meaningful to the CallHook that created it.
type HookToken interface{}

// CallInfo carries call metadata passed to hooks.
type CallInfo struct {
	Kind     string // CallKindAction, CallKindPut, or CallKindGet
	Action   string // server action name or, for streams, entity kind / procedure name
	Graph    string // target graph or database name
	Database string // backing database name
	Phase    Phase  // client phase at the time of the call
}

// CallStatistics holds per-call batch/row/byte counters.
type CallStatistics struct {
	Batches int64
	Rows    int64
	Bytes   int64
}

// Record records one transferred batch with the given row count and buffer size.
func (s *CallStatistics) Record(numRows, bufferBytes int64) {
	s.Batches++
	s.Rows += numRows
	s.Bytes += bufferBytes
}

// batchBufferSize returns the total buffer size in bytes across all columns
// of a record batch. An approximation of wire size, cheap to compute.
func batchBufferSize(batch arrow.RecordBatch) int64 {
	var total int64
	for i := int64(0); i < batch.NumCols(); i++ {
		col := batch.Column(int(i))
		for _, buf := range col.Data().Buffers() {
			if buf != nil {
				total += int64(buf.Len())
			}
		}
	}
	return total
}

// hookStart invokes the hook's OnCallStart, tolerating a panicking hook.
func (c *Client) hookStart(ctx context.Context, info CallInfo) (context.Context, HookToken, bool) {
	if c.hook == nil {
		return ctx, nil, false
	}
	var token HookToken
	ok := false
	func() {
		defer func() {
			if rv := recover(); rv != nil {
				c.log.Error().Interface("panic", rv).Msg("call hook start panic")
			}
		}()
		var hookCtx context.Context
		hookCtx, token = c.hook.OnCallStart(ctx, info)
		if hookCtx != nil {
			ctx = hookCtx
		}
		ok = true
	}()
	return ctx, token, ok
}

// hookEnd invokes the hook's OnCallEnd, tolerating a panicking hook.
func (c *Client) hookEnd(ctx context.Context, token HookToken, info CallInfo, stats *CallStatistics, err error) {
	if c.hook == nil {
		return
	}
	defer func() {
		if rv := recover(); rv != nil {
			c.log.Error().Interface("panic", rv).Msg("call hook end panic")
		}
	}()
	c.hook.OnCallEnd(ctx, token, info, stats, err)
}
