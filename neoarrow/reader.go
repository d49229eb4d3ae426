// © Copyright 2025-2026, Graphfoundry Authors
// SPDX-License-Identifier: Apache-2.0

package neoarrow

import (
	"context"
	"errors"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/rs/zerolog"
)

// BatchStream is a lazy, single-pass reader over an export get-stream.
// Batches are read from the wire only as Next is called; abandoning the
// stream early leaves server resources pinned until Close. A BatchStream is
// not restartable and not safe for concurrent use.
type BatchStream struct {
	client *Client
	rdr    *flight.Reader
	cancel context.CancelFunc
	log    zerolog.Logger

	hookCtx   context.Context
	hookToken HookToken
	hookInfo  CallInfo
	hooked    bool
	stats     *CallStatistics

	batches   int64
	exhausted bool
	closed    bool
	err       error
}

// Next advances to the following batch. It returns false at end of stream or
// on error; Err distinguishes the two.
func (s *BatchStream) Next() bool {
	if s.closed || s.exhausted || s.err != nil {
		return false
	}
	if s.rdr.Next() {
		s.batches++
		rec := s.rdr.RecordBatch()
		s.stats.Record(rec.NumRows(), batchBufferSize(rec))
		return true
	}
	if err := s.rdr.Err(); err != nil {
		s.err = interpretServerError(err)
	} else {
		s.exhausted = true
	}
	return false
}

// RecordBatch returns the current batch. It is only valid until the next call
// to Next or Close; Retain it to hold on longer.
func (s *BatchStream) RecordBatch() arrow.RecordBatch {
	return s.rdr.RecordBatch()
}

// Err returns the first error hit while reading, or nil after a clean end of
// stream.
func (s *BatchStream) Err() error {
	return s.err
}

// Drain consumes and discards the rest of the stream, then closes it. Useful
// when a consumer stops caring about the data but wants the server released
// cleanly.
func (s *BatchStream) Drain() error {
	for s.Next() {
	}
	err := s.err
	cerr := s.Close()
	if err != nil {
		return err
	}
	return cerr
}

// Close releases the reader and cancels the underlying call. Closing before
// the stream is exhausted is allowed but logged, since the server keeps
// working until the cancellation propagates.
func (s *BatchStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.exhausted && s.err == nil {
		s.log.Warn().Int64("batches", s.batches).Msg("get-stream abandoned before exhaustion")
	}
	s.rdr.Release()
	s.cancel()
	if s.hooked {
		s.client.hookEnd(s.hookCtx, s.hookToken, s.hookInfo, s.stats, s.err)
	}
	return nil
}

// ReadNodes opens a node export stream, filtered server-side to the given
// labels and properties. Empty filter fields mean all labels and no
// properties. The read path is phase-independent: it targets whatever the
// server has, regardless of this session's import lifecycle.
func (c *Client) ReadNodes(ctx context.Context, filter NodeFilter) (*BatchStream, error) {
	concurrency, err := c.readConcurrency(filter.Concurrency)
	if err != nil {
		return nil, err
	}
	ticket, err := nodeTicket(c.cfg.Graph, c.cfg.Database, filter, concurrency, c.procs)
	if err != nil {
		return nil, err
	}
	return c.openGet(ctx, "nodes", ticket)
}

// ReadEdges opens a relationship export stream. With properties requested the
// server streams full relationship records; without, topology only.
func (c *Client) ReadEdges(ctx context.Context, filter EdgeFilter) (*BatchStream, error) {
	concurrency, err := c.readConcurrency(filter.Concurrency)
	if err != nil {
		return nil, err
	}
	ticket, err := edgeTicket(c.cfg.Graph, c.cfg.Database, filter, concurrency, c.procs)
	if err != nil {
		return nil, err
	}
	return c.openGet(ctx, "relationships", ticket)
}

func (c *Client) readConcurrency(requested int) (int, error) {
	if requested < 0 {
		return 0, errors.New("neoarrow: concurrency must not be negative")
	}
	if requested == 0 {
		return c.cfg.Concurrency, nil
	}
	return requested, nil
}

func (c *Client) openGet(ctx context.Context, what string, ticket []byte) (*BatchStream, error) {
	fc, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	info := CallInfo{Kind: CallKindGet, Action: what, Graph: c.cfg.Graph, Database: c.cfg.Database, Phase: c.Phase()}
	stats := &CallStatistics{}
	hctx, token, hooked := c.hookStart(ctx, info)

	cctx, cancel := c.callContext(hctx)
	stream, err := fc.DoGet(cctx, &flight.Ticket{Ticket: ticket})
	if err != nil {
		cancel()
		err = interpretServerError(err)
		if hooked {
			c.hookEnd(hctx, token, info, stats, err)
		}
		return nil, err
	}
	rdr, err := flight.NewRecordReader(stream)
	if err != nil {
		cancel()
		err = interpretServerError(err)
		if hooked {
			c.hookEnd(hctx, token, info, stats, err)
		}
		return nil, err
	}

	c.log.Debug().Str("stream", what).Msg("opened get-stream")
	bs := &BatchStream{
		client:    c,
		rdr:       rdr,
		cancel:    cancel,
		log:       c.log.With().Str("stream", what).Logger(),
		hookCtx:   hctx,
		hookToken: token,
		hookInfo:  info,
		hooked:    hooked,
		stats:     stats,
	}
	return bs, nil
}
