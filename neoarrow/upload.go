// © Copyright 2025-2026, Graphfoundry Authors
// SPDX-License-Identifier: Apache-2.0

package neoarrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
)

const (
	kindNode         = "node"
	kindRelationship = "relationship"
)

// uploadDescriptor is the command descriptor opening a put-stream: which
// import it feeds and which entity kind it carries.
type uploadDescriptor struct {
	Name       string `json:"name"`
	EntityType string `json:"entity_type"`
}

// uploadStream is one long-lived put-stream shared by every Write call for
// its entity kind. The mutex keeps concurrently written batches from
// interleaving mid-frame; the stream stays open until the matching Done call
// closes it.
type uploadStream struct {
	kind   string
	mu     sync.Mutex
	stream flight.FlightService_DoPutClient
	wr     *flight.Writer
	cancel context.CancelFunc
}

// close flushes the IPC footer, half-closes the stream, and drains the
// server's replies so a late rejection surfaces here rather than being lost.
func (up *uploadStream) close() error {
	up.mu.Lock()
	defer up.mu.Unlock()
	defer up.cancel()
	var firstErr error
	if err := up.wr.Close(); err != nil {
		firstErr = err
	}
	if err := up.stream.CloseSend(); err != nil && firstErr == nil {
		firstErr = err
	}
	for {
		if _, err := up.stream.Recv(); err != nil {
			if err != io.EOF && firstErr == nil {
				firstErr = interpretServerError(err)
			}
			break
		}
	}
	return firstErr
}

// discard tears the stream down without flushing. Abort and force paths.
func (up *uploadStream) discard() {
	up.mu.Lock()
	defer up.mu.Unlock()
	up.cancel()
}

// WriteNodes feeds node batches to the in-flight import. Legal only in
// NODE_LOADING. Safe to call from many goroutines at once: all callers share
// a single node put-stream and whole batches are the unit of interleaving.
// The returned summary is this call's delta, counted against the batches as
// given, before any model translation.
func (c *Client) WriteNodes(ctx context.Context, batches []arrow.RecordBatch, opts *WriteOptions) (WriteSummary, error) {
	if err := c.sm.require(opWriteNodes); err != nil {
		return WriteSummary{}, err
	}
	mapper, err := writeMapper(opts, kindNode)
	if err != nil {
		return WriteSummary{}, err
	}
	return c.putBatches(ctx, kindNode, batches, mapper)
}

// WriteEdges feeds relationship batches to the in-flight import. Legal in
// NODE_DONE and RELATIONSHIP_LOADING; the first successful call moves the
// phase to RELATIONSHIP_LOADING.
func (c *Client) WriteEdges(ctx context.Context, batches []arrow.RecordBatch, opts *WriteOptions) (WriteSummary, error) {
	if err := c.sm.require(opWriteEdges); err != nil {
		return WriteSummary{}, err
	}
	mapper, err := writeMapper(opts, kindRelationship)
	if err != nil {
		return WriteSummary{}, err
	}
	sum, err := c.putBatches(ctx, kindRelationship, batches, mapper)
	if err != nil {
		return sum, err
	}
	if err := c.sm.commit(opWriteEdges, PhaseRelationshipLoading, c.cfg.Graph); err != nil {
		return sum, err
	}
	return sum, nil
}

func writeMapper(opts *WriteOptions, kind string) (mapperFn, error) {
	if opts == nil || opts.Model == nil {
		return identityMapper, nil
	}
	if err := opts.Model.Validate(); err != nil {
		return nil, err
	}
	if kind == kindNode {
		return nodeMapper(opts.Model, opts.SourceField), nil
	}
	return edgeMapper(opts.Model, opts.SourceField), nil
}

// putBatches pushes every batch, slicing oversized ones down to the
// configured chunk size. On failure the returned UploadError carries the
// rows and bytes that did make it onto the wire in this call.
func (c *Client) putBatches(ctx context.Context, kind string, batches []arrow.RecordBatch, mapper mapperFn) (WriteSummary, error) {
	if len(batches) == 0 {
		return WriteSummary{}, fmt.Errorf("neoarrow: no %s batches to write", kind)
	}

	info := CallInfo{Kind: CallKindPut, Action: kind, Graph: c.cfg.Graph, Database: c.cfg.Database, Phase: c.Phase()}
	stats := &CallStatistics{}
	hctx, token, hooked := c.hookStart(ctx, info)

	sum, err := c.writeBatches(hctx, kind, batches, mapper, stats)
	if hooked {
		c.hookEnd(hctx, token, info, stats, err)
	}
	return sum, err
}

func (c *Client) writeBatches(ctx context.Context, kind string, batches []arrow.RecordBatch, mapper mapperFn, stats *CallStatistics) (WriteSummary, error) {
	var sum WriteSummary
	for _, batch := range batches {
		chunks := splitBatch(batch, int64(c.cfg.MaxChunkSize))
		for _, chunk := range chunks {
			rows, bytes, err := c.writeChunk(ctx, kind, chunk, mapper)
			if err != nil {
				releaseAll(chunks)
				return sum, &UploadError{EntityType: kind, Rows: sum.Rows, Bytes: sum.Bytes, Err: err}
			}
			sum.Rows += rows
			sum.Bytes += bytes
			stats.Record(rows, bytes)
		}
		releaseAll(chunks)
	}
	c.log.Debug().Str("entity", kind).Int64("rows", sum.Rows).Int64("bytes", sum.Bytes).Msg("wrote batches")
	return sum, nil
}

func (c *Client) writeChunk(ctx context.Context, kind string, chunk arrow.RecordBatch, mapper mapperFn) (rows, bytes int64, err error) {
	mapped, err := mapper(chunk)
	if err != nil {
		return 0, 0, err
	}
	defer mapped.Release()

	up, err := c.uploadFor(ctx, kind, mapped.Schema())
	if err != nil {
		return 0, 0, err
	}

	up.mu.Lock()
	werr := up.wr.Write(mapped)
	if werr != nil && errors.Is(werr, io.EOF) {
		// A send-side EOF hides the real status; the receive side has it.
		// Recv stays under the lock: the stream allows one receiver at a time.
		if _, rerr := up.stream.Recv(); rerr != nil && rerr != io.EOF {
			werr = interpretServerError(rerr)
		}
	}
	up.mu.Unlock()
	if werr != nil {
		return 0, 0, werr
	}
	// Progress is accounted against the caller's data, not the translated
	// frame that went on the wire.
	return chunk.NumRows(), batchBufferSize(chunk), nil
}

// uploadFor returns the put-stream for the given kind, opening it on first
// use. The stream outlives any single call, so it runs on a detached context;
// cancellation happens through close or discard, not the caller's deadline.
func (c *Client) uploadFor(ctx context.Context, kind string, schema *arrow.Schema) (*uploadStream, error) {
	c.upMu.Lock()
	defer c.upMu.Unlock()
	slot := &c.nodeUp
	if kind == kindRelationship {
		slot = &c.edgeUp
	}
	if *slot != nil {
		return *slot, nil
	}

	fc, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	desc, err := json.Marshal(uploadDescriptor{Name: c.cfg.Graph, EntityType: kind})
	if err != nil {
		return nil, fmt.Errorf("encoding %s stream descriptor: %w", kind, err)
	}

	sctx, cancel := context.WithCancel(c.withAuth(context.Background()))
	stream, err := fc.DoPut(sctx)
	if err != nil {
		cancel()
		return nil, interpretServerError(err)
	}

	opts := []ipc.Option{ipc.WithSchema(schema)}
	if c.cfg.ZstdCompression {
		opts = append(opts, ipc.WithZstd())
	}
	wr := flight.NewRecordWriter(stream, opts...)
	wr.SetFlightDescriptor(&flight.FlightDescriptor{Type: flight.DescriptorCMD, Cmd: desc})

	up := &uploadStream{kind: kind, stream: stream, wr: wr, cancel: cancel}
	*slot = up
	c.log.Debug().Str("entity", kind).Msg("opened put-stream")
	return up, nil
}

// closeUpload detaches and finalizes the put-stream for the given kind.
// A kind that never opened a stream is a no-op, which is exactly the
// zero-batch import case.
func (c *Client) closeUpload(kind string) error {
	c.upMu.Lock()
	slot := &c.nodeUp
	if kind == kindRelationship {
		slot = &c.edgeUp
	}
	up := *slot
	*slot = nil
	c.upMu.Unlock()
	if up == nil {
		return nil
	}
	return up.close()
}

// discardUploads abandons both put-streams without flushing.
func (c *Client) discardUploads() {
	c.upMu.Lock()
	node, edge := c.nodeUp, c.edgeUp
	c.nodeUp, c.edgeUp = nil, nil
	c.upMu.Unlock()
	for _, up := range []*uploadStream{node, edge} {
		if up != nil {
			up.discard()
		}
	}
}

// splitBatch slices b into chunks of at most max rows. The returned batches
// are each retained and must be released by the caller.
func splitBatch(b arrow.RecordBatch, max int64) []arrow.RecordBatch {
	n := b.NumRows()
	if n <= max {
		b.Retain()
		return []arrow.RecordBatch{b}
	}
	out := make([]arrow.RecordBatch, 0, (n+max-1)/max)
	for off := int64(0); off < n; off += max {
		end := off + max
		if end > n {
			end = n
		}
		out = append(out, b.NewSlice(off, end))
	}
	return out
}

func releaseAll(batches []arrow.RecordBatch) {
	for _, b := range batches {
		b.Release()
	}
}
