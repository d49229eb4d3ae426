// © Copyright 2025-2026, Graphfoundry Authors
// SPDX-License-Identifier: Apache-2.0

// Package neoarrow is a client for the Neo4j GDS Arrow Flight service: bulk
// graph import and export over an Arrow Flight endpoint.
//
// A [Client] is one session against a single (host, graph) pair. Imports run
// through a strict phase lifecycle: start an import with
// [Client.StartCreateGraph] or [Client.StartCreateDatabase], feed node
// batches with [Client.WriteNodes], seal them with [Client.NodesDone], feed
// relationship batches with [Client.WriteEdges], seal with
// [Client.EdgesDone], and finish with [Client.Wait]. Calls outside the
// current phase fail with [IllegalStateError] before touching the network.
//
// # Batch uploads
//
// Write calls accept Arrow record batches and are safe to issue from many
// goroutines at once: each entity kind shares one long-lived put-stream and
// whole batches are the unit of interleaving. Batches larger than the
// configured chunk size are sliced transparently. An optional [Graph] model
// on [WriteOptions] translates caller column names into the wire schema the
// server expects.
//
// # Exports
//
// [Client.ReadNodes] and [Client.ReadEdges] open lazy, single-pass
// [BatchStream] readers over server-side exports, with label, type, and
// property filtering pushed down to the server.
//
// # Errors
//
// Failures are typed: [ConnectionError] for transport problems,
// [IllegalStateError] for lifecycle misuse, [ProtocolError] for malformed or
// mismatched server replies, and [UploadError] for mid-stream write failures
// carrying the progress made before the fault. Server rejections map onto
// the [ErrAlreadyExists], [ErrInvalidArgument], [ErrNotFound], [ErrInternal],
// and [ErrUnknown] sentinels for errors.Is matching.
package neoarrow
