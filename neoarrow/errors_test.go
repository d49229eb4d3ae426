// © Copyright 2025-2026, Graphfoundry Authors
// SPDX-License-Identifier: Apache-2.0

package neoarrow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestInterpretServerErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		code codes.Code
		want error
	}{
		{"already_exists", codes.AlreadyExists, ErrAlreadyExists},
		{"invalid_argument", codes.InvalidArgument, ErrInvalidArgument},
		{"not_found", codes.NotFound, ErrNotFound},
		{"internal", codes.Internal, ErrInternal},
		{"unknown", codes.Unknown, ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := interpretServerError(status.Error(tt.code, "boom"))
			assert.True(t, errors.Is(err, tt.want))
		})
	}
}

func TestInterpretServerErrorPassthrough(t *testing.T) {
	plain := errors.New("dial tcp: connection refused")
	assert.Equal(t, plain, interpretServerError(plain))
	assert.NoError(t, interpretServerError(nil))

	// Unmapped codes keep the original error.
	err := status.Error(codes.Unavailable, "down")
	assert.Equal(t, err, interpretServerError(err))
}

func TestInterpretMessageFallback(t *testing.T) {
	err := interpretMessage(errors.New("rpc failed: ALREADY_EXISTS: graph exists"))
	assert.True(t, errors.Is(err, ErrAlreadyExists))

	err = interpretMessage(errors.New(`UNKNOWN: org.neo4j.SomeException\nat Frame.one\nFailed to import`))
	require.True(t, errors.Is(err, ErrUnknown))
	// The repeated stack is trimmed to its final line.
	assert.Contains(t, err.Error(), "Failed to import")
	assert.NotContains(t, err.Error(), "Frame.one")
}

func TestErrorStrings(t *testing.T) {
	ce := &ConnectionError{Addr: "h:1", Err: errors.New("refused")}
	assert.Contains(t, ce.Error(), "h:1")
	assert.True(t, errors.Is(ce, ce.Err) || errors.Unwrap(ce) != nil)

	ise := &IllegalStateError{Op: "write_nodes", Phase: PhaseReady}
	assert.Contains(t, ise.Error(), "write_nodes")
	assert.Contains(t, ise.Error(), "READY")

	pe := &ProtocolError{Action: ActionAbort, Phase: PhaseReady, Message: "bad", Body: []byte(`{}`)}
	assert.Contains(t, pe.Error(), "ABORT")
	assert.Contains(t, pe.Error(), "{}")

	ue := &UploadError{EntityType: "node", Rows: 10, Err: errors.New("stream reset")}
	assert.Contains(t, ue.Error(), "10 rows")
	assert.True(t, errors.Is(ue, ue.Err))
}
