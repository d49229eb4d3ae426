// © Copyright 2025-2026, Graphfoundry Authors
// SPDX-License-Identifier: Apache-2.0

package neoarrow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseStrings(t *testing.T) {
	want := map[Phase]string{
		PhaseReady:               "READY",
		PhaseNodeLoading:         "NODE_LOADING",
		PhaseNodeDone:            "NODE_DONE",
		PhaseRelationshipLoading: "RELATIONSHIP_LOADING",
		PhaseRelationshipDone:    "RELATIONSHIP_DONE",
		PhaseComplete:            "COMPLETE",
		PhaseAborted:             "ABORTED",
		PhaseFailed:              "FAILED",
	}
	for p, s := range want {
		assert.Equal(t, s, p.String())
	}
}

func TestOperationLegality(t *testing.T) {
	tests := []struct {
		name  string
		phase Phase
		op    importOp
		legal bool
	}{
		{"start_from_ready", PhaseReady, opStart, true},
		{"start_from_complete", PhaseComplete, opStart, true},
		{"start_from_aborted", PhaseAborted, opStart, true},
		{"start_from_failed", PhaseFailed, opStart, true},
		{"start_mid_import", PhaseNodeLoading, opStart, false},
		{"write_nodes_while_loading", PhaseNodeLoading, opWriteNodes, true},
		{"write_nodes_before_start", PhaseReady, opWriteNodes, false},
		{"write_nodes_after_seal", PhaseNodeDone, opWriteNodes, false},
		{"nodes_done_while_loading", PhaseNodeLoading, opNodesDone, true},
		{"nodes_done_before_start", PhaseReady, opNodesDone, false},
		{"write_edges_after_nodes_done", PhaseNodeDone, opWriteEdges, true},
		{"write_edges_while_loading_edges", PhaseRelationshipLoading, opWriteEdges, true},
		{"write_edges_while_loading_nodes", PhaseNodeLoading, opWriteEdges, false},
		{"edges_done_from_node_done", PhaseNodeDone, opEdgesDone, true},
		{"edges_done_while_loading_edges", PhaseRelationshipLoading, opEdgesDone, true},
		{"edges_done_before_nodes_done", PhaseNodeLoading, opEdgesDone, false},
		{"wait_after_edges_done", PhaseRelationshipDone, opWait, true},
		{"wait_too_early", PhaseNodeDone, opWait, false},
		{"abort_anytime_ready", PhaseReady, opAbort, true},
		{"abort_anytime_loading", PhaseRelationshipLoading, opAbort, true},
		{"abort_anytime_complete", PhaseComplete, opAbort, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.legal, allows(tt.phase, tt.op))
		})
	}
}

func TestRequireReturnsIllegalState(t *testing.T) {
	var sm stateMachine
	sm.commitPhase(PhaseNodeDone, "g")

	err := sm.require(opWriteNodes)
	require.Error(t, err)

	var ise *IllegalStateError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, PhaseNodeDone, ise.Phase)
}

func TestCommitRevalidates(t *testing.T) {
	var sm stateMachine
	require.NoError(t, sm.require(opStart))

	// Another goroutine advanced the machine while this caller was on the
	// network. The stale commit must fail.
	sm.commitPhase(PhaseNodeLoading, "g")
	err := sm.commit(opStart, PhaseNodeLoading, "g")
	require.Error(t, err)

	var ise *IllegalStateError
	assert.True(t, errors.As(err, &ise))
}

func TestResetAbortFail(t *testing.T) {
	var sm stateMachine
	require.NoError(t, sm.commit(opStart, PhaseNodeLoading, "g"))
	assert.Equal(t, "g", sm.Name())

	sm.abort()
	assert.Equal(t, PhaseAborted, sm.Phase())

	sm.reset()
	assert.Equal(t, PhaseReady, sm.Phase())
	assert.Equal(t, "", sm.Name())

	require.NoError(t, sm.commit(opStart, PhaseNodeLoading, "g"))
	sm.fail()
	assert.Equal(t, PhaseFailed, sm.Phase())
}
