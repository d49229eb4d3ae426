// © Copyright 2025-2026, Graphfoundry Authors
// SPDX-License-Identifier: Apache-2.0

package neoarrow

import "sync"

// Phase is the client's local belief about where the import lifecycle
// currently stands. The server remains authoritative: the state machine is
// advisory and a server-side rejection of an operation the client believed
// legal surfaces as a *ProtocolError, never as a client crash.
type Phase int

const (
	// PhaseReady means no import is in progress.
	PhaseReady Phase = iota
	// PhaseNodeLoading means an import was started and node batches may be fed.
	PhaseNodeLoading
	// PhaseNodeDone means the node load was signaled complete.
	PhaseNodeDone
	// PhaseRelationshipLoading means relationship batches may be fed.
	PhaseRelationshipLoading
	// PhaseRelationshipDone means the relationship load was signaled complete
	// and the server is materializing the graph.
	PhaseRelationshipDone
	// PhaseComplete means the import finished and the graph is usable.
	PhaseComplete
	// PhaseAborted means the import was cancelled via Abort.
	PhaseAborted
	// PhaseFailed means the server definitively rejected a lifecycle action.
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "READY"
	case PhaseNodeLoading:
		return "NODE_LOADING"
	case PhaseNodeDone:
		return "NODE_DONE"
	case PhaseRelationshipLoading:
		return "RELATIONSHIP_LOADING"
	case PhaseRelationshipDone:
		return "RELATIONSHIP_DONE"
	case PhaseComplete:
		return "COMPLETE"
	case PhaseAborted:
		return "ABORTED"
	case PhaseFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// idle reports whether no import is in flight. Starting a new import from an
// idle phase needs no force flag.
func (p Phase) idle() bool {
	switch p {
	case PhaseReady, PhaseComplete, PhaseAborted, PhaseFailed:
		return true
	}
	return false
}

// importOp enumerates the phase-gated operations.
type importOp int

const (
	opStart importOp = iota
	opWriteNodes
	opNodesDone
	opWriteEdges
	opEdgesDone
	opWait
	opAbort
)

func (op importOp) String() string {
	switch op {
	case opStart:
		return "start"
	case opWriteNodes:
		return "write_nodes"
	case opNodesDone:
		return "nodes_done"
	case opWriteEdges:
		return "write_edges"
	case opEdgesDone:
		return "edges_done"
	case opWait:
		return "wait"
	case opAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// stateMachine tracks the lifecycle phase and the name of the in-flight
// import for one client session. All access is serialized by its mutex;
// operations that cross a network suspension point must re-validate via
// commit rather than trusting the phase observed before the call.
type stateMachine struct {
	mu    sync.Mutex
	phase Phase
	name  string
}

// Phase returns the current phase.
func (sm *stateMachine) Phase() Phase {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.phase
}

// Name returns the name of the in-flight import, or "" when idle.
func (sm *stateMachine) Name() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.name
}

// allows reports whether op is legal in phase p.
func allows(p Phase, op importOp) bool {
	switch op {
	case opStart:
		return p.idle()
	case opWriteNodes, opNodesDone:
		return p == PhaseNodeLoading
	case opWriteEdges, opEdgesDone:
		// edges_done straight from NODE_DONE seals an import with no
		// relationships; the edge stream was simply never opened.
		return p == PhaseNodeDone || p == PhaseRelationshipLoading
	case opWait:
		return p == PhaseRelationshipDone || p == PhaseComplete
	case opAbort:
		return true
	}
	return false
}

// require validates op against the current phase before any network call.
// It returns an *IllegalStateError on rejection and never touches the wire.
func (sm *stateMachine) require(op importOp) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !allows(sm.phase, op) {
		return &IllegalStateError{Op: op.String(), Phase: sm.phase}
	}
	return nil
}

// commit re-validates op and, if it is still legal, moves the machine to the
// target phase. The re-validation matters because another goroutine may have
// advanced the phase while the caller was suspended on network I/O.
func (sm *stateMachine) commit(op importOp, to Phase, name string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !allows(sm.phase, op) {
		return &IllegalStateError{Op: op.String(), Phase: sm.phase}
	}
	sm.phase = to
	sm.name = name
	return nil
}

// commitPhase force-sets the phase without validation. Used when cloning a
// session that must inherit its parent's position in the lifecycle.
func (sm *stateMachine) commitPhase(p Phase, name string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.phase = p
	sm.name = name
}

// reset returns the machine to READY, dropping the in-flight name.
func (sm *stateMachine) reset() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.phase = PhaseReady
	sm.name = ""
}

// abort marks the in-flight import as cancelled.
func (sm *stateMachine) abort() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.phase = PhaseAborted
}

// fail marks the in-flight import as rejected by the server.
func (sm *stateMachine) fail() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.phase = PhaseFailed
}
