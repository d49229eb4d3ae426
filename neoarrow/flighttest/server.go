// © Copyright 2025-2026, Graphfoundry Authors
// SPDX-License-Identifier: Apache-2.0

// Package flighttest runs an in-process Arrow Flight server speaking the GDS
// import/export action protocol. It exists for tests: it validates the shape
// of client traffic, counts what arrives, and serves canned exports.
package flighttest

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ImportState is the server's view of one in-flight import.
type ImportState struct {
	Kind        string // "graph" or "database"
	NodeBatches int64
	NodeRows    int64
	EdgeBatches int64
	EdgeRows    int64
	NodesSealed bool
	EdgesSealed bool
}

// NodeRow is one canned node served by node export streams.
type NodeRow struct {
	ID    int64
	Label string
}

// RelRow is one canned relationship served by relationship export streams.
type RelRow struct {
	Source int64
	Target int64
	Type   string
}

// Server is a fake GDS Arrow Flight endpoint. Configure its canned data and
// overrides before Start; inspect its counters after the client has run.
type Server struct {
	flight.BaseFlightServer

	fs flight.Server

	mu      sync.Mutex
	imports map[string]*ImportState

	// RawResults overrides the action reply body for the named action types.
	// For making the server misbehave on purpose.
	RawResults map[string][]byte

	// Nodes and Relationships are served by export streams, one batch per row.
	Nodes         []NodeRow
	Relationships []RelRow
}

func NewServer() *Server {
	return &Server{
		imports:    make(map[string]*ImportState),
		RawResults: make(map[string][]byte),
	}
}

// Start binds a loopback listener and serves in a background goroutine.
// It returns the address to dial.
func (s *Server) Start() (string, error) {
	s.fs = flight.NewServerWithMiddleware(nil)
	if err := s.fs.Init("localhost:0"); err != nil {
		return "", err
	}
	s.fs.RegisterFlightService(s)
	go s.fs.Serve()
	return s.fs.Addr().String(), nil
}

func (s *Server) Stop() {
	if s.fs != nil {
		s.fs.Shutdown()
	}
}

// Import returns a copy of the named import's state.
func (s *Server) Import(name string) (ImportState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.imports[name]
	if !ok {
		return ImportState{}, false
	}
	return *st, true
}

func (s *Server) DoAction(action *flight.Action, stream flight.FlightService_DoActionServer) error {
	var body map[string]any
	if len(action.Body) > 0 {
		if err := json.Unmarshal(action.Body, &body); err != nil {
			return status.Errorf(codes.InvalidArgument, "malformed action body: %v", err)
		}
	}
	name, _ := body["name"].(string)

	reply, err := s.applyAction(action.Type, name)
	if err != nil {
		return err
	}
	if raw, ok := s.RawResults[action.Type]; ok {
		reply = raw
	}
	return stream.Send(&flight.Result{Body: reply})
}

func (s *Server) applyAction(actionType, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch actionType {
	case "CREATE_GRAPH", "CREATE_DATABASE":
		if _, exists := s.imports[name]; exists {
			return nil, status.Errorf(codes.AlreadyExists, "import for %q already exists", name)
		}
		kind := "graph"
		if actionType == "CREATE_DATABASE" {
			kind = "database"
		}
		s.imports[name] = &ImportState{Kind: kind}
		return mustJSON(map[string]any{"name": name}), nil

	case "NODE_LOAD_DONE":
		st, ok := s.imports[name]
		if !ok {
			return nil, status.Errorf(codes.NotFound, "no import for %q", name)
		}
		st.NodesSealed = true
		return mustJSON(map[string]any{"name": name, "node_count": st.NodeRows}), nil

	case "RELATIONSHIP_LOAD_DONE":
		st, ok := s.imports[name]
		if !ok {
			return nil, status.Errorf(codes.NotFound, "no import for %q", name)
		}
		st.EdgesSealed = true
		return mustJSON(map[string]any{"name": name, "relationship_count": st.EdgeRows}), nil

	case "ABORT":
		if _, ok := s.imports[name]; !ok {
			return nil, status.Errorf(codes.NotFound, "no import for %q", name)
		}
		delete(s.imports, name)
		return mustJSON(map[string]any{"name": name}), nil

	default:
		return nil, status.Errorf(codes.Unimplemented, "unknown action %q", actionType)
	}
}

func (s *Server) DoPut(stream flight.FlightService_DoPutServer) error {
	rdr, err := flight.NewRecordReader(stream)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "opening put-stream: %v", err)
	}
	defer rdr.Release()

	desc := rdr.LatestFlightDescriptor()
	if desc == nil || desc.Type != flight.DescriptorCMD {
		return status.Error(codes.InvalidArgument, "put-stream requires a command descriptor")
	}
	var cmd struct {
		Name       string `json:"name"`
		EntityType string `json:"entity_type"`
	}
	if err := json.Unmarshal(desc.Cmd, &cmd); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed put descriptor: %v", err)
	}
	if cmd.EntityType != "node" && cmd.EntityType != "relationship" {
		return status.Errorf(codes.InvalidArgument, "unknown entity type %q", cmd.EntityType)
	}

	for rdr.Next() {
		rec := rdr.RecordBatch()
		s.mu.Lock()
		st, ok := s.imports[cmd.Name]
		if !ok {
			s.mu.Unlock()
			return status.Errorf(codes.NotFound, "no import for %q", cmd.Name)
		}
		if cmd.EntityType == "node" {
			st.NodeBatches++
			st.NodeRows += rec.NumRows()
		} else {
			st.EdgeBatches++
			st.EdgeRows += rec.NumRows()
		}
		s.mu.Unlock()
	}
	return rdr.Err()
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// exportTicket mirrors the client's get-stream ticket document.
type exportTicket struct {
	GraphName     string         `json:"graph_name"`
	DatabaseName  string         `json:"database_name"`
	ProcedureName string         `json:"procedure_name"`
	Configuration map[string]any `json:"configuration"`
	Concurrency   int            `json:"concurrency"`
}

func (s *Server) DoGet(ticket *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	var req exportTicket
	if err := json.Unmarshal(ticket.Ticket, &req); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed ticket: %v", err)
	}
	if req.GraphName == "" {
		return status.Error(codes.InvalidArgument, "ticket missing graph_name")
	}
	if req.Concurrency <= 0 {
		return status.Error(codes.InvalidArgument, "ticket concurrency must be positive")
	}

	switch {
	case strings.Contains(req.ProcedureName, "nodeProperties"):
		return s.serveNodes(req, stream)
	case strings.Contains(req.ProcedureName, "relationship"):
		return s.serveRelationships(req, stream)
	default:
		return status.Errorf(codes.InvalidArgument, "unknown procedure %q", req.ProcedureName)
	}
}

func (s *Server) serveNodes(req exportTicket, stream flight.FlightService_DoGetServer) error {
	labels := stringSlice(req.Configuration["node_labels"])
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "nodeId", Type: arrow.PrimitiveTypes.Int64},
		{Name: "labels", Type: arrow.BinaryTypes.String},
	}, nil)
	wr := flight.NewRecordWriter(stream, ipc.WithSchema(schema))
	defer wr.Close()

	for _, n := range s.Nodes {
		if !matches(labels, n.Label) {
			continue
		}
		rec := nodeRecord(schema, n)
		err := wr.Write(rec)
		rec.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) serveRelationships(req exportTicket, stream flight.FlightService_DoGetServer) error {
	types := stringSlice(req.Configuration["relationship_types"])
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "sourceNodeId", Type: arrow.PrimitiveTypes.Int64},
		{Name: "targetNodeId", Type: arrow.PrimitiveTypes.Int64},
		{Name: "relationshipType", Type: arrow.BinaryTypes.String},
	}, nil)
	wr := flight.NewRecordWriter(stream, ipc.WithSchema(schema))
	defer wr.Close()

	for _, r := range s.Relationships {
		if !matches(types, r.Type) {
			continue
		}
		rec := relRecord(schema, r)
		err := wr.Write(rec)
		rec.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

func nodeRecord(schema *arrow.Schema, n NodeRow) arrow.RecordBatch {
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).Append(n.ID)
	b.Field(1).(*array.StringBuilder).Append(n.Label)
	return b.NewRecordBatch()
}

func relRecord(schema *arrow.Schema, r RelRow) arrow.RecordBatch {
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).Append(r.Source)
	b.Field(1).(*array.Int64Builder).Append(r.Target)
	b.Field(2).(*array.StringBuilder).Append(r.Type)
	return b.NewRecordBatch()
}

// matches reports whether value passes a ticket filter list. A nil list or a
// "*" wildcard admits everything.
func matches(filter []string, value string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == "*" || f == value {
			return true
		}
	}
	return false
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		out = append(out, fmt.Sprint(e))
	}
	return out
}
