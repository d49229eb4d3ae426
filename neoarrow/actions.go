// © Copyright 2025-2026, Graphfoundry Authors
// SPDX-License-Identifier: Apache-2.0

package neoarrow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Server action names. These are the wire contract and must match the GDS
// Arrow service exactly.
const (
	ActionCreateGraph          = "CREATE_GRAPH"
	ActionCreateDatabase       = "CREATE_DATABASE"
	ActionNodeLoadDone         = "NODE_LOAD_DONE"
	ActionRelationshipLoadDone = "RELATIONSHIP_LOAD_DONE"
	ActionAbort                = "ABORT"
)

// CreateGraphConfig is the parameter body for a CREATE_GRAPH action.
// Optional keys are omitted when unset: omission, not null, signals "use
// server default".
type CreateGraphConfig struct {
	Name                            string   `json:"name"`
	DatabaseName                    string   `json:"database_name"`
	Concurrency                     int      `json:"concurrency"`
	UndirectedRelationshipTypes     []string `json:"undirected_relationship_types,omitempty"`
	InverseIndexedRelationshipTypes []string `json:"inverse_indexed_relationship_types,omitempty"`
}

// CreateDatabaseConfig is the parameter body for a CREATE_DATABASE action.
// HighIO, UseBadCollector, and Force are always present; the remaining
// optionals are omitted when unset.
type CreateDatabaseConfig struct {
	Name            string `json:"name"`
	Concurrency     int    `json:"concurrency"`
	HighIO          bool   `json:"high_io"`
	UseBadCollector bool   `json:"use_bad_collector"`
	Force           bool   `json:"force"`
	IDType          string `json:"id_type,omitempty"`
	IDProperty      string `json:"id_property,omitempty"`
	RecordFormat    string `json:"record_format,omitempty"`
}

// doneConfig is the body for NODE_LOAD_DONE, RELATIONSHIP_LOAD_DONE, and ABORT.
type doneConfig struct {
	Name string `json:"name"`
}

// encodeAction serializes an action parameter body to UTF-8 JSON.
func encodeAction(body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding action body: %w", err)
	}
	return payload, nil
}

// ActionSummary is the decoded acknowledgment of a lifecycle action. Raw
// retains the full response body, including keys this client version does
// not know about.
type ActionSummary struct {
	Name              string
	NodeCount         int64
	RelationshipCount int64
	Raw               map[string]any
}

// decodeActionSummary decodes a server action response body. The body must be
// a single JSON object with at least a "name" key; unknown extra keys are
// ignored for forward compatibility. A malformed or incomplete body yields a
// *ProtocolError carrying the raw bytes, never a crash.
func decodeActionSummary(action string, phase Phase, body []byte) (*ActionSummary, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ProtocolError{
			Action:  action,
			Phase:   phase,
			Message: fmt.Sprintf("response body is not a JSON object: %v", err),
			Body:    body,
		}
	}
	name, ok := raw["name"].(string)
	if !ok {
		return nil, &ProtocolError{
			Action:  action,
			Phase:   phase,
			Message: "response missing required 'name' key",
			Body:    body,
		}
	}
	return &ActionSummary{
		Name:              name,
		NodeCount:         widenInt(raw["node_count"]),
		RelationshipCount: widenInt(raw["relationship_count"]),
		Raw:               raw,
	}, nil
}

// widenInt converts a decoded JSON numeric value to int64. Missing or
// non-numeric values decode as zero; numbers are widened, never truncated to
// a narrower type.
func widenInt(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

// ProcedureNames holds the GDS stream procedure names used to resolve
// get-stream tickets. They vary across server versions.
type ProcedureNames struct {
	NodesSingleProperty   string
	NodesMultipleProperty string
	EdgesSingleProperty   string
	EdgesMultipleProperty string
	EdgesTopology         string
}

// DefaultProcedureNames returns the procedure names for GDS 2.5 servers.
func DefaultProcedureNames() ProcedureNames {
	return ProcedureNames{
		NodesSingleProperty:   "gds.graph.nodeProperty.stream",
		NodesMultipleProperty: "gds.graph.nodeProperties.stream",
		EdgesSingleProperty:   "gds.graph.relationshipProperty.stream",
		EdgesMultipleProperty: "gds.graph.relationshipProperties.stream",
		EdgesTopology:         "gds.graph.relationships.stream",
	}
}

// ProcedureNamesFor returns the procedure names appropriate for the given
// server version string. An empty version selects the defaults.
func ProcedureNamesFor(version string) ProcedureNames {
	names := DefaultProcedureNames()
	if version == "" || strings.HasPrefix(version, "2.5") {
		return names
	}
	names.EdgesTopology = "gds.beta.graph.relationships.stream"
	return names
}

// NodeFilter selects which node properties and labels a node read streams
// back. Empty Labels selects all labels. Properties must be requested
// explicitly; an empty list streams just the node ids.
type NodeFilter struct {
	Properties []string
	Labels     []string
	// Concurrency overrides the server-side read concurrency for this call.
	// Zero uses the session default.
	Concurrency int
}

// EdgeFilter selects which relationship properties and types an edge read
// streams back. Empty Properties selects topology-only mode (ids and type,
// no properties). All relationship types may be selected with ["*"].
type EdgeFilter struct {
	Properties        []string
	RelationshipTypes []string
	Concurrency       int
}

// ticketRequest is the JSON document resolved into a get-stream ticket.
type ticketRequest struct {
	GraphName     string         `json:"graph_name"`
	DatabaseName  string         `json:"database_name"`
	ProcedureName string         `json:"procedure_name"`
	Configuration map[string]any `json:"configuration"`
	Concurrency   int            `json:"concurrency"`
}

// nodeTicket encodes a node read filter into a ticket body. The filters are
// applied server-side; the stream reader never re-filters client-side.
func nodeTicket(graph, database string, f NodeFilter, concurrency int, names ProcedureNames) ([]byte, error) {
	return encodeAction(ticketRequest{
		GraphName:     graph,
		DatabaseName:  database,
		ProcedureName: names.NodesMultipleProperty,
		Configuration: map[string]any{
			"node_labels":      orStar(f.Labels),
			"node_properties":  orEmpty(f.Properties),
			"list_node_labels": true,
		},
		Concurrency: concurrency,
	})
}

// edgeTicket encodes an edge read filter into a ticket body. Requesting no
// properties selects the topology-only procedure.
func edgeTicket(graph, database string, f EdgeFilter, concurrency int, names ProcedureNames) ([]byte, error) {
	req := ticketRequest{
		GraphName:    graph,
		DatabaseName: database,
		Concurrency:  concurrency,
	}
	if len(f.Properties) > 0 {
		req.ProcedureName = names.EdgesMultipleProperty
		req.Configuration = map[string]any{
			"relationship_properties": f.Properties,
			"relationship_types":      orStar(f.RelationshipTypes),
		}
	} else {
		req.ProcedureName = names.EdgesTopology
		req.Configuration = map[string]any{
			"relationship_types": orStar(f.RelationshipTypes),
		}
	}
	return encodeAction(req)
}

func orStar(vals []string) []string {
	if len(vals) == 0 {
		return []string{"*"}
	}
	return vals
}

func orEmpty(vals []string) []string {
	if vals == nil {
		return []string{}
	}
	return vals
}
