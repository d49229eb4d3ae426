// © Copyright 2025-2026, Graphfoundry Authors
// SPDX-License-Identifier: Apache-2.0

package neoarrow

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGraphConfigOmitsUnsetOptionals(t *testing.T) {
	body, err := encodeAction(CreateGraphConfig{
		Name:         "people",
		DatabaseName: "neo4j",
		Concurrency:  4,
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Equal(t, "people", raw["name"])
	assert.NotContains(t, raw, "undirected_relationship_types")
	assert.NotContains(t, raw, "inverse_indexed_relationship_types")
}

func TestCreateDatabaseConfigKeepsRequiredBooleans(t *testing.T) {
	body, err := encodeAction(CreateDatabaseConfig{Name: "people", Concurrency: 4})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	// False booleans still travel; only the string optionals are omitted.
	assert.Contains(t, raw, "high_io")
	assert.Contains(t, raw, "use_bad_collector")
	assert.Contains(t, raw, "force")
	assert.NotContains(t, raw, "id_type")
	assert.NotContains(t, raw, "record_format")
}

func TestDecodeActionSummary(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    ActionSummary
		wantErr bool
	}{
		{
			name: "name_only",
			body: `{"name":"people"}`,
			want: ActionSummary{Name: "people"},
		},
		{
			name: "counts_widened",
			body: `{"name":"people","node_count":12345678901,"relationship_count":7}`,
			want: ActionSummary{Name: "people", NodeCount: 12345678901, RelationshipCount: 7},
		},
		{
			name: "unknown_keys_ignored",
			body: `{"name":"people","future_key":true}`,
			want: ActionSummary{Name: "people"},
		},
		{
			name:    "missing_name",
			body:    `{"node_count":3}`,
			wantErr: true,
		},
		{
			name:    "not_an_object",
			body:    `[1,2,3]`,
			wantErr: true,
		},
		{
			name:    "not_json",
			body:    `<html>boom</html>`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum, err := decodeActionSummary(ActionCreateGraph, PhaseReady, []byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				var pe *ProtocolError
				require.True(t, errors.As(err, &pe))
				assert.Equal(t, []byte(tt.body), pe.Body)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Name, sum.Name)
			assert.Equal(t, tt.want.NodeCount, sum.NodeCount)
			assert.Equal(t, tt.want.RelationshipCount, sum.RelationshipCount)
		})
	}
}

func TestProcedureNamesFor(t *testing.T) {
	assert.Equal(t, "gds.graph.relationships.stream", ProcedureNamesFor("").EdgesTopology)
	assert.Equal(t, "gds.graph.relationships.stream", ProcedureNamesFor("2.5").EdgesTopology)
	assert.Equal(t, "gds.graph.relationships.stream", ProcedureNamesFor("2.5.3").EdgesTopology)
	assert.Equal(t, "gds.beta.graph.relationships.stream", ProcedureNamesFor("2.4").EdgesTopology)
	// The node procedures do not vary.
	assert.Equal(t, DefaultProcedureNames().NodesMultipleProperty, ProcedureNamesFor("2.4").NodesMultipleProperty)
}

func TestNodeTicket(t *testing.T) {
	body, err := nodeTicket("people", "neo4j", NodeFilter{Properties: []string{"age"}}, 4, DefaultProcedureNames())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Equal(t, "people", raw["graph_name"])
	assert.Equal(t, "neo4j", raw["database_name"])
	assert.Equal(t, "gds.graph.nodeProperties.stream", raw["procedure_name"])
	assert.Equal(t, float64(4), raw["concurrency"])

	cfg := raw["configuration"].(map[string]any)
	assert.Equal(t, []any{"*"}, cfg["node_labels"])
	assert.Equal(t, []any{"age"}, cfg["node_properties"])
	assert.Equal(t, true, cfg["list_node_labels"])
}

func TestNodeTicketEmptyPropertiesStreamsIDsOnly(t *testing.T) {
	body, err := nodeTicket("people", "neo4j", NodeFilter{}, 4, DefaultProcedureNames())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	cfg := raw["configuration"].(map[string]any)
	assert.Equal(t, []any{}, cfg["node_properties"])
}

func TestEdgeTicketSelectsProcedureByProperties(t *testing.T) {
	withProps, err := edgeTicket("people", "neo4j", EdgeFilter{Properties: []string{"weight"}, RelationshipTypes: []string{"KNOWS"}}, 2, DefaultProcedureNames())
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(withProps, &raw))
	assert.Equal(t, "gds.graph.relationshipProperties.stream", raw["procedure_name"])
	cfg := raw["configuration"].(map[string]any)
	assert.Equal(t, []any{"weight"}, cfg["relationship_properties"])
	assert.Equal(t, []any{"KNOWS"}, cfg["relationship_types"])

	topology, err := edgeTicket("people", "neo4j", EdgeFilter{}, 2, DefaultProcedureNames())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(topology, &raw))
	assert.Equal(t, "gds.graph.relationships.stream", raw["procedure_name"])
	cfg = raw["configuration"].(map[string]any)
	assert.Equal(t, []any{"*"}, cfg["relationship_types"])
	assert.NotContains(t, cfg, "relationship_properties")
}

func TestWidenInt(t *testing.T) {
	assert.Equal(t, int64(7), widenInt(float64(7)))
	assert.Equal(t, int64(42), widenInt(int64(42)))
	assert.Equal(t, int64(9), widenInt(json.Number("9")))
	assert.Equal(t, int64(0), widenInt(json.Number("not-a-number")))
	assert.Equal(t, int64(0), widenInt("17"))
	assert.Equal(t, int64(0), widenInt(nil))
}
