// © Copyright 2025-2026, Graphfoundry Authors
// SPDX-License-Identifier: Apache-2.0

package neoarrow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validGraph() *Graph {
	return NewGraph("test", "neo4j").
		WithNode(&Node{
			Source:     "gs://.*/papers.*parquet",
			Label:      "Paper",
			KeyField:   "paper",
			Properties: map[string]string{"rank": "rank"},
		}).
		WithNode(&Node{
			Source:   "gs://.*/authors.*parquet",
			Label:    "Author",
			KeyField: "author",
		}).
		WithEdge(&Edge{
			Source:      "gs://.*/citations.*parquet",
			Type:        "CITES",
			SourceField: "source",
			TargetField: "target",
		}).
		WithEdge(&Edge{
			Source:      "gs://.*/authorship.*parquet",
			Type:        "AUTHORED",
			SourceField: "author",
			TargetField: "paper",
		})
}

func TestGraphValidate(t *testing.T) {
	require.NoError(t, validGraph().Validate())
}

func TestNodeValidate(t *testing.T) {
	tests := []struct {
		name    string
		node    Node
		wantMsg string
	}{
		{
			name:    "missing_source",
			node:    Node{KeyField: "id", Label: "Person"},
			wantMsg: "source must be provided in",
		},
		{
			name:    "missing_key_field",
			node:    Node{Source: "people.*", Label: "Person"},
			wantMsg: "key_field must be provided in",
		},
		{
			name:    "missing_label",
			node:    Node{Source: "people.*", KeyField: "id"},
			wantMsg: "either label or label_field must be provided in",
		},
		{
			name:    "label_and_label_field",
			node:    Node{Source: "people.*", KeyField: "id", Label: "Person", LabelField: "labels"},
			wantMsg: "use of label and label_field at the same time is not allowed in",
		},
	}
	for i := range tests {
		tt := &tests[i]
		t.Run(tt.name, func(t *testing.T) {
			err := tt.node.Validate()
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Message, tt.wantMsg)
		})
	}
}

func TestEdgeValidate(t *testing.T) {
	tests := []struct {
		name    string
		edge    Edge
		wantMsg string
	}{
		{
			name:    "missing_source",
			edge:    Edge{Type: "KNOWS", SourceField: "a", TargetField: "b"},
			wantMsg: "source must be provided in",
		},
		{
			name:    "missing_source_field",
			edge:    Edge{Source: "knows.*", Type: "KNOWS", TargetField: "b"},
			wantMsg: "source_field must be provided in",
		},
		{
			name:    "missing_target_field",
			edge:    Edge{Source: "knows.*", Type: "KNOWS", SourceField: "a"},
			wantMsg: "target_field must be provided in",
		},
		{
			name:    "missing_type",
			edge:    Edge{Source: "knows.*", SourceField: "a", TargetField: "b"},
			wantMsg: "either type or type_field must be provided in",
		},
		{
			name:    "type_and_type_field",
			edge:    Edge{Source: "knows.*", Type: "KNOWS", TypeField: "t", SourceField: "a", TargetField: "b"},
			wantMsg: "use of type and type_field at the same time is not allowed in",
		},
	}
	for i := range tests {
		tt := &tests[i]
		t.Run(tt.name, func(t *testing.T) {
			err := tt.edge.Validate()
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Message, tt.wantMsg)
		})
	}
}

func TestSourceMatchingIsAnchored(t *testing.T) {
	g := validGraph()

	n := g.NodeForSource("gs://bucket-name/papers_123.snappy.parquet")
	require.NotNil(t, n)
	assert.Equal(t, "Paper", n.Label)

	// The pattern matches from the start of the name, not anywhere inside.
	assert.Nil(t, g.NodeForSource("file://gs://bucket-name/papers.parquet"))
	assert.Nil(t, g.NodeForSource("gs://bucket-name/nothing.parquet"))

	e := g.EdgeForSource("gs://bucket-name/citations-0001.parquet")
	require.NotNil(t, e)
	assert.Equal(t, "CITES", e.Type)
}

func TestLookupByLabelAndType(t *testing.T) {
	g := validGraph()

	require.NotNil(t, g.NodeByLabel("Author"))
	assert.Equal(t, "author", g.NodeByLabel("Author").KeyField)
	assert.Nil(t, g.NodeByLabel("Reviewer"))

	require.NotNil(t, g.EdgeByType("AUTHORED"))
	assert.Nil(t, g.EdgeByType("REVIEWED"))
}

func TestGraphJSONRoundTrip(t *testing.T) {
	g := validGraph()
	data, err := g.ToJSON()
	require.NoError(t, err)

	back, err := GraphFromJSON(data)
	require.NoError(t, err)
	require.NoError(t, back.Validate())
	assert.Equal(t, g.Name, back.Name)
	assert.Equal(t, g.Database, back.Database)
	require.Len(t, back.Nodes, 2)
	require.Len(t, back.Edges, 2)
	assert.Equal(t, "Paper", back.Nodes[0].Label)
	assert.Equal(t, map[string]string{"rank": "rank"}, back.Nodes[0].Properties)
}

func TestGraphFromJSONRejectsGarbage(t *testing.T) {
	_, err := GraphFromJSON([]byte(`{"name": [1,2]}`))
	require.Error(t, err)
}

func TestInvalidSourcePatternNeverMatches(t *testing.T) {
	n := &Node{Source: "([unclosed", Label: "X", KeyField: "id"}
	assert.False(t, n.Matches("anything"))
}
