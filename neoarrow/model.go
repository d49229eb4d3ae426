// © Copyright 2025-2026, Graphfoundry Authors
// SPDX-License-Identifier: Apache-2.0

package neoarrow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
)

// ValidationError reports an invalid graph model.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Node maps a data source, matched by regex against a source name, onto the
// server's node schema roles: which field carries the key, and which field or
// constant carries the label.
type Node struct {
	Source     string            `json:"source"`
	Label      string            `json:"label,omitempty"`
	LabelField string            `json:"label_field,omitempty"`
	KeyField   string            `json:"key_field"`
	Properties map[string]string `json:"properties,omitempty"`

	patternOnce sync.Once
	pattern     *regexp.Regexp
	patternErr  error
}

// Validate checks the node mapping for completeness.
func (n *Node) Validate() error {
	if n.Source == "" {
		return &ValidationError{Message: fmt.Sprintf("source must be provided in %+v", n)}
	}
	if n.KeyField == "" {
		return &ValidationError{Message: fmt.Sprintf("key_field must be provided in %+v", n)}
	}
	if n.Label == "" && n.LabelField == "" {
		return &ValidationError{Message: fmt.Sprintf("either label or label_field must be provided in %+v", n)}
	}
	if n.Label != "" && n.LabelField != "" {
		return &ValidationError{Message: fmt.Sprintf("use of label and label_field at the same time is not allowed in %+v", n)}
	}
	return nil
}

// Matches reports whether the node's source pattern matches the given source
// name. The pattern is anchored at the start of the name.
func (n *Node) Matches(source string) bool {
	n.patternOnce.Do(func() {
		n.pattern, n.patternErr = regexp.Compile("^(?:" + n.Source + ")")
	})
	if n.patternErr != nil {
		return false
	}
	return n.pattern.MatchString(source)
}

// Edge maps a data source onto the server's relationship schema roles.
type Edge struct {
	Source      string            `json:"source"`
	Type        string            `json:"type,omitempty"`
	TypeField   string            `json:"type_field,omitempty"`
	SourceField string            `json:"source_field"`
	TargetField string            `json:"target_field"`
	Properties  map[string]string `json:"properties,omitempty"`

	patternOnce sync.Once
	pattern     *regexp.Regexp
	patternErr  error
}

// Validate checks the edge mapping for completeness.
func (e *Edge) Validate() error {
	if e.Source == "" {
		return &ValidationError{Message: fmt.Sprintf("source must be provided in %+v", e)}
	}
	if e.SourceField == "" {
		return &ValidationError{Message: fmt.Sprintf("source_field must be provided in %+v", e)}
	}
	if e.TargetField == "" {
		return &ValidationError{Message: fmt.Sprintf("target_field must be provided in %+v", e)}
	}
	if e.Type == "" && e.TypeField == "" {
		return &ValidationError{Message: fmt.Sprintf("either type or type_field must be provided in %+v", e)}
	}
	if e.Type != "" && e.TypeField != "" {
		return &ValidationError{Message: fmt.Sprintf("use of type and type_field at the same time is not allowed in %+v", e)}
	}
	return nil
}

// Matches reports whether the edge's source pattern matches the given source
// name, anchored at the start.
func (e *Edge) Matches(source string) bool {
	e.patternOnce.Do(func() {
		e.pattern, e.patternErr = regexp.Compile("^(?:" + e.Source + ")")
	})
	if e.patternErr != nil {
		return false
	}
	return e.pattern.MatchString(source)
}

// Graph is a declarative mapping of regex-matched data sources onto node and
// edge field-role assignments. A resolved Graph is a pure translation rule
// set: the protocol core never mutates or stores one.
type Graph struct {
	Name     string  `json:"name"`
	Database string  `json:"db"`
	Nodes    []*Node `json:"nodes,omitempty"`
	Edges    []*Edge `json:"edges,omitempty"`
}

// NewGraph creates an empty graph model.
func NewGraph(name, database string) *Graph {
	return &Graph{Name: name, Database: database}
}

// WithNode appends a node mapping, returning the graph for chaining.
func (g *Graph) WithNode(n *Node) *Graph {
	g.Nodes = append(g.Nodes, n)
	return g
}

// WithEdge appends an edge mapping, returning the graph for chaining.
func (g *Graph) WithEdge(e *Edge) *Graph {
	g.Edges = append(g.Edges, e)
	return g
}

// Validate checks every node and edge mapping.
func (g *Graph) Validate() error {
	for _, n := range g.Nodes {
		if err := n.Validate(); err != nil {
			return err
		}
	}
	for _, e := range g.Edges {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NodeForSource returns the first node mapping whose source pattern matches
// the given source name, or nil. Evaluation is first-match-wins in
// declaration order.
func (g *Graph) NodeForSource(source string) *Node {
	for _, n := range g.Nodes {
		if n.Matches(source) {
			return n
		}
	}
	return nil
}

// EdgeForSource returns the first edge mapping whose source pattern matches
// the given source name, or nil.
func (g *Graph) EdgeForSource(source string) *Edge {
	for _, e := range g.Edges {
		if e.Matches(source) {
			return e
		}
	}
	return nil
}

// NodeByLabel returns the node mapping with the given constant label, or nil.
func (g *Graph) NodeByLabel(label string) *Node {
	for _, n := range g.Nodes {
		if n.Label == label {
			return n
		}
	}
	return nil
}

// EdgeByType returns the edge mapping with the given constant type, or nil.
func (g *Graph) EdgeByType(relType string) *Edge {
	for _, e := range g.Edges {
		if e.Type == relType {
			return e
		}
	}
	return nil
}

// GraphFromJSON decodes a graph model from its JSON interchange form.
func GraphFromJSON(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decoding graph model: %w", err)
	}
	return &g, nil
}

// ToJSON encodes the graph model to its JSON interchange form.
func (g *Graph) ToJSON() ([]byte, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encoding graph model: %w", err)
	}
	return data, nil
}
