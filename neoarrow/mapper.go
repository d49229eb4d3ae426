// © Copyright 2025-2026, Graphfoundry Authors
// SPDX-License-Identifier: Apache-2.0

package neoarrow

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// mapperFn rewrites a caller-shaped record batch into the column layout the
// server expects. The returned batch is independently retained; the caller
// keeps ownership of the input.
type mapperFn func(arrow.RecordBatch) (arrow.RecordBatch, error)

// identityMapper passes batches through unchanged, retaining them so the
// upload path can release uniformly.
func identityMapper(batch arrow.RecordBatch) (arrow.RecordBatch, error) {
	batch.Retain()
	return batch, nil
}

// nodeMapper returns a mapper translating source batches into the node
// upload schema (nodeId, labels, properties...). When sourceField is set,
// the node mapping is resolved from that schema-metadata key; otherwise the
// first value of the batch's "labels" column is used to guess.
func nodeMapper(model *Graph, sourceField string) mapperFn {
	return func(batch arrow.RecordBatch) (arrow.RecordBatch, error) {
		var node *Node
		if sourceField != "" {
			src, err := schemaMetadataValue(batch, sourceField)
			if err != nil {
				return nil, err
			}
			node = model.NodeForSource(src)
		} else {
			label, err := firstStringValue(batch, "labels")
			if err != nil {
				return nil, err
			}
			node = model.NodeByLabel(label)
		}
		if node == nil {
			return nil, fmt.Errorf("cannot find matching node in model given %v", batch.Schema())
		}

		b := newBatchRewriter(batch)
		defer b.release()
		if err := b.rename(node.KeyField, "nodeId"); err != nil {
			return nil, err
		}
		if node.Label != "" {
			b.constant("labels", node.Label)
		}
		if node.LabelField != "" {
			if err := b.rename(node.LabelField, "labels"); err != nil {
				return nil, err
			}
		}
		for name, target := range node.Properties {
			if err := b.rename(name, target); err != nil {
				return nil, err
			}
		}
		return b.build(), nil
	}
}

// edgeMapper returns a mapper translating source batches into the
// relationship upload schema (sourceNodeId, targetNodeId, relationshipType,
// properties...).
func edgeMapper(model *Graph, sourceField string) mapperFn {
	return func(batch arrow.RecordBatch) (arrow.RecordBatch, error) {
		var edge *Edge
		if sourceField != "" {
			src, err := schemaMetadataValue(batch, sourceField)
			if err != nil {
				return nil, err
			}
			edge = model.EdgeForSource(src)
		} else {
			relType, err := firstStringValue(batch, "type")
			if err != nil {
				return nil, err
			}
			edge = model.EdgeByType(relType)
		}
		if edge == nil {
			return nil, fmt.Errorf("cannot find matching edge in model given %v", batch.Schema())
		}

		b := newBatchRewriter(batch)
		defer b.release()
		if err := b.rename(edge.SourceField, "sourceNodeId"); err != nil {
			return nil, err
		}
		if err := b.rename(edge.TargetField, "targetNodeId"); err != nil {
			return nil, err
		}
		if edge.Type != "" {
			b.constant("relationshipType", edge.Type)
		}
		if edge.TypeField != "" {
			if err := b.rename(edge.TypeField, "relationshipType"); err != nil {
				return nil, err
			}
		}
		for name, target := range edge.Properties {
			if err := b.rename(name, target); err != nil {
				return nil, err
			}
		}
		return b.build(), nil
	}
}

// batchRewriter accumulates renamed and synthesized columns for one output
// batch. Columns borrowed from the input are not retained until build, which
// hands ownership to the new record batch.
type batchRewriter struct {
	src    arrow.RecordBatch
	cols   []arrow.Array
	fields []arrow.Field
	owned  []arrow.Array // builder-created arrays to release after build
}

func newBatchRewriter(src arrow.RecordBatch) *batchRewriter {
	return &batchRewriter{src: src}
}

// rename carries the named input column into the output under a new name,
// keeping its type and nullability.
func (b *batchRewriter) rename(current, next string) error {
	indices := b.src.Schema().FieldIndices(current)
	if len(indices) == 0 {
		return fmt.Errorf("column %q not present in batch schema %v", current, b.src.Schema())
	}
	idx := indices[0]
	field := b.src.Schema().Field(idx)
	b.cols = append(b.cols, b.src.Column(idx))
	b.fields = append(b.fields, arrow.Field{Name: next, Type: field.Type, Nullable: field.Nullable})
	return nil
}

// constant synthesizes a string column holding value in every row.
func (b *batchRewriter) constant(name, value string) {
	mem := memory.NewGoAllocator()
	builder := array.NewStringBuilder(mem)
	defer builder.Release()
	for range int(b.src.NumRows()) {
		builder.Append(value)
	}
	arr := builder.NewArray()
	b.cols = append(b.cols, arr)
	b.owned = append(b.owned, arr)
	b.fields = append(b.fields, arrow.Field{Name: name, Type: arrow.BinaryTypes.String})
}

// build assembles the output batch. NewRecordBatch retains every column, so
// borrowed input columns stay valid independently of the source batch.
func (b *batchRewriter) build() arrow.RecordBatch {
	schema := arrow.NewSchema(b.fields, nil)
	return array.NewRecordBatch(schema, b.cols, b.src.NumRows())
}

// release frees builder-created columns once build has retained them.
func (b *batchRewriter) release() {
	for _, arr := range b.owned {
		arr.Release()
	}
	b.owned = nil
}

// schemaMetadataValue reads a schema-level custom metadata value by key.
func schemaMetadataValue(batch arrow.RecordBatch, key string) (string, error) {
	md := batch.Schema().Metadata()
	idx := md.FindKey(key)
	if idx < 0 {
		return "", fmt.Errorf("schema metadata key %q not present in batch schema %v", key, batch.Schema())
	}
	return md.Values()[idx], nil
}

// firstStringValue reads row 0 of the named string column.
func firstStringValue(batch arrow.RecordBatch, name string) (string, error) {
	indices := batch.Schema().FieldIndices(name)
	if len(indices) == 0 {
		return "", fmt.Errorf("column %q not present in batch schema %v", name, batch.Schema())
	}
	col, ok := batch.Column(indices[0]).(*array.String)
	if !ok || col.Len() == 0 {
		return "", fmt.Errorf("column %q is not a populated string column", name)
	}
	return col.Value(0), nil
}
