// © Copyright 2025-2026, Graphfoundry Authors
// SPDX-License-Identifier: Apache-2.0

package neoarrow

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Batch(t *testing.T, n int) arrow.RecordBatch {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{{Name: "nodeId", Type: arrow.PrimitiveTypes.Int64}}, nil)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	for i := 0; i < n; i++ {
		b.Field(0).(*array.Int64Builder).Append(int64(i))
	}
	return b.NewRecordBatch()
}

func TestSplitBatch(t *testing.T) {
	tests := []struct {
		name     string
		rows     int
		max      int64
		wantLens []int64
	}{
		{"under_limit", 5, 10, []int64{5}},
		{"exactly_limit", 10, 10, []int64{10}},
		{"one_over", 11, 10, []int64{10, 1}},
		{"multiple_chunks", 35, 10, []int64{10, 10, 10, 5}},
		{"single_row", 1, 10, []int64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := int64Batch(t, tt.rows)
			defer batch.Release()

			chunks := splitBatch(batch, tt.max)
			defer releaseAll(chunks)

			var got []int64
			var total int64
			for _, c := range chunks {
				got = append(got, c.NumRows())
				total += c.NumRows()
			}
			assert.Equal(t, tt.wantLens, got)
			assert.Equal(t, int64(tt.rows), total)
		})
	}
}

func TestSplitBatchPreservesValues(t *testing.T) {
	batch := int64Batch(t, 25)
	defer batch.Release()

	chunks := splitBatch(batch, 10)
	defer releaseAll(chunks)
	require.Len(t, chunks, 3)

	last := chunks[2].Column(0).(*array.Int64)
	assert.Equal(t, int64(20), last.Value(0))
	assert.Equal(t, int64(24), last.Value(4))
}

func TestWriteMapperValidatesModel(t *testing.T) {
	broken := NewGraph("g", "neo4j").WithNode(&Node{Source: "x", KeyField: "id"})

	_, err := writeMapper(&WriteOptions{Model: broken}, kindNode)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	m, err := writeMapper(nil, kindNode)
	require.NoError(t, err)

	batch := int64Batch(t, 1)
	defer batch.Release()
	out, err := m(batch)
	require.NoError(t, err)
	out.Release()
}
