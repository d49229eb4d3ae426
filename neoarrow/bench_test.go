// © Copyright 2025-2026, Graphfoundry Authors
// SPDX-License-Identifier: Apache-2.0

package neoarrow_test

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/graphfoundry/neoarrow/neoarrow"
	"github.com/graphfoundry/neoarrow/neoarrow/flighttest"
)

func benchBatch(rows int) arrow.RecordBatch {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "nodeId", Type: arrow.PrimitiveTypes.Int64},
		{Name: "labels", Type: arrow.BinaryTypes.String},
	}, nil)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	for i := 0; i < rows; i++ {
		b.Field(0).(*array.Int64Builder).Append(int64(i))
		b.Field(1).(*array.StringBuilder).Append("Person")
	}
	return b.NewRecordBatch()
}

func BenchmarkWriteNodes(b *testing.B) {
	srv := flighttest.NewServer()
	addr, err := srv.Start()
	if err != nil {
		b.Fatal(err)
	}
	defer srv.Stop()

	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)

	c, err := neoarrow.NewClient(neoarrow.ClientConfig{Host: host, Port: port, Graph: "bench"})
	if err != nil {
		b.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	if _, err := c.StartCreateGraph(ctx, neoarrow.CreateGraphOptions{}); err != nil {
		b.Fatal(err)
	}

	batch := benchBatch(1000)
	defer batch.Release()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		sum, err := c.WriteNodes(ctx, []arrow.RecordBatch{batch}, nil)
		if err != nil {
			b.Fatal(err)
		}
		b.SetBytes(sum.Bytes)
	}
}
