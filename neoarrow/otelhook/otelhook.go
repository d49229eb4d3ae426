// © Copyright 2025-2026, Graphfoundry Authors
// SPDX-License-Identifier: Apache-2.0

// Package otelhook provides OpenTelemetry instrumentation for neoarrow
// clients. It implements the [neoarrow.CallHook] interface to add client
// spans and metrics around actions, batch uploads, and export streams.
//
// Usage:
//
//	cfg := neoarrow.DefaultConfig()
//	cfg.Host = "gds.example.com"
//	cfg.Graph = "people"
//	cfg.Hook = otelhook.New(otelhook.DefaultConfig())
//	client, err := neoarrow.NewClient(cfg)
package otelhook

import (
	"context"
	"fmt"
	"time"

	"github.com/graphfoundry/neoarrow/neoarrow"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "neoarrow"

// Config configures OpenTelemetry instrumentation for a neoarrow client.
type Config struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// RecordExceptions calls RecordError on the span for failed calls.
	// Default true.
	RecordExceptions bool
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns a Config with sensible defaults. TracerProvider and
// MeterProvider are resolved from the global OTel SDK at construction time.
func DefaultConfig() Config {
	return Config{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

// New builds a CallHook recording a client span and request metrics per call.
func New(cfg Config) neoarrow.CallHook {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}

	hook := &otelHook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}

	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		hook.callCounter, _ = meter.Int64Counter("gds.client.calls",
			metric.WithUnit("{call}"),
			metric.WithDescription("Number of GDS Flight client calls"),
		)
		hook.durationHistogram, _ = meter.Float64Histogram("gds.client.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of GDS Flight client calls"),
		)
		hook.rowCounter, _ = meter.Int64Counter("gds.client.rows",
			metric.WithUnit("{row}"),
			metric.WithDescription("Rows transferred by GDS Flight client calls"),
		)
		hook.byteCounter, _ = meter.Int64Counter("gds.client.bytes",
			metric.WithUnit("By"),
			metric.WithDescription("Bytes transferred by GDS Flight client calls"),
		)
	}

	return hook
}

type otelHook struct {
	cfg               Config
	tracer            trace.Tracer
	callCounter       metric.Int64Counter
	durationHistogram metric.Float64Histogram
	rowCounter        metric.Int64Counter
	byteCounter       metric.Int64Counter
}

// spanToken is the HookToken returned by OnCallStart.
type spanToken struct {
	span      trace.Span
	startTime time.Time
}

// OnCallStart starts a client span for the call.
func (h *otelHook) OnCallStart(ctx context.Context, info neoarrow.CallInfo) (context.Context, neoarrow.HookToken) {
	if !h.cfg.EnableTracing {
		return ctx, &spanToken{startTime: time.Now()}
	}

	spanName := fmt.Sprintf("gds/%s/%s", info.Kind, info.Action)

	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "arrow_flight"),
		attribute.String("gds.call_kind", info.Kind),
		attribute.String("gds.action", info.Action),
		attribute.String("gds.graph", info.Graph),
		attribute.String("gds.database", info.Database),
		attribute.String("gds.phase", info.Phase.String()),
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)

	ctx, span := h.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	return ctx, &spanToken{span: span, startTime: time.Now()}
}

// OnCallEnd records metrics and span status, then ends the span.
func (h *otelHook) OnCallEnd(ctx context.Context, token neoarrow.HookToken, info neoarrow.CallInfo, stats *neoarrow.CallStatistics, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}

	duration := time.Since(st.startTime)

	status := "ok"
	if err != nil {
		status = "error"
	}

	if h.cfg.EnableMetrics {
		metricAttrs := metric.WithAttributes(
			attribute.String("rpc.system", "arrow_flight"),
			attribute.String("gds.call_kind", info.Kind),
			attribute.String("gds.action", info.Action),
			attribute.String("status", status),
		)
		if h.callCounter != nil {
			h.callCounter.Add(ctx, 1, metricAttrs)
		}
		if h.durationHistogram != nil {
			h.durationHistogram.Record(ctx, duration.Seconds(), metricAttrs)
		}
		if stats != nil {
			if h.rowCounter != nil {
				h.rowCounter.Add(ctx, stats.Rows, metricAttrs)
			}
			if h.byteCounter != nil {
				h.byteCounter.Add(ctx, stats.Bytes, metricAttrs)
			}
		}
	}

	if st.span != nil && st.span.IsRecording() {
		if stats != nil {
			st.span.SetAttributes(
				attribute.Int64("gds.batches", stats.Batches),
				attribute.Int64("gds.rows", stats.Rows),
				attribute.Int64("gds.bytes", stats.Bytes),
			)
		}

		if err != nil {
			st.span.SetStatus(codes.Error, err.Error())
			if h.cfg.RecordExceptions {
				st.span.RecordError(err)
			}
			st.span.SetAttributes(attribute.String("gds.error_type", fmt.Sprintf("%T", err)))
		} else {
			st.span.SetStatus(codes.Ok, "")
		}

		st.span.End()
	}
}
