// © Copyright 2025-2026, Graphfoundry Authors
// SPDX-License-Identifier: Apache-2.0

// Command neoarrow-import bulk-loads Arrow IPC stream files into a Neo4j GDS
// Arrow endpoint as a graph projection or a new database.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/graphfoundry/neoarrow/neoarrow"
	"github.com/graphfoundry/neoarrow/neoarrow/otelhook"
)

type options struct {
	configPath string
	modelPath  string
	nodeFiles  []string
	edgeFiles  []string

	host        string
	port        int
	graph       string
	database    string
	user        string
	password    string
	noTLS       bool
	concurrency int
	timeout     time.Duration

	asDatabase bool
	force      bool
	debug      bool
	trace      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "neoarrow-import",
		Short: "Bulk-load Arrow IPC files into a Neo4j GDS Arrow endpoint",
		Long: `neoarrow-import drives a complete import lifecycle: it starts an import,
streams node files, seals them, streams relationship files, seals those, and
waits for completion. Input files are Arrow IPC streams; an optional JSON
graph model translates their column names onto the wire schema.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "TOML config file")
	f.StringVarP(&opts.modelPath, "model", "m", "", "JSON graph model file")
	f.StringSliceVar(&opts.nodeFiles, "nodes", nil, "Arrow IPC stream files holding node batches")
	f.StringSliceVar(&opts.edgeFiles, "edges", nil, "Arrow IPC stream files holding relationship batches")
	f.StringVar(&opts.host, "host", "", "server host")
	f.IntVar(&opts.port, "port", 0, "server port")
	f.StringVarP(&opts.graph, "graph", "g", "", "graph or database name to create")
	f.StringVarP(&opts.database, "database", "d", "", "backing database name")
	f.StringVarP(&opts.user, "user", "u", "", "basic auth user")
	f.StringVarP(&opts.password, "password", "p", "", "basic auth password")
	f.BoolVar(&opts.noTLS, "no-tls", false, "connect without TLS")
	f.IntVar(&opts.concurrency, "concurrency", 0, "server-side import concurrency")
	f.DurationVar(&opts.timeout, "timeout", 0, "per-call timeout")
	f.BoolVar(&opts.asDatabase, "as-database", false, "create a database instead of a graph projection")
	f.BoolVar(&opts.force, "force", false, "abort and supersede an import already in flight")
	f.BoolVar(&opts.debug, "debug", false, "verbose logging")
	f.BoolVar(&opts.trace, "trace", false, "emit OpenTelemetry spans and metrics to stdout")

	return cmd
}

func buildConfig(opts options, log zerolog.Logger) (neoarrow.ClientConfig, error) {
	cfg := neoarrow.DefaultConfig()
	if opts.configPath != "" {
		var err error
		cfg, err = neoarrow.LoadConfig(opts.configPath)
		if err != nil {
			return cfg, err
		}
	}
	if opts.host != "" {
		cfg.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Port = opts.port
	}
	if opts.graph != "" {
		cfg.Graph = opts.graph
	}
	if opts.database != "" {
		cfg.Database = opts.database
	}
	if opts.user != "" {
		cfg.User = opts.user
	}
	if opts.password != "" {
		cfg.Password = opts.password
	}
	if opts.noTLS {
		cfg.TLS = false
	}
	if opts.concurrency != 0 {
		cfg.Concurrency = opts.concurrency
	}
	if opts.timeout != 0 {
		cfg.Timeout = opts.timeout
	}
	cfg.Debug = cfg.Debug || opts.debug
	cfg.Logger = &log
	return cfg, nil
}

func run(ctx context.Context, opts options) error {
	level := zerolog.InfoLevel
	if opts.debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)

	cfg, err := buildConfig(opts, log)
	if err != nil {
		return err
	}

	if opts.trace {
		shutdown, err := installStdoutTelemetry(ctx)
		if err != nil {
			return err
		}
		defer shutdown(context.Background())
		cfg.Hook = otelhook.New(otelhook.DefaultConfig())
	}

	var model *neoarrow.Graph
	if opts.modelPath != "" {
		data, err := os.ReadFile(opts.modelPath)
		if err != nil {
			return fmt.Errorf("reading model: %w", err)
		}
		model, err = neoarrow.GraphFromJSON(data)
		if err != nil {
			return err
		}
		if err := model.Validate(); err != nil {
			return err
		}
	}

	client, err := neoarrow.NewClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if opts.asDatabase {
		dbOpts := neoarrow.DefaultCreateDatabaseOptions()
		dbOpts.Force = opts.force
		if _, err := client.StartCreateDatabase(ctx, dbOpts); err != nil {
			return err
		}
	} else {
		if _, err := client.StartCreateGraph(ctx, neoarrow.CreateGraphOptions{Force: opts.force}); err != nil {
			return err
		}
	}
	log.Info().Str("graph", cfg.Graph).Bool("database", opts.asDatabase).Msg("import started")

	writeOpts := &neoarrow.WriteOptions{Model: model}

	nodeRows, err := streamFiles(ctx, log, opts.nodeFiles, func(batches []arrow.RecordBatch) (neoarrow.WriteSummary, error) {
		return client.WriteNodes(ctx, batches, writeOpts)
	})
	if err != nil {
		return err
	}
	nodesDone, err := client.NodesDone(ctx)
	if err != nil {
		return err
	}
	log.Info().Int64("sent", nodeRows).Int64("loaded", nodesDone.NodeCount).Msg("nodes sealed")

	edgeRows, err := streamFiles(ctx, log, opts.edgeFiles, func(batches []arrow.RecordBatch) (neoarrow.WriteSummary, error) {
		return client.WriteEdges(ctx, batches, writeOpts)
	})
	if err != nil {
		return err
	}
	edgesDone, err := client.EdgesDone(ctx)
	if err != nil {
		return err
	}
	log.Info().Int64("sent", edgeRows).Int64("loaded", edgesDone.RelationshipCount).Msg("relationships sealed")

	if err := client.Wait(ctx); err != nil {
		return err
	}
	log.Info().Msg("import complete")
	return nil
}

// streamFiles feeds every batch of every file through write, one file at a
// time so peak memory stays bounded by the largest file's batch.
func streamFiles(ctx context.Context, log zerolog.Logger, paths []string, write func([]arrow.RecordBatch) (neoarrow.WriteSummary, error)) (int64, error) {
	var total int64
	for _, path := range paths {
		rows, err := streamFile(ctx, path, write)
		if err != nil {
			return total, fmt.Errorf("streaming %s: %w", path, err)
		}
		log.Debug().Str("file", path).Int64("rows", rows).Msg("file streamed")
		total += rows
	}
	return total, nil
}

func streamFile(ctx context.Context, path string, write func([]arrow.RecordBatch) (neoarrow.WriteSummary, error)) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	rdr, err := ipc.NewReader(f)
	if err != nil {
		return 0, err
	}
	defer rdr.Release()

	var total int64
	for {
		rec, err := rdr.Read()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		sum, err := write([]arrow.RecordBatch{rec})
		if err != nil {
			return total, err
		}
		total += sum.Rows
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

// installStdoutTelemetry wires stdout span and metric exporters into the
// global OTel providers. Meant for ad hoc inspection, not production export.
func installStdoutTelemetry(ctx context.Context) (func(context.Context) error, error) {
	traceExp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	metricExp, err := stdoutmetric.New()
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		terr := tp.Shutdown(ctx)
		merr := mp.Shutdown(ctx)
		if terr != nil {
			return terr
		}
		return merr
	}, nil
}
