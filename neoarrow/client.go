// © Copyright 2025-2026, Graphfoundry Authors
// SPDX-License-Identifier: Apache-2.0

package neoarrow

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// ClientConfig is the flat set of session options. Start from DefaultConfig
// and override; the zero value of TLS means plaintext, which is almost never
// what a production GDS endpoint expects.
type ClientConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Graph    string `toml:"graph"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	TLS      bool   `toml:"tls"`
	// TLSInsecureSkipVerify disables certificate verification. Test rigs only.
	TLSInsecureSkipVerify bool `toml:"tls_insecure_skip_verify"`
	Concurrency           int  `toml:"concurrency"`
	// Timeout bounds the connection handshake and each individual action or
	// stream call. Zero blocks indefinitely.
	Timeout time.Duration `toml:"-"`
	// MaxChunkSize caps the rows per uploaded batch; larger inputs are sliced.
	MaxChunkSize int  `toml:"max_chunk_size"`
	Debug        bool `toml:"debug"`
	// ZstdCompression enables zstd compression of put-stream IPC frames.
	ZstdCompression bool `toml:"zstd_compression"`
	// ServerVersion selects the GDS stream procedure names, e.g. "2.5".
	// Empty selects the defaults.
	ServerVersion string `toml:"server_version"`

	Logger *zerolog.Logger `toml:"-"`
	Hook   CallHook        `toml:"-"`
}

// DefaultConfig returns the documented session defaults.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		Port:         8491,
		Database:     "neo4j",
		User:         "neo4j",
		Password:     "neo4j",
		TLS:          true,
		Concurrency:  4,
		MaxChunkSize: 10_000,
	}
}

// withDefaults fills unset numeric and name fields. TLS and credentials are
// taken as given: empty credentials mean the basic-token handshake is skipped.
func (cfg ClientConfig) withDefaults() ClientConfig {
	if cfg.Port == 0 {
		cfg.Port = 8491
	}
	if cfg.Database == "" {
		cfg.Database = "neo4j"
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxChunkSize == 0 {
		cfg.MaxChunkSize = 10_000
	}
	return cfg
}

// LoadConfig reads a ClientConfig from a TOML file, merged over the defaults.
// The timeout is given as a duration string, e.g. "30s".
func LoadConfig(path string) (ClientConfig, error) {
	cfg := DefaultConfig()
	var file struct {
		ClientConfig
		Timeout string `toml:"timeout"`
	}
	file.ClientConfig = cfg
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return cfg, fmt.Errorf("loading config %s: %w", path, err)
	}
	cfg = file.ClientConfig
	if file.Timeout != "" {
		d, err := time.ParseDuration(file.Timeout)
		if err != nil {
			return cfg, fmt.Errorf("loading config %s: bad timeout: %w", path, err)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

// Client is one import/export session against a single (host, graph) pair.
// It owns its Flight connection exclusively; the connection and basic-token
// handshake happen lazily on the first call and are cached for the client's
// lifetime. A Client is safe for concurrent use; concurrent batch writes
// share one put-stream per entity kind under the coordinator's lock.
type Client struct {
	cfg   ClientConfig
	log   zerolog.Logger
	hook  CallHook
	procs ProcedureNames

	connMu sync.Mutex
	fc     flight.Client
	authMD metadata.MD

	sm stateMachine

	upMu   sync.Mutex
	nodeUp *uploadStream
	edgeUp *uploadStream
}

// NewClient creates an inert session. No network I/O happens until the first
// action or stream call.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("neoarrow: host is required")
	}
	if cfg.Graph == "" {
		return nil, errors.New("neoarrow: graph is required")
	}
	cfg = cfg.withDefaults()

	var log zerolog.Logger
	switch {
	case cfg.Logger != nil:
		log = *cfg.Logger
	case cfg.Debug:
		log = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	default:
		log = zerolog.Nop()
	}

	return &Client{
		cfg:   cfg,
		log:   log.With().Str("graph", cfg.Graph).Str("database", cfg.Database).Logger(),
		hook:  cfg.Hook,
		procs: ProcedureNamesFor(cfg.ServerVersion),
	}, nil
}

func (c *Client) String() string {
	return fmt.Sprintf("neoarrow.Client{%s@%s:%d/%s?graph=%s&encrypted=%t&concurrency=%d&debug=%t&timeout=%s&max_chunk_size=%d}",
		c.cfg.User, c.cfg.Host, c.cfg.Port, c.cfg.Database, c.cfg.Graph,
		c.cfg.TLS, c.cfg.Concurrency, c.cfg.Debug, c.cfg.Timeout, c.cfg.MaxChunkSize)
}

// Phase returns the client's current lifecycle phase.
func (c *Client) Phase() Phase {
	return c.sm.Phase()
}

// Copy returns a detached session with the same configuration and phase but
// no shared transport state. The copy re-dials lazily on first use. Use it to
// hand per-worker sessions to upload fan-out.
func (c *Client) Copy() *Client {
	nc, _ := NewClient(c.cfg)
	nc.sm.commitPhase(c.sm.Phase(), c.sm.Name())
	return nc
}

// Close releases the transport handle. In-flight streams are abandoned.
func (c *Client) Close() error {
	c.discardUploads()
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.fc == nil {
		return nil
	}
	err := c.fc.Close()
	c.fc = nil
	c.authMD = nil
	return err
}

// connect dials and authenticates at most once. A failed attempt leaves the
// handle nil so a later call retries; the guard also stops concurrent
// first-callers from racing to open duplicate connections.
func (c *Client) connect(ctx context.Context) (flight.Client, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.fc != nil {
		return c.fc, nil
	}

	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	var creds credentials.TransportCredentials
	if c.cfg.TLS {
		creds = credentials.NewTLS(&tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: c.cfg.TLSInsecureSkipVerify,
		})
	} else {
		creds = insecure.NewCredentials()
	}

	fc, err := flight.NewClientWithMiddleware(addr, nil, nil, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Err: err}
	}

	if c.cfg.User != "" && c.cfg.Password != "" {
		hctx := ctx
		if c.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			hctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}
		authCtx, err := fc.AuthenticateBasicToken(hctx, c.cfg.User, c.cfg.Password)
		if err != nil {
			fc.Close()
			return nil, &ConnectionError{Addr: addr, Err: err}
		}
		if md, ok := metadata.FromOutgoingContext(authCtx); ok {
			c.authMD = md
		}
	}

	c.log.Debug().Str("addr", addr).Msg("connected")
	c.fc = fc
	return fc, nil
}

// withAuth attaches the cached bearer token metadata, if any.
func (c *Client) withAuth(ctx context.Context) context.Context {
	c.connMu.Lock()
	md := c.authMD
	c.connMu.Unlock()
	if md == nil {
		return ctx
	}
	return metadata.NewOutgoingContext(ctx, md)
}

// callContext derives the per-call context: auth metadata plus the configured
// per-call timeout.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = c.withAuth(ctx)
	if c.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, c.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// doAction performs one unary action call and decodes the acknowledgment.
func (c *Client) doAction(ctx context.Context, action string, body any) (*ActionSummary, error) {
	fc, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := encodeAction(body)
	if err != nil {
		return nil, err
	}

	phase := c.Phase()
	info := CallInfo{Kind: CallKindAction, Action: action, Graph: c.cfg.Graph, Database: c.cfg.Database, Phase: phase}
	stats := &CallStatistics{}
	hctx, token, hooked := c.hookStart(ctx, info)

	sum, err := c.sendAction(hctx, fc, action, phase, payload, stats)
	if hooked {
		c.hookEnd(hctx, token, info, stats, err)
	}
	return sum, err
}

func (c *Client) sendAction(ctx context.Context, fc flight.Client, action string, phase Phase, payload []byte, stats *CallStatistics) (*ActionSummary, error) {
	cctx, cancel := c.callContext(ctx)
	defer cancel()

	stream, err := fc.DoAction(cctx, &flight.Action{Type: action, Body: payload})
	if err != nil {
		return nil, interpretServerError(err)
	}
	res, err := stream.Recv()
	if err != nil {
		if err == io.EOF {
			return nil, &ProtocolError{Action: action, Phase: phase, Message: "empty action result"}
		}
		return nil, interpretServerError(err)
	}
	// Drain any trailing results so the channel is clean.
	for {
		if _, err := stream.Recv(); err != nil {
			break
		}
	}
	stats.Record(0, int64(len(res.Body)))
	return decodeActionSummary(action, phase, res.Body)
}

// CreateGraphOptions are the caller-tunable parameters of StartCreateGraph.
type CreateGraphOptions struct {
	// Force aborts and supersedes an import already in flight, locally and
	// server-side.
	Force                           bool
	UndirectedRelationshipTypes     []string
	InverseIndexedRelationshipTypes []string
}

// CreateDatabaseOptions are the caller-tunable parameters of
// StartCreateDatabase. Start from DefaultCreateDatabaseOptions.
type CreateDatabaseOptions struct {
	Force           bool
	IDType          string
	IDProperty      string
	RecordFormat    string
	HighIO          bool
	UseBadCollector bool
}

// DefaultCreateDatabaseOptions returns the documented database-creation
// defaults.
func DefaultCreateDatabaseOptions() CreateDatabaseOptions {
	return CreateDatabaseOptions{HighIO: true}
}

// StartCreateGraph begins an in-memory graph projection import. On success
// the phase moves to NODE_LOADING and node batches may be fed.
func (c *Client) StartCreateGraph(ctx context.Context, opts CreateGraphOptions) (*ActionSummary, error) {
	body := CreateGraphConfig{
		Name:                            c.cfg.Graph,
		DatabaseName:                    c.cfg.Database,
		Concurrency:                     c.cfg.Concurrency,
		UndirectedRelationshipTypes:     opts.UndirectedRelationshipTypes,
		InverseIndexedRelationshipTypes: opts.InverseIndexedRelationshipTypes,
	}
	return c.start(ctx, ActionCreateGraph, body, opts.Force)
}

// StartCreateDatabase begins a database import. On success the phase moves to
// NODE_LOADING.
func (c *Client) StartCreateDatabase(ctx context.Context, opts CreateDatabaseOptions) (*ActionSummary, error) {
	body := CreateDatabaseConfig{
		Name:            c.cfg.Graph,
		Concurrency:     c.cfg.Concurrency,
		HighIO:          opts.HighIO,
		UseBadCollector: opts.UseBadCollector,
		Force:           opts.Force,
		IDType:          opts.IDType,
		IDProperty:      opts.IDProperty,
		RecordFormat:    opts.RecordFormat,
	}
	return c.start(ctx, ActionCreateDatabase, body, opts.Force)
}

func (c *Client) start(ctx context.Context, action string, body any, force bool) (*ActionSummary, error) {
	if err := c.sm.require(opStart); err != nil {
		if !force {
			return nil, err
		}
		c.log.Warn().Str("action", action).Msg("forcing cancellation of in-flight import")
		if _, aerr := c.Abort(ctx, ""); aerr != nil && !errors.Is(aerr, ErrNotFound) {
			return nil, aerr
		}
		c.sm.reset()
	}
	c.discardUploads()

	sum, err := c.doAction(ctx, action, body)
	if err != nil && force && errors.Is(err, ErrAlreadyExists) {
		c.log.Warn().Str("action", action).Msg("forcing cancellation of existing import job")
		if _, aerr := c.Abort(ctx, ""); aerr != nil && !errors.Is(aerr, ErrNotFound) {
			return nil, aerr
		}
		c.sm.reset()
		sum, err = c.doAction(ctx, action, body)
	}
	if err != nil {
		return nil, err
	}
	if sum.Name != c.cfg.Graph {
		return nil, &ProtocolError{
			Action:  action,
			Phase:   c.Phase(),
			Message: fmt.Sprintf("server acknowledged name %q, want %q", sum.Name, c.cfg.Graph),
		}
	}
	if err := c.sm.commit(opStart, PhaseNodeLoading, c.cfg.Graph); err != nil {
		return nil, err
	}
	return sum, nil
}

// WriteOptions select an optional graph-model translation for uploaded
// batches. SourceField names the schema-metadata key carrying the batch's
// source name; when empty the model is resolved from the batch's first
// labels/type value.
type WriteOptions struct {
	Model       *Graph
	SourceField string
}

// WriteSummary reports the rows and approximate bytes written by one call.
// It is a per-call delta, never a running total.
type WriteSummary struct {
	Rows  int64
	Bytes int64
}

// NodesDone signals that every node batch has been fed. The node put-stream
// is closed first so the server sees a complete stream before the action.
// Phase moves NODE_LOADING -> NODE_DONE. A zero-node import is sent as-is;
// the server's verdict on it is authoritative.
func (c *Client) NodesDone(ctx context.Context) (*ActionSummary, error) {
	if err := c.sm.require(opNodesDone); err != nil {
		return nil, err
	}
	if err := c.closeUpload(kindNode); err != nil {
		return nil, err
	}
	return c.done(ctx, ActionNodeLoadDone, opNodesDone, PhaseNodeDone)
}

// EdgesDone signals that every relationship batch has been fed. Phase moves
// to RELATIONSHIP_DONE. Calling it directly after NodesDone seals an import
// with no relationships.
func (c *Client) EdgesDone(ctx context.Context) (*ActionSummary, error) {
	if err := c.sm.require(opEdgesDone); err != nil {
		return nil, err
	}
	if err := c.closeUpload(kindRelationship); err != nil {
		return nil, err
	}
	return c.done(ctx, ActionRelationshipLoadDone, opEdgesDone, PhaseRelationshipDone)
}

func (c *Client) done(ctx context.Context, action string, op importOp, to Phase) (*ActionSummary, error) {
	sum, err := c.doAction(ctx, action, doneConfig{Name: c.cfg.Graph})
	if err != nil {
		// A definitive server rejection means the client's belief about the
		// import is no longer reliable. Transport-level failures leave the
		// phase unchanged: the attempt is presumed not to have taken effect.
		if errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrInternal) {
			c.sm.fail()
		}
		return nil, err
	}
	if sum.Name != c.cfg.Graph {
		return nil, &ProtocolError{
			Action:  action,
			Phase:   c.Phase(),
			Message: fmt.Sprintf("server acknowledged name %q, want %q", sum.Name, c.cfg.Graph),
		}
	}
	if err := c.sm.commit(op, to, c.cfg.Graph); err != nil {
		return nil, err
	}
	return sum, nil
}

// Wait marks the import complete. The current server protocol acknowledges
// completion synchronously in EdgesDone, so this only advances the local
// phase RELATIONSHIP_DONE -> COMPLETE.
func (c *Client) Wait(_ context.Context) error {
	return c.sm.commit(opWait, PhaseComplete, c.cfg.Graph)
}

// Abort cancels an import in flight. An empty name targets the session's own
// graph. On success the local phase becomes ABORTED.
func (c *Client) Abort(ctx context.Context, name string) (*ActionSummary, error) {
	if name == "" {
		name = c.cfg.Graph
	}
	c.discardUploads()
	sum, err := c.doAction(ctx, ActionAbort, doneConfig{Name: name})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.log.Warn().Str("name", name).Msg("no existing import to abort")
		}
		return nil, err
	}
	if sum.Name != name {
		return nil, &ProtocolError{
			Action:  ActionAbort,
			Phase:   c.Phase(),
			Message: fmt.Sprintf("server acknowledged name %q, want %q", sum.Name, name),
		}
	}
	c.sm.abort()
	return sum, nil
}
