package neoarrow

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server condition sentinels, recovered from gRPC status codes on the Flight
// channel. Use errors.Is to test for them on any error returned by a client
// call that reached the server.
var (
	// ErrAlreadyExists indicates the named graph or database already exists,
	// or an import with that name is already running.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidArgument indicates an invalid entity or action was requested.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound indicates the requested import process could not be found.
	ErrNotFound = errors.New("not found")
	// ErrInternal indicates a server-side failure.
	ErrInternal = errors.New("internal server error")
	// ErrUnknown covers server errors the client cannot classify.
	ErrUnknown = errors.New("unknown server error")
)

// ConnectionError reports a failed connection or authentication handshake.
// The session is unusable until a later call re-attempts the connection.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IllegalStateError reports an operation requested in a phase that disallows
// it. It is raised client-side, before any network call, and is recoverable
// by correcting call order.
type IllegalStateError struct {
	Op    string
	Phase Phase
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("operation %s not permitted in phase %s", e.Op, e.Phase)
}

// ProtocolError reports a server response that is missing required structure
// or signals a server-side rejection of an operation the client believed
// legal. Body carries the raw decoded response for diagnostics.
type ProtocolError struct {
	Action  string
	Phase   Phase
	Message string
	Body    []byte
}

func (e *ProtocolError) Error() string {
	if len(e.Body) > 0 {
		return fmt.Sprintf("%s (phase %s): %s: %s", e.Action, e.Phase, e.Message, e.Body)
	}
	return fmt.Sprintf("%s (phase %s): %s", e.Action, e.Phase, e.Message)
}

// UploadError reports a batch write that was rejected or a put-stream that
// failed mid-upload. Rows and Bytes hold the progress of the failed call
// before the failure; the caller decides on retry or abort.
type UploadError struct {
	EntityType string
	Rows       int64
	Bytes      int64
	Err        error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploading %ss after %d rows: %v", e.EntityType, e.Rows, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// interpretServerError classifies an error returned by the Flight channel
// into one of the server condition sentinels. Errors that carry no gRPC
// status pass through unchanged.
func interpretServerError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		// Older servers hide the status inside a flattened message.
		return interpretMessage(err)
	}
	switch st.Code() {
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", ErrAlreadyExists, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidArgument, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, st.Message())
	case codes.Internal:
		return fmt.Errorf("%w: %s", ErrInternal, st.Message())
	case codes.Unknown:
		return fmt.Errorf("%w: %s", ErrUnknown, lastLine(st.Message()))
	default:
		return err
	}
}

// interpretMessage falls back to substring matching for transports that
// flatten the status into the message text.
func interpretMessage(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "ALREADY_EXISTS"):
		return fmt.Errorf("%w: %s", ErrAlreadyExists, msg)
	case strings.Contains(msg, "INVALID_ARGUMENT"):
		return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
	case strings.Contains(msg, "NOT_FOUND"):
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case strings.Contains(msg, "INTERNAL"):
		return fmt.Errorf("%w: %s", ErrInternal, msg)
	case strings.Contains(msg, "UNKNOWN"):
		return fmt.Errorf("%w: %s", ErrUnknown, lastLine(msg))
	}
	return err
}

// lastLine trims an embedded, often-repeated server stack trace down to its
// final line.
func lastLine(msg string) string {
	msg = strings.ReplaceAll(msg, `\n`, "\n")
	lines := strings.Split(strings.TrimRight(msg, "\n"), "\n")
	if len(lines) == 0 {
		return msg
	}
	return lines[len(lines)-1]
}
