// Package dispatch executes operation plans against the remote service.
//
// Information Hiding:
// - DAG scheduling and concurrency bounds hidden behind Execute
// - Rate limiting, caching, batching, and retry policy internalized
// - Transport mechanics hidden behind the Transport interface
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/richinex/tabula/model"
)

// Transport is the tool-execution boundary: a synchronous call taking a
// capability name and argument map, returning a raw result or a structured
// error. The dispatcher depends only on this boundary, never on how the
// call is physically transported.
type Transport interface {
	Invoke(ctx context.Context, capability model.Capability, arguments map[string]any) (json.RawMessage, error)
}

// RemoteError is a structured failure from the remote service.
type RemoteError struct {
	Kind    model.ErrorKind
	Code    int
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (%s, code %d): %s", e.Kind, e.Code, e.Message)
}

// Retryable reports whether the failure is transient. Rate-limit pushback
// and transport faults are retried; validation, permission, and not-found
// failures are not.
func (e *RemoteError) Retryable() bool {
	return e.Kind == model.ErrKindRateLimit || e.Kind == model.ErrKindTransport
}

// classifyError maps an invoke error to an error kind and retryability.
// Unrecognized errors count as transport failures, which are transient.
func classifyError(err error) (model.ErrorKind, bool) {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Kind, remote.Retryable()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return model.ErrKindTransport, false
	}
	return model.ErrKindTransport, true
}
