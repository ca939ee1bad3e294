package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Operation is one planned remote call: a capability plus structured
// arguments. Operations are immutable after creation; the dispatcher
// consumes them without mutation.
type Operation struct {
	ID         string         `json:"id"`
	Capability Capability     `json:"capability"`
	Arguments  map[string]any `json:"arguments"`
	// DependsOn lists operation IDs that must complete successfully
	// before this operation starts.
	DependsOn   []string `json:"depends_on,omitempty"`
	Description string   `json:"description,omitempty"`
}

// NewOperation creates an operation with a fresh ID.
func NewOperation(capability Capability, arguments map[string]any) Operation {
	return Operation{
		ID:         uuid.NewString(),
		Capability: capability,
		Arguments:  arguments,
	}
}

// Plan is the ordered, dependency-annotated sequence of operations produced
// for one query. DependsOn edges must form a DAG; cyclic plans are a
// resolver defect and are rejected before dispatch.
type Plan struct {
	Operations []Operation `json:"operations"`
}

// Validate checks that every dependency reference names an operation in the
// plan and that the dependency graph is acyclic.
func (p Plan) Validate() error {
	index := make(map[string]int, len(p.Operations))
	for i, op := range p.Operations {
		if !op.Capability.Known() {
			return fmt.Errorf("operation %s: unknown capability %q", op.ID, op.Capability)
		}
		if _, dup := index[op.ID]; dup {
			return fmt.Errorf("duplicate operation id %s", op.ID)
		}
		index[op.ID] = i
	}

	for _, op := range p.Operations {
		for _, dep := range op.DependsOn {
			if _, ok := index[dep]; !ok {
				return fmt.Errorf("operation %s depends on unknown operation %s", op.ID, dep)
			}
		}
	}

	// Cycle detection via iterative DFS with three-state coloring.
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(p.Operations))
	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case gray:
			return fmt.Errorf("dependency cycle involving operation %s", id)
		case black:
			return nil
		}
		color[id] = gray
		for _, dep := range p.Operations[index[id]].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}
	for _, op := range p.Operations {
		if err := visit(op.ID); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the operation with the given ID.
func (p Plan) Get(id string) (Operation, bool) {
	for _, op := range p.Operations {
		if op.ID == id {
			return op, true
		}
	}
	return Operation{}, false
}

// ResultStatus classifies the outcome of one operation.
type ResultStatus int

const (
	StatusOK ResultStatus = iota
	StatusRetryableError
	StatusFatalError
)

// String returns the status name.
func (s ResultStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRetryableError:
		return "retryable_error"
	case StatusFatalError:
		return "fatal_error"
	default:
		return "unknown"
	}
}

// ErrorKind classifies a remote failure for callers that act on it.
type ErrorKind string

const (
	ErrKindNone       ErrorKind = ""
	ErrKindRateLimit  ErrorKind = "rate_limit"
	ErrKindValidation ErrorKind = "validation"
	ErrKindPermission ErrorKind = "permission"
	ErrKindNotFound   ErrorKind = "not_found"
	ErrKindTransport  ErrorKind = "transport"
	ErrKindDependency ErrorKind = "dependency_failed"
)

// OperationResult is the immutable outcome of one operation. One result is
// produced per operation, in plan order, even when the operation failed or
// was skipped because a dependency failed.
type OperationResult struct {
	OperationID string          `json:"operation_id"`
	Capability  Capability      `json:"capability"`
	Status      ResultStatus    `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ErrorKind   ErrorKind       `json:"error_kind,omitempty"`
	ErrorDetail string          `json:"error_detail,omitempty"`
	Attempts    int             `json:"attempts"`
	CacheHit    bool            `json:"cache_hit,omitempty"`
}

// OK reports whether the operation completed successfully.
func (r OperationResult) OK() bool {
	return r.Status == StatusOK
}
