package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/richinex/tabula/model"
)

// Options holds dispatcher policy knobs. Defaults match the remote
// service's documented limits: 10 items per write call, 5 sustained calls
// per second, and a practical parallelism limit of 5.
type Options struct {
	MaxConcurrency int
	MaxAttempts    int
	BatchCeiling   int
	RatePerSecond  float64
	RateBurst      int
	CacheTTL       time.Duration
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
}

// DefaultOptions returns the default dispatcher configuration.
func DefaultOptions() Options {
	return Options{
		MaxConcurrency: 5,
		MaxAttempts:    3,
		BatchCeiling:   10,
		RatePerSecond:  5,
		RateBurst:      5,
		CacheTTL:       300 * time.Second,
		BaseBackoff:    100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// withDefaults fills zero fields so a partially specified Options is safe.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = def.MaxConcurrency
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.BatchCeiling <= 0 {
		o.BatchCeiling = def.BatchCeiling
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = def.RatePerSecond
	}
	if o.RateBurst <= 0 {
		o.RateBurst = int(o.RatePerSecond)
		if o.RateBurst < 1 {
			o.RateBurst = 1
		}
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = def.CacheTTL
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = def.BaseBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = def.MaxBackoff
	}
	return o
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	RemoteCalls int64
	CacheHits   int64
	Retries     int64
}

// Dispatcher sequences operations against the remote service, enforcing
// its rate and batch-size ceilings with retry and caching discipline.
type Dispatcher struct {
	transport Transport
	gate      *rate.Limiter
	cache     *responseCache
	opts      Options

	remoteCalls atomic.Int64
	cacheHits   atomic.Int64
	retries     atomic.Int64
}

// New creates a dispatcher over the given transport.
func New(transport Transport, opts Options) *Dispatcher {
	opts = opts.withDefaults()
	return &Dispatcher{
		transport: transport,
		gate:      rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RateBurst),
		cache:     newResponseCache(opts.CacheTTL),
		opts:      opts,
	}
}

// Stats returns a snapshot of dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		RemoteCalls: d.remoteCalls.Load(),
		CacheHits:   d.cacheHits.Load(),
		Retries:     d.retries.Load(),
	}
}

// opState tracks one operation's completion for dependents.
type opState struct {
	done   chan struct{}
	result model.OperationResult
}

// Execute runs the plan. Independent operations run concurrently up to the
// configured ceiling; dependents wait for their dependencies and are
// skipped (marked fatal) when a dependency fails. Results are returned in
// plan order regardless of completion order; partial success is the normal
// shape, not an exception. The returned error reports only an invalid plan.
func (d *Dispatcher) Execute(ctx context.Context, plan model.Plan) ([]model.OperationResult, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	states := make(map[string]*opState, len(plan.Operations))
	for _, op := range plan.Operations {
		states[op.ID] = &opState{done: make(chan struct{})}
	}

	sem := make(chan struct{}, d.opts.MaxConcurrency)
	var wg sync.WaitGroup

	for _, op := range plan.Operations {
		op := op
		state := states[op.ID]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(state.done)
			state.result = d.runOperation(ctx, op, states, sem)
		}()
	}
	wg.Wait()

	results := make([]model.OperationResult, 0, len(plan.Operations))
	for _, op := range plan.Operations {
		results = append(results, states[op.ID].result)
	}
	return results, nil
}

// runOperation waits for dependencies, then executes one operation.
func (d *Dispatcher) runOperation(ctx context.Context, op model.Operation, states map[string]*opState, sem chan struct{}) model.OperationResult {
	base := model.OperationResult{
		OperationID: op.ID,
		Capability:  op.Capability,
	}

	deps := make(map[string]model.OperationResult, len(op.DependsOn))
	for _, depID := range op.DependsOn {
		dep := states[depID]
		<-dep.done
		if !dep.result.OK() {
			base.Status = model.StatusFatalError
			base.ErrorKind = model.ErrKindDependency
			base.ErrorDetail = fmt.Sprintf("dependency %s failed: %s", depID, dep.result.ErrorDetail)
			return base
		}
		deps[depID] = dep.result
	}

	// Cancellation stops new dispatches; calls already issued resolve
	// normally elsewhere so remote and cache state stay consistent.
	if ctx.Err() != nil {
		base.Status = model.StatusFatalError
		base.ErrorKind = model.ErrKindTransport
		base.ErrorDetail = "plan cancelled before dispatch"
		return base
	}

	sem <- struct{}{}
	defer func() { <-sem }()

	if ctx.Err() != nil {
		base.Status = model.StatusFatalError
		base.ErrorKind = model.ErrKindTransport
		base.ErrorDetail = "plan cancelled before dispatch"
		return base
	}

	args, err := resolveArguments(op, deps)
	if err != nil {
		// Resolution failures are never retryable, but a structured
		// error (an unknown table against a fetched schema) keeps its
		// own kind.
		base.Status = model.StatusFatalError
		base.ErrorKind = model.ErrKindValidation
		var remote *RemoteError
		if errors.As(err, &remote) {
			base.ErrorKind = remote.Kind
		}
		base.ErrorDetail = err.Error()
		return base
	}

	if op.Capability.Batchable() {
		return d.runBatched(ctx, op, args, base)
	}

	payload, cacheHit, attempts, err := d.call(ctx, op.Capability, args)
	base.Attempts = attempts
	base.CacheHit = cacheHit
	if err != nil {
		return failedResult(base, err)
	}
	base.Status = model.StatusOK
	base.Payload = payload
	return base
}

// runBatched splits an oversized item payload into ceiling-sized remote
// calls and merges the results back into one OperationResult, preserving
// input order. A sub-call failure marks the whole result while keeping the
// merged payload of the sub-calls that completed first.
func (d *Dispatcher) runBatched(ctx context.Context, op model.Operation, args map[string]any, base model.OperationResult) model.OperationResult {
	itemField := op.Capability.BatchItemField()
	items, ok := args[itemField].([]any)
	if !ok || len(items) <= d.opts.BatchCeiling {
		payload, cacheHit, attempts, err := d.call(ctx, op.Capability, args)
		base.Attempts = attempts
		base.CacheHit = cacheHit
		if err != nil {
			return failedResult(base, err)
		}
		base.Status = model.StatusOK
		base.Payload = payload
		return base
	}

	var payloads []json.RawMessage
	totalAttempts := 0
	for start := 0; start < len(items); start += d.opts.BatchCeiling {
		end := start + d.opts.BatchCeiling
		if end > len(items) {
			end = len(items)
		}

		subArgs := make(map[string]any, len(args))
		for k, v := range args {
			subArgs[k] = v
		}
		subArgs[itemField] = items[start:end]

		payload, _, attempts, err := d.call(ctx, op.Capability, subArgs)
		totalAttempts += attempts
		if err != nil {
			base.Attempts = totalAttempts
			failed := failedResult(base, err)
			if merged := mergeBatchPayloads(payloads); merged != nil {
				failed.Payload = merged
			}
			failed.ErrorDetail = fmt.Sprintf("sub-batch %d-%d: %s", start, end-1, failed.ErrorDetail)
			return failed
		}
		payloads = append(payloads, payload)
	}

	base.Status = model.StatusOK
	base.Attempts = totalAttempts
	base.Payload = mergeBatchPayloads(payloads)
	return base
}

// call routes a single logical remote call through cache, pagination, and
// retry as applicable for the capability.
func (d *Dispatcher) call(ctx context.Context, capability model.Capability, args map[string]any) (payload json.RawMessage, cacheHit bool, attempts int, err error) {
	execute := func() (json.RawMessage, int, error) {
		if capability.Paginated() {
			return d.invokePaginated(ctx, capability, args)
		}
		return d.invokeWithRetry(ctx, capability, args)
	}

	if !capability.Cacheable() {
		payload, attempts, err = execute()
		return payload, false, attempts, err
	}

	key := fingerprint(capability, args)
	var innerAttempts int
	payload, cacheHit, err = d.cache.getOrCall(ctx, key, func() (json.RawMessage, error) {
		p, a, callErr := execute()
		innerAttempts = a
		return p, callErr
	})
	if cacheHit {
		d.cacheHits.Add(1)
	}
	return payload, cacheHit, innerAttempts, err
}

// invokePaginated threads the opaque offset token through repeated calls
// until it is absent, merging record pages in order. Cancellation between
// pages fails the whole call: a partial merge must never be cached or
// reported as a complete result.
func (d *Dispatcher) invokePaginated(ctx context.Context, capability model.Capability, args map[string]any) (json.RawMessage, int, error) {
	pageArgs := make(map[string]any, len(args)+1)
	for k, v := range args {
		pageArgs[k] = v
	}

	var pages []json.RawMessage
	totalAttempts := 0
	for {
		payload, attempts, err := d.invokeWithRetry(ctx, capability, pageArgs)
		totalAttempts += attempts
		if err != nil {
			return nil, totalAttempts, err
		}
		pages = append(pages, payload)

		offset := extractOffset(payload)
		if offset == "" {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, totalAttempts, fmt.Errorf("pagination cancelled after page %d: %w", len(pages), err)
		}
		pageArgs["offset"] = offset
	}

	if len(pages) == 1 {
		return pages[0], totalAttempts, nil
	}
	return mergePages(pages), totalAttempts, nil
}

// invokeWithRetry issues one remote call with the rate gate and
// exponential backoff on transient failures. The gate honors plan
// cancellation; a call that has passed the gate runs on a detached context
// so an in-flight remote mutation is never aborted mid-way.
func (d *Dispatcher) invokeWithRetry(ctx context.Context, capability model.Capability, args map[string]any) (json.RawMessage, int, error) {
	var lastErr error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			d.retries.Add(1)
			select {
			case <-ctx.Done():
				return nil, attempt - 1, ctx.Err()
			case <-time.After(d.backoff(attempt - 1)):
			}
		}

		if err := d.gate.Wait(ctx); err != nil {
			return nil, attempt - 1, err
		}

		d.remoteCalls.Add(1)
		payload, err := d.transport.Invoke(context.WithoutCancel(ctx), capability, args)
		if err == nil {
			return payload, attempt, nil
		}
		lastErr = err

		if _, retryable := classifyError(err); !retryable {
			return nil, attempt, err
		}
	}
	return nil, d.opts.MaxAttempts, fmt.Errorf("failed after %d attempts: %w", d.opts.MaxAttempts, lastErr)
}

// backoff returns the exponential backoff delay for the given retry index.
func (d *Dispatcher) backoff(retry int) time.Duration {
	delay := d.opts.BaseBackoff * time.Duration(1<<retry)
	if delay > d.opts.MaxBackoff {
		delay = d.opts.MaxBackoff
	}
	return delay
}

// failedResult fills error fields on a result from an invoke error.
func failedResult(base model.OperationResult, err error) model.OperationResult {
	kind, retryable := classifyError(err)
	base.ErrorKind = kind
	base.ErrorDetail = err.Error()
	if retryable {
		base.Status = model.StatusRetryableError
	} else {
		base.Status = model.StatusFatalError
	}
	return base
}
