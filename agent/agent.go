// Package agent wires the query pipeline: grounding selection, intent
// resolution, dispatch, and synthesis over a per-session context.
//
// Information Hiding:
// - Pipeline sequencing hidden behind Query
// - Session load/save discipline internalized
// - Component construction hidden behind the Builder
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/richinex/tabula/budget"
	"github.com/richinex/tabula/dispatch"
	"github.com/richinex/tabula/intent"
	"github.com/richinex/tabula/model"
	"github.com/richinex/tabula/refstore"
	"github.com/richinex/tabula/session"
	"github.com/richinex/tabula/synth"
)

// Agent orchestrates one query end to end.
type Agent struct {
	resolver    *intent.Resolver
	dispatcher  *dispatch.Dispatcher
	selector    *budget.Selector // nil when no grounding corpus is loaded
	synthesizer *synth.Synthesizer
	sessions    session.Store
	narrate     bool
}

// New creates an agent. The selector may be nil; queries then run without
// grounding chunks. A nil session store gets an in-memory store.
func New(resolver *intent.Resolver, dispatcher *dispatch.Dispatcher, synthesizer *synth.Synthesizer, sessions session.Store) *Agent {
	if sessions == nil {
		sessions = session.NewMemoryStore()
	}
	return &Agent{
		resolver:    resolver,
		dispatcher:  dispatcher,
		synthesizer: synthesizer,
		sessions:    sessions,
	}
}

// WithSelector attaches a grounding selector.
func (a *Agent) WithSelector(selector *budget.Selector) *Agent {
	a.selector = selector
	return a
}

// WithNarration enables LLM-written answers when the synthesizer has an
// assist client.
func (a *Agent) WithNarration(enabled bool) *Agent {
	a.narrate = enabled
	return a
}

// Query resolves and executes one natural-language request. Resolver
// failures return a clarification response without dispatching anything;
// execution failures are reported per operation with Success=false.
func (a *Agent) Query(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	statsBefore := a.dispatcher.Stats()

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "oneshot"
	}
	sess, err := a.sessions.Load(ctx, sessionID)
	if err != nil {
		return Response{}, fmt.Errorf("failed to load session: %w", err)
	}

	grounding, err := a.selectGrounding(ctx, req)
	if err != nil {
		return Response{}, err
	}

	plan, err := a.resolver.Resolve(ctx, req.Query, grounding, sess)
	if err != nil {
		resp, ok := clarificationResponse(err)
		if !ok {
			return Response{}, fmt.Errorf("failed to resolve query: %w", err)
		}
		resp.Metadata = a.metadata(grounding, 0, start, statsBefore)
		return resp, nil
	}

	results, err := a.dispatcher.Execute(ctx, plan)
	if err != nil {
		return Response{}, fmt.Errorf("failed to execute plan: %w", err)
	}

	a.refreshSchema(sess, results)

	outcome := a.synthesizer.Synthesize(plan, results)
	answer := outcome.Answer()
	if a.narrate {
		answer, err = a.synthesizer.Narrative(ctx, req.Query, outcome)
		if err != nil {
			answer = outcome.Answer()
		}
	}

	sess.RecordTurn(turnRecords(plan, results))
	if err := a.sessions.Save(ctx, sess); err != nil {
		return Response{}, fmt.Errorf("failed to save session: %w", err)
	}

	resp := Response{
		Success:    outcome.Success,
		Answer:     answer,
		Operations: outcome.Operations,
		Metadata:   a.metadata(grounding, len(results), start, statsBefore),
	}
	for _, report := range outcome.Operations {
		if report.ErrorDetail != "" {
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %s", report.Capability, report.ErrorDetail))
		}
	}
	return resp, nil
}

// selectGrounding picks grounding chunks for the query within budget.
func (a *Agent) selectGrounding(ctx context.Context, req Request) ([]refstore.Chunk, error) {
	if a.selector == nil {
		return nil, nil
	}
	b := budget.DefaultBudget()
	if req.Budget != nil {
		b = *req.Budget
	}
	grounding, err := a.selector.Select(ctx, req.Query, b)
	if err != nil {
		return nil, fmt.Errorf("failed to select grounding: %w", err)
	}
	return grounding, nil
}

// clarificationResponse converts resolver errors the user can act on into
// a response; unexpected errors pass through.
func clarificationResponse(err error) (Response, bool) {
	var ambiguous *intent.AmbiguousIntentError
	if errors.As(err, &ambiguous) {
		return Response{
			Success: false,
			Answer:  fmt.Sprintf("I need clarification before running that: %s.", ambiguous.Detail),
			Errors:  []string{ambiguous.Error()},
		}, true
	}

	var unsupported *intent.UnsupportedIntentError
	if errors.As(err, &unsupported) {
		return Response{
			Success: false,
			Answer:  "I could not map that request to a data operation. Try naming the table and the action you want.",
			Errors:  []string{unsupported.Error()},
		}, true
	}

	return Response{}, false
}

// refreshSchema folds any successful schema-fetch payloads into the
// session so later turns resolve entities without refetching.
func (a *Agent) refreshSchema(sess *session.Context, results []model.OperationResult) {
	for _, result := range results {
		if result.Capability != model.CapGetBaseSchema || !result.OK() {
			continue
		}
		schema, err := model.ParseSchema(result.Payload)
		if err != nil {
			continue
		}
		sess.SetSchema(schema, time.Now())
	}
}

// turnRecords summarizes results for the session's recent history.
func turnRecords(plan model.Plan, results []model.OperationResult) []session.OpRecord {
	byID := make(map[string]model.Operation, len(plan.Operations))
	for _, op := range plan.Operations {
		byID[op.ID] = op
	}

	records := make([]session.OpRecord, 0, len(results))
	now := time.Now()
	for _, result := range results {
		record := session.OpRecord{
			Capability: result.Capability,
			OK:         result.OK(),
			At:         now,
		}
		if op, ok := byID[result.OperationID]; ok {
			if table, isString := op.Arguments["table"].(string); isString {
				record.Table = table
			}
		}
		records = append(records, record)
	}
	return records
}

// metadata snapshots execution accounting. Dispatcher counters are
// lifetime totals, so each response reports the delta since the query
// started rather than the running sum.
func (a *Agent) metadata(grounding []refstore.Chunk, executed int, start time.Time, before dispatch.Stats) Metadata {
	stats := a.dispatcher.Stats()
	return Metadata{
		GroundingTokens:    budget.TotalTokens(grounding),
		GroundingChunks:    len(grounding),
		OperationsExecuted: executed,
		RemoteCalls:        stats.RemoteCalls - before.RemoteCalls,
		CacheHits:          stats.CacheHits - before.CacheHits,
		Retries:            stats.Retries - before.Retries,
		ElapsedMs:          time.Since(start).Milliseconds(),
	}
}

// DescribePlan renders a plan as indented JSON for verbose output.
func DescribePlan(plan model.Plan) string {
	type opView struct {
		ID          string         `json:"id"`
		Capability  string         `json:"capability"`
		Arguments   map[string]any `json:"arguments,omitempty"`
		DependsOn   []string       `json:"depends_on,omitempty"`
		Description string         `json:"description,omitempty"`
	}
	views := make([]opView, 0, len(plan.Operations))
	for _, op := range plan.Operations {
		views = append(views, opView{
			ID:          op.ID,
			Capability:  string(op.Capability),
			Arguments:   op.Arguments,
			DependsOn:   op.DependsOn,
			Description: op.Description,
		})
	}
	out, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", plan.Operations)
	}
	return string(out)
}
