package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/richinex/tabula/dispatch"
	"github.com/richinex/tabula/intent"
	"github.com/richinex/tabula/model"
	"github.com/richinex/tabula/session"
	"github.com/richinex/tabula/synth"
)

const schemaPayload = `{
	"base_id": "appTest",
	"tables": [
		{
			"id": "tbl1",
			"name": "Tasks",
			"fields": [
				{"id": "f1", "name": "Name", "type": "singleLineText"},
				{"id": "f2", "name": "Status", "type": "singleSelect"}
			]
		}
	]
}`

// scriptedTransport answers capabilities from a fixed payload table.
type scriptedTransport struct {
	mu       sync.Mutex
	payloads map[model.Capability]string
	calls    []model.Capability
}

func (s *scriptedTransport) Invoke(_ context.Context, capability model.Capability, _ map[string]any) (json.RawMessage, error) {
	s.mu.Lock()
	s.calls = append(s.calls, capability)
	s.mu.Unlock()

	if payload, ok := s.payloads[capability]; ok {
		return json.RawMessage(payload), nil
	}
	return json.RawMessage(`{}`), nil
}

func (s *scriptedTransport) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newTestAgent(transport dispatch.Transport, sessions session.Store) *Agent {
	dispatcher := dispatch.New(transport, dispatch.Options{
		RatePerSecond: 1000,
		RateBurst:     1000,
		BaseBackoff:   time.Millisecond,
	})
	return New(intent.NewResolver(intent.DefaultOptions()), dispatcher, synth.New(), sessions)
}

func TestQueryFetchesSchemaAndLists(t *testing.T) {
	transport := &scriptedTransport{payloads: map[model.Capability]string{
		model.CapGetBaseSchema: schemaPayload,
		model.CapListRecords:   `{"records": [{"id": "rec1"}, {"id": "rec2"}]}`,
	}}
	sessions := session.NewMemoryStore()
	a := newTestAgent(transport, sessions)

	resp, err := a.Query(context.Background(), Request{
		Query:     "show records in the Tasks table",
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.Metadata.OperationsExecuted != 2 {
		t.Errorf("expected 2 operations, got %d", resp.Metadata.OperationsExecuted)
	}
	if len(resp.Errors) != 0 {
		t.Errorf("unexpected errors: %v", resp.Errors)
	}

	// The schema fetch must have refreshed the session for later turns.
	sess, err := sessions.Load(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Schema == nil || sess.ActiveBaseID != "appTest" {
		t.Errorf("expected refreshed schema, got %+v", sess)
	}
	if sess.Version != 1 || len(sess.Recent) != 2 {
		t.Errorf("expected one recorded turn with 2 operations, got version %d recent %d",
			sess.Version, len(sess.Recent))
	}
}

func TestQueryReusesFreshSchema(t *testing.T) {
	transport := &scriptedTransport{payloads: map[model.Capability]string{
		model.CapListRecords: `{"records": [{"id": "rec1"}]}`,
	}}
	sessions := session.NewMemoryStore()

	sess := session.NewContext("s1")
	schema, err := model.ParseSchema(json.RawMessage(schemaPayload))
	if err != nil {
		t.Fatal(err)
	}
	sess.SetSchema(schema, time.Now())
	if err := sessions.Save(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	a := newTestAgent(transport, sessions)
	resp, err := a.Query(context.Background(), Request{
		Query:     "show records in the Tasks table",
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !resp.Success || resp.Metadata.OperationsExecuted != 1 {
		t.Fatalf("expected a single list without a schema fetch, got %+v", resp)
	}
	if transport.callCount() != 1 {
		t.Errorf("expected 1 remote call, got %d", transport.callCount())
	}
}

func TestMetadataReportsPerQueryCounters(t *testing.T) {
	transport := &scriptedTransport{payloads: map[model.Capability]string{
		model.CapListRecords: `{"records": [{"id": "rec1"}]}`,
	}}
	sessions := session.NewMemoryStore()

	sess := session.NewContext("s1")
	schema, err := model.ParseSchema(json.RawMessage(schemaPayload))
	if err != nil {
		t.Fatal(err)
	}
	sess.SetSchema(schema, time.Now())
	if err := sessions.Save(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	a := newTestAgent(transport, sessions)
	req := Request{Query: "show records in the Tasks table", SessionID: "s1"}

	first, err := a.Query(context.Background(), req)
	if err != nil {
		t.Fatalf("first query failed: %v", err)
	}
	if first.Metadata.RemoteCalls != 1 || first.Metadata.CacheHits != 0 {
		t.Errorf("first query: remote=%d hits=%d, want 1/0",
			first.Metadata.RemoteCalls, first.Metadata.CacheHits)
	}

	// The second turn is served from cache; its metadata must report this
	// query's counts, not the session's running totals.
	second, err := a.Query(context.Background(), req)
	if err != nil {
		t.Fatalf("second query failed: %v", err)
	}
	if second.Metadata.RemoteCalls != 0 || second.Metadata.CacheHits != 1 {
		t.Errorf("second query: remote=%d hits=%d, want 0/1",
			second.Metadata.RemoteCalls, second.Metadata.CacheHits)
	}
}

func TestQueryAmbiguousAsksForClarification(t *testing.T) {
	transport := &scriptedTransport{}
	sessions := session.NewMemoryStore()

	sess := session.NewContext("s1")
	schema, err := model.ParseSchema(json.RawMessage(schemaPayload))
	if err != nil {
		t.Fatal(err)
	}
	sess.SetSchema(schema, time.Now())
	if err := sessions.Save(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	a := newTestAgent(transport, sessions)
	resp, err := a.Query(context.Background(), Request{
		Query:     "show records in the Inventory table",
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if resp.Success {
		t.Error("ambiguous queries must not succeed")
	}
	if !strings.Contains(resp.Answer, "clarification") {
		t.Errorf("expected a clarification answer, got %q", resp.Answer)
	}
	if transport.callCount() != 0 {
		t.Errorf("ambiguous queries must not dispatch, got %d calls", transport.callCount())
	}
}

func TestQueryUnsupportedIsExplained(t *testing.T) {
	transport := &scriptedTransport{}
	a := newTestAgent(transport, nil)

	resp, err := a.Query(context.Background(), Request{Query: "please hum a gentle tune"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if resp.Success {
		t.Error("unsupported queries must not succeed")
	}
	if !strings.Contains(resp.Answer, "could not map") {
		t.Errorf("unexpected answer: %q", resp.Answer)
	}
	if transport.callCount() != 0 {
		t.Errorf("unsupported queries must not dispatch, got %d calls", transport.callCount())
	}
}

func TestQueryReportsPerOperationErrors(t *testing.T) {
	transport := &failingTransport{}
	a := newTestAgent(transport, nil)

	resp, err := a.Query(context.Background(), Request{Query: "show me all the records"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if resp.Success {
		t.Error("a failed operation must fail the response")
	}
	if len(resp.Errors) != 1 || !strings.Contains(resp.Errors[0], "list_tables") {
		t.Errorf("unexpected errors: %v", resp.Errors)
	}
}

// failingTransport rejects every call with a permission error.
type failingTransport struct{}

func (f *failingTransport) Invoke(context.Context, model.Capability, map[string]any) (json.RawMessage, error) {
	return nil, &dispatch.RemoteError{Kind: model.ErrKindPermission, Code: 403, Message: "forbidden"}
}

func TestDescribePlan(t *testing.T) {
	plan := model.Plan{Operations: []model.Operation{
		{ID: "a", Capability: model.CapListTables},
	}}
	out := DescribePlan(plan)
	if !strings.Contains(out, `"capability": "list_tables"`) {
		t.Errorf("unexpected rendering: %s", out)
	}
}
