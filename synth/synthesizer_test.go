package synth

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/richinex/tabula/model"
)

func TestSynthesizeAllOK(t *testing.T) {
	plan := model.Plan{Operations: []model.Operation{
		{ID: "a", Capability: model.CapListRecords, Arguments: map[string]any{"table": "Tasks"}},
	}}
	results := []model.OperationResult{{
		OperationID: "a",
		Capability:  model.CapListRecords,
		Status:      model.StatusOK,
		Payload:     json.RawMessage(`{"records": [{"id": "rec1"}, {"id": "rec2"}]}`),
	}}

	outcome := New().Synthesize(plan, results)
	if !outcome.Success || outcome.Failures != 0 {
		t.Fatalf("expected success, got %+v", outcome)
	}
	report := outcome.Operations[0]
	if report.Count != 2 {
		t.Errorf("count = %d, want 2", report.Count)
	}
	if len(report.RecordIDs) != 2 || report.RecordIDs[0] != "rec1" {
		t.Errorf("unexpected record IDs: %v", report.RecordIDs)
	}
}

func TestSynthesizePartialFailure(t *testing.T) {
	plan := model.Plan{Operations: []model.Operation{
		{ID: "a", Capability: model.CapGetBaseSchema},
		{ID: "b", Capability: model.CapCreateRecord, DependsOn: []string{"a"}},
	}}
	results := []model.OperationResult{
		{
			OperationID: "a",
			Capability:  model.CapGetBaseSchema,
			Status:      model.StatusFatalError,
			ErrorKind:   model.ErrKindPermission,
			ErrorDetail: "forbidden",
		},
		{
			OperationID: "b",
			Capability:  model.CapCreateRecord,
			Status:      model.StatusFatalError,
			ErrorKind:   model.ErrKindDependency,
			ErrorDetail: "dependency a failed: forbidden",
		},
	}

	outcome := New().Synthesize(plan, results)
	if outcome.Success {
		t.Error("any failed operation must fail the outcome")
	}
	if outcome.Failures != 2 {
		t.Errorf("failures = %d, want 2", outcome.Failures)
	}
	if outcome.Operations[1].ErrorKind != string(model.ErrKindDependency) {
		t.Errorf("unexpected error kind: %s", outcome.Operations[1].ErrorKind)
	}
}

func TestSummarizePrefersDescription(t *testing.T) {
	op := model.Operation{
		Capability:  model.CapListRecords,
		Description: "list overdue tasks",
		Arguments:   map[string]any{"table": "Tasks"},
	}
	if got := summarize(op); got != "list overdue tasks" {
		t.Errorf("summarize = %q", got)
	}
}

func TestSummarizeRedactsSensitiveArguments(t *testing.T) {
	op := model.Operation{
		Capability: model.CapCreateWebhook,
		Arguments: map[string]any{
			"notificationUrl": "https://example.com/hook",
			"apiKey":          "sk-very-secret",
			"authToken":       "t0ps3cret",
		},
	}
	got := summarize(op)
	if strings.Contains(got, "secret") || strings.Contains(got, "t0ps3cret") {
		t.Errorf("summary leaked a credential: %q", got)
	}
	if !strings.Contains(got, "notificationUrl") {
		t.Errorf("summary dropped a benign argument: %q", got)
	}
}

func TestRenderArgument(t *testing.T) {
	long := strings.Repeat("x", 80)
	if got := renderArgument(long); !strings.HasSuffix(got, `..."...`) && !strings.Contains(got, "...") {
		t.Errorf("expected truncation marker, got %q", got)
	}
	if got := renderArgument([]any{1, 2, 3}); got != "[3 items]" {
		t.Errorf("renderArgument(slice) = %q", got)
	}
	if got := renderArgument(map[string]any{"a": 1}); got != "{1 fields}" {
		t.Errorf("renderArgument(map) = %q", got)
	}
	if got := renderArgument("short"); got != `"short"` {
		t.Errorf("renderArgument(string) = %q", got)
	}
	if got := renderArgument(42); got != "42" {
		t.Errorf("renderArgument(int) = %q", got)
	}
}

func TestExtractRecordIDs(t *testing.T) {
	single := json.RawMessage(`{"id": "rec9", "fields": {}}`)
	if ids := extractRecordIDs(single); len(ids) != 1 || ids[0] != "rec9" {
		t.Errorf("single-record extraction: %v", ids)
	}

	none := json.RawMessage(`{"tables": [{"id": "tbl1"}]}`)
	if ids := extractRecordIDs(none); len(ids) != 0 {
		t.Errorf("expected no record IDs, got %v", ids)
	}
}

func TestPayloadCount(t *testing.T) {
	if n := payloadCount(json.RawMessage(`{"records": [{}, {}, {}]}`)); n != 3 {
		t.Errorf("records count = %d, want 3", n)
	}
	if n := payloadCount(json.RawMessage(`{"tables": [{}, {}]}`)); n != 2 {
		t.Errorf("tables count = %d, want 2", n)
	}
	if n := payloadCount(json.RawMessage(`{"deleted": true}`)); n != 0 {
		t.Errorf("scalar payload count = %d, want 0", n)
	}
}

func TestAnswerRendering(t *testing.T) {
	outcome := Outcome{
		Success:  false,
		Failures: 1,
		Operations: []OperationReport{
			{Summary: "list records", Status: model.StatusOK.String(), Count: 4},
			{
				Summary:     "create record",
				Status:      model.StatusFatalError.String(),
				ErrorKind:   string(model.ErrKindValidation),
				ErrorDetail: "bad field",
			},
		},
	}

	answer := outcome.Answer()
	if !strings.Contains(answer, "1 of 2 operations failed.") {
		t.Errorf("missing failure header: %q", answer)
	}
	if !strings.Contains(answer, "4 records") {
		t.Errorf("missing record count: %q", answer)
	}
	if !strings.Contains(answer, "bad field (validation)") {
		t.Errorf("missing error line: %q", answer)
	}
}

func TestNarrativeWithoutAssistFallsBack(t *testing.T) {
	outcome := Outcome{
		Success:    true,
		Operations: []OperationReport{{Summary: "list tables", Status: model.StatusOK.String()}},
	}

	got, err := New().Narrative(context.Background(), "what tables exist?", outcome)
	if err != nil {
		t.Fatalf("Narrative failed: %v", err)
	}
	if got != outcome.Answer() {
		t.Errorf("expected deterministic fallback, got %q", got)
	}
}

func TestTruncatePayload(t *testing.T) {
	small := json.RawMessage(`{"a": 1}`)
	if _, ok := truncatePayload(small, 100).(map[string]any); !ok {
		t.Error("small payloads must decode to structured form")
	}

	big := json.RawMessage(`"` + strings.Repeat("y", 200) + `"`)
	text, ok := truncatePayload(big, 50).(string)
	if !ok || !strings.HasSuffix(text, "... (truncated)") {
		t.Errorf("expected truncated string, got %v", truncatePayload(big, 50))
	}
}
