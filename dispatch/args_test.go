package dispatch

import (
	"encoding/json"
	"testing"

	"github.com/richinex/tabula/model"
)

func TestResolveArgumentsNestedReferences(t *testing.T) {
	deps := map[string]model.OperationResult{
		"find": {
			OperationID: "find",
			Capability:  model.CapSearchRecords,
			Status:      model.StatusOK,
			Payload:     json.RawMessage(`{"records": [{"id": "rec1", "fields": {"Name": "Alpha"}}]}`),
		},
	}
	op := model.Operation{
		ID:         "upd",
		Capability: model.CapUpdateRecord,
		Arguments: map[string]any{
			"recordId": "@result:find:records.0.id",
			"fields": map[string]any{
				"Name": "@result:find:records.0.fields.Name",
				"Done": true,
			},
			"tags": []any{"@result:find:records.0.id", "literal"},
		},
		DependsOn: []string{"find"},
	}

	args, err := resolveArguments(op, deps)
	if err != nil {
		t.Fatalf("resolveArguments failed: %v", err)
	}
	if args["recordId"] != "rec1" {
		t.Errorf("recordId = %v, want rec1", args["recordId"])
	}
	fields := args["fields"].(map[string]any)
	if fields["Name"] != "Alpha" || fields["Done"] != true {
		t.Errorf("unexpected fields: %v", fields)
	}
	tags := args["tags"].([]any)
	if tags[0] != "rec1" || tags[1] != "literal" {
		t.Errorf("unexpected tags: %v", tags)
	}

	// The original operation must be untouched.
	if op.Arguments["recordId"] != "@result:find:records.0.id" {
		t.Error("resolveArguments mutated the operation")
	}
}

func TestResolveArgumentsBadPath(t *testing.T) {
	deps := map[string]model.OperationResult{
		"list": {
			OperationID: "list",
			Status:      model.StatusOK,
			Payload:     json.RawMessage(`{"webhooks": []}`),
		},
	}
	op := model.Operation{
		ID:        "del",
		Arguments: map[string]any{"webhookId": "@result:list:webhooks.0.id"},
		DependsOn: []string{"list"},
	}
	if _, err := resolveArguments(op, deps); err == nil {
		t.Fatal("expected error for an out-of-range array index")
	}

	op.Arguments = map[string]any{"webhookId": "@result:other:webhooks.0.id"}
	if _, err := resolveArguments(op, deps); err == nil {
		t.Fatal("expected error for a reference to a non-dependency")
	}
}

func TestWalkPath(t *testing.T) {
	var doc any
	if err := json.Unmarshal([]byte(`{"a": {"b": [10, {"c": "deep"}]}}`), &doc); err != nil {
		t.Fatal(err)
	}

	got, err := walkPath(doc, "a.b.1.c")
	if err != nil || got != "deep" {
		t.Errorf("walkPath = %v, %v; want deep", got, err)
	}
	if _, err := walkPath(doc, "a.missing"); err == nil {
		t.Error("expected error for a missing key")
	}
	if _, err := walkPath(doc, "a.b.x"); err == nil {
		t.Error("expected error for a non-numeric array index")
	}
	if _, err := walkPath(doc, "a.b.0.c"); err == nil {
		t.Error("expected error for descending into a scalar")
	}
}

func TestMergeBatchPayloadsNonUniform(t *testing.T) {
	merged := mergeBatchPayloads([]json.RawMessage{
		json.RawMessage(`{"records": [{"id": "rec1"}]}`),
		json.RawMessage(`{"deleted": true}`),
	})

	var out struct {
		Results []any `json:"results"`
	}
	if err := json.Unmarshal(merged, &out); err != nil {
		t.Fatalf("failed to parse merged payload: %v", err)
	}
	if len(out.Results) != 2 {
		t.Errorf("expected 2 collected results, got %d", len(out.Results))
	}
}
