package json

import "testing"

type planHint struct {
	Table  string `json:"table"`
	Action string `json:"action"`
}

func TestExtractPureJSON(t *testing.T) {
	got, err := ExtractJSONFromResponse[planHint](`{"table": "Tasks", "action": "list"}`)
	if err != nil {
		t.Fatalf("extraction failed: %v", err)
	}
	if got.Table != "Tasks" || got.Action != "list" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestExtractFencedJSON(t *testing.T) {
	response := "```json\n{\"table\": \"Tasks\", \"action\": \"list\"}\n```"
	got, err := ExtractJSONFromResponse[planHint](response)
	if err != nil {
		t.Fatalf("extraction failed: %v", err)
	}
	if got.Table != "Tasks" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestExtractEmbeddedJSON(t *testing.T) {
	response := `Sure! Here is the plan you asked for: {"table": "Tasks", "action": "list"} Let me know if that works.`
	got, err := ExtractJSONFromResponse[planHint](response)
	if err != nil {
		t.Fatalf("extraction failed: %v", err)
	}
	if got.Table != "Tasks" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestExtractNoJSON(t *testing.T) {
	if _, err := ExtractJSONFromResponse[planHint]("no structured output here"); err == nil {
		t.Fatal("expected an error for a response without JSON")
	}
}
