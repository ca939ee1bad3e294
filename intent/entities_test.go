package intent

import (
	"testing"
)

func TestExtractTables(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"show records in the Tasks table", "Tasks"},
		{"add a row to table Projects", "Projects"},
		{"describe the table Orders", "Orders"},
	}
	for _, tt := range tests {
		e := extractEntities(tt.query)
		if len(e.Tables) != 1 || e.Tables[0] != tt.want {
			t.Errorf("extractEntities(%q).Tables = %v, want [%s]", tt.query, e.Tables, tt.want)
		}
	}
}

func TestExtractRecordIDs(t *testing.T) {
	e := extractEntities("delete recABCDEFGHIJKLMN and recABCDEFGHIJKLMN and rec123 from Tasks")
	if len(e.RecordIDs) != 1 {
		t.Fatalf("expected 1 deduplicated record ID, got %v", e.RecordIDs)
	}
	if e.RecordIDs[0] != "recABCDEFGHIJKLMN" {
		t.Errorf("unexpected record ID: %s", e.RecordIDs[0])
	}
}

func TestExtractCount(t *testing.T) {
	e := extractEntities("create 5 tasks in the Tasks table")
	if e.Count != 5 {
		t.Errorf("expected count 5, got %d", e.Count)
	}

	e = extractEntities("create a task in the Tasks table")
	if e.Count != 0 {
		t.Errorf("expected count 0 when unstated, got %d", e.Count)
	}
}

func TestExtractFilter(t *testing.T) {
	e := extractEntities("show records in the Tasks table where Status is Active")
	if e.Filter != "{Status}='Active'" {
		t.Errorf("unexpected filter: %q", e.Filter)
	}
	// The filter field also counts as a referenced field for validation.
	found := false
	for _, f := range e.Fields {
		if f == "Status" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Status in fields, got %v", e.Fields)
	}
}

func TestExtractAssignments(t *testing.T) {
	e := extractEntities("create a task in the Tasks table with Status: Done, Priority: High")
	if e.Assignments["Status"] != "Done" {
		t.Errorf("unexpected assignments: %v", e.Assignments)
	}
	if e.Assignments["Priority"] != "High" {
		t.Errorf("unexpected assignments: %v", e.Assignments)
	}
}

func TestExtractURL(t *testing.T) {
	if got := extractURL("notify https://example.com/hook when records change"); got != "https://example.com/hook" {
		t.Errorf("unexpected URL: %q", got)
	}
	if got := extractURL("no URL here"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}
