// Package synth turns raw operation results into a user-facing outcome.
//
// Information Hiding:
// - Payload introspection (record IDs, counts) internalized
// - Argument redaction rules internalized
// - Optional LLM narration hidden behind Narrative
package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/richinex/tabula/llm"
	"github.com/richinex/tabula/model"
)

// OperationReport is the user-facing account of one executed operation.
type OperationReport struct {
	OperationID string          `json:"operation_id"`
	Capability  string          `json:"capability"`
	Summary     string          `json:"summary"`
	Status      string          `json:"status"`
	ErrorKind   string          `json:"error_kind,omitempty"`
	ErrorDetail string          `json:"error_detail,omitempty"`
	RecordIDs   []string        `json:"record_ids,omitempty"`
	Count       int             `json:"count"`
	CacheHit    bool            `json:"cache_hit,omitempty"`
	Payload     json.RawMessage `json:"-"`
}

// Outcome is the synthesized view of a full plan execution.
type Outcome struct {
	Success    bool              `json:"success"`
	Operations []OperationReport `json:"operations"`
	Failures   int               `json:"failures"`
}

// Synthesizer composes outcomes from plans and their results.
type Synthesizer struct {
	assist *llm.Client
}

// New creates a synthesizer. The assist client may be nil; Narrative then
// falls back to a deterministic summary.
func New() *Synthesizer {
	return &Synthesizer{}
}

// WithAssist attaches a chat client used by Narrative.
func (s *Synthesizer) WithAssist(client *llm.Client) *Synthesizer {
	s.assist = client
	return s
}

// Synthesize builds the outcome for a plan execution. Success requires
// every operation to have completed OK.
func (s *Synthesizer) Synthesize(plan model.Plan, results []model.OperationResult) Outcome {
	outcome := Outcome{Success: true}

	byID := make(map[string]model.Operation, len(plan.Operations))
	for _, op := range plan.Operations {
		byID[op.ID] = op
	}

	for _, result := range results {
		op := byID[result.OperationID]
		report := OperationReport{
			OperationID: result.OperationID,
			Capability:  string(result.Capability),
			Summary:     summarize(op),
			Status:      result.Status.String(),
			CacheHit:    result.CacheHit,
			Payload:     result.Payload,
		}

		if result.OK() {
			report.RecordIDs = extractRecordIDs(result.Payload)
			report.Count = payloadCount(result.Payload)
		} else {
			report.ErrorKind = string(result.ErrorKind)
			report.ErrorDetail = result.ErrorDetail
			outcome.Success = false
			outcome.Failures++
		}

		outcome.Operations = append(outcome.Operations, report)
	}

	return outcome
}

// Answer renders the outcome as plain text, one line per operation.
func (o Outcome) Answer() string {
	var b strings.Builder
	if o.Success {
		b.WriteString("All operations completed.\n")
	} else {
		fmt.Fprintf(&b, "%d of %d operations failed.\n", o.Failures, len(o.Operations))
	}
	for _, report := range o.Operations {
		fmt.Fprintf(&b, "- %s", report.Summary)
		if report.Status != model.StatusOK.String() {
			fmt.Fprintf(&b, " — %s (%s)", report.ErrorDetail, report.ErrorKind)
		} else if report.Count > 0 {
			fmt.Fprintf(&b, " — %d records", report.Count)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// Narrative writes a natural-language answer to the original query from
// the outcome. Without an assist client it returns the deterministic
// Answer rendering.
func (s *Synthesizer) Narrative(ctx context.Context, query string, outcome Outcome) (string, error) {
	if s.assist == nil {
		return outcome.Answer(), nil
	}

	summary, err := json.Marshal(narrativeView(outcome))
	if err != nil {
		return "", fmt.Errorf("failed to encode outcome: %w", err)
	}

	messages := []llm.ChatMessage{
		llm.SystemMessage("You summarize database operation results for the user. " +
			"Answer the user's question directly from the results. Be concise. " +
			"Never invent record data that is not in the results."),
		llm.UserMessage(fmt.Sprintf("Question: %s\n\nResults:\n%s", query, summary)),
	}

	answer, err := s.assist.Chat(ctx, messages)
	if err != nil {
		// Narration is best-effort; fall back rather than fail the query.
		return outcome.Answer(), nil
	}
	return answer, nil
}

// narrativeView shapes the outcome for the narration prompt, including
// payloads but keeping them bounded.
func narrativeView(outcome Outcome) map[string]any {
	ops := make([]map[string]any, 0, len(outcome.Operations))
	for _, report := range outcome.Operations {
		view := map[string]any{
			"capability": report.Capability,
			"summary":    report.Summary,
			"status":     report.Status,
		}
		if report.ErrorDetail != "" {
			view["error"] = report.ErrorDetail
		}
		if len(report.Payload) > 0 {
			view["result"] = truncatePayload(report.Payload, 4000)
		}
		ops = append(ops, view)
	}
	return map[string]any{
		"success":    outcome.Success,
		"operations": ops,
	}
}

// truncatePayload bounds a payload for prompt inclusion.
func truncatePayload(payload json.RawMessage, limit int) any {
	if len(payload) <= limit {
		var decoded any
		if err := json.Unmarshal(payload, &decoded); err == nil {
			return decoded
		}
	}
	text := string(payload)
	if len(text) > limit {
		text = text[:limit] + "... (truncated)"
	}
	return text
}

// summarize describes an operation in one clause, with sensitive and
// oversized argument values withheld.
func summarize(op model.Operation) string {
	if op.Description != "" {
		return op.Description
	}

	var parts []string
	for key, value := range op.Arguments {
		if sensitiveArgument(key) {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", key, renderArgument(value)))
	}
	if len(parts) == 0 {
		return string(op.Capability)
	}
	sort.Strings(parts)
	return fmt.Sprintf("%s (%s)", op.Capability, strings.Join(parts, ", "))
}

// sensitiveArgument reports whether an argument key looks credential-like.
func sensitiveArgument(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range []string{"key", "token", "secret", "password", "auth"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

const maxArgumentRender = 60

// renderArgument formats an argument value for the summary, truncating
// long scalars and eliding composite internals.
func renderArgument(value any) string {
	switch v := value.(type) {
	case string:
		if len(v) > maxArgumentRender {
			return fmt.Sprintf("%q...", v[:maxArgumentRender])
		}
		return fmt.Sprintf("%q", v)
	case []any:
		return fmt.Sprintf("[%d items]", len(v))
	case map[string]any:
		return fmt.Sprintf("{%d fields}", len(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// extractRecordIDs collects record IDs from a payload's records array.
func extractRecordIDs(payload json.RawMessage) []string {
	var decoded struct {
		ID      string `json:"id"`
		Records []struct {
			ID string `json:"id"`
		} `json:"records"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil
	}

	var ids []string
	if decoded.ID != "" {
		ids = append(ids, decoded.ID)
	}
	for _, record := range decoded.Records {
		if record.ID != "" {
			ids = append(ids, record.ID)
		}
	}
	return ids
}

// payloadCount reports how many records a payload carries.
func payloadCount(payload json.RawMessage) int {
	var decoded struct {
		Records []json.RawMessage `json:"records"`
		Tables  []json.RawMessage `json:"tables"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return 0
	}
	if len(decoded.Records) > 0 {
		return len(decoded.Records)
	}
	return len(decoded.Tables)
}
