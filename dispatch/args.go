// Dependency result feeding and payload merging.
//
// Dependents may reference a dependency's payload with string values of
// the form "@result:<operationID>:<dot.path>"; the dispatcher substitutes
// these before invoking. A completed schema fetch additionally refines the
// table and field names of its dependents to their canonical schema
// spelling.

package dispatch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/richinex/tabula/model"
)

const resultRefPrefix = "@result:"

// resolveArguments returns a copy of the operation's arguments with result
// references substituted and table names refined from any schema-fetch
// dependency. The original operation is never mutated.
func resolveArguments(op model.Operation, deps map[string]model.OperationResult) (map[string]any, error) {
	args := make(map[string]any, len(op.Arguments))
	for k, v := range op.Arguments {
		resolved, err := resolveValue(v, deps)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", k, err)
		}
		args[k] = resolved
	}

	for _, dep := range deps {
		if dep.Capability != model.CapGetBaseSchema {
			continue
		}
		if err := refineSchemaReferences(args, dep.Payload); err != nil {
			return nil, err
		}
	}
	return args, nil
}

func resolveValue(value any, deps map[string]model.OperationResult) (any, error) {
	switch v := value.(type) {
	case string:
		if !strings.HasPrefix(v, resultRefPrefix) {
			return v, nil
		}
		return resolveReference(v, deps)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			resolved, err := resolveValue(item, deps)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := resolveValue(item, deps)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

// resolveReference evaluates one "@result:<opID>:<path>" reference against
// the dependency payloads.
func resolveReference(ref string, deps map[string]model.OperationResult) (any, error) {
	rest := strings.TrimPrefix(ref, resultRefPrefix)
	opID, path, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, fmt.Errorf("malformed result reference %q", ref)
	}

	dep, found := deps[opID]
	if !found {
		return nil, fmt.Errorf("result reference %q names a non-dependency operation", ref)
	}

	var doc any
	if err := json.Unmarshal(dep.Payload, &doc); err != nil {
		return nil, fmt.Errorf("dependency payload is not JSON: %w", err)
	}

	value, err := walkPath(doc, path)
	if err != nil {
		return nil, fmt.Errorf("result reference %q: %w", ref, err)
	}
	return value, nil
}

// walkPath traverses a decoded JSON document by dot-separated keys, with
// numeric segments indexing arrays.
func walkPath(doc any, path string) (any, error) {
	current := doc
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, fmt.Errorf("path segment %q not found", segment)
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("path segment %q is not a valid array index", segment)
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("path segment %q applied to a scalar", segment)
		}
	}
	return current, nil
}

// refineSchemaReferences canonicalizes the "table" argument and any record
// field names against a freshly fetched schema. A table or field absent
// from the fetched schema is a hard failure: dispatch must not guess at
// targets.
func refineSchemaReferences(args map[string]any, schemaPayload json.RawMessage) error {
	name, ok := args["table"].(string)
	if !ok || name == "" {
		return nil
	}

	schema, err := model.ParseSchema(schemaPayload)
	if err != nil {
		return err
	}

	table, found := schema.FindTable(name)
	if !found {
		return &RemoteError{
			Kind:    model.ErrKindNotFound,
			Code:    404,
			Message: fmt.Sprintf("table %q not found in fetched schema", name),
		}
	}
	args["table"] = table.Name

	if fields, ok := args["fields"].(map[string]any); ok {
		refined, err := refineFieldNames(fields, table)
		if err != nil {
			return err
		}
		args["fields"] = refined
	}
	if records, ok := args["records"].([]any); ok {
		for _, item := range records {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			fields, ok := record["fields"].(map[string]any)
			if !ok {
				continue
			}
			refined, err := refineFieldNames(fields, table)
			if err != nil {
				return err
			}
			record["fields"] = refined
		}
	}
	return nil
}

// refineFieldNames rekeys a field map to the schema's canonical field
// names. An unknown field is a validation failure, not a guess.
func refineFieldNames(fields map[string]any, table model.Table) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for name, value := range fields {
		field, found := table.FindField(name)
		if !found {
			return nil, &RemoteError{
				Kind:    model.ErrKindValidation,
				Code:    422,
				Message: fmt.Sprintf("field %q not found in table %q", name, table.Name),
			}
		}
		out[field.Name] = value
	}
	return out, nil
}

// extractOffset pulls the opaque pagination token from a payload, or ""
// when pagination is complete.
func extractOffset(payload json.RawMessage) string {
	var page struct {
		Offset string `json:"offset"`
	}
	if err := json.Unmarshal(payload, &page); err != nil {
		return ""
	}
	return page.Offset
}

// mergePages merges paginated read payloads into one, concatenating the
// record arrays in page order and dropping the offset token.
func mergePages(pages []json.RawMessage) json.RawMessage {
	var records []any
	for _, page := range pages {
		var decoded struct {
			Records []any `json:"records"`
		}
		if err := json.Unmarshal(page, &decoded); err == nil {
			records = append(records, decoded.Records...)
		}
	}
	merged, _ := json.Marshal(map[string]any{"records": records})
	return merged
}

// mergeBatchPayloads merges sub-batch write payloads into one, preserving
// input item order. Payloads with "records" arrays are concatenated;
// anything else is collected into a "results" array.
func mergeBatchPayloads(payloads []json.RawMessage) json.RawMessage {
	if len(payloads) == 0 {
		return nil
	}
	if len(payloads) == 1 {
		return payloads[0]
	}

	var records []any
	uniform := true
	for _, payload := range payloads {
		var decoded map[string]json.RawMessage
		if err := json.Unmarshal(payload, &decoded); err != nil {
			uniform = false
			break
		}
		raw, ok := decoded["records"]
		if !ok {
			uniform = false
			break
		}
		var items []any
		if err := json.Unmarshal(raw, &items); err != nil {
			uniform = false
			break
		}
		records = append(records, items...)
	}

	if uniform {
		merged, _ := json.Marshal(map[string]any{"records": records})
		return merged
	}

	parts := make([]any, 0, len(payloads))
	for _, payload := range payloads {
		var decoded any
		if err := json.Unmarshal(payload, &decoded); err != nil {
			decoded = string(payload)
		}
		parts = append(parts, decoded)
	}
	merged, _ := json.Marshal(map[string]any{"results": parts})
	return merged
}
