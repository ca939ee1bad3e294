// Package intent maps free text plus conversational context to an ordered
// operation plan.
//
// Information Hiding:
// - Classification scoring and pattern tables hidden
// - Entity extraction heuristics hidden
// - Schema resolution strategy hidden behind Resolve
package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsonutil "github.com/richinex/tabula/internal/json"
	"github.com/richinex/tabula/llm"
	"github.com/richinex/tabula/model"
	"github.com/richinex/tabula/refstore"
	"github.com/richinex/tabula/session"
)

// AmbiguousIntentError reports a required entity that could not be resolved
// against the schema. It is surfaced to the caller for clarification, never
// silently guessed around.
type AmbiguousIntentError struct {
	Entity string
	Detail string
}

// Error implements the error interface.
func (e *AmbiguousIntentError) Error() string {
	return fmt.Sprintf("ambiguous intent: %s: %s", e.Entity, e.Detail)
}

// UnsupportedIntentError reports a query matching no capability category
// with sufficient confidence.
type UnsupportedIntentError struct {
	Query string
}

// Error implements the error interface.
func (e *UnsupportedIntentError) Error() string {
	return fmt.Sprintf("unsupported intent: no capability matches %q", e.Query)
}

// Options configures a Resolver.
type Options struct {
	// ConfidenceFloor is the minimum classification confidence before the
	// resolver gives up (or defers to the LLM fallback).
	ConfidenceFloor float64
	// SchemaFreshness is how recently a schema fetch must have happened
	// for the cached schema to be considered current. Within this window
	// an unresolved reference is a hard error rather than a reason to
	// fetch again.
	SchemaFreshness time.Duration
}

// DefaultOptions returns resolver defaults.
func DefaultOptions() Options {
	return Options{
		ConfidenceFloor: 0.3,
		SchemaFreshness: 30 * time.Second,
	}
}

// Resolver turns queries into validated operation plans.
type Resolver struct {
	opts   Options
	assist *llm.Client // optional fallback classifier
}

// NewResolver creates a resolver with the given options.
func NewResolver(opts Options) *Resolver {
	if opts.ConfidenceFloor <= 0 {
		opts.ConfidenceFloor = DefaultOptions().ConfidenceFloor
	}
	if opts.SchemaFreshness <= 0 {
		opts.SchemaFreshness = DefaultOptions().SchemaFreshness
	}
	return &Resolver{opts: opts}
}

// WithAssist attaches an LLM client used to classify queries the lexical
// taxonomy cannot place.
func (r *Resolver) WithAssist(client *llm.Client) *Resolver {
	r.assist = client
	return r
}

// Resolve produces an ordered operation plan for the query. Grounding
// chunks bias classification; the session supplies cached schema for entity
// resolution. Failure modes are *AmbiguousIntentError (entity unresolvable)
// and *UnsupportedIntentError (no category match).
func (r *Resolver) Resolve(ctx context.Context, query string, grounding []refstore.Chunk, sess *session.Context) (model.Plan, error) {
	category, confidence := classify(query, grounding)
	if category == CategoryUnknown || confidence < r.opts.ConfidenceFloor {
		fallback, err := r.classifyWithAssist(ctx, query)
		if err != nil {
			return model.Plan{}, &UnsupportedIntentError{Query: query}
		}
		category = fallback
	}

	ents := extractEntities(query)

	build := &planBuilder{
		resolver: r,
		query:    query,
		sess:     sess,
		ents:     ents,
	}

	var err error
	switch category {
	case CategoryDataQuery:
		err = build.dataQuery()
	case CategoryDataCreate, CategoryBatch:
		err = build.dataMutation(category)
	case CategoryDataUpdate:
		err = build.dataUpdate()
	case CategoryDataDelete:
		err = build.dataDelete()
	case CategorySchemaQuery:
		err = build.schemaQuery()
	case CategorySchemaModify:
		err = build.schemaModify()
	case CategoryWebhookManage:
		err = build.webhookManage()
	default:
		return model.Plan{}, &UnsupportedIntentError{Query: query}
	}
	if err != nil {
		return model.Plan{}, err
	}

	plan := model.Plan{Operations: build.ops}
	if err := plan.Validate(); err != nil {
		return model.Plan{}, fmt.Errorf("resolver produced invalid plan: %w", err)
	}
	return plan, nil
}

// classifyWithAssist asks the attached LLM to place the query in the
// taxonomy. Without an attached client this always fails.
func (r *Resolver) classifyWithAssist(ctx context.Context, query string) (Category, error) {
	if r.assist == nil {
		return CategoryUnknown, fmt.Errorf("no assist client configured")
	}

	prompt := fmt.Sprintf(`Classify this data-management request into exactly one category:
data_query, data_create, data_update, data_delete, schema_query, schema_modify, webhook_manage, batch_operation, none.

Request: %q

Respond with JSON only: {"category": "<name>"}`, query)

	content, err := r.assist.Chat(ctx, []llm.ChatMessage{llm.UserMessage(prompt)})
	if err != nil {
		return CategoryUnknown, fmt.Errorf("assist classification failed: %w", err)
	}

	parsed, err := jsonutil.ExtractJSONFromResponse[struct {
		Category string `json:"category"`
	}](content)
	if err != nil {
		return CategoryUnknown, fmt.Errorf("assist returned unparseable classification: %w", err)
	}

	category := parseCategory(parsed.Category)
	if category == CategoryUnknown {
		return CategoryUnknown, fmt.Errorf("assist could not classify the request")
	}
	return category, nil
}

// planBuilder accumulates operations for one query, synthesizing a leading
// schema fetch when cached schema cannot resolve a reference.
type planBuilder struct {
	resolver *Resolver
	query    string
	sess     *session.Context
	ents     entities

	ops           []model.Operation
	schemaFetchID string
}

// schemaFresh reports whether the cached schema is current enough that a
// failed lookup is final.
func (b *planBuilder) schemaFresh() bool {
	return b.sess != nil && b.sess.SchemaFresh(b.resolver.opts.SchemaFreshness)
}

// cachedSchema returns the session's schema, which may be nil.
func (b *planBuilder) cachedSchema() *model.Schema {
	if b.sess == nil {
		return nil
	}
	return b.sess.Schema
}

// ensureSchemaFetch synthesizes (once) a leading get_base_schema operation
// and returns its ID for dependency edges.
func (b *planBuilder) ensureSchemaFetch() string {
	if b.schemaFetchID != "" {
		return b.schemaFetchID
	}
	op := model.NewOperation(model.CapGetBaseSchema, map[string]any{})
	op.Description = "Fetch base schema to resolve entity references"
	b.ops = append([]model.Operation{op}, b.ops...)
	b.schemaFetchID = op.ID
	return op.ID
}

// resolveTable resolves a table reference against cached schema. When the
// table is unknown and the schema is stale, a schema-fetch dependency is
// synthesized and the reference passes through by name for the dispatcher
// to refine. Unknown against fresh schema is an AmbiguousIntentError.
func (b *planBuilder) resolveTable(name string) (table model.Table, depends []string, err error) {
	if t, ok := b.cachedSchema().FindTable(name); ok {
		if fieldErr := b.checkFields(t); fieldErr != nil {
			return model.Table{}, nil, fieldErr
		}
		return t, nil, nil
	}
	if b.schemaFresh() {
		return model.Table{}, nil, &AmbiguousIntentError{
			Entity: "table",
			Detail: fmt.Sprintf("table %q not found in schema", name),
		}
	}
	return model.Table{Name: name}, []string{b.ensureSchemaFetch()}, nil
}

// checkFields validates extracted field references against a resolved
// table. Unknown field with fresh schema is final.
func (b *planBuilder) checkFields(t model.Table) error {
	if !b.schemaFresh() {
		return nil
	}
	for _, name := range b.ents.Fields {
		if _, ok := t.FindField(name); !ok {
			return &AmbiguousIntentError{
				Entity: "field",
				Detail: fmt.Sprintf("field %q not found in table %q", name, t.Name),
			}
		}
	}
	return nil
}

// add appends an operation built from capability and arguments.
func (b *planBuilder) add(capability model.Capability, args map[string]any, depends []string, desc string) model.Operation {
	op := model.NewOperation(capability, args)
	op.DependsOn = depends
	op.Description = desc
	b.ops = append(b.ops, op)
	return op
}

func (b *planBuilder) dataQuery() error {
	if len(b.ents.Tables) == 0 {
		b.add(model.CapListTables, map[string]any{}, nil, "List available tables")
		return nil
	}

	for _, name := range b.ents.Tables {
		table, depends, err := b.resolveTable(name)
		if err != nil {
			return err
		}
		args := map[string]any{"table": table.Name}
		if b.ents.Filter != "" {
			args["filterByFormula"] = b.ents.Filter
		}
		b.add(model.CapListRecords, args, depends,
			fmt.Sprintf("List records from %s", table.Name))
	}
	return nil
}

// dataMutation plans create operations. N record-level actions on the same
// capability collapse into one batch operation; the dispatcher owns
// splitting against the remote per-call ceiling.
func (b *planBuilder) dataMutation(category Category) error {
	if len(b.ents.Tables) == 0 {
		b.add(model.CapListTables, map[string]any{}, nil,
			"List available tables for record creation")
		return nil
	}

	table, depends, err := b.resolveTable(b.ents.Tables[0])
	if err != nil {
		return err
	}

	count := b.ents.Count
	if count <= 0 {
		count = 1
	}

	if count == 1 && category != CategoryBatch {
		b.add(model.CapCreateRecord, map[string]any{
			"table":  table.Name,
			"fields": b.recordFields(1),
		}, depends, fmt.Sprintf("Create record in %s", table.Name))
		return nil
	}

	records := make([]any, 0, count)
	for i := 1; i <= count; i++ {
		records = append(records, map[string]any{"fields": b.recordFields(i)})
	}
	b.add(model.CapBatchCreateRecords, map[string]any{
		"table":   table.Name,
		"records": records,
	}, depends, fmt.Sprintf("Create %d records in %s", count, table.Name))
	return nil
}

func (b *planBuilder) dataUpdate() error {
	if len(b.ents.Tables) == 0 {
		return &AmbiguousIntentError{Entity: "table", Detail: "no table referenced for update"}
	}
	table, depends, err := b.resolveTable(b.ents.Tables[0])
	if err != nil {
		return err
	}

	fields := map[string]any{}
	for k, v := range b.ents.Assignments {
		fields[k] = v
	}

	switch {
	case len(b.ents.RecordIDs) > 1:
		records := make([]any, 0, len(b.ents.RecordIDs))
		for _, id := range b.ents.RecordIDs {
			records = append(records, map[string]any{"id": id, "fields": fields})
		}
		b.add(model.CapBatchUpdateRecords, map[string]any{
			"table":   table.Name,
			"records": records,
		}, depends, fmt.Sprintf("Update %d records in %s", len(records), table.Name))
	case len(b.ents.RecordIDs) == 1:
		b.add(model.CapUpdateRecord, map[string]any{
			"table":    table.Name,
			"recordId": b.ents.RecordIDs[0],
			"fields":   fields,
		}, depends, fmt.Sprintf("Update record %s", b.ents.RecordIDs[0]))
	default:
		// No explicit record IDs: surface matching records so the caller
		// can confirm which to update.
		args := map[string]any{"table": table.Name}
		if b.ents.Filter != "" {
			args["filterByFormula"] = b.ents.Filter
		}
		b.add(model.CapListRecords, args, depends,
			fmt.Sprintf("Find records to update in %s", table.Name))
	}
	return nil
}

func (b *planBuilder) dataDelete() error {
	if len(b.ents.Tables) == 0 {
		return &AmbiguousIntentError{Entity: "table", Detail: "no table referenced for delete"}
	}
	table, depends, err := b.resolveTable(b.ents.Tables[0])
	if err != nil {
		return err
	}

	switch {
	case len(b.ents.RecordIDs) > 1:
		ids := make([]any, 0, len(b.ents.RecordIDs))
		for _, id := range b.ents.RecordIDs {
			ids = append(ids, id)
		}
		b.add(model.CapBatchDeleteRecords, map[string]any{
			"table":     table.Name,
			"recordIds": ids,
		}, depends, fmt.Sprintf("Delete %d records from %s", len(ids), table.Name))
	case len(b.ents.RecordIDs) == 1:
		b.add(model.CapDeleteRecord, map[string]any{
			"table":    table.Name,
			"recordId": b.ents.RecordIDs[0],
		}, depends, fmt.Sprintf("Delete record %s", b.ents.RecordIDs[0]))
	default:
		args := map[string]any{"table": table.Name}
		if b.ents.Filter != "" {
			args["filterByFormula"] = b.ents.Filter
		}
		b.add(model.CapListRecords, args, depends,
			fmt.Sprintf("Find records to delete in %s", table.Name))
	}
	return nil
}

func (b *planBuilder) schemaQuery() error {
	if len(b.ents.Tables) > 0 {
		table, depends, err := b.resolveTable(b.ents.Tables[0])
		if err != nil {
			return err
		}
		b.add(model.CapDescribeTable, map[string]any{"table": table.Name}, depends,
			fmt.Sprintf("Describe table %s", table.Name))
		return nil
	}
	b.add(model.CapGetBaseSchema, map[string]any{}, nil, "Get base schema")
	return nil
}

func (b *planBuilder) schemaModify() error {
	lower := strings.ToLower(b.query)

	switch {
	case strings.Contains(lower, "table") && len(b.ents.Fields) == 0:
		name := "New Table"
		if len(b.ents.Tables) > 0 {
			name = b.ents.Tables[0]
		}
		b.add(model.CapCreateTable, map[string]any{
			"name":   name,
			"fields": []any{map[string]any{"name": "Name", "type": "singleLineText"}},
		}, nil, fmt.Sprintf("Create table %s", name))
	case len(b.ents.Fields) > 0:
		if len(b.ents.Tables) == 0 {
			return &AmbiguousIntentError{Entity: "table", Detail: "no table referenced for field change"}
		}
		table, depends, err := b.resolveTable(b.ents.Tables[0])
		if err != nil {
			return err
		}
		b.add(model.CapCreateField, map[string]any{
			"table": table.Name,
			"field": map[string]any{"name": b.ents.Fields[0], "type": "singleLineText"},
		}, depends, fmt.Sprintf("Add field %s to %s", b.ents.Fields[0], table.Name))
	case strings.Contains(lower, "view"):
		if len(b.ents.Tables) == 0 {
			return &AmbiguousIntentError{Entity: "table", Detail: "no table referenced for view creation"}
		}
		table, depends, err := b.resolveTable(b.ents.Tables[0])
		if err != nil {
			return err
		}
		name := "New View"
		if len(b.ents.Views) > 0 {
			name = b.ents.Views[0]
		}
		b.add(model.CapCreateView, map[string]any{
			"table": table.Name,
			"name":  name,
		}, depends, fmt.Sprintf("Create view %s on %s", name, table.Name))
	default:
		return &AmbiguousIntentError{Entity: "schema_change", Detail: "could not determine the schema change requested"}
	}
	return nil
}

func (b *planBuilder) webhookManage() error {
	lower := strings.ToLower(b.query)

	switch {
	case strings.Contains(lower, "list") || strings.Contains(lower, "show"):
		b.add(model.CapListWebhooks, map[string]any{}, nil, "List webhooks")
	case strings.Contains(lower, "delete") || strings.Contains(lower, "remove"):
		list := b.add(model.CapListWebhooks, map[string]any{}, nil, "List webhooks to locate target")
		b.add(model.CapDeleteWebhook, map[string]any{
			"webhookId": "@result:" + list.ID + ":webhooks.0.id",
		}, []string{list.ID}, "Delete matched webhook")
	default:
		url := extractURL(b.query)
		if url == "" {
			return &AmbiguousIntentError{Entity: "webhook", Detail: "no notification URL found in request"}
		}
		b.add(model.CapCreateWebhook, map[string]any{
			"notificationUrl": url,
		}, nil, "Create webhook")
	}
	return nil
}

// recordFields builds the field payload for the i-th created record from
// explicit assignments, falling back to a numbered sample name.
func (b *planBuilder) recordFields(i int) map[string]any {
	fields := map[string]any{}
	for k, v := range b.ents.Assignments {
		fields[k] = v
	}
	if len(fields) == 0 {
		fields["Name"] = fmt.Sprintf("Sample %d", i)
	}
	return fields
}
