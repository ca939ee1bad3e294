// Package model provides domain types shared across packages.
package model

// Capability is one named remote operation kind exposed by the data service.
type Capability string

// Data operations.
const (
	CapListTables    Capability = "list_tables"
	CapListRecords   Capability = "list_records"
	CapGetRecord     Capability = "get_record"
	CapSearchRecords Capability = "search_records"
	CapCreateRecord  Capability = "create_record"
	CapUpdateRecord  Capability = "update_record"
	CapDeleteRecord  Capability = "delete_record"
)

// Batch operations. The remote service caps write calls at BatchCeiling
// items; the dispatcher splits oversized payloads transparently.
const (
	CapBatchCreateRecords Capability = "batch_create_records"
	CapBatchUpdateRecords Capability = "batch_update_records"
	CapBatchDeleteRecords Capability = "batch_delete_records"
	CapBatchUpsertRecords Capability = "batch_upsert_records"
)

// Schema operations.
const (
	CapGetBaseSchema  Capability = "get_base_schema"
	CapDescribeTable  Capability = "describe_table"
	CapListFieldTypes Capability = "list_field_types"
	CapCreateTable    Capability = "create_table"
	CapUpdateTable    Capability = "update_table"
	CapDeleteTable    Capability = "delete_table"
	CapCreateField    Capability = "create_field"
	CapUpdateField    Capability = "update_field"
	CapDeleteField    Capability = "delete_field"
)

// Webhook operations.
const (
	CapListWebhooks       Capability = "list_webhooks"
	CapCreateWebhook      Capability = "create_webhook"
	CapDeleteWebhook      Capability = "delete_webhook"
	CapRefreshWebhook     Capability = "refresh_webhook"
	CapGetWebhookPayloads Capability = "get_webhook_payloads"
)

// View operations.
const (
	CapCreateView      Capability = "create_view"
	CapGetViewMetadata Capability = "get_view_metadata"
	CapGetTableViews   Capability = "get_table_views"
)

// readCapabilities have no remote side effects and are eligible for
// response caching.
var readCapabilities = map[Capability]bool{
	CapListTables:         true,
	CapListRecords:        true,
	CapGetRecord:          true,
	CapSearchRecords:      true,
	CapGetBaseSchema:      true,
	CapDescribeTable:      true,
	CapListFieldTypes:     true,
	CapListWebhooks:       true,
	CapGetWebhookPayloads: true,
	CapGetViewMetadata:    true,
	CapGetTableViews:      true,
}

// batchItemFields maps batch capabilities to the argument holding their
// item array.
var batchItemFields = map[Capability]string{
	CapBatchCreateRecords: "records",
	CapBatchUpdateRecords: "records",
	CapBatchUpsertRecords: "records",
	CapBatchDeleteRecords: "recordIds",
}

// paginatedCapabilities thread an opaque offset token through repeated
// calls until the token is absent from the response.
var paginatedCapabilities = map[Capability]bool{
	CapListRecords:   true,
	CapSearchRecords: true,
}

// knownCapabilities is the full remote surface.
var knownCapabilities = buildKnownCapabilities()

func buildKnownCapabilities() map[Capability]bool {
	all := []Capability{
		CapListTables, CapListRecords, CapGetRecord, CapSearchRecords,
		CapCreateRecord, CapUpdateRecord, CapDeleteRecord,
		CapBatchCreateRecords, CapBatchUpdateRecords, CapBatchDeleteRecords,
		CapBatchUpsertRecords,
		CapGetBaseSchema, CapDescribeTable, CapListFieldTypes,
		CapCreateTable, CapUpdateTable, CapDeleteTable,
		CapCreateField, CapUpdateField, CapDeleteField,
		CapListWebhooks, CapCreateWebhook, CapDeleteWebhook,
		CapRefreshWebhook, CapGetWebhookPayloads,
		CapCreateView, CapGetViewMetadata, CapGetTableViews,
	}
	m := make(map[Capability]bool, len(all))
	for _, c := range all {
		m[c] = true
	}
	return m
}

// Known reports whether c is part of the remote service surface.
func (c Capability) Known() bool {
	return knownCapabilities[c]
}

// IsWrite reports whether c may mutate remote state. Writes are never
// deduplicated through the response cache: two identical create calls are
// two intended creations.
func (c Capability) IsWrite() bool {
	return !readCapabilities[c]
}

// Cacheable reports whether responses for c may be served from cache.
func (c Capability) Cacheable() bool {
	return readCapabilities[c]
}

// Batchable reports whether c carries an item array subject to the remote
// per-call ceiling.
func (c Capability) Batchable() bool {
	_, ok := batchItemFields[c]
	return ok
}

// BatchItemField returns the argument name holding the item array for a
// batchable capability, or "" otherwise.
func (c Capability) BatchItemField() string {
	return batchItemFields[c]
}

// Paginated reports whether responses for c may carry an offset token.
func (c Capability) Paginated() bool {
	return paginatedCapabilities[c]
}
