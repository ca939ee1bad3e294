// Capability taxonomy and lexical classification.
//
// Queries are scored against fixed pattern tables per category; grounding
// chunk sources add a small boost to the categories they document. The
// taxonomy is deliberately closed: a query matching nothing with enough
// confidence is surfaced as unsupported, never guessed.

package intent

import (
	"regexp"
	"strings"

	"github.com/richinex/tabula/refstore"
)

// Category is one capability category a query can map to.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryDataQuery
	CategoryDataCreate
	CategoryDataUpdate
	CategoryDataDelete
	CategorySchemaQuery
	CategorySchemaModify
	CategoryWebhookManage
	CategoryBatch
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryDataQuery:
		return "data_query"
	case CategoryDataCreate:
		return "data_create"
	case CategoryDataUpdate:
		return "data_update"
	case CategoryDataDelete:
		return "data_delete"
	case CategorySchemaQuery:
		return "schema_query"
	case CategorySchemaModify:
		return "schema_modify"
	case CategoryWebhookManage:
		return "webhook_manage"
	case CategoryBatch:
		return "batch_operation"
	default:
		return "unknown"
	}
}

// parseCategory maps a category name back to its value (used by the LLM
// fallback classifier).
func parseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "data_query", "read":
		return CategoryDataQuery
	case "data_create", "create":
		return CategoryDataCreate
	case "data_update", "update":
		return CategoryDataUpdate
	case "data_delete", "delete":
		return CategoryDataDelete
	case "schema_query", "schema":
		return CategorySchemaQuery
	case "schema_modify", "schema_change":
		return CategorySchemaModify
	case "webhook_manage", "webhook":
		return CategoryWebhookManage
	case "batch_operation", "batch":
		return CategoryBatch
	default:
		return CategoryUnknown
	}
}

var categoryPatterns = map[Category][]*regexp.Regexp{
	CategoryDataQuery: {
		regexp.MustCompile(`(?i)\b(list|show|get|find|search|query|retrieve|fetch|view)\b.*\b(records?|data|entries|items|rows)\b`),
		regexp.MustCompile(`(?i)\b(what|which|how many)\b.*\b(records?|tasks?|projects?|entries|items)\b`),
		regexp.MustCompile(`(?i)\bfilter\b.*\bby\b`),
		regexp.MustCompile(`(?i)\bwhere\b.*\b(is|are|equals?|contains?)\b`),
	},
	CategoryDataCreate: {
		regexp.MustCompile(`(?i)\b(create|add|insert|new|make)\b.*\b(records?|entr(y|ies)|items?|tasks?|projects?|rows?)\b`),
		regexp.MustCompile(`(?i)\badd\b.*\bto\b.*\btable\b`),
	},
	CategoryDataUpdate: {
		regexp.MustCompile(`(?i)\b(update|modify|edit|change|set)\b.*\b(records?|entr(y|ies)|fields?|values?)\b`),
		regexp.MustCompile(`(?i)\bchange\b.*\bto\b`),
		regexp.MustCompile(`(?i)\bupdate\b.*\bwhere\b`),
	},
	CategoryDataDelete: {
		regexp.MustCompile(`(?i)\b(delete|remove|destroy)\b.*\b(records?|entr(y|ies)|items?)\b`),
		regexp.MustCompile(`(?i)\bdelete\b.*\bwhere\b`),
	},
	CategorySchemaQuery: {
		regexp.MustCompile(`(?i)\b(schema|structure|columns?)\b`),
		regexp.MustCompile(`(?i)\bwhat (tables|fields)\b`),
		regexp.MustCompile(`(?i)\b(describe|explain)\b.*\btable\b`),
	},
	CategorySchemaModify: {
		regexp.MustCompile(`(?i)\b(create|add|make)\b.*\b(table|field|column|view)\b`),
		regexp.MustCompile(`(?i)\b(modify|rename|change)\b.*\b(table|field|schema)\b`),
		regexp.MustCompile(`(?i)\bnew table\b`),
	},
	CategoryWebhookManage: {
		regexp.MustCompile(`(?i)\b(webhooks?|notifications?|triggers?)\b`),
		regexp.MustCompile(`(?i)\b(notify|alert)\b.*\bwhen\b`),
		regexp.MustCompile(`(?i)\breal.?time\b.*\bupdates?\b`),
	},
	CategoryBatch: {
		regexp.MustCompile(`(?i)\b(batch|bulk|multiple|many|several)\b.*\b(records?|operations?)\b`),
		regexp.MustCompile(`(?i)\ball\b.*\brecords?\b.*\b(update|delete|create)\b`),
		regexp.MustCompile(`(?i)\b(import|migrate)\b.*\bdata\b`),
	},
}

// groundingBoosts maps reference chunk source tags to the categories they
// document. A chunk selected for grounding nudges classification toward
// its category.
var groundingBoosts = map[string][]Category{
	"api":      {CategoryDataQuery, CategoryDataCreate, CategoryDataUpdate, CategoryDataDelete},
	"schema":   {CategorySchemaQuery, CategorySchemaModify},
	"webhooks": {CategoryWebhookManage},
	"batch":    {CategoryBatch},
}

// groundingBoost is the score added per matching grounding chunk source.
const groundingBoost = 0.5

// classify scores the query against all category patterns and returns the
// best category with a confidence in [0,1]. Three or more pattern hits is
// treated as full confidence, matching the original heuristic this tuning
// came from.
func classify(query string, grounding []refstore.Chunk) (Category, float64) {
	scores := make(map[Category]float64)

	for category, patterns := range categoryPatterns {
		for _, p := range patterns {
			scores[category] += float64(len(p.FindAllString(query, -1)))
		}
	}

	for _, chunk := range grounding {
		for _, category := range groundingBoosts[chunk.Source] {
			if scores[category] > 0 {
				scores[category] += groundingBoost
			}
		}
	}

	best := CategoryUnknown
	bestScore := 0.0
	for category, score := range scores {
		if score > bestScore || (score == bestScore && category < best) {
			best = category
			bestScore = score
		}
	}

	if bestScore == 0 {
		return CategoryUnknown, 0
	}
	confidence := bestScore / 3.0
	if confidence > 1.0 {
		confidence = 1.0
	}
	return best, confidence
}
