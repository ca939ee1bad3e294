// Entity extraction from free-text queries.

package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// entities holds the names and identifiers extracted from one query.
type entities struct {
	Tables    []string
	Fields    []string
	RecordIDs []string
	Views     []string
	// Count is the number of record-level items the query implies
	// ("create these 5 tasks"); zero when unstated.
	Count int
	// Filter is a formula-style predicate ("{Status}='Active'") parsed
	// from a where/filter clause, or "".
	Filter string
	// Assignments are explicit field:value pairs parsed from the query.
	Assignments map[string]string
}

var (
	tablePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\btable\s+["']?([A-Za-z][\w ]*?)["']?(?:\s|$|,|\.|!|\?)`),
		regexp.MustCompile(`(?i)\b(?:in|from|into|to)\s+(?:the\s+)?["']?([A-Z][\w]*?)["']?\s+table\b`),
	}
	fieldPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:field|column)\s+["']([^"']+)["']`),
		regexp.MustCompile(`(?i)\b(?:field|column)\s+([A-Za-z][\w ]*?)(?:\s|$|,|\.|!|\?)`),
	}
	recordIDPattern = regexp.MustCompile(`\brec[a-zA-Z0-9]{14}\b`)
	viewPattern     = regexp.MustCompile(`(?i)\bview\s+["']?([A-Za-z][\w ]*?)["']?(?:\s|$|,|\.|!|\?)`)
	countPattern    = regexp.MustCompile(`(?i)\b(?:create|add|insert|make|delete|remove|update)\b[^.]*?\b(\d+)\b`)
	filterPattern   = regexp.MustCompile(`(?i)\bwhere\s+["']?([A-Za-z][\w ]*?)["']?\s+(?:is|equals?|=)\s+["']?([\w .-]+?)["']?(?:\s|$|,|\.|!|\?)`)
	// Field names in assignments are capitalized word sequences so the
	// pattern does not swallow leading query prose.
	assignPattern = regexp.MustCompile(`\b([A-Z]\w*(?:\s[A-Z]\w*)*)\s*[:=]\s*["']?([^,"']+)["']?`)
	urlPattern    = regexp.MustCompile(`https?://[^\s"']+`)
)

// extractEntities pulls tables, fields, record IDs, views, item counts, and
// filter predicates out of a query.
func extractEntities(query string) entities {
	e := entities{Assignments: map[string]string{}}

	e.Tables = matchAll(query, tablePatterns)
	e.Fields = matchAll(query, fieldPatterns)
	e.Views = matchAll(query, []*regexp.Regexp{viewPattern})
	e.RecordIDs = dedupe(recordIDPattern.FindAllString(query, -1))

	if m := countPattern.FindStringSubmatch(query); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			e.Count = n
		}
	}

	if m := filterPattern.FindStringSubmatch(query); m != nil {
		field := strings.TrimSpace(m[1])
		value := strings.TrimSpace(m[2])
		e.Filter = "{" + field + "}='" + value + "'"
		e.Fields = appendUnique(e.Fields, field)
	}

	// Explicit field assignments ("Status: Active, Priority: High").
	for _, m := range assignPattern.FindAllStringSubmatch(query, -1) {
		field := strings.TrimSpace(m[1])
		value := strings.TrimSpace(m[2])
		if field == "" || value == "" || strings.Contains(value, "://") {
			continue
		}
		e.Assignments[field] = value
	}

	return e
}

// extractURL returns the first URL in the query, for webhook targets.
func extractURL(query string) string {
	return urlPattern.FindString(query)
}

func matchAll(query string, patterns []*regexp.Regexp) []string {
	var out []string
	for _, p := range patterns {
		for _, m := range p.FindAllStringSubmatch(query, -1) {
			name := strings.TrimSpace(strings.Trim(m[1], `"',`))
			if name != "" {
				out = appendUnique(out, name)
			}
		}
	}
	return out
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if strings.EqualFold(existing, item) {
			return list
		}
	}
	return append(list, item)
}

func dedupe(list []string) []string {
	var out []string
	for _, item := range list {
		out = appendUnique(out, item)
	}
	return out
}
