package core

// reconcile.go matches spreadsheet headers to schema columns.
//
// Matching is two-phase over an immutable schema snapshot: exact
// case-insensitive match on canonical names first, then edit-distance
// suggestions for whatever is left. Suggestions are surfaced in errors but
// never applied automatically.

import (
	"sort"

	"github.com/agnivade/levenshtein"

	"github.com/Dazzlm/excel-generation/internal/schema"
)

// MaxSuggestions is how many near-miss columns are offered per unmapped header.
const MaxSuggestions = 3

// maxSuggestionDistance filters out suggestions that are not plausible typos.
const maxSuggestionDistance = 3

// Reconcile builds the header-to-column mapping for one job. It never fails:
// whatever could not be matched is reported in MissingRequired and
// UnmappedHeaders, and the caller decides whether that is fatal.
//
// The mapping is injective. When two headers canonicalize to the same column
// (e.g. "Name" and "NAME"), the first wins and later duplicates are reported
// as unmapped.
func Reconcile(table *schema.Table, headers []string) *ColumnMapping {
	m := &ColumnMapping{
		ByHeader:    make(map[string]string, len(headers)),
		Suggestions: make(map[string][]string),
	}

	claimed := make(map[string]bool, len(headers))
	for _, header := range headers {
		canon := schema.Canonical(header)
		if canon == "" {
			continue
		}
		if _, ok := table.Column(canon); ok && !claimed[canon] {
			m.ByHeader[header] = canon
			claimed[canon] = true
			continue
		}
		m.UnmappedHeaders = append(m.UnmappedHeaders, header)
	}

	// Unclaimed schema columns are suggestion candidates and, when required,
	// mapping failures.
	var unclaimed []string
	for _, col := range table.Columns {
		if claimed[col.Name] {
			continue
		}
		unclaimed = append(unclaimed, col.Name)
		if col.Required() {
			m.MissingRequired = append(m.MissingRequired, col.Name)
		}
	}

	for _, header := range m.UnmappedHeaders {
		if s := suggest(schema.Canonical(header), unclaimed); len(s) > 0 {
			m.Suggestions[header] = s
		}
	}

	return m
}

// suggest ranks candidates by edit distance to the header, closest first,
// dropping anything farther than maxSuggestionDistance.
func suggest(header string, candidates []string) []string {
	type scored struct {
		name string
		dist int
	}

	var ranked []scored
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(header, c)
		if d <= maxSuggestionDistance {
			ranked = append(ranked, scored{name: c, dist: d})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].dist < ranked[j].dist })

	n := len(ranked)
	if n > MaxSuggestions {
		n = MaxSuggestions
	}
	out := make([]string, 0, n)
	for _, s := range ranked[:n] {
		out = append(out, s.name)
	}
	return out
}

// MappingError converts a failed mapping into the job-level error returned
// by the upload pipeline before any write is attempted.
func (m *ColumnMapping) MappingError(table string) *ColumnMappingError {
	return &ColumnMappingError{
		Table:           table,
		MissingRequired: m.MissingRequired,
		UnmappedHeaders: m.UnmappedHeaders,
		Suggestions:     m.Suggestions,
	}
}
