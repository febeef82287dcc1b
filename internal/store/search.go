package store

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/codeatlas/codeatlas/internal/model"
)

// allNames scans the name index keys and returns every distinct symbol name.
func (s *Store) allNames(ctx context.Context) ([]string, error) {
	prefix := s.nsPrefix() + "idx:name:"
	var names []string
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, prefix+"*", 1024).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			names = append(names, k[len(prefix):])
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(names)
	return names, nil
}

// SearchFilter narrows a name-based search.
type SearchFilter struct {
	FilePath     string
	Kind         model.Kind
	ExportedOnly bool
	Limit        int
}

// FuzzySearch matches names case-insensitively: exact, then prefix, then
// substring. Results are ordered by stored rank descending.
func (s *Store) FuzzySearch(ctx context.Context, query string, filter SearchFilter) ([]*model.Symbol, error) {
	names, err := s.allNames(ctx)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(query)

	var matched []string
	for _, name := range names {
		ln := strings.ToLower(name)
		if ln == lower || strings.HasPrefix(ln, lower) || strings.Contains(ln, lower) {
			matched = append(matched, name)
		}
	}
	return s.collectMatches(ctx, matched, filter)
}

// WildcardSearch supports '*' and '?' patterns; a pattern without
// metacharacters matches as a case-insensitive substring.
func (s *Store) WildcardSearch(ctx context.Context, pattern string, filter SearchFilter) ([]*model.Symbol, error) {
	names, err := s.allNames(ctx)
	if err != nil {
		return nil, err
	}

	var match func(string) bool
	if strings.ContainsAny(pattern, "*?") {
		re, reErr := compileWildcard(pattern)
		if reErr != nil {
			return nil, reErr
		}
		match = re.MatchString
	} else {
		lower := strings.ToLower(pattern)
		match = func(name string) bool {
			return strings.Contains(strings.ToLower(name), lower)
		}
	}

	var matched []string
	for _, name := range names {
		if match(name) {
			matched = append(matched, name)
		}
	}
	return s.collectMatches(ctx, matched, filter)
}

// compileWildcard turns a glob-ish pattern into an anchored regexp.
func compileWildcard(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// collectMatches loads, filters and rank-orders the symbols for a name set.
func (s *Store) collectMatches(ctx context.Context, names []string, filter SearchFilter) ([]*model.Symbol, error) {
	var symbols []*model.Symbol
	for _, name := range names {
		syms, err := s.SymbolsByName(ctx, name)
		if err != nil {
			return nil, err
		}
		for _, sym := range syms {
			if filter.FilePath != "" && sym.FilePath != filter.FilePath {
				continue
			}
			if filter.Kind != "" && sym.Kind != filter.Kind {
				continue
			}
			if filter.ExportedOnly && !sym.Exported {
				continue
			}
			symbols = append(symbols, sym)
		}
	}
	sort.Slice(symbols, func(i, j int) bool {
		if symbols[i].PageRank != symbols[j].PageRank {
			return symbols[i].PageRank > symbols[j].PageRank
		}
		return symbols[i].ID < symbols[j].ID
	})
	if filter.Limit > 0 && len(symbols) > filter.Limit {
		symbols = symbols[:filter.Limit]
	}
	return symbols, nil
}
