package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/codeatlas/codeatlas/internal/model"
)

// SimilarSymbol is a scored match with a human-readable reason.
type SimilarSymbol struct {
	Symbol *model.Symbol `json:"symbol"`
	Score  float64       `json:"score"`
	Reason string        `json:"reason"`
}

// FindSimilar scores every other symbol against the target: same kind +0.3,
// same language +0.2, name similarity above 0.5 adds sim*0.3, same file
// +0.2. Matches scoring 0.3 or less are dropped; the top limit are returned.
func (g *Graph) FindSimilar(ctx context.Context, target *model.Symbol, limit int) ([]SimilarSymbol, error) {
	if limit <= 0 {
		limit = 10
	}
	symbols, err := g.store.AllSymbols(ctx)
	if err != nil {
		return nil, err
	}

	var matches []SimilarSymbol
	for _, sym := range symbols {
		if sym.ID == target.ID {
			continue
		}
		score := 0.0
		var reasons []string
		if sym.Kind == target.Kind {
			score += 0.3
			reasons = append(reasons, "same kind ("+string(sym.Kind)+")")
		}
		if sym.Language == target.Language {
			score += 0.2
			reasons = append(reasons, "same language")
		}
		if sim := nameSimilarity(sym.Name, target.Name); sim > 0.5 {
			score += sim * 0.3
			reasons = append(reasons, fmt.Sprintf("similar name (%.0f%%)", sim*100))
		}
		if sym.FilePath == target.FilePath {
			score += 0.2
			reasons = append(reasons, "same file")
		}
		if score <= 0.3 {
			continue
		}
		matches = append(matches, SimilarSymbol{
			Symbol: sym,
			Score:  score,
			Reason: strings.Join(reasons, ", "),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Symbol.ID < matches[j].Symbol.ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// nameSimilarity is 1 - levenshtein/maxlen, case-insensitive.
func nameSimilarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1.0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(a, b))/float64(maxLen)
}

// levenshtein computes edit distance with two rows instead of a full matrix.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}
	if b == "" {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, min(prev[j]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
