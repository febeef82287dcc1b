package graph

import (
	"context"
	"log/slog"
	"math"

	"github.com/codeatlas/codeatlas/internal/model"
)

// ComputePageRank runs the weighted iteration over every stored symbol and
// persists the normalised result into the sorted set and the per-symbol
// mirror field. Edges whose endpoints are not symbols are ignored.
func (g *Graph) ComputePageRank(ctx context.Context) (map[string]float64, error) {
	symbols, err := g.store.AllSymbols(ctx)
	if err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}
	byID := make(map[string]*model.Symbol, len(symbols))
	for _, s := range symbols {
		byID[s.ID] = s
	}

	edges, err := g.store.AllEdges(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(symbols))
	for _, e := range edges {
		if byID[e.From] == nil || byID[e.To] == nil {
			continue
		}
		out[e.From] = append(out[e.From], e.To)
	}

	n := float64(len(symbols))
	ranks := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		ranks[s.ID] = (1 / n) * seedMultiplier(s)
	}

	d := g.cfg.Damping
	for iter := 0; iter < g.cfg.Iterations; iter++ {
		next := make(map[string]float64, len(ranks))
		base := (1 - d) / n
		for id := range ranks {
			next[id] = base
		}
		for from, targets := range out {
			share := d * ranks[from] / float64(len(targets))
			for _, to := range targets {
				next[to] += share
			}
		}

		maxDelta := 0.0
		for id, r := range next {
			if delta := math.Abs(r - ranks[id]); delta > maxDelta {
				maxDelta = delta
			}
		}
		ranks = next
		if maxDelta < g.cfg.Tolerance {
			slog.Debug("pagerank.converged", "iterations", iter+1)
			break
		}
	}

	// Normalise so the scores sum to 1.
	total := 0.0
	for _, r := range ranks {
		total += r
	}
	if total > 0 {
		for id := range ranks {
			ranks[id] /= total
		}
	}

	if err := g.store.SetPageRanks(ctx, ranks); err != nil {
		return nil, err
	}
	slog.Info("pagerank.done", "symbols", len(ranks))
	return ranks, nil
}

// seedMultiplier weights the initial rank by export status, entry-point
// placement and kind.
func seedMultiplier(s *model.Symbol) float64 {
	m := 1.0
	if s.Exported {
		m *= 1.5
	}
	if IsEntryPointFile(s.FilePath) {
		m *= 2.0
	}
	switch s.Kind {
	case model.KindClass, model.KindInterface:
		m *= 1.2
	case model.KindFunction, model.KindMethod:
		m *= 1.1
	}
	return m
}
