package graph

import (
	"context"
	"math"
	"sort"

	"github.com/codeatlas/codeatlas/internal/model"
)

// ConnectedComponents unions both edge directions and returns the resulting
// groups of symbol IDs, largest first.
func (g *Graph) ConnectedComponents(ctx context.Context) ([][]string, error) {
	ids, err := g.store.AllSymbolIDs(ctx)
	if err != nil {
		return nil, err
	}
	visited := make(map[string]bool, len(ids))
	var components [][]string

	for _, start := range ids {
		if visited[start] {
			continue
		}
		var component []string
		stack := []string{start}
		visited[start] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, cur)

			forward, err := g.store.DependenciesOf(ctx, cur)
			if err != nil {
				return nil, err
			}
			reverse, err := g.store.DependentsOf(ctx, cur)
			if err != nil {
				return nil, err
			}
			for _, n := range append(forward, reverse...) {
				if !visited[n] {
					visited[n] = true
					stack = append(stack, n)
				}
			}
		}
		sort.Strings(component)
		components = append(components, component)
	}
	sort.Slice(components, func(i, j int) bool {
		return len(components[i]) > len(components[j])
	})
	return components, nil
}

// FindCycles detects directed cycles with recursion-stack colouring on an
// explicit stack, returning each cycle as the node sequence closing the
// back edge.
func (g *Graph) FindCycles(ctx context.Context) ([][]string, error) {
	ids, err := g.store.AllSymbolIDs(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids) // deterministic discovery order

	const (
		white = 0 // unvisited
		grey  = 1 // on recursion stack
		black = 2 // finished
	)
	color := make(map[string]int, len(ids))
	var cycles [][]string

	type frame struct {
		id       string
		expanded bool
	}

	for _, root := range ids {
		if color[root] != white {
			continue
		}
		var pathStack []string
		onPath := map[string]int{} // id -> index in pathStack
		stack := []frame{{id: root}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if !top.expanded {
				top.expanded = true
				color[top.id] = grey
				onPath[top.id] = len(pathStack)
				pathStack = append(pathStack, top.id)

				targets, err := g.orderedNeighbours(ctx, top.id)
				if err != nil {
					return nil, err
				}
				for _, t := range targets {
					switch color[t] {
					case white:
						stack = append(stack, frame{id: t})
					case grey:
						// Back edge: the cycle is the path suffix from t.
						if idx, ok := onPath[t]; ok {
							cycle := make([]string, len(pathStack)-idx)
							copy(cycle, pathStack[idx:])
							cycles = append(cycles, cycle)
						}
					}
				}
				continue
			}
			// Unwind.
			color[top.id] = black
			delete(onPath, top.id)
			pathStack = pathStack[:len(pathStack)-1]
			stack = stack[:len(stack)-1]
		}
	}
	return cycles, nil
}

// Bottleneck is a symbol that funnels many paths: sqrt(indeg*outdeg) > 4.
type Bottleneck struct {
	Symbol *model.Symbol `json:"symbol"`
	Score  float64       `json:"score"`
	In     int           `json:"inDegree"`
	Out    int           `json:"outDegree"`
}

// FindBottlenecks scores every symbol by sqrt(indeg*outdeg) and keeps those
// above 4, sorted descending.
func (g *Graph) FindBottlenecks(ctx context.Context) ([]Bottleneck, error) {
	ids, err := g.store.AllSymbolIDs(ctx)
	if err != nil {
		return nil, err
	}
	var found []Bottleneck
	for _, id := range ids {
		in, err := g.store.InDegree(ctx, id)
		if err != nil {
			return nil, err
		}
		out, err := g.store.OutDegree(ctx, id)
		if err != nil {
			return nil, err
		}
		score := math.Sqrt(float64(in) * float64(out))
		if score <= 4 {
			continue
		}
		sym, err := g.store.GetSymbol(ctx, id)
		if err != nil {
			return nil, err
		}
		if sym == nil {
			continue
		}
		found = append(found, Bottleneck{Symbol: sym, Score: score, In: in, Out: out})
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].Score != found[j].Score {
			return found[i].Score > found[j].Score
		}
		return found[i].Symbol.ID < found[j].Symbol.ID
	})
	return found, nil
}

// FindDeadCode returns non-entry-point, non-exported symbols with a rank
// below 1e-4 and no dependents.
func (g *Graph) FindDeadCode(ctx context.Context) ([]*model.Symbol, error) {
	symbols, err := g.store.AllSymbols(ctx)
	if err != nil {
		return nil, err
	}
	var dead []*model.Symbol
	for _, sym := range symbols {
		if sym.Exported || sym.Name == "main" || IsEntryPointFile(sym.FilePath) {
			continue
		}
		pr, err := g.store.GetPageRank(ctx, sym.ID)
		if err != nil {
			return nil, err
		}
		if pr >= 1e-4 {
			continue
		}
		in, err := g.store.InDegree(ctx, sym.ID)
		if err != nil {
			return nil, err
		}
		if in == 0 {
			dead = append(dead, sym)
		}
	}
	sort.Slice(dead, func(i, j int) bool { return dead[i].ID < dead[j].ID })
	return dead, nil
}
