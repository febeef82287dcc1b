package graph

import (
	"container/heap"
	"context"
	"sort"

	"github.com/codeatlas/codeatlas/internal/model"
)

// PathStep is one node of a reconstructed chain with its breadth distance.
type PathStep struct {
	Symbol   *model.Symbol `json:"symbol"`
	Distance int           `json:"distance"`
}

// FindPath runs BFS over deps:from, expanding neighbours in edge-type
// priority order, and reconstructs the chain from -> to. Returns nil when no
// path exists.
func (g *Graph) FindPath(ctx context.Context, from, to string) ([]PathStep, error) {
	parents, err := g.bfsForward(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if _, reached := parents[to]; !reached && from != to {
		return nil, nil
	}
	return g.reconstruct(ctx, from, to, parents)
}

// FindShortestPaths returns the BFS path to every node reachable from the
// start, keyed by target ID.
func (g *Graph) FindShortestPaths(ctx context.Context, from string) (map[string][]PathStep, error) {
	parents, err := g.bfsForward(ctx, from, "")
	if err != nil {
		return nil, err
	}
	paths := make(map[string][]PathStep, len(parents))
	for target := range parents {
		if target == from {
			continue
		}
		p, err := g.reconstruct(ctx, from, target, parents)
		if err != nil {
			return nil, err
		}
		if p != nil {
			paths[target] = p
		}
	}
	return paths, nil
}

// bfsForward walks deps:from, recording each node's BFS parent. Stops early
// when goal is reached (goal == "" walks the full reachable set).
func (g *Graph) bfsForward(ctx context.Context, start, goal string) (map[string]string, error) {
	parents := map[string]string{start: ""}
	queue := []string{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if goal != "" && cur == goal {
			break
		}
		neighbours, err := g.orderedNeighbours(ctx, cur)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbours {
			if _, seen := parents[n]; seen {
				continue
			}
			parents[n] = cur
			queue = append(queue, n)
		}
	}
	return parents, nil
}

// orderedNeighbours returns deps:from members sorted by edge-type priority,
// ties broken by ID for determinism.
func (g *Graph) orderedNeighbours(ctx context.Context, id string) ([]string, error) {
	targets, err := g.store.DependenciesOf(ctx, id)
	if err != nil {
		return nil, err
	}
	type ranked struct {
		id   string
		prio int
	}
	rankedTargets := make([]ranked, 0, len(targets))
	for _, t := range targets {
		edge, err := g.store.GetEdge(ctx, id, t)
		if err != nil {
			return nil, err
		}
		prio := len(edgePriority)
		if edge != nil {
			if p, ok := edgePriority[edge.Type]; ok {
				prio = p
			}
		}
		rankedTargets = append(rankedTargets, ranked{id: t, prio: prio})
	}
	sort.Slice(rankedTargets, func(i, j int) bool {
		if rankedTargets[i].prio != rankedTargets[j].prio {
			return rankedTargets[i].prio < rankedTargets[j].prio
		}
		return rankedTargets[i].id < rankedTargets[j].id
	})
	ids := make([]string, len(rankedTargets))
	for i, rt := range rankedTargets {
		ids[i] = rt.id
	}
	return ids, nil
}

func (g *Graph) reconstruct(ctx context.Context, from, to string, parents map[string]string) ([]PathStep, error) {
	var chain []string
	for cur := to; ; {
		chain = append([]string{cur}, chain...)
		if cur == from {
			break
		}
		parent, ok := parents[cur]
		if !ok {
			return nil, nil
		}
		cur = parent
	}
	steps := make([]PathStep, 0, len(chain))
	for i, id := range chain {
		sym, err := g.store.GetSymbol(ctx, id)
		if err != nil {
			return nil, err
		}
		if sym == nil {
			continue // deleted during traversal
		}
		steps = append(steps, PathStep{Symbol: sym, Distance: i})
	}
	return steps, nil
}

// pqItem is a Dijkstra frontier entry.
type pqItem struct {
	id   string
	cost float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].cost < pq[j].cost }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x any)         { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// FindCriticalPath runs Dijkstra with edge cost 1/(1000*PR(to)+eps), so the
// walk prefers high-rank intermediates (low cost through important nodes).
func (g *Graph) FindCriticalPath(ctx context.Context, from, to string) ([]PathStep, error) {
	const eps = 1e-9

	dist := map[string]float64{from: 0}
	parents := map[string]string{from: ""}
	done := map[string]bool{}

	pq := &priorityQueue{{id: from, cost: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if done[cur.id] {
			continue
		}
		done[cur.id] = true
		if cur.id == to {
			break
		}
		targets, err := g.store.DependenciesOf(ctx, cur.id)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			pr, err := g.store.GetPageRank(ctx, t)
			if err != nil {
				return nil, err
			}
			cost := cur.cost + 1/(1000*pr+eps)
			if old, seen := dist[t]; !seen || cost < old {
				dist[t] = cost
				parents[t] = cur.id
				heap.Push(pq, pqItem{id: t, cost: cost})
			}
		}
	}

	if _, reached := dist[to]; !reached {
		return nil, nil
	}
	return g.reconstruct(ctx, from, to, parents)
}
