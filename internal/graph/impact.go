package graph

import (
	"context"
	"sort"

	"github.com/codeatlas/codeatlas/internal/model"
)

// RiskLevel buckets an impact risk score.
type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
)

// AffectedSymbol is one node of the impact set with its risk assessment.
type AffectedSymbol struct {
	Symbol    *model.Symbol `json:"symbol"`
	RiskScore float64       `json:"riskScore"`
	Risk      RiskLevel     `json:"risk"`
	Depth     int           `json:"depth"`
}

// ImpactSummary aggregates the analysis.
type ImpactSummary struct {
	TotalAffected    int               `json:"totalAffected"`
	CriticalPaths    [][]string        `json:"criticalPaths"`
	AffectedFiles    map[string]int    `json:"affectedFiles"`
	RiskDistribution map[RiskLevel]int `json:"riskDistribution"`
}

// ImpactResult is the full report for an edited set.
type ImpactResult struct {
	DirectlyAffected     []AffectedSymbol `json:"directlyAffected"`
	TransitivelyAffected []AffectedSymbol `json:"transitivelyAffected"`
	SuggestedOrder       []string         `json:"suggestedOrder"`
	HighRisk             []AffectedSymbol `json:"highRisk"`
	Summary              ImpactSummary    `json:"impactSummary"`
}

// AnalyzeImpact reverse-walks deps:to from the edited set, scores every
// affected symbol, and suggests a change order in which dependencies come
// before their dependents (leaves first).
func (g *Graph) AnalyzeImpact(ctx context.Context, edited []string) (*ImpactResult, error) {
	seeds := map[string]bool{}
	for _, id := range edited {
		seeds[id] = true
	}

	// Reverse BFS, recording depth, one discovery path per node, and how
	// many distinct expansions reached it.
	depth := map[string]int{}
	paths := map[string][]string{}
	pathCount := map[string]int{}
	var order []string

	queue := make([]string, 0, len(edited))
	for _, id := range edited {
		depth[id] = 0
		paths[id] = []string{id}
		queue = append(queue, id)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		dependents, err := g.store.DependentsOf(ctx, cur)
		if err != nil {
			return nil, err
		}
		sort.Strings(dependents)
		for _, dep := range dependents {
			pathCount[dep]++
			if _, seen := depth[dep]; seen {
				continue
			}
			depth[dep] = depth[cur] + 1
			paths[dep] = append(append([]string{}, paths[cur]...), dep)
			order = append(order, dep)
			queue = append(queue, dep)
		}
	}

	allAffected := make([]string, 0, len(depth))
	for id := range depth {
		allAffected = append(allAffected, id)
	}
	sort.Strings(allAffected)

	// Score every affected symbol.
	var direct, transitive, all []AffectedSymbol
	files := map[string]int{}
	dist := map[RiskLevel]int{RiskCritical: 0, RiskHigh: 0, RiskMedium: 0, RiskLow: 0}

	for _, id := range allAffected {
		sym, err := g.store.GetSymbol(ctx, id)
		if err != nil {
			return nil, err
		}
		if sym == nil {
			continue // deleted during traversal
		}
		pr, err := g.store.GetPageRank(ctx, id)
		if err != nil {
			return nil, err
		}
		dependents, err := g.store.InDegree(ctx, id)
		if err != nil {
			return nil, err
		}

		score := pr * 100
		if pr > 0.01 {
			score += pr * 200
		}
		if IsEntryPointFile(sym.FilePath) {
			score += 50
		}
		if sym.Exported {
			score += 30
		}
		if dependents > 5 {
			score += 5 * float64(dependents)
		}
		if pathCount[id] > 10 {
			score += 2 * float64(pathCount[id])
		}

		risk := RiskLow
		switch {
		case score > g.cfg.CriticalThreshold:
			risk = RiskCritical
		case score > g.cfg.HighThreshold:
			risk = RiskHigh
		case score > g.cfg.MediumThreshold:
			risk = RiskMedium
		}
		dist[risk]++
		files[sym.FilePath]++

		affected := AffectedSymbol{Symbol: sym, RiskScore: score, Risk: risk, Depth: depth[id]}
		all = append(all, affected)
		switch depth[id] {
		case 0:
			// seeds are the edited symbols themselves, not "affected"
		case 1:
			direct = append(direct, affected)
		default:
			transitive = append(transitive, affected)
		}
	}

	var highRisk []AffectedSymbol
	for _, a := range all {
		if a.Risk == RiskCritical || a.Risk == RiskHigh {
			highRisk = append(highRisk, a)
		}
	}
	sort.Slice(highRisk, func(i, j int) bool {
		if highRisk[i].RiskScore != highRisk[j].RiskScore {
			return highRisk[i].RiskScore > highRisk[j].RiskScore
		}
		return highRisk[i].Symbol.ID < highRisk[j].Symbol.ID
	})

	suggested, err := g.suggestOrder(ctx, allAffected)
	if err != nil {
		return nil, err
	}

	var critical [][]string
	for _, p := range paths {
		if len(p) > 3 {
			critical = append(critical, p)
		}
	}
	sort.Slice(critical, func(i, j int) bool {
		if len(critical[i]) != len(critical[j]) {
			return len(critical[i]) > len(critical[j])
		}
		return critical[i][len(critical[i])-1] < critical[j][len(critical[j])-1]
	})

	return &ImpactResult{
		DirectlyAffected:     direct,
		TransitivelyAffected: transitive,
		SuggestedOrder:       suggested,
		HighRisk:             highRisk,
		Summary: ImpactSummary{
			TotalAffected:    len(all),
			CriticalPaths:    critical,
			AffectedFiles:    files,
			RiskDistribution: dist,
		},
	}, nil
}

// suggestOrder runs Kahn's algorithm over the affected set restricted to
// internal edges, oriented so every dependency precedes its dependents: for
// an internal edge u -> v (u depends on v), v is emitted before u.
func (g *Graph) suggestOrder(ctx context.Context, affected []string) ([]string, error) {
	inSet := make(map[string]bool, len(affected))
	for _, id := range affected {
		inSet[id] = true
	}

	// pending[u] counts u's unemitted internal dependencies; rdeps[v] lists
	// the nodes waiting on v.
	pending := make(map[string]int, len(affected))
	rdeps := make(map[string][]string, len(affected))
	for _, u := range affected {
		targets, err := g.store.DependenciesOf(ctx, u)
		if err != nil {
			return nil, err
		}
		for _, v := range targets {
			if !inSet[v] || v == u {
				continue
			}
			pending[u]++
			rdeps[v] = append(rdeps[v], u)
		}
	}

	var queue []string
	for _, id := range affected {
		if pending[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var ordered []string
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		ordered = append(ordered, v)
		for _, u := range rdeps[v] {
			pending[u]--
			if pending[u] == 0 {
				queue = append(queue, u)
			}
		}
	}

	// Cycles leave nodes with pending deps; append them in stable order.
	if len(ordered) < len(affected) {
		emitted := make(map[string]bool, len(ordered))
		for _, id := range ordered {
			emitted[id] = true
		}
		for _, id := range affected {
			if !emitted[id] {
				ordered = append(ordered, id)
			}
		}
	}
	return ordered, nil
}
