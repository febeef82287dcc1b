package graph

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/codeatlas/codeatlas/internal/model"
	"github.com/codeatlas/codeatlas/internal/store"
)

func newTestGraph(t *testing.T) (*Graph, *store.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewWithClient(rdb, "codeatlas")
	s.SetProjectContext("/tmp/proj")
	t.Cleanup(func() { s.Close() })
	return New(s, DefaultConfig()), s
}

func sym(id, name, kind, file string, exported bool) *model.Symbol {
	return &model.Symbol{
		ID: id, Name: name, Kind: model.Kind(kind), FilePath: file,
		Location: model.Location{Start: model.Point{Line: 1}},
		Exported: exported, Language: "typescript",
	}
}

func TestIsEntryPointFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/p/index.ts", true},
		{"/p/main.py", true},
		{"/p/src/main/App.java", true},
		{"/p/bin/run.ts", true},
		{"/p/lib/util.ts", false},
		{"/p/indexer.ts", false},
	}
	for _, tt := range tests {
		if got := IsEntryPointFile(tt.path); got != tt.want {
			t.Errorf("IsEntryPointFile(%s) = %v want %v", tt.path, got, tt.want)
		}
	}
}

func TestPageRankOrdering(t *testing.T) {
	g, s := newTestGraph(t)
	ctx := context.Background()

	core := sym("/p/core.ts:Core:0", "Core", "class", "/p/core.ts", true)
	leaf := sym("/p/leaf.ts:Leaf:0", "Leaf", "class", "/p/leaf.ts", true)
	symbols := []*model.Symbol{core, leaf}
	var edges []*model.Dependency
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("/p/u%d.ts:U%d:0", i, i)
		symbols = append(symbols, sym(id, fmt.Sprintf("U%d", i), "class", fmt.Sprintf("/p/u%d.ts", i), false))
		edges = append(edges, &model.Dependency{From: id, To: core.ID, Type: model.DepUses})
	}
	if err := s.AddSymbols(ctx, symbols); err != nil {
		t.Fatalf("AddSymbols: %v", err)
	}
	if err := s.AddEdges(ctx, edges); err != nil {
		t.Fatalf("AddEdges: %v", err)
	}

	ranks, err := g.ComputePageRank(ctx)
	if err != nil {
		t.Fatalf("ComputePageRank: %v", err)
	}

	sum := 0.0
	for _, r := range ranks {
		sum += r
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("ranks must sum to 1, got %f", sum)
	}
	if ranks[core.ID] <= ranks[leaf.ID] {
		t.Errorf("Core (%f) should outrank Leaf (%f)", ranks[core.ID], ranks[leaf.ID])
	}

	top, err := s.TopSymbols(ctx, 1)
	if err != nil {
		t.Fatalf("TopSymbols: %v", err)
	}
	if len(top) != 1 || top[0].Symbol.ID != core.ID {
		t.Errorf("expected Core on top, got %+v", top)
	}

	// The mirror field matches the sorted-set score.
	stored, err := s.GetSymbol(ctx, core.ID)
	if err != nil {
		t.Fatalf("GetSymbol: %v", err)
	}
	zscore, err := s.GetPageRank(ctx, core.ID)
	if err != nil {
		t.Fatalf("GetPageRank: %v", err)
	}
	if math.Abs(stored.PageRank-zscore) > 1e-12 {
		t.Errorf("mirror (%g) != sorted-set score (%g)", stored.PageRank, zscore)
	}
}

func TestPageRankIdempotent(t *testing.T) {
	g, s := newTestGraph(t)
	ctx := context.Background()

	if err := s.AddSymbols(ctx, []*model.Symbol{
		sym("a.ts:A:0", "A", "class", "a.ts", true),
		sym("b.ts:B:0", "B", "function", "b.ts", false),
	}); err != nil {
		t.Fatalf("AddSymbols: %v", err)
	}
	if err := s.AddEdge(ctx, &model.Dependency{From: "b.ts:B:0", To: "a.ts:A:0", Type: model.DepCalls}); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	first, err := g.ComputePageRank(ctx)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := g.ComputePageRank(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	for id, r := range first {
		if math.Abs(second[id]-r) > 1e-9 {
			t.Errorf("rank for %s drifted: %g vs %g", id, r, second[id])
		}
	}
}

func TestFindPath(t *testing.T) {
	g, s := newTestGraph(t)
	ctx := context.Background()

	for _, id := range []string{"a.ts:A:0", "b.ts:B:0", "c.ts:C:0"} {
		if err := s.AddSymbols(ctx, []*model.Symbol{sym(id, id[5:6], "class", id[:4], true)}); err != nil {
			t.Fatalf("AddSymbols: %v", err)
		}
	}
	if err := s.AddEdges(ctx, []*model.Dependency{
		{From: "a.ts:A:0", To: "b.ts:B:0", Type: model.DepCalls},
		{From: "b.ts:B:0", To: "c.ts:C:0", Type: model.DepCalls},
	}); err != nil {
		t.Fatalf("AddEdges: %v", err)
	}

	path, err := g.FindPath(ctx, "a.ts:A:0", "c.ts:C:0")
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if len(path) != 3 {
		t.Fatalf("expected path of 3, got %d", len(path))
	}
	if path[0].Symbol.ID != "a.ts:A:0" || path[2].Symbol.ID != "c.ts:C:0" {
		t.Errorf("unexpected chain: %+v", path)
	}
	if path[2].Distance != 2 {
		t.Errorf("expected distance 2, got %d", path[2].Distance)
	}

	none, err := g.FindPath(ctx, "c.ts:C:0", "a.ts:A:0")
	if err != nil {
		t.Fatalf("FindPath reverse: %v", err)
	}
	if none != nil {
		t.Errorf("expected no path against edge direction, got %+v", none)
	}

	all, err := g.FindShortestPaths(ctx, "a.ts:A:0")
	if err != nil {
		t.Fatalf("FindShortestPaths: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 reachable nodes, got %d", len(all))
	}
}

func TestFindCriticalPath(t *testing.T) {
	g, s := newTestGraph(t)
	ctx := context.Background()

	ids := []string{"a.ts:A:0", "b.ts:B:0", "c.ts:C:0", "d.ts:D:0"}
	for i, id := range ids {
		if err := s.AddSymbols(ctx, []*model.Symbol{sym(id, string(rune('A'+i)), "class", id[:4], true)}); err != nil {
			t.Fatalf("AddSymbols: %v", err)
		}
	}
	// Two routes A->D: via B (high rank) and via C (low rank).
	if err := s.AddEdges(ctx, []*model.Dependency{
		{From: "a.ts:A:0", To: "b.ts:B:0", Type: model.DepCalls},
		{From: "b.ts:B:0", To: "d.ts:D:0", Type: model.DepCalls},
		{From: "a.ts:A:0", To: "c.ts:C:0", Type: model.DepCalls},
		{From: "c.ts:C:0", To: "d.ts:D:0", Type: model.DepCalls},
	}); err != nil {
		t.Fatalf("AddEdges: %v", err)
	}
	if err := s.SetPageRanks(ctx, map[string]float64{
		"a.ts:A:0": 0.1, "b.ts:B:0": 0.6, "c.ts:C:0": 0.1, "d.ts:D:0": 0.2,
	}); err != nil {
		t.Fatalf("SetPageRanks: %v", err)
	}

	path, err := g.FindCriticalPath(ctx, "a.ts:A:0", "d.ts:D:0")
	if err != nil {
		t.Fatalf("FindCriticalPath: %v", err)
	}
	if len(path) != 3 {
		t.Fatalf("expected 3-node path, got %d", len(path))
	}
	if path[1].Symbol.ID != "b.ts:B:0" {
		t.Errorf("expected the high-rank intermediate, got %s", path[1].Symbol.ID)
	}
}

func TestFindCycles(t *testing.T) {
	g, s := newTestGraph(t)
	ctx := context.Background()

	for i, id := range []string{"f.ts:ping:0", "f.ts:pong:4", "g.ts:solo:0"} {
		if err := s.AddSymbols(ctx, []*model.Symbol{sym(id, fmt.Sprintf("n%d", i), "function", id[:4], false)}); err != nil {
			t.Fatalf("AddSymbols: %v", err)
		}
	}
	if err := s.AddEdges(ctx, []*model.Dependency{
		{From: "f.ts:ping:0", To: "f.ts:pong:4", Type: model.DepCalls},
		{From: "f.ts:pong:4", To: "f.ts:ping:0", Type: model.DepCalls},
	}); err != nil {
		t.Fatalf("AddEdges: %v", err)
	}

	cycles, err := g.FindCycles(ctx)
	if err != nil {
		t.Fatalf("FindCycles: %v", err)
	}
	if len(cycles) != 1 {
		t.Fatalf("expected 1 cycle, got %d: %v", len(cycles), cycles)
	}
	members := map[string]bool{}
	for _, id := range cycles[0] {
		members[id] = true
	}
	if !members["f.ts:ping:0"] || !members["f.ts:pong:4"] {
		t.Errorf("cycle missing members: %v", cycles[0])
	}
}

func TestConnectedComponents(t *testing.T) {
	g, s := newTestGraph(t)
	ctx := context.Background()

	for _, id := range []string{"a.ts:A:0", "b.ts:B:0", "c.ts:C:0"} {
		if err := s.AddSymbols(ctx, []*model.Symbol{sym(id, id[5:6], "class", id[:4], true)}); err != nil {
			t.Fatalf("AddSymbols: %v", err)
		}
	}
	if err := s.AddEdge(ctx, &model.Dependency{From: "a.ts:A:0", To: "b.ts:B:0", Type: model.DepUses}); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	components, err := g.ConnectedComponents(ctx)
	if err != nil {
		t.Fatalf("ConnectedComponents: %v", err)
	}
	if len(components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(components))
	}
	if len(components[0]) != 2 {
		t.Errorf("largest component should have 2 members: %v", components[0])
	}
}

func TestFindBottlenecks(t *testing.T) {
	g, s := newTestGraph(t)
	ctx := context.Background()

	hub := sym("h.ts:Hub:0", "Hub", "class", "h.ts", true)
	if err := s.AddSymbols(ctx, []*model.Symbol{hub}); err != nil {
		t.Fatalf("AddSymbols: %v", err)
	}
	var edges []*model.Dependency
	for i := 0; i < 5; i++ {
		in := fmt.Sprintf("i%d.ts:I%d:0", i, i)
		out := fmt.Sprintf("o%d.ts:O%d:0", i, i)
		if err := s.AddSymbols(ctx, []*model.Symbol{
			sym(in, fmt.Sprintf("I%d", i), "class", in[:5], false),
			sym(out, fmt.Sprintf("O%d", i), "class", out[:5], false),
		}); err != nil {
			t.Fatalf("AddSymbols: %v", err)
		}
		edges = append(edges,
			&model.Dependency{From: in, To: hub.ID, Type: model.DepCalls},
			&model.Dependency{From: hub.ID, To: out, Type: model.DepCalls},
		)
	}
	if err := s.AddEdges(ctx, edges); err != nil {
		t.Fatalf("AddEdges: %v", err)
	}

	found, err := g.FindBottlenecks(ctx)
	if err != nil {
		t.Fatalf("FindBottlenecks: %v", err)
	}
	// sqrt(5*5) = 5 > 4.
	if len(found) != 1 || found[0].Symbol.ID != hub.ID {
		t.Fatalf("expected Hub as the bottleneck, got %+v", found)
	}
	if found[0].Score != 5 {
		t.Errorf("expected score 5, got %f", found[0].Score)
	}
}

func TestFindDeadCode(t *testing.T) {
	g, s := newTestGraph(t)
	ctx := context.Background()

	dead := sym("/p/util.ts:orphan:9", "orphan", "function", "/p/util.ts", false)
	alive := sym("/p/util.ts:used:3", "used", "function", "/p/util.ts", false)
	exported := sym("/p/util.ts:API:0", "API", "function", "/p/util.ts", true)
	entry := sym("/p/index.ts:boot:0", "boot", "function", "/p/index.ts", false)
	if err := s.AddSymbols(ctx, []*model.Symbol{dead, alive, exported, entry}); err != nil {
		t.Fatalf("AddSymbols: %v", err)
	}
	if err := s.AddEdge(ctx, &model.Dependency{From: exported.ID, To: alive.ID, Type: model.DepCalls}); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := s.SetPageRanks(ctx, map[string]float64{
		dead.ID: 1e-6, alive.ID: 0.4, exported.ID: 0.3, entry.ID: 0.3,
	}); err != nil {
		t.Fatalf("SetPageRanks: %v", err)
	}

	got, err := g.FindDeadCode(ctx)
	if err != nil {
		t.Fatalf("FindDeadCode: %v", err)
	}
	if len(got) != 1 || got[0].ID != dead.ID {
		t.Fatalf("expected only the orphan, got %+v", got)
	}
}

func TestFindSimilar(t *testing.T) {
	g, s := newTestGraph(t)
	ctx := context.Background()

	target := sym("a.ts:getUser:0", "getUser", "function", "a.ts", true)
	close1 := sym("b.ts:getUsers:0", "getUsers", "function", "b.ts", true)
	sameFile := sym("a.ts:saveUser:5", "saveUser", "function", "a.ts", true)
	unrelated := sym("c.ts:Widget:0", "Widget", "class", "c.ts", true)
	if err := s.AddSymbols(ctx, []*model.Symbol{target, close1, sameFile, unrelated}); err != nil {
		t.Fatalf("AddSymbols: %v", err)
	}

	similar, err := g.FindSimilar(ctx, target, 10)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(similar) < 2 {
		t.Fatalf("expected at least 2 similar symbols, got %d", len(similar))
	}
	if similar[0].Symbol.ID != close1.ID {
		t.Errorf("expected getUsers first, got %s", similar[0].Symbol.ID)
	}
	for _, m := range similar {
		if m.Symbol.ID == unrelated.ID {
			t.Errorf("Widget should score below the cutoff: %+v", m)
		}
		if m.Reason == "" {
			t.Errorf("missing reason for %s", m.Symbol.ID)
		}
	}
}

func TestAnalyzeImpactOrdering(t *testing.T) {
	g, s := newTestGraph(t)
	ctx := context.Background()

	// X depends on Y depends on Z, all in one file.
	x := sym("/p/f.ts:X:0", "X", "function", "/p/f.ts", false)
	y := sym("/p/f.ts:Y:4", "Y", "function", "/p/f.ts", false)
	z := sym("/p/f.ts:Z:8", "Z", "function", "/p/f.ts", false)
	if err := s.AddSymbols(ctx, []*model.Symbol{x, y, z}); err != nil {
		t.Fatalf("AddSymbols: %v", err)
	}
	if err := s.AddEdges(ctx, []*model.Dependency{
		{From: x.ID, To: y.ID, Type: model.DepCalls},
		{From: y.ID, To: z.ID, Type: model.DepCalls},
	}); err != nil {
		t.Fatalf("AddEdges: %v", err)
	}

	result, err := g.AnalyzeImpact(ctx, []string{x.ID, y.ID, z.ID})
	if err != nil {
		t.Fatalf("AnalyzeImpact: %v", err)
	}

	pos := map[string]int{}
	for i, id := range result.SuggestedOrder {
		pos[id] = i
	}
	if pos[z.ID] > pos[y.ID] || pos[y.ID] > pos[x.ID] {
		t.Errorf("expected Z before Y before X, got %v", result.SuggestedOrder)
	}
}

func TestAnalyzeImpactRisk(t *testing.T) {
	g, s := newTestGraph(t)
	ctx := context.Background()

	core := sym("/p/index.ts:Core:0", "Core", "class", "/p/index.ts", true)
	caller := sym("/p/app.ts:use:0", "use", "function", "/p/app.ts", false)
	if err := s.AddSymbols(ctx, []*model.Symbol{core, caller}); err != nil {
		t.Fatalf("AddSymbols: %v", err)
	}
	if err := s.AddEdge(ctx, &model.Dependency{From: caller.ID, To: core.ID, Type: model.DepCalls}); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := s.SetPageRanks(ctx, map[string]float64{core.ID: 0.9, caller.ID: 0.1}); err != nil {
		t.Fatalf("SetPageRanks: %v", err)
	}

	result, err := g.AnalyzeImpact(ctx, []string{core.ID})
	if err != nil {
		t.Fatalf("AnalyzeImpact: %v", err)
	}
	if result.Summary.TotalAffected != 2 {
		t.Errorf("expected 2 affected, got %d", result.Summary.TotalAffected)
	}
	if len(result.DirectlyAffected) != 1 || result.DirectlyAffected[0].Symbol.ID != caller.ID {
		t.Errorf("unexpected direct set: %+v", result.DirectlyAffected)
	}
	if result.Summary.AffectedFiles["/p/app.ts"] != 1 {
		t.Errorf("affected files wrong: %+v", result.Summary.AffectedFiles)
	}
	total := 0
	for _, n := range result.Summary.RiskDistribution {
		total += n
	}
	if total != 2 {
		t.Errorf("risk distribution should cover all affected: %+v", result.Summary.RiskDistribution)
	}
}
