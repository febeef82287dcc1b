package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/codeatlas/codeatlas/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewWithClient(rdb, "codeatlas")
	s.SetProjectContext("/tmp/proj")
	t.Cleanup(func() { s.Close() })
	return s
}

func sym(id, name, kind, file string, line int, exported bool) *model.Symbol {
	return &model.Symbol{
		ID:       id,
		Name:     name,
		Kind:     model.Kind(kind),
		FilePath: file,
		Location: model.Location{
			Start: model.Point{Line: line, Column: 0},
			End:   model.Point{Line: line + 2, Column: 1},
		},
		Exported: exported,
		Language: "typescript",
	}
}

func TestSanitizeProject(t *testing.T) {
	got := SanitizeProject("/home/user/my-repo")
	want := "_home_user_my_repo"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestSymbolRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := sym("a.ts:Foo:0", "Foo", "class", "a.ts", 1, true)
	in.Signature = "class Foo extends Bar"
	in.Docstring = "Does foo things."
	in.Children = []string{"a.ts:bar:3"}
	if err := s.AddSymbols(ctx, []*model.Symbol{in}); err != nil {
		t.Fatalf("AddSymbols: %v", err)
	}

	out, err := s.GetSymbol(ctx, "a.ts:Foo:0")
	if err != nil {
		t.Fatalf("GetSymbol: %v", err)
	}
	if out == nil {
		t.Fatal("expected symbol, got nil")
	}
	if out.Name != "Foo" || out.Kind != model.KindClass || !out.Exported {
		t.Errorf("unexpected fields: %+v", out)
	}
	if out.Signature != "class Foo extends Bar" {
		t.Errorf("unexpected signature: %q", out.Signature)
	}
	if out.Location.Start.Line != 1 || out.Location.End.Line != 3 {
		t.Errorf("unexpected location: %+v", out.Location)
	}
	if len(out.Children) != 1 || out.Children[0] != "a.ts:bar:3" {
		t.Errorf("unexpected children: %v", out.Children)
	}

	missing, err := s.GetSymbol(ctx, "a.ts:Nope:9")
	if err != nil {
		t.Fatalf("GetSymbol missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown id, got %+v", missing)
	}
}

func TestSymbolIndexes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	symbols := []*model.Symbol{
		sym("a.ts:Foo:0", "Foo", "class", "a.ts", 1, true),
		sym("a.ts:bar:5", "bar", "function", "a.ts", 6, false),
		sym("b.ts:Foo:0", "Foo", "class", "b.ts", 1, true),
	}
	if err := s.AddSymbols(ctx, symbols); err != nil {
		t.Fatalf("AddSymbols: %v", err)
	}

	byFile, err := s.SymbolsByFile(ctx, "a.ts")
	if err != nil {
		t.Fatalf("SymbolsByFile: %v", err)
	}
	if len(byFile) != 2 {
		t.Errorf("expected 2 symbols in a.ts, got %d", len(byFile))
	}

	byName, err := s.SymbolsByName(ctx, "Foo")
	if err != nil {
		t.Fatalf("SymbolsByName: %v", err)
	}
	if len(byName) != 2 {
		t.Errorf("expected 2 symbols named Foo, got %d", len(byName))
	}

	byKind, err := s.SymbolsByKind(ctx, model.KindFunction)
	if err != nil {
		t.Fatalf("SymbolsByKind: %v", err)
	}
	if len(byKind) != 1 || byKind[0].ID != "a.ts:bar:5" {
		t.Errorf("unexpected kind index result: %v", byKind)
	}

	ids, err := s.AllSymbolIDs(ctx)
	if err != nil {
		t.Fatalf("AllSymbolIDs: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("expected 3 ids, got %d", len(ids))
	}
}

func TestEdgeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	loc := &model.Location{Start: model.Point{Line: 2}, End: model.Point{Line: 2, Column: 10}}
	dep := &model.Dependency{From: "b.ts:B:0", To: "a.ts:A:0", Type: model.DepExtends, Location: loc}
	if err := s.AddEdge(ctx, dep); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	got, err := s.GetEdge(ctx, "b.ts:B:0", "a.ts:A:0")
	if err != nil {
		t.Fatalf("GetEdge: %v", err)
	}
	if got == nil || got.Type != model.DepExtends {
		t.Fatalf("unexpected edge: %+v", got)
	}
	if got.Location == nil || got.Location.Start.Line != 2 {
		t.Errorf("unexpected location: %+v", got.Location)
	}

	fwd, err := s.DependenciesOf(ctx, "b.ts:B:0")
	if err != nil {
		t.Fatalf("DependenciesOf: %v", err)
	}
	if len(fwd) != 1 || fwd[0] != "a.ts:A:0" {
		t.Errorf("unexpected deps:from: %v", fwd)
	}
	rev, err := s.DependentsOf(ctx, "a.ts:A:0")
	if err != nil {
		t.Fatalf("DependentsOf: %v", err)
	}
	if len(rev) != 1 || rev[0] != "b.ts:B:0" {
		t.Errorf("unexpected deps:to: %v", rev)
	}
}

func TestRemoveSymbolClosure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	symbols := []*model.Symbol{
		sym("a.ts:A:0", "A", "class", "a.ts", 1, true),
		sym("b.ts:B:0", "B", "class", "b.ts", 1, true),
		sym("c.ts:C:0", "C", "class", "c.ts", 1, true),
	}
	if err := s.AddSymbols(ctx, symbols); err != nil {
		t.Fatalf("AddSymbols: %v", err)
	}
	edges := []*model.Dependency{
		{From: "b.ts:B:0", To: "a.ts:A:0", Type: model.DepExtends},
		{From: "a.ts:A:0", To: "c.ts:C:0", Type: model.DepCalls},
	}
	if err := s.AddEdges(ctx, edges); err != nil {
		t.Fatalf("AddEdges: %v", err)
	}
	if err := s.SetPageRanks(ctx, map[string]float64{
		"a.ts:A:0": 0.5, "b.ts:B:0": 0.25, "c.ts:C:0": 0.25,
	}); err != nil {
		t.Fatalf("SetPageRanks: %v", err)
	}

	if err := s.RemoveSymbol(ctx, "a.ts:A:0"); err != nil {
		t.Fatalf("RemoveSymbol: %v", err)
	}

	if got, _ := s.GetSymbol(ctx, "a.ts:A:0"); got != nil {
		t.Errorf("symbol still present after removal")
	}
	if deps, _ := s.DependenciesOf(ctx, "a.ts:A:0"); len(deps) != 0 {
		t.Errorf("deps:from survived removal: %v", deps)
	}
	if deps, _ := s.DependentsOf(ctx, "a.ts:A:0"); len(deps) != 0 {
		t.Errorf("deps:to survived removal: %v", deps)
	}
	// Reverse memberships on neighbours are gone too.
	if fwd, _ := s.DependenciesOf(ctx, "b.ts:B:0"); len(fwd) != 0 {
		t.Errorf("b.ts:B:0 still points at removed symbol: %v", fwd)
	}
	if rev, _ := s.DependentsOf(ctx, "c.ts:C:0"); len(rev) != 0 {
		t.Errorf("c.ts:C:0 still referenced by removed symbol: %v", rev)
	}
	if e, _ := s.GetEdge(ctx, "b.ts:B:0", "a.ts:A:0"); e != nil {
		t.Errorf("edge record survived removal")
	}
	if pr, _ := s.GetPageRank(ctx, "a.ts:A:0"); pr != 0 {
		t.Errorf("pagerank entry survived removal: %f", pr)
	}
	if byName, _ := s.SymbolsByName(ctx, "A"); len(byName) != 0 {
		t.Errorf("name index survived removal: %v", byName)
	}
}

func TestRemoveFileSymbols(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	symbols := []*model.Symbol{
		sym("a.ts:A:0", "A", "class", "a.ts", 1, true),
		sym("a.ts:helper:5", "helper", "function", "a.ts", 6, false),
	}
	if err := s.AddSymbols(ctx, symbols); err != nil {
		t.Fatalf("AddSymbols: %v", err)
	}
	// File-level import edge, as the indexer stores them.
	if err := s.AddEdge(ctx, &model.Dependency{From: "a.ts", To: "./b", Type: model.DepImports}); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	if err := s.RemoveFileSymbols(ctx, "a.ts"); err != nil {
		t.Fatalf("RemoveFileSymbols: %v", err)
	}
	byFile, err := s.SymbolsByFile(ctx, "a.ts")
	if err != nil {
		t.Fatalf("SymbolsByFile: %v", err)
	}
	if len(byFile) != 0 {
		t.Errorf("expected empty file, got %d symbols", len(byFile))
	}
	if deps, _ := s.DependenciesOf(ctx, "a.ts"); len(deps) != 0 {
		t.Errorf("file import edges survived: %v", deps)
	}
}

func TestSetPageRanks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	symbols := []*model.Symbol{
		sym("a.ts:A:0", "A", "class", "a.ts", 1, true),
		sym("b.ts:B:0", "B", "class", "b.ts", 1, true),
		sym("c.ts:C:0", "C", "function", "c.ts", 1, false),
	}
	if err := s.AddSymbols(ctx, symbols); err != nil {
		t.Fatalf("AddSymbols: %v", err)
	}

	ranks := map[string]float64{
		"a.ts:A:0": 0.6,
		"b.ts:B:0": 0.3,
		"c.ts:C:0": 0.1,
	}
	if err := s.SetPageRanks(ctx, ranks); err != nil {
		t.Fatalf("SetPageRanks: %v", err)
	}

	sum := 0.0
	for id, want := range ranks {
		got, err := s.GetPageRank(ctx, id)
		if err != nil {
			t.Fatalf("GetPageRank: %v", err)
		}
		if got != want {
			t.Errorf("score mismatch for %s: want %f got %f", id, want, got)
		}
		sum += got

		// The sorted-set score and the symbol hash mirror must agree.
		symRec, err := s.GetSymbol(ctx, id)
		if err != nil {
			t.Fatalf("GetSymbol: %v", err)
		}
		if symRec.PageRank != want {
			t.Errorf("mirror mismatch for %s: want %f got %f", id, want, symRec.PageRank)
		}
	}
	if diff := sum - 1.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("ranks do not sum to 1: %f", sum)
	}

	top, err := s.TopSymbols(ctx, 3)
	if err != nil {
		t.Fatalf("TopSymbols: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("expected 3 ranked symbols, got %d", len(top))
	}
	if top[0].Symbol.ID != "a.ts:A:0" || top[2].Symbol.ID != "c.ts:C:0" {
		t.Errorf("unexpected rank order: %s, %s, %s",
			top[0].Symbol.ID, top[1].Symbol.ID, top[2].Symbol.ID)
	}

	// A rewrite replaces the old set wholesale.
	if err := s.SetPageRanks(ctx, map[string]float64{"a.ts:A:0": 1.0}); err != nil {
		t.Fatalf("SetPageRanks rewrite: %v", err)
	}
	if pr, _ := s.GetPageRank(ctx, "b.ts:B:0"); pr != 0 {
		t.Errorf("stale rank survived rewrite: %f", pr)
	}
}

func TestLocks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, "indexing", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if !ok {
		t.Fatal("expected first acquisition to succeed")
	}

	ok, err = s.AcquireLock(ctx, "indexing", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock held: %v", err)
	}
	if ok {
		t.Error("expected second acquisition to fail while held")
	}

	if err := s.ReleaseLock(ctx, "indexing"); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
	ok, err = s.AcquireLock(ctx, "indexing", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock after release: %v", err)
	}
	if !ok {
		t.Error("expected acquisition to succeed after release")
	}
}

func TestProjectContextIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddSymbols(ctx, []*model.Symbol{sym("a.ts:A:0", "A", "class", "a.ts", 1, true)}); err != nil {
		t.Fatalf("AddSymbols: %v", err)
	}

	s.SetProjectContext("/tmp/other")
	if got, _ := s.GetSymbol(ctx, "a.ts:A:0"); got != nil {
		t.Error("symbol leaked across project contexts")
	}

	s.SetProjectContext("/tmp/proj")
	if got, _ := s.GetSymbol(ctx, "a.ts:A:0"); got == nil {
		t.Error("symbol lost after switching back")
	}
}

func TestFileRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := model.FileRecord{MTime: 1234567890, Hash: "abc123"}
	if err := s.SetFileRecord(ctx, "a.ts", rec); err != nil {
		t.Fatalf("SetFileRecord: %v", err)
	}
	got, err := s.GetFileRecord(ctx, "a.ts")
	if err != nil {
		t.Fatalf("GetFileRecord: %v", err)
	}
	if got == nil || got.MTime != rec.MTime || got.Hash != rec.Hash {
		t.Errorf("unexpected record: %+v", got)
	}

	tracked, err := s.TrackedFiles(ctx)
	if err != nil {
		t.Fatalf("TrackedFiles: %v", err)
	}
	if len(tracked) != 1 {
		t.Errorf("expected 1 tracked file, got %d", len(tracked))
	}

	if err := s.RemoveFileRecord(ctx, "a.ts"); err != nil {
		t.Fatalf("RemoveFileRecord: %v", err)
	}
	if got, _ := s.GetFileRecord(ctx, "a.ts"); got != nil {
		t.Errorf("record survived removal: %+v", got)
	}
}

func TestProjectMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if meta, err := s.GetProjectMetadata(ctx); err != nil || meta != nil {
		t.Fatalf("expected nil metadata before indexing, got %+v err=%v", meta, err)
	}

	in := &model.ProjectMetadata{
		Root:      "/tmp/proj",
		IndexedAt: time.Now().Truncate(time.Second),
		Stats:     model.Stats{Files: 3, Symbols: 12, Edges: 7},
	}
	if err := s.SetProjectMetadata(ctx, in); err != nil {
		t.Fatalf("SetProjectMetadata: %v", err)
	}
	out, err := s.GetProjectMetadata(ctx)
	if err != nil {
		t.Fatalf("GetProjectMetadata: %v", err)
	}
	if out.Root != in.Root || out.Stats != in.Stats {
		t.Errorf("metadata mismatch: %+v", out)
	}
}

func TestSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	symbols := []*model.Symbol{
		sym("a.ts:getUser:0", "getUser", "function", "a.ts", 1, true),
		sym("a.ts:getOrder:5", "getOrder", "function", "a.ts", 6, true),
		sym("b.ts:UserService:0", "UserService", "class", "b.ts", 1, true),
		sym("b.ts:internal:9", "internal", "function", "b.ts", 10, false),
	}
	if err := s.AddSymbols(ctx, symbols); err != nil {
		t.Fatalf("AddSymbols: %v", err)
	}

	got, err := s.WildcardSearch(ctx, "get*", SearchFilter{})
	if err != nil {
		t.Fatalf("WildcardSearch: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 matches for get*, got %d", len(got))
	}

	got, err = s.WildcardSearch(ctx, "User", SearchFilter{})
	if err != nil {
		t.Fatalf("WildcardSearch substring: %v", err)
	}
	if len(got) != 2 { // getUser + UserService
		t.Errorf("expected 2 substring matches, got %d", len(got))
	}

	got, err = s.WildcardSearch(ctx, "*", SearchFilter{ExportedOnly: true})
	if err != nil {
		t.Fatalf("WildcardSearch exported: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 exported symbols, got %d", len(got))
	}

	got, err = s.FuzzySearch(ctx, "userservice", SearchFilter{})
	if err != nil {
		t.Fatalf("FuzzySearch: %v", err)
	}
	if len(got) != 1 || got[0].Name != "UserService" {
		t.Errorf("unexpected fuzzy result: %v", got)
	}

	got, err = s.WildcardSearch(ctx, "*", SearchFilter{Kind: model.KindClass})
	if err != nil {
		t.Fatalf("WildcardSearch kind: %v", err)
	}
	if len(got) != 1 || got[0].Name != "UserService" {
		t.Errorf("unexpected kind-filtered result: %v", got)
	}
}
