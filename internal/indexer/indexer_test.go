package indexer

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/codeatlas/codeatlas/internal/config"
	"github.com/codeatlas/codeatlas/internal/model"
	"github.com/codeatlas/codeatlas/internal/store"
)

func newTestIndexer(t *testing.T) (*Indexer, *store.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewWithClient(rdb, "codeatlas")
	t.Cleanup(func() { s.Close() })

	cfg := config.Default()
	cfg.Git.Enabled = false
	cfg.Watcher.Enabled = false
	return New(s, cfg), s
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestIndexEmptyProject(t *testing.T) {
	ix, s := newTestIndexer(t)
	ctx := context.Background()

	dir := t.TempDir()
	writeFile(t, dir, "README.md", "# not source")

	stats, err := ix.IndexProject(ctx, dir, Options{})
	if err != nil {
		t.Fatalf("IndexProject: %v", err)
	}
	if stats.FilesIndexed != 0 || stats.SymbolsFound != 0 || stats.DependenciesFound != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
	if len(stats.Errors) != 0 {
		t.Errorf("expected no errors, got %+v", stats.Errors)
	}

	meta, err := s.GetProjectMetadata(ctx)
	if err != nil {
		t.Fatalf("GetProjectMetadata: %v", err)
	}
	if meta == nil {
		t.Fatal("metadata should be written even for empty projects")
	}
	want := model.Stats{Files: 0, Symbols: 0, Edges: 0}
	if meta.Stats != want {
		t.Errorf("expected %+v, got %+v", want, meta.Stats)
	}
}

func TestIndexTwoFileDependency(t *testing.T) {
	ix, s := newTestIndexer(t)
	ctx := context.Background()

	dir := t.TempDir()
	aPath := writeFile(t, dir, "a.ts", "export class A {}\n")
	writeFile(t, dir, "b.ts", "import { A } from \"./a\";\nclass B extends A {}\n")

	stats, err := ix.IndexProject(ctx, dir, Options{})
	if err != nil {
		t.Fatalf("IndexProject: %v", err)
	}
	if stats.FilesIndexed != 2 {
		t.Fatalf("expected 2 files, got %d", stats.FilesIndexed)
	}

	aID := aPath + ":A:0"
	aSym, err := s.GetSymbol(ctx, aID)
	if err != nil {
		t.Fatalf("GetSymbol: %v", err)
	}
	if aSym == nil {
		t.Fatalf("expected symbol %s", aID)
	}

	// Ranked search puts the depended-on class first.
	matches, err := s.WildcardSearch(ctx, "A", store.SearchFilter{})
	if err != nil {
		t.Fatalf("WildcardSearch: %v", err)
	}
	if len(matches) == 0 || matches[0].Name != "A" {
		t.Errorf("expected A first, got %+v", matches)
	}

	// B extends A across files.
	dependents, err := s.DependentsOf(ctx, aID)
	if err != nil {
		t.Fatalf("DependentsOf: %v", err)
	}
	foundExtends := false
	for _, dep := range dependents {
		edge, err := s.GetEdge(ctx, dep, aID)
		if err != nil {
			t.Fatalf("GetEdge: %v", err)
		}
		if edge != nil && edge.Type == model.DepExtends {
			foundExtends = true
		}
	}
	if !foundExtends {
		t.Errorf("expected an extends edge onto %s, dependents: %v", aID, dependents)
	}
}

func TestIndexDeletion(t *testing.T) {
	ix, s := newTestIndexer(t)
	ctx := context.Background()

	dir := t.TempDir()
	aPath := writeFile(t, dir, "a.ts", "export class A {}\nexport function helper() {}\n")
	writeFile(t, dir, "b.ts", "import { A } from \"./a\";\nexport class B extends A {}\n")

	if _, err := ix.IndexProject(ctx, dir, Options{}); err != nil {
		t.Fatalf("first index: %v", err)
	}
	before, err := s.SymbolsByFile(ctx, aPath)
	if err != nil || len(before) == 0 {
		t.Fatalf("expected symbols in a.ts before deletion, err=%v", err)
	}
	aID := aPath + ":A:0"

	if err := os.Remove(aPath); err != nil {
		t.Fatalf("remove: %v", err)
	}
	stats, err := ix.IndexProject(ctx, dir, Options{Incremental: true})
	if err != nil {
		t.Fatalf("incremental index: %v", err)
	}
	if stats.FilesDeleted != 1 {
		t.Errorf("expected 1 deletion, got %d", stats.FilesDeleted)
	}

	after, err := s.SymbolsByFile(ctx, aPath)
	if err != nil {
		t.Fatalf("SymbolsByFile: %v", err)
	}
	if len(after) != 0 {
		t.Errorf("expected no symbols for deleted file, got %d", len(after))
	}

	// No stored edge may reference the deleted IDs.
	edges, err := s.AllEdges(ctx)
	if err != nil {
		t.Fatalf("AllEdges: %v", err)
	}
	for _, e := range edges {
		if e.From == aID || e.To == aID {
			t.Errorf("edge still references deleted symbol: %+v", e)
		}
	}
	if rec, _ := s.GetFileRecord(ctx, aPath); rec != nil {
		t.Errorf("tracking record survived deletion: %+v", rec)
	}
}

func TestIndexIncrementalNoop(t *testing.T) {
	ix, s := newTestIndexer(t)
	ctx := context.Background()

	dir := t.TempDir()
	writeFile(t, dir, "a.ts", "export class A {}\nexport function f() {}\n")

	first, err := ix.IndexProject(ctx, dir, Options{})
	if err != nil {
		t.Fatalf("first index: %v", err)
	}
	if first.SymbolsFound == 0 {
		t.Fatal("first index found nothing")
	}
	ranksBefore, err := s.AllPageRanks(ctx)
	if err != nil {
		t.Fatalf("AllPageRanks: %v", err)
	}
	symbolsBefore, err := s.AllSymbolIDs(ctx)
	if err != nil {
		t.Fatalf("AllSymbolIDs: %v", err)
	}

	second, err := ix.IndexProject(ctx, dir, Options{Incremental: true})
	if err != nil {
		t.Fatalf("second index: %v", err)
	}
	if !second.Incremental {
		t.Error("second run should be incremental")
	}
	if second.FilesIndexed != 0 {
		t.Errorf("no files changed, got %d reprocessed", second.FilesIndexed)
	}

	symbolsAfter, err := s.AllSymbolIDs(ctx)
	if err != nil {
		t.Fatalf("AllSymbolIDs after: %v", err)
	}
	if len(symbolsAfter) != len(symbolsBefore) {
		t.Errorf("symbol set changed on a no-op reindex: %d vs %d", len(symbolsBefore), len(symbolsAfter))
	}
	ranksAfter, err := s.AllPageRanks(ctx)
	if err != nil {
		t.Fatalf("AllPageRanks after: %v", err)
	}
	for id, r := range ranksBefore {
		if math.Abs(ranksAfter[id]-r) > 1e-9 {
			t.Errorf("rank for %s drifted on no-op reindex", id)
		}
	}
}

func TestIndexLockContention(t *testing.T) {
	ix, s := newTestIndexer(t)
	ctx := context.Background()

	dir := t.TempDir()
	writeFile(t, dir, "a.ts", "export class A {}\n")

	s.SetProjectContext(dir)
	ok, err := s.AcquireLock(ctx, "indexing", time.Minute)
	if err != nil || !ok {
		t.Fatalf("setup lock: ok=%v err=%v", ok, err)
	}

	if _, err := ix.IndexProject(ctx, dir, Options{}); err == nil {
		t.Fatal("expected IndexProject to refuse while the lock is held")
	}

	// Released: indexing works again.
	if err := s.ReleaseLock(ctx, "indexing"); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
	if _, err := ix.IndexProject(ctx, dir, Options{}); err != nil {
		t.Fatalf("IndexProject after release: %v", err)
	}
	// And the indexer released its own lock on the way out.
	ok, err = s.AcquireLock(ctx, "indexing", time.Minute)
	if err != nil || !ok {
		t.Errorf("lock not released after indexing: ok=%v err=%v", ok, err)
	}
}

func TestIndexMalformedFileNonFatal(t *testing.T) {
	ix, _ := newTestIndexer(t)
	ctx := context.Background()

	dir := t.TempDir()
	writeFile(t, dir, "ok.ts", "export class Fine {}\n")
	writeFile(t, dir, "broken.ts", "export class { { { nonsense\n")

	stats, err := ix.IndexProject(ctx, dir, Options{})
	if err != nil {
		t.Fatalf("IndexProject should tolerate per-file failures: %v", err)
	}
	if stats.SymbolsFound == 0 {
		t.Error("healthy files should still be indexed")
	}
}

func TestReindexFileAndRemoveFile(t *testing.T) {
	ix, s := newTestIndexer(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := writeFile(t, dir, "a.ts", "export class A {}\n")
	if _, err := ix.IndexProject(ctx, dir, Options{}); err != nil {
		t.Fatalf("IndexProject: %v", err)
	}

	// Unchanged content: reindex is a no-op.
	if err := ix.ReindexFile(ctx, path); err != nil {
		t.Fatalf("ReindexFile: %v", err)
	}

	// Changed content: symbols are replaced wholesale.
	writeFile(t, dir, "a.ts", "export class Renamed {}\n")
	if err := ix.ReindexFile(ctx, path); err != nil {
		t.Fatalf("ReindexFile changed: %v", err)
	}
	syms, err := s.SymbolsByFile(ctx, path)
	if err != nil {
		t.Fatalf("SymbolsByFile: %v", err)
	}
	if len(syms) != 1 || syms[0].Name != "Renamed" {
		t.Errorf("expected only Renamed, got %+v", syms)
	}

	if err := ix.RemoveFile(ctx, path); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
	syms, err = s.SymbolsByFile(ctx, path)
	if err != nil {
		t.Fatalf("SymbolsByFile after remove: %v", err)
	}
	if len(syms) != 0 {
		t.Errorf("expected no symbols after removal, got %d", len(syms))
	}
}
