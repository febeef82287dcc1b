// Package indexer drives the whole pipeline: scan, extract, git metadata,
// symbol replacement, edge resolution, file tracking, PageRank and project
// metadata, all under the per-project advisory lock.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/codeatlas/codeatlas/internal/config"
	"github.com/codeatlas/codeatlas/internal/extract"
	"github.com/codeatlas/codeatlas/internal/gitmeta"
	"github.com/codeatlas/codeatlas/internal/graph"
	"github.com/codeatlas/codeatlas/internal/model"
	"github.com/codeatlas/codeatlas/internal/resolve"
	"github.com/codeatlas/codeatlas/internal/scanner"
	"github.com/codeatlas/codeatlas/internal/store"
)

// lockTTL keeps a crashed writer from deadlocking the store forever.
const lockTTL = 10 * time.Minute

// Options selects the indexing mode.
type Options struct {
	Force       bool
	Incremental bool
}

// Indexer owns the per-run orchestration. OnProgress, when set, receives the
// extractor's batch progress verbatim. OnFullIndex fires after a successful
// non-incremental run (the daemon uses it to start the watcher).
type Indexer struct {
	Store       *store.Store
	Config      *config.Config
	OnProgress  func(model.Progress)
	OnFullIndex func(root string)
}

func New(s *store.Store, cfg *config.Config) *Indexer {
	return &Indexer{Store: s, Config: cfg}
}

// IndexProject runs the full pipeline for one project root. Refuses when
// another writer holds the project lock; the lock is released on every exit
// path.
func (ix *Indexer) IndexProject(ctx context.Context, root string, opts Options) (*model.IndexStats, error) {
	started := time.Now()
	ix.Store.SetProjectContext(root)

	ok, err := ix.Store.AcquireLock(ctx, "indexing", lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("project %s is already being indexed (lock held)", root)
	}
	defer func() {
		if relErr := ix.Store.ReleaseLock(context.WithoutCancel(ctx), "indexing"); relErr != nil {
			slog.Warn("indexer.unlock.err", "err", relErr)
		}
	}()

	tracked, err := ix.Store.TrackedFiles(ctx)
	if err != nil {
		return nil, err
	}
	incremental := opts.Incremental && !opts.Force && len(tracked) > 0
	slog.Info("indexer.start", "root", root, "incremental", incremental, "tracked", len(tracked))

	// The tracking map always feeds the scan so deletions are detected even
	// on forced runs; the mode only decides which files get reprocessed.
	scanTracked := tracked
	if len(scanTracked) == 0 {
		scanTracked = nil
	}
	scanRes, err := scanner.Scan(ctx, root, scanner.Options{
		Include:     ix.Config.Indexer.Include,
		Exclude:     ix.Config.Indexer.Exclude,
		MaxFileSize: ix.Config.Indexer.MaxFileSize,
	}, scanTracked)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	// Deletions first: all symbols of each deleted file plus its tracking
	// record go away before anything new is written.
	for _, deleted := range scanRes.Deleted {
		if err := ix.Store.RemoveFileSymbols(ctx, deleted); err != nil {
			return nil, err
		}
		if err := ix.Store.RemoveFileRecord(ctx, deleted); err != nil {
			return nil, err
		}
		slog.Info("indexer.deleted", "file", deleted)
	}

	filesToProcess := scanRes.Changed
	if !incremental {
		filesToProcess = scanRes.Files
	}
	ex := extract.New()
	ex.OnProgress = ix.OnProgress
	out, err := ex.ExtractBatch(ctx, filesToProcess)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	ix.attachGitMetadata(ctx, root, out, scanRes.Hashes)

	// Symbol replacement is wholesale per file: old symbols out, new in.
	// Skipped only when the store has no prior state to replace.
	if len(tracked) > 0 {
		for _, path := range filesToProcess {
			if err := ix.Store.RemoveFileSymbols(ctx, path); err != nil {
				return nil, err
			}
		}
	}
	if err := ix.Store.AddSymbols(ctx, out.Symbols); err != nil {
		return nil, err
	}

	if err := ix.persistEdges(ctx, out); err != nil {
		return nil, err
	}

	for _, path := range filesToProcess {
		rec := model.FileRecord{MTime: scanRes.MTimes[path], Hash: scanRes.Hashes[path]}
		// Forced runs reprocess unchanged files the scanner never hashed.
		if rec.Hash == "" {
			if h, hErr := scanner.HashFile(path); hErr == nil {
				rec.Hash = h
			}
		}
		if rec.MTime == 0 {
			if info, sErr := os.Stat(path); sErr == nil {
				rec.MTime = info.ModTime().UnixNano()
			}
		}
		if err := ix.Store.SetFileRecord(ctx, path, rec); err != nil {
			return nil, err
		}
	}

	g := graph.New(ix.Store, graph.Config{
		Damping:           ix.Config.PageRank.Damping,
		Iterations:        ix.Config.PageRank.Iterations,
		Tolerance:         ix.Config.PageRank.Tolerance,
		CriticalThreshold: ix.Config.Impact.CriticalThreshold,
		HighThreshold:     ix.Config.Impact.HighThreshold,
		MediumThreshold:   ix.Config.Impact.MediumThreshold,
	})
	if _, err := g.ComputePageRank(ctx); err != nil {
		return nil, fmt.Errorf("pagerank: %w", err)
	}

	symbolCount, err := ix.Store.CountSymbols(ctx)
	if err != nil {
		return nil, err
	}
	edgeCount, err := ix.Store.CountEdges(ctx)
	if err != nil {
		return nil, err
	}
	meta := &model.ProjectMetadata{
		Root:      root,
		IndexedAt: time.Now(),
		Stats: model.Stats{
			Files:   len(scanRes.Files),
			Symbols: symbolCount,
			Edges:   edgeCount,
		},
	}
	if err := ix.Store.SetProjectMetadata(ctx, meta); err != nil {
		return nil, err
	}

	stats := &model.IndexStats{
		FilesIndexed:      len(filesToProcess),
		SymbolsFound:      len(out.Symbols),
		DependenciesFound: len(out.Dependencies),
		FilesDeleted:      len(scanRes.Deleted),
		Incremental:       incremental,
		Duration:          time.Since(started).String(),
		Errors:            out.Errors,
	}
	if stats.Errors == nil {
		stats.Errors = []model.FileError{}
	}
	slog.Info("indexer.done",
		"files", stats.FilesIndexed,
		"symbols", stats.SymbolsFound,
		"edges", stats.DependenciesFound,
		"errors", len(stats.Errors),
		"elapsed", stats.Duration,
	)

	if ix.Config.Watcher.Enabled && !incremental && ix.OnFullIndex != nil {
		ix.OnFullIndex(root)
	}
	return stats, nil
}

// attachGitMetadata copies the provider's per-file record onto every symbol
// of that file. The provider may return nil (disabled or unavailable);
// indexing proceeds without metadata.
func (ix *Indexer) attachGitMetadata(ctx context.Context, root string, out *extract.Output, hashes map[string]string) {
	if !ix.Config.Git.Enabled {
		return
	}
	provider := gitmeta.New(root, ix.Config.Git)
	perFile := make(map[string]*model.GitMetadata)
	for _, sym := range out.Symbols {
		meta, seen := perFile[sym.FilePath]
		if !seen {
			meta = provider.GetMetadata(ctx, sym.FilePath, hashes[sym.FilePath])
			perFile[sym.FilePath] = meta
		}
		if meta != nil {
			sym.Git = meta
		}
	}
}

// persistEdges stores import edges verbatim (file -> specifier), resolves
// them cross-file, adds intra-file signature edges, and keeps only
// reference edges whose endpoints are stored symbols.
func (ix *Indexer) persistEdges(ctx context.Context, out *extract.Output) error {
	known := make(map[string]bool, len(out.Symbols))
	for _, sym := range out.Symbols {
		known[sym.ID] = true
	}
	exists := func(id string) (bool, error) {
		if known[id] {
			return true, nil
		}
		sym, err := ix.Store.GetSymbol(ctx, id)
		if err != nil {
			return false, err
		}
		if sym != nil {
			known[id] = true
			return true, nil
		}
		return false, nil
	}

	// Imports go in first: the per-pair edge record keeps the last write, so
	// a structural relation (extends, implements) written later wins over a
	// plain import between the same two symbols.
	importingFiles := map[string]bool{}
	for _, dep := range out.Dependencies {
		if dep.Type == model.DepImports {
			if err := ix.Store.AddEdge(ctx, dep); err != nil {
				return err
			}
			importingFiles[dep.From] = true
		}
	}
	files := make([]string, 0, len(importingFiles))
	for file := range importingFiles {
		files = append(files, file)
	}
	sort.Strings(files)

	res := resolve.New(ix.Store)
	crossFile, err := res.ResolveImports(ctx, files)
	if err != nil {
		return err
	}
	if err := ix.Store.AddEdges(ctx, crossFile); err != nil {
		return err
	}

	for _, dep := range out.Dependencies {
		if dep.Type == model.DepImports {
			continue
		}
		fromOK, err := exists(dep.From)
		if err != nil {
			return err
		}
		if !fromOK {
			continue
		}
		// A bare To (no ID separator) names a symbol in another file, e.g.
		// "class B extends A" where A is imported. Resolve by name,
		// preferring exported candidates.
		if !strings.Contains(dep.To, ":") {
			resolved, rErr := ix.resolveByName(ctx, dep.To)
			if rErr != nil {
				return rErr
			}
			if resolved == "" {
				continue // unresolved reference, dropped quietly
			}
			dep.To = resolved
		}
		toOK, err := exists(dep.To)
		if err != nil {
			return err
		}
		if !toOK {
			continue
		}
		if err := ix.Store.AddEdge(ctx, dep); err != nil {
			return err
		}
	}

	intra := resolve.IntraFileEdges(out.Symbols)
	return ix.Store.AddEdges(ctx, intra)
}

// resolveByName finds the stored symbol a bare reference points at,
// preferring exported candidates, deterministic by ID.
func (ix *Indexer) resolveByName(ctx context.Context, name string) (string, error) {
	candidates, err := ix.Store.SymbolsByName(ctx, name)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Exported != candidates[j].Exported {
			return candidates[i].Exported
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0].ID, nil
}
