// Package extract orchestrates the language walkers over batches of files,
// normalises their output into canonical symbol IDs and ID-based parent
// links, and reports progress per batch.
package extract

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/codeatlas/codeatlas/internal/lang"
	"github.com/codeatlas/codeatlas/internal/model"
	"github.com/codeatlas/codeatlas/internal/parser"
)

// Extractor processes files concurrently in bounded batches.
type Extractor struct {
	MaxConcurrency int
	BatchSize      int
	// OnProgress, when set, is called after every completed batch.
	OnProgress func(model.Progress)
}

// New returns an extractor with the default bounds.
func New() *Extractor {
	return &Extractor{MaxConcurrency: 8, BatchSize: 50}
}

// Output aggregates one batch run.
type Output struct {
	Symbols      []*model.Symbol
	Dependencies []*model.Dependency
	Errors       []model.FileError
}

// fileResult is the per-file unit produced by the parallel stage.
type fileResult struct {
	path    string
	symbols []*model.Symbol
	deps    []*model.Dependency
	err     error
}

// ExtractBatch routes each file to its language walker, normalises symbols
// and dependencies, and deduplicates across the whole batch. Per-file
// failures are collected, never raised.
func (e *Extractor) ExtractBatch(ctx context.Context, files []string) (*Output, error) {
	out := &Output{}
	seenSymbols := make(map[string]bool)
	seenEdges := make(map[string]bool)

	batchSize := e.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	workers := e.MaxConcurrency
	if workers <= 0 {
		workers = 8
	}

	processed := 0
	for start := 0; start < len(files); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + batchSize
		if end > len(files) {
			end = len(files)
		}
		batch := files[start:end]
		results := make([]*fileResult, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, path := range batch {
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				results[i] = processFile(path)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for _, r := range results {
			if r == nil {
				continue
			}
			if r.err != nil {
				slog.Warn("extract.file.err", "path", r.path, "err", r.err)
				out.Errors = append(out.Errors, model.FileError{File: r.path, Err: r.err.Error()})
				continue
			}
			for _, sym := range r.symbols {
				if !seenSymbols[sym.ID] {
					seenSymbols[sym.ID] = true
					out.Symbols = append(out.Symbols, sym)
				}
			}
			for _, dep := range r.deps {
				key := dep.EdgeKey()
				if !seenEdges[key] {
					seenEdges[key] = true
					out.Dependencies = append(out.Dependencies, dep)
				}
			}
		}

		processed = end
		if e.OnProgress != nil {
			e.OnProgress(model.Progress{
				FilesProcessed:    processed,
				TotalFiles:        len(files),
				SymbolsFound:      len(out.Symbols),
				DependenciesFound: len(out.Dependencies),
				Errors:            len(out.Errors),
			})
		}
	}
	return out, nil
}

// processFile parses one file and normalises the walker output. Unknown
// extensions yield an empty result, not an error.
func processFile(path string) *fileResult {
	r := &fileResult{path: path}

	l, ok := lang.ForExtension(filepath.Ext(path))
	if !ok {
		return r
	}
	source, err := os.ReadFile(path)
	if err != nil {
		r.err = err
		return r
	}
	tree, err := parser.Parse(l, source)
	if err != nil {
		r.err = err
		return r
	}
	defer tree.Close()

	res := lang.Extract(l, path, tree.RootNode(), source)
	r.symbols = normalizeSymbols(res.Symbols)
	r.deps = normalizeDeps(path, res.Dependencies, r.symbols)
	return r
}

// normalizeSymbols resolves name-based parent references to IDs and
// populates children. When several symbols share the parent's name, the
// nearest declaration above the child wins.
func normalizeSymbols(symbols []*model.Symbol) []*model.Symbol {
	byName := make(map[string][]*model.Symbol)
	for _, sym := range symbols {
		byName[sym.Name] = append(byName[sym.Name], sym)
	}
	for _, group := range byName {
		sort.Slice(group, func(i, j int) bool {
			return group[i].Location.Start.Line < group[j].Location.Start.Line
		})
	}

	for _, sym := range symbols {
		if sym.Parent == "" {
			continue
		}
		parent := nearestAbove(byName[sym.Parent], sym)
		if parent == nil || parent.ID == sym.ID {
			sym.Parent = ""
			continue
		}
		sym.Parent = parent.ID
		parent.Children = append(parent.Children, sym.ID)
	}
	return symbols
}

// nearestAbove picks the candidate declared closest above the child's line.
func nearestAbove(candidates []*model.Symbol, child *model.Symbol) *model.Symbol {
	var best *model.Symbol
	for _, c := range candidates {
		if c.ID == child.ID {
			continue
		}
		if c.Location.Start.Line <= child.Location.Start.Line {
			best = c
		}
	}
	if best == nil && len(candidates) > 0 && candidates[0].ID != child.ID {
		best = candidates[0]
	}
	return best
}

// normalizeDeps keeps import edges verbatim (From stays a file path) and
// rewrites bare-name endpoints of every other edge: From becomes the local
// symbol's ID when one matches, or a synthesised file-scoped ID; To is
// rewritten only when it names a local symbol.
func normalizeDeps(path string, deps []*model.Dependency, symbols []*model.Symbol) []*model.Dependency {
	byName := make(map[string]*model.Symbol)
	for _, sym := range symbols {
		if _, ok := byName[sym.Name]; !ok {
			byName[sym.Name] = sym
		}
	}

	normalized := make([]*model.Dependency, 0, len(deps))
	for _, dep := range deps {
		if dep.Type == model.DepImports {
			normalized = append(normalized, dep)
			continue
		}
		if sym, ok := byName[dep.From]; ok {
			dep.From = sym.ID
		} else {
			dep.From = model.SymbolID(path, dep.From, 0)
		}
		if sym, ok := byName[dep.To]; ok {
			dep.To = sym.ID
		}
		normalized = append(normalized, dep)
	}
	return normalized
}
