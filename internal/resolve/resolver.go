// Package resolve turns raw parser output into symbol-level edges:
// cross-file import resolution, intra-file textual matching on signatures,
// and the transitive dependency/dependent helpers built on the stored sets.
package resolve

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/codeatlas/codeatlas/internal/lang"
	"github.com/codeatlas/codeatlas/internal/model"
	"github.com/codeatlas/codeatlas/internal/store"
)

// Resolver reads and writes through the store; it holds no graph state.
type Resolver struct {
	store *store.Store
}

func New(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// ResolveImports reads each importing file's stored file -> specifier edges
// and maps those whose specifier resolves to an indexed file into symbol ->
// symbol edges: from a representative symbol of the importing file (its
// first top-level declaration) to each exported top-level symbol of the
// target. Unresolved specifiers keep their file -> specifier form for later
// queries; no symbol ID is ever fabricated.
func (r *Resolver) ResolveImports(ctx context.Context, files []string) ([]*model.Dependency, error) {
	var resolved []*model.Dependency
	for _, file := range files {
		imports, err := r.store.UnresolvedImports(ctx, file)
		if err != nil {
			return nil, err
		}
		sub, err := r.resolveFileImports(ctx, imports)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, sub...)
	}
	return resolved, nil
}

func (r *Resolver) resolveFileImports(ctx context.Context, imports []*model.Dependency) ([]*model.Dependency, error) {
	var resolved []*model.Dependency
	for _, imp := range imports {
		target, err := r.resolveSpecifier(ctx, imp.From, imp.To)
		if err != nil {
			return nil, err
		}
		if target == "" {
			continue
		}
		rep, err := r.representativeSymbol(ctx, imp.From)
		if err != nil {
			return nil, err
		}
		if rep == nil {
			continue
		}
		exported, err := r.exportedTopLevel(ctx, target)
		if err != nil {
			return nil, err
		}
		for _, sym := range exported {
			resolved = append(resolved, &model.Dependency{
				From:     rep.ID,
				To:       sym.ID,
				Type:     model.DepImports,
				Location: imp.Location,
			})
		}
	}
	return resolved, nil
}

// resolveSpecifier tries a relative specifier against the importing file's
// directory, appending known source extensions and index files. Returns ""
// when nothing indexed matches.
func (r *Resolver) resolveSpecifier(ctx context.Context, fromFile, spec string) (string, error) {
	if !strings.HasPrefix(spec, ".") {
		return "", nil // bare module specifiers stay unresolved
	}
	base := filepath.ToSlash(filepath.Join(filepath.Dir(fromFile), spec))

	candidates := []string{}
	if ext := path.Ext(base); ext != "" {
		if _, known := lang.ForExtension(ext); known {
			candidates = append(candidates, base)
		}
	}
	for _, ext := range lang.SourceExtensions() {
		candidates = append(candidates, base+ext)
	}
	for _, ext := range lang.SourceExtensions() {
		candidates = append(candidates, base+"/index"+ext)
	}

	for _, cand := range candidates {
		cand = filepath.FromSlash(cand)
		syms, err := r.store.SymbolsByFile(ctx, cand)
		if err != nil {
			return "", err
		}
		if len(syms) > 0 {
			return cand, nil
		}
	}
	return "", nil
}

// representativeSymbol is the first top-level symbol of a file by line.
func (r *Resolver) representativeSymbol(ctx context.Context, file string) (*model.Symbol, error) {
	syms, err := r.store.SymbolsByFile(ctx, file)
	if err != nil {
		return nil, err
	}
	var top []*model.Symbol
	for _, s := range syms {
		if s.Parent == "" {
			top = append(top, s)
		}
	}
	if len(top) == 0 {
		return nil, nil
	}
	sort.Slice(top, func(i, j int) bool {
		return top[i].Location.Start.Line < top[j].Location.Start.Line
	})
	return top[0], nil
}

func (r *Resolver) exportedTopLevel(ctx context.Context, file string) ([]*model.Symbol, error) {
	syms, err := r.store.SymbolsByFile(ctx, file)
	if err != nil {
		return nil, err
	}
	var exported []*model.Symbol
	for _, s := range syms {
		if s.Parent == "" && s.Exported {
			exported = append(exported, s)
		}
	}
	sort.Slice(exported, func(i, j int) bool {
		return exported[i].Location.Start.Line < exported[j].Location.Start.Line
	})
	return exported, nil
}

// IntraFileEdges derives symbolic edges from signature text within one
// file's symbol slice. Matching is deliberately textual: false positives on
// "uses" are acceptable, while the four structural patterns (extends,
// implements, new, call) use whole-word boundary checks so a name that is a
// prefix of another never matches.
func IntraFileEdges(symbols []*model.Symbol) []*model.Dependency {
	byFile := make(map[string][]*model.Symbol)
	for _, s := range symbols {
		byFile[s.FilePath] = append(byFile[s.FilePath], s)
	}

	var edges []*model.Dependency
	for _, fileSyms := range byFile {
		for _, from := range fileSyms {
			if from.Signature == "" {
				continue
			}
			for _, to := range fileSyms {
				if to.ID == from.ID || to.Name == "" || to.Name == from.Name {
					continue
				}
				if t, ok := classifyReference(from.Signature, to.Name); ok {
					loc := from.Location
					edges = append(edges, &model.Dependency{
						From:     from.ID,
						To:       to.ID,
						Type:     t,
						Location: &loc,
					})
				}
			}
		}
	}
	return edges
}

// classifyReference decides the strongest relation a signature expresses
// about a name, in fixed priority order.
func classifyReference(signature, name string) (model.DepType, bool) {
	quoted := regexp.QuoteMeta(name)
	word := `\b` + quoted + `\b`

	if matched(`\bextends\b[^;{)]*`+word, signature) {
		return model.DepExtends, true
	}
	if matched(`\bimplements\b[^;{)]*`+word, signature) {
		return model.DepImplements, true
	}
	if matched(`\bnew\s+`+quoted+`\s*\(`, signature) {
		return model.DepInstantiates, true
	}
	if matched(word+`\s*\(`, signature) {
		return model.DepCalls, true
	}
	if matched(word, signature) {
		return model.DepUses, true
	}
	return "", false
}

func matched(pattern, text string) bool {
	ok, err := regexp.MatchString(pattern, text)
	if err != nil {
		slog.Warn("resolve.pattern.err", "pattern", pattern, "err", err)
		return false
	}
	return ok
}

// TransitiveDependencies is the DFS closure over deps:from.
func (r *Resolver) TransitiveDependencies(ctx context.Context, id string) ([]string, error) {
	return r.closure(ctx, id, r.store.DependenciesOf)
}

// TransitiveDependents is the DFS closure over deps:to.
func (r *Resolver) TransitiveDependents(ctx context.Context, id string) ([]string, error) {
	return r.closure(ctx, id, r.store.DependentsOf)
}

func (r *Resolver) closure(ctx context.Context, id string, next func(context.Context, string) ([]string, error)) ([]string, error) {
	visited := map[string]bool{id: true}
	var result []string
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		neighbours, err := next(ctx, cur)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbours {
			if !visited[n] {
				visited[n] = true
				result = append(result, n)
				stack = append(stack, n)
			}
		}
	}
	return result, nil
}

// EdgeRef pairs a neighbour with its edge type.
type EdgeRef struct {
	Symbol *model.Symbol `json:"symbol"`
	Type   model.DepType `json:"type"`
}

// Closure is the result of a bounded dependency/dependent walk.
type Closure struct {
	Direct      []EdgeRef       `json:"direct"`
	Transitive  []*model.Symbol `json:"transitive"`
	ImpactCount int             `json:"impactCount"`
}

// GetDependencies walks deps:from up to depth, honouring an optional set of
// allowed edge types.
func (r *Resolver) GetDependencies(ctx context.Context, target string, depth int, types []model.DepType) (*Closure, error) {
	return r.bounded(ctx, target, depth, types, true)
}

// GetDependents walks deps:to up to depth.
func (r *Resolver) GetDependents(ctx context.Context, target string, depth int) (*Closure, error) {
	return r.bounded(ctx, target, depth, nil, false)
}

func (r *Resolver) bounded(ctx context.Context, target string, depth int, types []model.DepType, forward bool) (*Closure, error) {
	if depth <= 0 {
		depth = 1
	}
	allowed := map[model.DepType]bool{}
	for _, t := range types {
		allowed[t] = true
	}

	result := &Closure{}
	visited := map[string]bool{target: true}
	frontier := []string{target}

	for hop := 1; hop <= depth && len(frontier) > 0; hop++ {
		var nextFrontier []string
		for _, cur := range frontier {
			var neighbours []string
			var err error
			if forward {
				neighbours, err = r.store.DependenciesOf(ctx, cur)
			} else {
				neighbours, err = r.store.DependentsOf(ctx, cur)
			}
			if err != nil {
				return nil, err
			}
			for _, n := range neighbours {
				if visited[n] {
					continue
				}
				edgeFrom, edgeTo := cur, n
				if !forward {
					edgeFrom, edgeTo = n, cur
				}
				edge, err := r.store.GetEdge(ctx, edgeFrom, edgeTo)
				if err != nil {
					return nil, err
				}
				if edge == nil {
					continue
				}
				if len(allowed) > 0 && !allowed[edge.Type] {
					continue
				}
				sym, err := r.store.GetSymbol(ctx, n)
				if err != nil {
					return nil, err
				}
				if sym == nil {
					continue // deleted during traversal: skip, keep walking
				}
				visited[n] = true
				nextFrontier = append(nextFrontier, n)
				if hop == 1 {
					result.Direct = append(result.Direct, EdgeRef{Symbol: sym, Type: edge.Type})
				} else {
					result.Transitive = append(result.Transitive, sym)
				}
			}
		}
		frontier = nextFrontier
	}
	result.ImpactCount = len(result.Direct) + len(result.Transitive)
	return result, nil
}
