package tools

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeatlas/codeatlas/internal/gitmeta"
	"github.com/codeatlas/codeatlas/internal/graph"
	"github.com/codeatlas/codeatlas/internal/indexer"
	"github.com/codeatlas/codeatlas/internal/model"
	"github.com/codeatlas/codeatlas/internal/resolve"
	"github.com/codeatlas/codeatlas/internal/store"
)

func (s *Server) handleIndexProject(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	path := getStringArg(args, "path")
	if path == "" {
		return errResult("path is required"), nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errResult(fmt.Sprintf("invalid path: %v", err)), nil
	}

	incremental := true
	if v, ok := args["incremental"].(bool); ok {
		incremental = v
	}
	stats, err := s.indexer.IndexProject(ctx, absPath, indexer.Options{
		Force:       getBoolArg(args, "force"),
		Incremental: incremental,
	})
	if err != nil {
		return errResult(fmt.Sprintf("indexing failed: %v", err)), nil
	}

	s.mu.Lock()
	s.projectRoot = absPath
	s.mu.Unlock()
	return jsonResult(stats), nil
}

func (s *Server) handleGetSymbol(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	name := getStringArg(args, "name")
	if name == "" {
		return errResult("name is required"), nil
	}

	matches, err := s.store.FuzzySearch(ctx, name, store.SearchFilter{
		FilePath: getStringArg(args, "filepath"),
		Kind:     model.Kind(getStringArg(args, "kind")),
		Limit:    getIntArg(args, "limit", 10),
	})
	if err != nil {
		return errResult(err.Error()), nil
	}

	type match struct {
		Symbol  *model.Symbol   `json:"symbol"`
		Related []*model.Symbol `json:"related,omitempty"`
	}
	results := make([]match, 0, len(matches))
	for _, sym := range matches {
		results = append(results, match{Symbol: sym, Related: s.relatedSymbols(ctx, sym.ID, 5)})
	}
	return jsonResult(map[string]any{"matches": results}), nil
}

// relatedSymbols returns a few direct neighbours in both directions.
func (s *Server) relatedSymbols(ctx context.Context, id string, limit int) []*model.Symbol {
	var related []*model.Symbol
	seen := map[string]bool{id: true}
	for _, fetch := range []func(context.Context, string) ([]string, error){
		s.store.DependenciesOf, s.store.DependentsOf,
	} {
		ids, err := fetch(ctx, id)
		if err != nil {
			continue
		}
		for _, nid := range ids {
			if seen[nid] || len(related) >= limit {
				break
			}
			seen[nid] = true
			sym, err := s.store.GetSymbol(ctx, nid)
			if err == nil && sym != nil {
				related = append(related, sym)
			}
		}
	}
	return related
}

func (s *Server) handleSearchSymbols(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	pattern := getStringArg(args, "pattern")
	if pattern == "" {
		return errResult("pattern is required"), nil
	}
	symbols, err := s.store.WildcardSearch(ctx, pattern, store.SearchFilter{
		Kind:         model.Kind(getStringArg(args, "kind")),
		ExportedOnly: getBoolArg(args, "exportedOnly"),
		Limit:        getIntArg(args, "limit", 20),
	})
	if err != nil {
		return errResult(err.Error()), nil
	}
	return jsonResult(map[string]any{"symbols": symbols, "count": len(symbols)}), nil
}

// symbolNode is one level of the nested file structure.
type symbolNode struct {
	Symbol   *model.Symbol `json:"symbol"`
	Children []*symbolNode `json:"children,omitempty"`
}

func (s *Server) handleGetFileStructure(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	path := getStringArg(args, "path")
	if path == "" {
		return errResult("path is required"), nil
	}
	includePrivate := getBoolArg(args, "includePrivate")

	symbols, err := s.store.SymbolsByFile(ctx, path)
	if err != nil {
		return errResult(err.Error()), nil
	}

	nodes := make(map[string]*symbolNode, len(symbols))
	for _, sym := range symbols {
		if !includePrivate && !sym.Exported && sym.Parent == "" {
			continue
		}
		nodes[sym.ID] = &symbolNode{Symbol: sym}
	}
	var roots []*symbolNode
	for _, node := range nodes {
		if node.Symbol.Parent != "" {
			if parent, ok := nodes[node.Symbol.Parent]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	sortNodes(roots)
	return jsonResult(map[string]any{"file": path, "structure": roots}), nil
}

func sortNodes(nodes []*symbolNode) {
	for _, n := range nodes {
		sortNodes(n.Children)
	}
	sortByLine(nodes)
}

func sortByLine(nodes []*symbolNode) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && nodes[j].Symbol.Location.Start.Line < nodes[j-1].Symbol.Location.Start.Line; j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}

func (s *Server) handleGetProjectOverview(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	topN := getIntArg(args, "topN", 10)
	includeGit := getBoolArg(args, "includeGit")

	meta, err := s.store.GetProjectMetadata(ctx)
	if err != nil {
		return errResult(err.Error()), nil
	}
	if meta == nil {
		return jsonResult(map[string]any{
			"indexed": false,
			"stats":   model.Stats{},
		}), nil
	}

	top, err := s.store.TopSymbols(ctx, topN)
	if err != nil {
		return errResult(err.Error()), nil
	}

	symbols, err := s.store.AllSymbols(ctx)
	if err != nil {
		return errResult(err.Error()), nil
	}
	byLanguage := map[string]int{}
	byKind := map[string]int{}
	for _, sym := range symbols {
		byLanguage[sym.Language]++
		byKind[string(sym.Kind)]++
	}

	result := map[string]any{
		"indexed":    true,
		"root":       meta.Root,
		"indexedAt":  meta.IndexedAt,
		"stats":      meta.Stats,
		"topSymbols": top,
		"languages":  byLanguage,
		"kinds":      byKind,
	}
	if includeGit {
		hotspots := make([]map[string]any, 0, len(top))
		for _, rs := range top {
			if rs.Symbol.Git == nil {
				continue
			}
			hotspots = append(hotspots, map[string]any{
				"id":        rs.Symbol.ID,
				"churn":     rs.Symbol.Git.ChurnCount,
				"stability": rs.Symbol.Git.StabilityScore,
			})
		}
		result["gitHotspots"] = hotspots
	}
	return jsonResult(result), nil
}

// resolveTarget accepts either a symbol ID or a name, taking the
// best-ranked match for names.
func (s *Server) resolveTarget(ctx context.Context, target string) (*model.Symbol, error) {
	sym, err := s.store.GetSymbol(ctx, target)
	if err != nil {
		return nil, err
	}
	if sym != nil {
		return sym, nil
	}
	matches, err := s.store.FuzzySearch(ctx, target, store.SearchFilter{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

func (s *Server) handleGetDependencies(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	sym, errRes := s.mustResolve(ctx, getStringArg(args, "target"))
	if errRes != nil {
		return errRes, nil
	}

	var types []model.DepType
	for _, t := range getStringSliceArg(args, "types") {
		types = append(types, model.DepType(t))
	}
	res := resolve.New(s.store)
	closure, err := res.GetDependencies(ctx, sym.ID, getIntArg(args, "depth", 1), types)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return jsonResult(map[string]any{"target": sym, "dependencies": closure}), nil
}

func (s *Server) handleGetDependents(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	sym, errRes := s.mustResolve(ctx, getStringArg(args, "target"))
	if errRes != nil {
		return errRes, nil
	}

	res := resolve.New(s.store)
	closure, err := res.GetDependents(ctx, sym.ID, getIntArg(args, "depth", 1))
	if err != nil {
		return errResult(err.Error()), nil
	}

	if getBoolArg(args, "unstableOnly") {
		threshold := getFloatArg(args, "stabilityThreshold", 0.5)
		closure.Direct = filterUnstableRefs(closure.Direct, threshold)
		closure.Transitive = filterUnstable(closure.Transitive, threshold)
		closure.ImpactCount = len(closure.Direct) + len(closure.Transitive)
	}
	if !getBoolArg(args, "includeGit") {
		for _, ref := range closure.Direct {
			ref.Symbol.Git = nil
		}
		for _, t := range closure.Transitive {
			t.Git = nil
		}
	}
	return jsonResult(map[string]any{"target": sym, "dependents": closure}), nil
}

func filterUnstableRefs(refs []resolve.EdgeRef, threshold float64) []resolve.EdgeRef {
	var kept []resolve.EdgeRef
	for _, ref := range refs {
		if ref.Symbol.Git != nil && ref.Symbol.Git.StabilityScore < threshold {
			kept = append(kept, ref)
		}
	}
	return kept
}

func filterUnstable(symbols []*model.Symbol, threshold float64) []*model.Symbol {
	var kept []*model.Symbol
	for _, sym := range symbols {
		if sym.Git != nil && sym.Git.StabilityScore < threshold {
			kept = append(kept, sym)
		}
	}
	return kept
}

func (s *Server) handleGetImpact(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	files := getStringSliceArg(args, "files")
	if len(files) == 0 {
		return errResult("files is required"), nil
	}

	var edited []string
	for _, file := range files {
		symbols, err := s.store.SymbolsByFile(ctx, file)
		if err != nil {
			return errResult(err.Error()), nil
		}
		for _, sym := range symbols {
			edited = append(edited, sym.ID)
		}
	}
	if len(edited) == 0 {
		return errResult("no indexed symbols in the given files"), nil
	}

	result, err := s.graphHandle().AnalyzeImpact(ctx, edited)
	if err != nil {
		return errResult(err.Error()), nil
	}
	if getBoolArg(args, "unstableOnly") {
		threshold := getFloatArg(args, "stabilityThreshold", 0.5)
		result.HighRisk = filterUnstableAffected(result.HighRisk, threshold)
	}
	if !getBoolArg(args, "includeGit") {
		stripGit(result.DirectlyAffected)
		stripGit(result.TransitivelyAffected)
		stripGit(result.HighRisk)
	}
	return jsonResult(result), nil
}

func filterUnstableAffected(affected []graph.AffectedSymbol, threshold float64) []graph.AffectedSymbol {
	var kept []graph.AffectedSymbol
	for _, a := range affected {
		if a.Symbol.Git != nil && a.Symbol.Git.StabilityScore < threshold {
			kept = append(kept, a)
		}
	}
	return kept
}

func stripGit(affected []graph.AffectedSymbol) {
	for i := range affected {
		affected[i].Symbol.Git = nil
	}
}

func (s *Server) handleGetSymbolHistory(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	sym, errRes := s.mustResolve(ctx, getStringArg(args, "target"))
	if errRes != nil {
		return errRes, nil
	}

	meta := sym.Git
	if getBoolArg(args, "refresh") || meta == nil {
		s.mu.Lock()
		root := s.projectRoot
		s.mu.Unlock()
		if root == "" {
			if pm, pmErr := s.store.GetProjectMetadata(ctx); pmErr == nil && pm != nil {
				root = pm.Root
			}
		}
		if root != "" {
			provider := gitmeta.New(root, s.cfg.Git)
			if fresh := provider.GetMetadata(ctx, sym.FilePath, ""); fresh != nil {
				meta = fresh
			}
		}
	}
	if meta == nil {
		return jsonResult(map[string]any{"symbol": sym.ID, "history": nil}), nil
	}
	return jsonResult(map[string]any{"symbol": sym.ID, "history": meta}), nil
}

func (s *Server) handleFindSimilar(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	description := getStringArg(args, "description")
	if description == "" {
		return errResult("description is required"), nil
	}
	matches, err := s.store.FuzzySearch(ctx, description, store.SearchFilter{
		Kind:  model.Kind(getStringArg(args, "kind")),
		Limit: 1,
	})
	if err != nil {
		return errResult(err.Error()), nil
	}
	if len(matches) == 0 {
		return errResult(fmt.Sprintf("no symbol matching %q", description)), nil
	}
	target := matches[0]

	similar, err := s.graphHandle().FindSimilar(ctx, target, getIntArg(args, "limit", 10))
	if err != nil {
		return errResult(err.Error()), nil
	}
	return jsonResult(map[string]any{"target": target, "similar": similar}), nil
}

// mustResolve resolves a target argument or renders the error result.
func (s *Server) mustResolve(ctx context.Context, target string) (*model.Symbol, *mcp.CallToolResult) {
	if target == "" {
		return nil, errResult("target is required")
	}
	sym, err := s.resolveTarget(ctx, target)
	if err != nil {
		return nil, errResult(err.Error())
	}
	if sym == nil {
		return nil, errResult(fmt.Sprintf("symbol not found: %s", target))
	}
	return sym, nil
}
