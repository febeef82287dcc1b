// Package tools exposes the query surface as MCP tools. Handlers are thin
// adapters: parse arguments, call the store/graph/indexer, render JSON. No
// engine semantics live here.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeatlas/codeatlas/internal/config"
	"github.com/codeatlas/codeatlas/internal/graph"
	"github.com/codeatlas/codeatlas/internal/indexer"
	"github.com/codeatlas/codeatlas/internal/store"
	"github.com/codeatlas/codeatlas/internal/watch"
)

// Server wraps the MCP server with tool handlers.
type Server struct {
	mcp     *mcp.Server
	store   *store.Store
	cfg     *config.Config
	indexer *indexer.Indexer

	mu          sync.Mutex
	projectRoot string
	watcher     *watch.Watcher
}

// NewServer registers every tool against a fresh MCP server.
func NewServer(s *store.Store, cfg *config.Config) *Server {
	srv := &Server{
		store: s,
		cfg:   cfg,
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    "codeatlas",
				Version: "0.1.0",
			},
			nil,
		),
	}
	srv.indexer = indexer.New(s, cfg)
	srv.indexer.OnFullIndex = srv.startWatcher
	srv.registerTools()
	return srv
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Shutdown stops the watcher if one is running.
func (s *Server) Shutdown() {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

// graphHandle builds a Graph with the configured tunables.
func (s *Server) graphHandle() *graph.Graph {
	return graph.New(s.store, graph.Config{
		Damping:           s.cfg.PageRank.Damping,
		Iterations:        s.cfg.PageRank.Iterations,
		Tolerance:         s.cfg.PageRank.Tolerance,
		CriticalThreshold: s.cfg.Impact.CriticalThreshold,
		HighThreshold:     s.cfg.Impact.HighThreshold,
		MediumThreshold:   s.cfg.Impact.MediumThreshold,
	})
}

func (s *Server) registerTools() {
	// 1. index_project
	s.mcp.AddTool(&mcp.Tool{
		Name:        "index_project",
		Description: "Index a project into the code knowledge graph. Scans source files, extracts symbols across languages, resolves dependency edges, attaches git metadata and computes PageRank. Supports incremental reindexing via file tracking.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "Absolute path to the project root"
				},
				"force": {
					"type": "boolean",
					"description": "Reindex every file even when unchanged"
				},
				"incremental": {
					"type": "boolean",
					"description": "Only process files whose mtime/hash changed (default true)"
				}
			},
			"required": ["path"]
		}`),
	}, s.handleIndexProject)

	// 2. get_symbol
	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_symbol",
		Description: "Fuzzy-search symbols by name. Returns matches ordered by PageRank with location, signature, docstring and directly related symbols.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string", "description": "Symbol name (fuzzy matched)"},
				"filepath": {"type": "string", "description": "Restrict to one file"},
				"kind": {"type": "string", "description": "Restrict to a kind: class, interface, function, method, ..."},
				"limit": {"type": "integer", "description": "Max matches (default 10)"}
			},
			"required": ["name"]
		}`),
	}, s.handleGetSymbol)

	// 3. search_symbols
	s.mcp.AddTool(&mcp.Tool{
		Name:        "search_symbols",
		Description: "Search symbols with a wildcard pattern ('*' and '?'); a plain pattern matches as substring. Ordered by PageRank.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"pattern": {"type": "string", "description": "Wildcard pattern, e.g. 'get*', '*Handler'"},
				"kind": {"type": "string", "description": "Restrict to a kind"},
				"exportedOnly": {"type": "boolean", "description": "Only exported symbols"},
				"limit": {"type": "integer", "description": "Max results (default 20)"}
			},
			"required": ["pattern"]
		}`),
	}, s.handleSearchSymbols)

	// 4. get_file_structure
	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_file_structure",
		Description: "Return the nested symbol tree of one file: top-level declarations with their members.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "File path as indexed"},
				"includePrivate": {"type": "boolean", "description": "Include non-exported symbols"}
			},
			"required": ["path"]
		}`),
	}, s.handleGetFileStructure)

	// 5. get_project_overview
	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_project_overview",
		Description: "Summarise the indexed project: stats, language and kind breakdown, top-ranked symbols, optional git hotspots.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"topN": {"type": "integer", "description": "How many top symbols to include (default 10)"},
				"includeGit": {"type": "boolean", "description": "Include git churn info on top symbols"}
			}
		}`),
	}, s.handleGetProjectOverview)

	// 6. get_dependencies
	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_dependencies",
		Description: "What does this symbol depend on? Walks outgoing edges up to a depth, optionally restricted to edge types.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"target": {"type": "string", "description": "Symbol ID or name"},
				"depth": {"type": "integer", "description": "Traversal depth (default 1)"},
				"types": {"type": "array", "items": {"type": "string"}, "description": "Allowed edge types: imports, extends, implements, calls, uses, instantiates"}
			},
			"required": ["target"]
		}`),
	}, s.handleGetDependencies)

	// 7. get_dependents
	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_dependents",
		Description: "What depends on this symbol? Walks incoming edges up to a depth. Can filter to unstable dependents using git stability scores.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"target": {"type": "string", "description": "Symbol ID or name"},
				"depth": {"type": "integer", "description": "Traversal depth (default 1)"},
				"unstableOnly": {"type": "boolean", "description": "Keep only dependents in high-churn files"},
				"stabilityThreshold": {"type": "number", "description": "Stability cutoff for unstableOnly (default 0.5)"},
				"includeGit": {"type": "boolean", "description": "Include git metadata on results"}
			},
			"required": ["target"]
		}`),
	}, s.handleGetDependents)

	// 8. get_impact
	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_impact",
		Description: "Impact analysis for a set of edited files: affected symbols with risk scores, a suggested change order (dependencies first), high-risk set and summary.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"files": {"type": "array", "items": {"type": "string"}, "description": "Edited file paths as indexed"},
				"unstableOnly": {"type": "boolean", "description": "Keep only affected symbols in high-churn files"},
				"stabilityThreshold": {"type": "number", "description": "Stability cutoff for unstableOnly (default 0.5)"},
				"includeGit": {"type": "boolean", "description": "Include git metadata on affected symbols"}
			},
			"required": ["files"]
		}`),
	}, s.handleGetImpact)

	// 9. get_symbol_history
	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_symbol_history",
		Description: "Git history metadata for a symbol's file: last commit, churn, stability, top contributors.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"target": {"type": "string", "description": "Symbol ID or name"},
				"refresh": {"type": "boolean", "description": "Re-query git instead of using the stored record"}
			},
			"required": ["target"]
		}`),
	}, s.handleGetSymbolHistory)

	// 10. find_similar
	s.mcp.AddTool(&mcp.Tool{
		Name:        "find_similar",
		Description: "Find symbols similar to a named one, scored by kind, language, name similarity and co-location, with a reason per match.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"description": {"type": "string", "description": "Name (or near-name) of the reference symbol"},
				"kind": {"type": "string", "description": "Restrict the reference lookup to a kind"},
				"limit": {"type": "integer", "description": "Max results (default 10)"}
			},
			"required": ["description"]
		}`),
	}, s.handleFindSimilar)
}

// startWatcher is wired as the indexer's OnFullIndex hook.
func (s *Server) startWatcher(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return
	}
	w, err := watch.New(root, s.cfg.Indexer.Exclude, s.cfg.Watcher.Debounce(), s.indexer)
	if err != nil {
		return
	}
	if err := w.Start(context.Background()); err != nil {
		return
	}
	s.watcher = w
	s.projectRoot = root
}

// jsonResult marshals data to JSON and returns it as the tool result.
func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errResult("json marshal err=" + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}

// errResult returns a tool result indicating an error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// parseArgs unmarshals the raw JSON arguments into a map.
func parseArgs(req *mcp.CallToolRequest) (map[string]any, error) {
	if len(req.Params.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return m, nil
}

func getStringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func getIntArg(args map[string]any, key string, defaultVal int) int {
	f, ok := args[key].(float64) // JSON numbers decode as float64
	if !ok {
		return defaultVal
	}
	return int(f)
}

func getFloatArg(args map[string]any, key string, defaultVal float64) float64 {
	f, ok := args[key].(float64)
	if !ok {
		return defaultVal
	}
	return f
}

func getBoolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func getStringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, sok := v.(string); sok {
			out = append(out, s)
		}
	}
	return out
}
