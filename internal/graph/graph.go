// Package graph implements the analytics over the stored dependency graph:
// weighted PageRank, path search, component/cycle/bottleneck/dead-code
// detection, similarity ranking and impact analysis. All operations read
// from the store on demand; nothing caches adjacency between calls.
package graph

import (
	"path"
	"strings"

	"github.com/codeatlas/codeatlas/internal/model"
	"github.com/codeatlas/codeatlas/internal/store"
)

// Config carries the tunables lifted from the configuration file.
type Config struct {
	Damping    float64
	Iterations int
	Tolerance  float64

	CriticalThreshold float64
	HighThreshold     float64
	MediumThreshold   float64
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		Damping:           0.85,
		Iterations:        30,
		Tolerance:         1e-6,
		CriticalThreshold: 100,
		HighThreshold:     50,
		MediumThreshold:   20,
	}
}

// Graph wraps a store handle; it is cheap to construct per request.
type Graph struct {
	store *store.Store
	cfg   Config
}

func New(s *store.Store, cfg Config) *Graph {
	if cfg.Damping <= 0 || cfg.Damping >= 1 {
		cfg.Damping = 0.85
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = 30
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 1e-6
	}
	if cfg.CriticalThreshold <= 0 {
		cfg.CriticalThreshold = 100
	}
	if cfg.HighThreshold <= 0 {
		cfg.HighThreshold = 50
	}
	if cfg.MediumThreshold <= 0 {
		cfg.MediumThreshold = 20
	}
	return &Graph{store: s, cfg: cfg}
}

// IsEntryPointFile recognises conventional program entry files: index/main
// sources plus anything under /bin/ or /src/main/.
func IsEntryPointFile(filePath string) bool {
	slashed := filepath2slash(filePath)
	base := path.Base(slashed)
	switch base {
	case "index.ts", "index.js", "index.py", "main.ts", "main.js", "main.py":
		return true
	}
	return strings.Contains(slashed, "/bin/") || strings.Contains(slashed, "/src/main/")
}

func filepath2slash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// edgePriority orders neighbour expansion in BFS: structural relations
// before weak textual ones, in the model's canonical traversal order.
var edgePriority = func() map[model.DepType]int {
	prio := make(map[model.DepType]int)
	for i, t := range model.AllDepTypes() {
		prio[t] = i
	}
	return prio
}()
