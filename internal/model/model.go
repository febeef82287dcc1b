// Package model defines the core types shared by the scanner, parsers,
// extractor, resolver, graph and store: symbols, dependency edges, file
// tracking records and project metadata.
package model

import (
	"fmt"
	"time"
)

// Kind classifies a named program entity.
type Kind string

const (
	KindClass       Kind = "class"
	KindInterface   Kind = "interface"
	KindType        Kind = "type"
	KindEnum        Kind = "enum"
	KindFunction    Kind = "function"
	KindMethod      Kind = "method"
	KindConstructor Kind = "constructor"
	KindVariable    Kind = "variable"
	KindConstant    Kind = "constant"
	KindProperty    Kind = "property"
	KindModule      Kind = "module"
	KindNamespace   Kind = "namespace"
)

// Point is a source position. Line is 1-based, Column is 0-based.
type Point struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Location is the source span of a symbol or edge.
type Location struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// Symbol is a named program entity extracted from source.
//
// ID is the canonical identity "<filepath>:<name>:<row>" where row is the
// 0-based tree-sitter start row of the declaration. Two same-named
// declarations on different lines are distinct.
type Symbol struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Kind      Kind         `json:"kind"`
	FilePath  string       `json:"filepath"`
	Location  Location     `json:"location"`
	Signature string       `json:"signature,omitempty"`
	Docstring string       `json:"docstring,omitempty"`
	Parent    string       `json:"parent,omitempty"`
	Children  []string     `json:"children,omitempty"`
	Exported  bool         `json:"exported"`
	Language  string       `json:"language,omitempty"`
	Git       *GitMetadata `json:"gitMetadata,omitempty"`
	PageRank  float64      `json:"pageRank,omitempty"`
}

// SymbolID builds the canonical symbol ID from a file path, name and the
// 0-based start row of the declaration.
func SymbolID(filePath, name string, row uint) string {
	return fmt.Sprintf("%s:%s:%d", filePath, name, row)
}

// DepType classifies a dependency edge.
type DepType string

const (
	DepImports      DepType = "imports"
	DepExtends      DepType = "extends"
	DepImplements   DepType = "implements"
	DepCalls        DepType = "calls"
	DepUses         DepType = "uses"
	DepInstantiates DepType = "instantiates"
)

// AllDepTypes returns every edge type, ordered by traversal priority
// (imports strongest, uses weakest).
func AllDepTypes() []DepType {
	return []DepType{DepImports, DepExtends, DepImplements, DepInstantiates, DepCalls, DepUses}
}

// Dependency is a typed directed relation. A DepImports edge as parsed runs
// from a file path to the raw import specifier as written; a resolved
// DepImports edge and every other type connect two symbol IDs.
type Dependency struct {
	From     string    `json:"from"`
	To       string    `json:"to"`
	Type     DepType   `json:"type"`
	Location *Location `json:"location,omitempty"`
}

// EdgeKey dedupes dependencies across a batch.
func (d *Dependency) EdgeKey() string {
	return d.From + "\x00" + d.To + "\x00" + string(d.Type)
}

// FileRecord tracks one indexed file for change detection.
type FileRecord struct {
	MTime int64  `json:"mtime"` // unix nanoseconds
	Hash  string `json:"hash"`
}

// Stats are the counts written with project metadata.
type Stats struct {
	Files   int `json:"files"`
	Symbols int `json:"symbols"`
	Edges   int `json:"edges"`
}

// ProjectMetadata is overwritten at the end of each indexing run.
type ProjectMetadata struct {
	Root      string    `json:"root"`
	IndexedAt time.Time `json:"indexedAt"`
	Stats     Stats     `json:"stats"`
}

// GitMetadata is the opaque per-file record produced by the git provider.
type GitMetadata struct {
	LastCommitSHA       string     `json:"lastCommitSha,omitempty"`
	LastCommitAt        *time.Time `json:"lastCommitAt,omitempty"`
	ChurnCount          int        `json:"churnCount"`
	TopContributors     []string   `json:"topContributors,omitempty"`
	StabilityScore      float64    `json:"stabilityScore"`
	FreshnessDays       int        `json:"freshnessDays,omitempty"`
	OwnershipConfidence float64    `json:"ownershipConfidence"`
}

// FileError records a non-fatal per-file failure during indexing.
type FileError struct {
	File string `json:"file"`
	Err  string `json:"error"`
}

// IndexStats summarises one indexing run.
type IndexStats struct {
	FilesIndexed      int         `json:"filesIndexed"`
	SymbolsFound      int         `json:"symbolsFound"`
	DependenciesFound int         `json:"dependenciesFound"`
	FilesDeleted      int         `json:"filesDeleted"`
	Incremental       bool        `json:"incremental"`
	Duration          string      `json:"duration,omitempty"`
	Errors            []FileError `json:"errors"`
}

// Progress is emitted by the extractor after every batch.
type Progress struct {
	FilesProcessed    int `json:"filesProcessed"`
	TotalFiles        int `json:"totalFiles"`
	SymbolsFound      int `json:"symbolsFound"`
	DependenciesFound int `json:"dependenciesFound"`
	Errors            int `json:"errors"`
}
