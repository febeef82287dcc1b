// Package lang implements the per-language concrete-syntax-tree walkers.
// Each walker turns one parsed file into symbols and dependency edges. At
// this layer symbol parents are names, not IDs, and import edges carry the
// raw specifier as written; the extractor normalises both.
package lang

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeatlas/codeatlas/internal/model"
)

// Language tags a supported programming language.
type Language string

const (
	TypeScript Language = "typescript"
	TSX        Language = "tsx"
	JavaScript Language = "javascript"
	Python     Language = "python"
	Go         Language = "go"
	Rust       Language = "rust"
	Java       Language = "java"
	C          Language = "c"
	CPP        Language = "cpp"
)

// extensions routes file extensions to languages.
var extensions = map[string]Language{
	".ts":   TypeScript,
	".tsx":  TSX,
	".js":   JavaScript,
	".jsx":  JavaScript,
	".mjs":  JavaScript,
	".cjs":  JavaScript,
	".py":   Python,
	".go":   Go,
	".rs":   Rust,
	".java": Java,
	".c":    C,
	".h":    C,
	".cpp":  CPP,
	".cc":   CPP,
	".cxx":  CPP,
	".hpp":  CPP,
	".hxx":  CPP,
}

// ForExtension returns the language for a file extension (e.g. ".go").
func ForExtension(ext string) (Language, bool) {
	l, ok := extensions[ext]
	return l, ok
}

// AllLanguages returns every supported language.
func AllLanguages() []Language {
	return []Language{TypeScript, TSX, JavaScript, Python, Go, Rust, Java, C, CPP}
}

// SourceExtensions returns every recognised file extension. The resolver
// tries these when resolving import specifiers to files.
func SourceExtensions() []string {
	return []string{
		".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs",
		".py", ".go", ".rs", ".java",
		".c", ".h", ".cpp", ".cc", ".cxx", ".hpp", ".hxx",
	}
}

// Result is the output of walking one file.
type Result struct {
	Symbols      []*model.Symbol
	Dependencies []*model.Dependency
}

// Extract walks the tree for one file and emits symbols and edges. Malformed
// subtrees are skipped; Extract never fails once a root node exists.
func Extract(l Language, filePath string, root *tree_sitter.Node, source []byte) *Result {
	w := &walker{
		lang: l,
		path: filePath,
		src:  source,
		res:  &Result{},
	}
	switch l {
	case TypeScript, TSX, JavaScript:
		w.walkTypeScript(root)
	case Python:
		w.walkPython(root)
	case Go:
		w.walkGo(root)
	case Rust:
		w.walkRust(root)
	case Java:
		w.walkJava(root)
	case C, CPP:
		w.walkC(root)
	}
	return w.res
}
