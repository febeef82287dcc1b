// Package parser owns the tree-sitter parser instances. Parsers are pooled
// per language via sync.Pool so concurrent extraction never allocates a
// parser per file.
package parser

import (
	"fmt"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	tree_sitter_c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/codeatlas/codeatlas/internal/lang"
)

var (
	languagesOnce sync.Once
	languages     map[lang.Language]*tree_sitter.Language
	parserPools   map[lang.Language]*sync.Pool
)

// grammarFor maps a language tag to its compiled grammar.
func grammarFor(l lang.Language) *tree_sitter.Language {
	switch l {
	case lang.TypeScript:
		return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
	case lang.TSX:
		return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
	case lang.JavaScript:
		return tree_sitter.NewLanguage(tree_sitter_javascript.Language())
	case lang.Python:
		return tree_sitter.NewLanguage(tree_sitter_python.Language())
	case lang.Go:
		return tree_sitter.NewLanguage(tree_sitter_go.Language())
	case lang.Rust:
		return tree_sitter.NewLanguage(tree_sitter_rust.Language())
	case lang.Java:
		return tree_sitter.NewLanguage(tree_sitter_java.Language())
	case lang.C:
		return tree_sitter.NewLanguage(tree_sitter_c.Language())
	case lang.CPP:
		return tree_sitter.NewLanguage(tree_sitter_cpp.Language())
	}
	return nil
}

func initLanguages() {
	languagesOnce.Do(func() {
		all := lang.AllLanguages()
		languages = make(map[lang.Language]*tree_sitter.Language, len(all))
		parserPools = make(map[lang.Language]*sync.Pool, len(all))

		for _, l := range all {
			tsLang := grammarFor(l)
			if tsLang == nil {
				panic(fmt.Sprintf("no grammar for language %s", l))
			}
			languages[l] = tsLang
			parserPools[l] = &sync.Pool{
				New: func() any {
					p := tree_sitter.NewParser()
					if err := p.SetLanguage(tsLang); err != nil {
						panic(fmt.Sprintf("set language: %v", err))
					}
					return p
				},
			}
		}
	})
}

// Parse parses source code into a tree-sitter tree. The caller must call
// tree.Close() when done.
func Parse(l lang.Language, source []byte) (*tree_sitter.Tree, error) {
	initLanguages()

	pool, ok := parserPools[l]
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", l)
	}

	p, _ := pool.Get().(*tree_sitter.Parser)
	if p == nil {
		return nil, fmt.Errorf("failed to get parser for language %s", l)
	}
	tree := p.Parse(source, nil)
	pool.Put(p)

	if tree == nil {
		return nil, fmt.Errorf("parse failed for language %s", l)
	}
	return tree, nil
}
