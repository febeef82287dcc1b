package lang

import (
	"strings"
	"unicode"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeatlas/codeatlas/internal/cst"
	"github.com/codeatlas/codeatlas/internal/model"
)

// walker carries per-file state through a language walk.
type walker struct {
	lang Language
	path string
	src  []byte
	res  *Result
}

func (w *walker) text(n *tree_sitter.Node) string {
	if n == nil {
		return ""
	}
	return cst.NodeText(n, w.src)
}

// loc converts a node span to a Location: 1-based lines, 0-based columns.
func (w *walker) loc(n *tree_sitter.Node) model.Location {
	return model.Location{
		Start: model.Point{Line: int(n.StartPosition().Row) + 1, Column: int(n.StartPosition().Column)},
		End:   model.Point{Line: int(n.EndPosition().Row) + 1, Column: int(n.EndPosition().Column)},
	}
}

// symbol appends a symbol for the given declaration node. Parent is the
// enclosing symbol's name ("" for top level).
func (w *walker) symbol(n *tree_sitter.Node, name string, kind model.Kind, parent, signature string, exported bool) *model.Symbol {
	sym := &model.Symbol{
		ID:        model.SymbolID(w.path, name, n.StartPosition().Row),
		Name:      name,
		Kind:      kind,
		FilePath:  w.path,
		Location:  w.loc(n),
		Signature: signature,
		Parent:    parent,
		Exported:  exported,
		Language:  string(w.lang),
	}
	if doc := w.docstring(n); doc != "" {
		sym.Docstring = doc
	}
	w.res.Symbols = append(w.res.Symbols, sym)
	return sym
}

// addImport emits a file -> raw-specifier edge. Quotes and <> are stripped.
func (w *walker) addImport(spec string, n *tree_sitter.Node) {
	spec = strings.Trim(spec, "\"'`<>")
	if spec == "" {
		return
	}
	loc := w.loc(n)
	w.res.Dependencies = append(w.res.Dependencies, &model.Dependency{
		From:     w.path,
		To:       spec,
		Type:     model.DepImports,
		Location: &loc,
	})
}

// addRef emits a bare-name edge between two local names. The extractor
// synthesises the from ID and rewrites to when it matches a local symbol.
func (w *walker) addRef(from, to string, t model.DepType, n *tree_sitter.Node) {
	if from == "" || to == "" || from == to {
		return
	}
	loc := w.loc(n)
	w.res.Dependencies = append(w.res.Dependencies, &model.Dependency{
		From:     from,
		To:       to,
		Type:     t,
		Location: &loc,
	})
}

// childByKind returns the first direct child of the given kind.
func childByKind(n *tree_sitter.Node, kind string) *tree_sitter.Node {
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil && c.Kind() == kind {
			return c
		}
	}
	return nil
}

// namedChildByKind returns the first named child of the given kind.
func namedChildByKind(n *tree_sitter.Node, kind string) *tree_sitter.Node {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if c := n.NamedChild(i); c != nil && c.Kind() == kind {
			return c
		}
	}
	return nil
}

// hasChildToken reports whether a direct child's text equals tok.
func (w *walker) hasChildToken(n *tree_sitter.Node, tok string) bool {
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil && w.text(c) == tok {
			return true
		}
	}
	return false
}

// calleeName reduces a call target to its rightmost simple name:
// foo -> foo, a.b.foo -> foo, Foo::bar -> bar.
func calleeName(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, "(<"); i >= 0 {
		text = text[:i]
	}
	for _, sep := range []string{"::", ".", "->"} {
		if i := strings.LastIndex(text, sep); i >= 0 {
			text = text[i+len(sep):]
		}
	}
	return strings.TrimSpace(text)
}

// upperIdent reports whether a name looks like ALL_CAPS_WITH_UNDERSCORE.
func upperIdent(name string) bool {
	if name == "" {
		return false
	}
	seenLetter := false
	for _, r := range name {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			seenLetter = true
		}
	}
	return seenLetter
}

// exportedGo follows the Go convention: first letter uppercase.
func exportedGo(name string) bool {
	for _, r := range name {
		return unicode.IsUpper(r)
	}
	return false
}
