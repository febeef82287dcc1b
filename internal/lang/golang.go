package lang

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeatlas/codeatlas/internal/cst"
	"github.com/codeatlas/codeatlas/internal/model"
)

// walkGo extracts the package clause, type/function/method declarations,
// var/const specs, short declarations inside bodies, and imports.
func (w *walker) walkGo(root *tree_sitter.Node) {
	pkg := ""
	for i := uint(0); i < root.NamedChildCount(); i++ {
		n := root.NamedChild(i)
		if n == nil {
			continue
		}
		switch n.Kind() {
		case "package_clause":
			if id := namedChildByKind(n, "package_identifier"); id != nil {
				pkg = w.text(id)
				w.symbol(n, pkg, model.KindModule, "", "package "+pkg, true)
			}
		case "import_declaration":
			w.goImports(n)
		case "function_declaration":
			w.goFunction(n, pkg)
		case "method_declaration":
			w.goMethod(n, pkg)
		case "type_declaration":
			w.goTypes(n, pkg)
		case "var_declaration":
			w.goValueSpecs(n, "var_spec", model.KindVariable, pkg)
		case "const_declaration":
			w.goValueSpecs(n, "const_spec", model.KindConstant, pkg)
		}
	}
}

func (w *walker) goImports(n *tree_sitter.Node) {
	cst.Walk(n, func(c *tree_sitter.Node) bool {
		if c.Kind() == "import_spec" {
			if path := c.ChildByFieldName("path"); path != nil {
				w.addImport(w.text(path), c)
			}
			return false
		}
		return true
	})
}

func (w *walker) goFunction(n *tree_sitter.Node, parent string) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	sig := "func " + name + w.goParams(n)
	w.symbol(n, name, model.KindFunction, parent, sig, exportedGo(name))
	w.goBody(name, n.ChildByFieldName("body"))
}

func (w *walker) goMethod(n *tree_sitter.Node, pkg string) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	recv := w.goReceiverType(n.ChildByFieldName("receiver"))
	parent := recv
	if parent == "" {
		parent = pkg
	}
	sig := "func (" + recv + ") " + name + w.goParams(n)
	w.symbol(n, name, model.KindMethod, parent, sig, exportedGo(name))
	w.goBody(name, n.ChildByFieldName("body"))
}

// goReceiverType extracts the bare receiver type name, stripping pointers
// and type parameters.
func (w *walker) goReceiverType(recv *tree_sitter.Node) string {
	if recv == nil {
		return ""
	}
	decl := namedChildByKind(recv, "parameter_declaration")
	if decl == nil {
		return ""
	}
	t := decl.ChildByFieldName("type")
	if t == nil {
		return ""
	}
	name := w.text(t)
	name = strings.TrimPrefix(name, "*")
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return name
}

func (w *walker) goTypes(n *tree_sitter.Node, pkg string) {
	cst.Walk(n, func(spec *tree_sitter.Node) bool {
		if spec.Kind() != "type_spec" {
			return true
		}
		name := w.text(spec.ChildByFieldName("name"))
		if name == "" {
			return false
		}
		t := spec.ChildByFieldName("type")
		kind := model.KindType
		sig := "type " + name
		if t != nil {
			switch t.Kind() {
			case "struct_type":
				kind = model.KindClass
				sig = "type " + name + " struct"
			case "interface_type":
				kind = model.KindInterface
				sig = "type " + name + " interface"
			}
		}
		w.symbol(spec, name, kind, pkg, sig, exportedGo(name))

		if t == nil {
			return false
		}
		switch t.Kind() {
		case "struct_type":
			w.goStructFields(t, name)
		case "interface_type":
			w.goInterfaceMethods(t, name)
		}
		return false
	})
}

func (w *walker) goStructFields(structType *tree_sitter.Node, owner string) {
	cst.Walk(structType, func(f *tree_sitter.Node) bool {
		if f.Kind() != "field_declaration" {
			return true
		}
		fieldType := w.text(f.ChildByFieldName("type"))
		for i := uint(0); i < f.NamedChildCount(); i++ {
			c := f.NamedChild(i)
			if c == nil || c.Kind() != "field_identifier" {
				continue
			}
			name := w.text(c)
			w.symbol(f, name, model.KindProperty, owner, name+" "+fieldType, exportedGo(name))
		}
		return false
	})
}

func (w *walker) goInterfaceMethods(ifaceType *tree_sitter.Node, owner string) {
	cst.Walk(ifaceType, func(m *tree_sitter.Node) bool {
		// method_elem in the current grammar, method_spec in older trees
		if m.Kind() != "method_elem" && m.Kind() != "method_spec" {
			return true
		}
		name := w.text(m.ChildByFieldName("name"))
		if name == "" {
			return false
		}
		w.symbol(m, name, model.KindMethod, owner, name+w.goParams(m), exportedGo(name))
		return false
	})
}

func (w *walker) goValueSpecs(n *tree_sitter.Node, specKind string, kind model.Kind, pkg string) {
	cst.Walk(n, func(spec *tree_sitter.Node) bool {
		if spec.Kind() != specKind {
			return true
		}
		// Only the name field: `var x = y` has an identifier in the value too.
		cursor := spec.Walk()
		names := spec.ChildrenByFieldName("name", cursor)
		cursor.Close()
		for i := range names {
			c := &names[i]
			if c.Kind() != "identifier" {
				continue
			}
			name := w.text(c)
			w.symbol(spec, name, kind, pkg, name, exportedGo(name))
		}
		return false
	})
}

// goBody extracts short variable declarations and reference edges from a
// function body.
func (w *walker) goBody(owner string, body *tree_sitter.Node) {
	if body == nil {
		return
	}
	cst.Walk(body, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "short_var_declaration":
			if left := n.ChildByFieldName("left"); left != nil {
				for i := uint(0); i < left.NamedChildCount(); i++ {
					c := left.NamedChild(i)
					if c != nil && c.Kind() == "identifier" {
						name := w.text(c)
						if name != "_" {
							w.symbol(n, name, model.KindVariable, owner, name+" := ...", false)
						}
					}
				}
			}
		case "call_expression":
			if fn := n.ChildByFieldName("function"); fn != nil {
				w.addRef(owner, calleeName(w.text(fn)), model.DepCalls, n)
			}
		case "composite_literal":
			if t := n.ChildByFieldName("type"); t != nil {
				w.addRef(owner, calleeName(w.text(t)), model.DepInstantiates, n)
			}
		}
		return true
	})
}

// goParams renders "(params)" or "(params) result" for a function-ish node.
func (w *walker) goParams(n *tree_sitter.Node) string {
	sig := "()"
	if p := n.ChildByFieldName("parameters"); p != nil {
		sig = w.text(p)
	}
	if r := n.ChildByFieldName("result"); r != nil {
		sig += " " + w.text(r)
	}
	return sig
}
