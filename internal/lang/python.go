package lang

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeatlas/codeatlas/internal/cst"
	"github.com/codeatlas/codeatlas/internal/model"
)

// walkPython extracts classes, functions, methods, module-level and self.*
// assignments, and import edges. Every top-level definition is exported.
func (w *walker) walkPython(root *tree_sitter.Node) {
	for i := uint(0); i < root.NamedChildCount(); i++ {
		w.pyStatement(root.NamedChild(i), "", true)
	}
}

func (w *walker) pyStatement(n *tree_sitter.Node, parent string, topLevel bool) {
	if n == nil {
		return
	}
	switch n.Kind() {
	case "decorated_definition":
		if def := n.ChildByFieldName("definition"); def != nil {
			w.pyStatement(def, parent, topLevel)
		}
	case "class_definition":
		w.pyClass(n, parent, topLevel)
	case "function_definition":
		w.pyFunction(n, parent, topLevel)
	case "import_statement":
		for i := uint(0); i < n.NamedChildCount(); i++ {
			c := n.NamedChild(i)
			if c == nil {
				continue
			}
			switch c.Kind() {
			case "dotted_name":
				w.addImport(w.text(c), n)
			case "aliased_import":
				if name := c.ChildByFieldName("name"); name != nil {
					w.addImport(w.text(name), n)
				}
			}
		}
	case "import_from_statement":
		if mod := n.ChildByFieldName("module_name"); mod != nil {
			w.addImport(w.text(mod), n)
		}
	case "expression_statement":
		for i := uint(0); i < n.NamedChildCount(); i++ {
			c := n.NamedChild(i)
			if c != nil && c.Kind() == "assignment" {
				w.pyAssignment(c, parent, topLevel)
			}
		}
	}
}

func (w *walker) pyClass(n *tree_sitter.Node, parent string, topLevel bool) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	var bases []string
	if sup := n.ChildByFieldName("superclasses"); sup != nil {
		for i := uint(0); i < sup.NamedChildCount(); i++ {
			if b := sup.NamedChild(i); b != nil {
				if base := calleeName(w.text(b)); base != "" {
					bases = append(bases, base)
				}
			}
		}
	}
	sig := "class " + name
	if len(bases) > 0 {
		sig += "(" + strings.Join(bases, ", ") + ")"
	}
	w.symbol(n, name, model.KindClass, parent, sig, topLevel)
	for _, b := range bases {
		w.addRef(name, b, model.DepExtends, n)
	}

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		w.pyStatement(body.NamedChild(i), name, false)
	}
}

func (w *walker) pyFunction(n *tree_sitter.Node, parent string, topLevel bool) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	params := "()"
	if p := n.ChildByFieldName("parameters"); p != nil {
		params = w.text(p)
	}
	kind := model.KindFunction
	sig := "def " + name + params
	if parent != "" {
		kind = model.KindMethod
	}
	w.symbol(n, name, kind, parent, sig, topLevel)

	if body := n.ChildByFieldName("body"); body != nil {
		w.pyBodyRefs(name, body)
		// self.x assignments become properties of the enclosing class.
		if parent != "" {
			w.pySelfAssignments(parent, body)
		}
	}
}

func (w *walker) pyAssignment(n *tree_sitter.Node, parent string, topLevel bool) {
	left := n.ChildByFieldName("left")
	if left == nil || left.Kind() != "identifier" {
		return
	}
	name := w.text(left)
	kind := model.KindVariable
	if upperIdent(name) {
		kind = model.KindConstant
	}
	w.symbol(n, name, kind, parent, name+" = ...", topLevel)
}

// pySelfAssignments finds `self.x = ...` statements in a method body.
func (w *walker) pySelfAssignments(class string, body *tree_sitter.Node) {
	cst.Walk(body, func(n *tree_sitter.Node) bool {
		if n.Kind() != "assignment" {
			return true
		}
		left := n.ChildByFieldName("left")
		if left == nil || left.Kind() != "attribute" {
			return true
		}
		obj := left.ChildByFieldName("object")
		attr := left.ChildByFieldName("attribute")
		if obj == nil || attr == nil || w.text(obj) != "self" {
			return true
		}
		name := w.text(attr)
		kind := model.KindVariable
		if upperIdent(name) {
			kind = model.KindConstant
		}
		w.symbol(n, name, kind, class, "self."+name, false)
		return true
	})
}

// pyBodyRefs records calls inside a function body. Python has no dedicated
// instantiation syntax, so capitalised callees count as instantiation.
func (w *walker) pyBodyRefs(owner string, body *tree_sitter.Node) {
	cst.Walk(body, func(n *tree_sitter.Node) bool {
		if n.Kind() != "call" {
			return true
		}
		fn := n.ChildByFieldName("function")
		if fn == nil {
			return true
		}
		name := calleeName(w.text(fn))
		if name == "" {
			return true
		}
		if r := []rune(name)[0]; r >= 'A' && r <= 'Z' {
			w.addRef(owner, name, model.DepInstantiates, n)
		} else {
			w.addRef(owner, name, model.DepCalls, n)
		}
		return true
	})
}
