package lang

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeatlas/codeatlas/internal/cst"
	"github.com/codeatlas/codeatlas/internal/model"
)

// walkRust extracts modules, structs, enums with variants, traits, impl
// blocks (whose fns become methods of the implemented type), free functions,
// consts, statics, type aliases, struct fields, local lets and use imports.
func (w *walker) walkRust(root *tree_sitter.Node) {
	w.rustItems(root, "")
}

func (w *walker) rustItems(container *tree_sitter.Node, parent string) {
	for i := uint(0); i < container.NamedChildCount(); i++ {
		w.rustItem(container.NamedChild(i), parent)
	}
}

// rustPub reports top-level visibility: a `pub` modifier child.
func (w *walker) rustPub(n *tree_sitter.Node) bool {
	return childByKind(n, "visibility_modifier") != nil
}

func (w *walker) rustItem(n *tree_sitter.Node, parent string) {
	if n == nil {
		return
	}
	switch n.Kind() {
	case "mod_item":
		name := w.text(n.ChildByFieldName("name"))
		if name == "" {
			return
		}
		w.symbol(n, name, model.KindModule, parent, "mod "+name, w.rustPub(n))
		if body := n.ChildByFieldName("body"); body != nil {
			w.rustItems(body, name)
		}
	case "struct_item":
		w.rustStruct(n, parent)
	case "enum_item":
		w.rustEnum(n, parent)
	case "trait_item":
		w.rustTrait(n, parent)
	case "impl_item":
		w.rustImpl(n, parent)
	case "function_item":
		w.rustFn(n, parent, model.KindFunction)
	case "const_item":
		name := w.text(n.ChildByFieldName("name"))
		if name != "" {
			w.symbol(n, name, model.KindConstant, parent, "const "+name, w.rustPub(n))
		}
	case "static_item":
		name := w.text(n.ChildByFieldName("name"))
		if name != "" {
			w.symbol(n, name, model.KindConstant, parent, "static "+name, w.rustPub(n))
		}
	case "type_item":
		name := w.text(n.ChildByFieldName("name"))
		if name != "" {
			w.symbol(n, name, model.KindType, parent, "type "+name, w.rustPub(n))
		}
	case "use_declaration":
		if arg := n.ChildByFieldName("argument"); arg != nil {
			w.addImport(w.text(arg), n)
		}
	}
}

func (w *walker) rustStruct(n *tree_sitter.Node, parent string) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	w.symbol(n, name, model.KindClass, parent, "struct "+name, w.rustPub(n))

	if body := n.ChildByFieldName("body"); body != nil {
		for i := uint(0); i < body.NamedChildCount(); i++ {
			f := body.NamedChild(i)
			if f == nil || f.Kind() != "field_declaration" {
				continue
			}
			fieldName := w.text(f.ChildByFieldName("name"))
			if fieldName == "" {
				continue
			}
			sig := fieldName + ": " + w.text(f.ChildByFieldName("type"))
			w.symbol(f, fieldName, model.KindProperty, name, sig, w.rustPub(f))
		}
	}
}

func (w *walker) rustEnum(n *tree_sitter.Node, parent string) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	w.symbol(n, name, model.KindEnum, parent, "enum "+name, w.rustPub(n))

	if body := n.ChildByFieldName("body"); body != nil {
		for i := uint(0); i < body.NamedChildCount(); i++ {
			v := body.NamedChild(i)
			if v == nil || v.Kind() != "enum_variant" {
				continue
			}
			variant := w.text(v.ChildByFieldName("name"))
			if variant != "" {
				w.symbol(v, variant, model.KindConstant, name, variant, true)
			}
		}
	}
}

func (w *walker) rustTrait(n *tree_sitter.Node, parent string) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	w.symbol(n, name, model.KindInterface, parent, "trait "+name, w.rustPub(n))

	if body := n.ChildByFieldName("body"); body != nil {
		for i := uint(0); i < body.NamedChildCount(); i++ {
			m := body.NamedChild(i)
			if m == nil {
				continue
			}
			if m.Kind() == "function_item" || m.Kind() == "function_signature_item" {
				mName := w.text(m.ChildByFieldName("name"))
				if mName != "" {
					w.symbol(m, mName, model.KindMethod, name, "fn "+mName+w.rustParams(m), true)
				}
			}
		}
	}
}

// rustImpl makes the implemented type the owner of every fn in the block.
// `impl Trait for Type` also records an implements edge.
func (w *walker) rustImpl(n *tree_sitter.Node, _ string) {
	typeName := calleeName(w.text(n.ChildByFieldName("type")))
	if typeName == "" {
		return
	}
	if trait := n.ChildByFieldName("trait"); trait != nil {
		w.addRef(typeName, calleeName(w.text(trait)), model.DepImplements, n)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		for i := uint(0); i < body.NamedChildCount(); i++ {
			m := body.NamedChild(i)
			if m != nil && m.Kind() == "function_item" {
				w.rustFn(m, typeName, model.KindMethod)
			}
		}
	}
}

func (w *walker) rustFn(n *tree_sitter.Node, parent string, kind model.Kind) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	w.symbol(n, name, kind, parent, "fn "+name+w.rustParams(n), w.rustPub(n))
	w.rustBody(name, n.ChildByFieldName("body"))
}

func (w *walker) rustParams(n *tree_sitter.Node) string {
	sig := "()"
	if p := n.ChildByFieldName("parameters"); p != nil {
		sig = w.text(p)
	}
	if r := n.ChildByFieldName("return_type"); r != nil {
		sig += " -> " + w.text(r)
	}
	return sig
}

// rustBody extracts local lets (identifier patterns only) and references.
func (w *walker) rustBody(owner string, body *tree_sitter.Node) {
	if body == nil {
		return
	}
	cst.Walk(body, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "let_declaration":
			if pat := n.ChildByFieldName("pattern"); pat != nil && pat.Kind() == "identifier" {
				name := w.text(pat)
				w.symbol(n, name, model.KindVariable, owner, "let "+name, false)
			}
		case "call_expression":
			if fn := n.ChildByFieldName("function"); fn != nil {
				w.addRef(owner, calleeName(w.text(fn)), model.DepCalls, n)
			}
		case "struct_expression":
			if t := n.ChildByFieldName("name"); t != nil {
				w.addRef(owner, calleeName(w.text(t)), model.DepInstantiates, n)
			}
		}
		return true
	})
}
