package lang

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeatlas/codeatlas/internal/cst"
	"github.com/codeatlas/codeatlas/internal/model"
)

// walkJava extracts the package declaration, classes with their heritage,
// interfaces, enums and constants, methods, constructors, fields and local
// variables, and fully qualified imports.
func (w *walker) walkJava(root *tree_sitter.Node) {
	for i := uint(0); i < root.NamedChildCount(); i++ {
		n := root.NamedChild(i)
		if n == nil {
			continue
		}
		switch n.Kind() {
		case "package_declaration":
			if id := n.NamedChild(0); id != nil {
				name := w.text(id)
				w.symbol(n, name, model.KindNamespace, "", "package "+name, true)
			}
		case "import_declaration":
			if id := n.NamedChild(0); id != nil {
				w.addImport(w.text(id), n)
			}
		case "class_declaration":
			w.javaClass(n, "")
		case "interface_declaration":
			w.javaInterface(n, "")
		case "enum_declaration":
			w.javaEnum(n, "")
		}
	}
}

// javaPublic derives exported per the Java rules: an explicit public
// modifier; defaultPublic covers members with no modifiers block at all
// (interface members).
func (w *walker) javaPublic(n *tree_sitter.Node, defaultPublic bool) bool {
	mods := childByKind(n, "modifiers")
	if mods == nil {
		return defaultPublic
	}
	return strings.Contains(w.text(mods), "public")
}

func (w *walker) javaClass(n *tree_sitter.Node, parent string) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}

	var ext []string
	if sup := n.ChildByFieldName("superclass"); sup != nil {
		for i := uint(0); i < sup.NamedChildCount(); i++ {
			if t := sup.NamedChild(i); t != nil {
				ext = append(ext, calleeName(w.text(t)))
			}
		}
	}
	var impl []string
	if ifaces := n.ChildByFieldName("interfaces"); ifaces != nil {
		cst.Walk(ifaces, func(t *tree_sitter.Node) bool {
			if t.Kind() == "type_identifier" {
				impl = append(impl, w.text(t))
			}
			return true
		})
	}

	sig := "class " + name
	if len(ext) > 0 {
		sig += " extends " + strings.Join(ext, ", ")
	}
	if len(impl) > 0 {
		sig += " implements " + strings.Join(impl, ", ")
	}
	w.symbol(n, name, model.KindClass, parent, sig, w.javaPublic(n, false))
	for _, e := range ext {
		w.addRef(name, e, model.DepExtends, n)
	}
	for _, im := range impl {
		w.addRef(name, im, model.DepImplements, n)
	}

	w.javaMembers(n.ChildByFieldName("body"), name, false)
}

func (w *walker) javaInterface(n *tree_sitter.Node, parent string) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	sig := "interface " + name
	var ext []string
	if extNode := childByKind(n, "extends_interfaces"); extNode != nil {
		cst.Walk(extNode, func(t *tree_sitter.Node) bool {
			if t.Kind() == "type_identifier" {
				ext = append(ext, w.text(t))
			}
			return true
		})
	}
	if len(ext) > 0 {
		sig += " extends " + strings.Join(ext, ", ")
	}
	w.symbol(n, name, model.KindInterface, parent, sig, w.javaPublic(n, false))
	for _, e := range ext {
		w.addRef(name, e, model.DepExtends, n)
	}

	w.javaMembers(n.ChildByFieldName("body"), name, true)
}

func (w *walker) javaEnum(n *tree_sitter.Node, parent string) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	w.symbol(n, name, model.KindEnum, parent, "enum "+name, w.javaPublic(n, false))

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		c := body.NamedChild(i)
		if c == nil {
			continue
		}
		switch c.Kind() {
		case "enum_constant":
			constName := w.text(c.ChildByFieldName("name"))
			if constName != "" {
				w.symbol(c, constName, model.KindConstant, name, constName, true)
			}
		case "enum_body_declarations":
			w.javaMembers(c, name, false)
		}
	}
}

// javaMembers walks a class/interface/enum body for methods, constructors
// and fields. interfaceCtx makes members public by default.
func (w *walker) javaMembers(body *tree_sitter.Node, owner string, interfaceCtx bool) {
	if body == nil {
		return
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		m := body.NamedChild(i)
		if m == nil {
			continue
		}
		switch m.Kind() {
		case "method_declaration":
			name := w.text(m.ChildByFieldName("name"))
			if name == "" {
				continue
			}
			ret := w.text(m.ChildByFieldName("type"))
			params := w.text(m.ChildByFieldName("parameters"))
			sig := strings.TrimSpace(ret + " " + name + params)
			w.symbol(m, name, model.KindMethod, owner, sig, w.javaPublic(m, interfaceCtx))
			w.javaBody(name, m.ChildByFieldName("body"))
		case "constructor_declaration":
			name := w.text(m.ChildByFieldName("name"))
			if name == "" {
				continue
			}
			params := w.text(m.ChildByFieldName("parameters"))
			w.symbol(m, name, model.KindConstructor, owner, name+params, w.javaPublic(m, interfaceCtx))
			w.javaBody(name, m.ChildByFieldName("body"))
		case "field_declaration":
			w.javaField(m, owner, interfaceCtx)
		case "class_declaration":
			w.javaClass(m, owner)
		case "interface_declaration":
			w.javaInterface(m, owner)
		case "enum_declaration":
			w.javaEnum(m, owner)
		}
	}
}

func (w *walker) javaField(m *tree_sitter.Node, owner string, interfaceCtx bool) {
	kind := model.KindProperty
	if mods := childByKind(m, "modifiers"); mods != nil && strings.Contains(w.text(mods), "static") {
		kind = model.KindConstant
	}
	if interfaceCtx {
		kind = model.KindConstant // interface fields are implicitly static final
	}
	fieldType := w.text(m.ChildByFieldName("type"))
	for i := uint(0); i < m.NamedChildCount(); i++ {
		d := m.NamedChild(i)
		if d == nil || d.Kind() != "variable_declarator" {
			continue
		}
		name := w.text(d.ChildByFieldName("name"))
		if name == "" {
			continue
		}
		w.symbol(d, name, kind, owner, strings.TrimSpace(fieldType+" "+name), w.javaPublic(m, interfaceCtx))
	}
}

// javaBody extracts local variables and reference edges from a method body.
func (w *walker) javaBody(owner string, body *tree_sitter.Node) {
	if body == nil {
		return
	}
	cst.Walk(body, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "local_variable_declaration":
			for i := uint(0); i < n.NamedChildCount(); i++ {
				d := n.NamedChild(i)
				if d != nil && d.Kind() == "variable_declarator" {
					if name := w.text(d.ChildByFieldName("name")); name != "" {
						w.symbol(d, name, model.KindVariable, owner, name, false)
					}
				}
			}
		case "method_invocation":
			if name := w.text(n.ChildByFieldName("name")); name != "" {
				w.addRef(owner, name, model.DepCalls, n)
			}
		case "object_creation_expression":
			if t := n.ChildByFieldName("type"); t != nil {
				w.addRef(owner, calleeName(w.text(t)), model.DepInstantiates, n)
			}
		}
		return true
	})
}
