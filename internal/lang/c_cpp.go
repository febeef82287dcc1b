package lang

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeatlas/codeatlas/internal/cst"
	"github.com/codeatlas/codeatlas/internal/model"
)

// walkC handles both C and C++; the C++ grammar is a superset for every node
// kind this walker touches. C vs C++ is chosen by file extension upstream.
func (w *walker) walkC(root *tree_sitter.Node) {
	w.cItems(root, "", true)
}

func (w *walker) cItems(container *tree_sitter.Node, parent string, access bool) {
	for i := uint(0); i < container.NamedChildCount(); i++ {
		w.cItem(container.NamedChild(i), parent, access)
	}
}

func (w *walker) cItem(n *tree_sitter.Node, parent string, access bool) {
	if n == nil {
		return
	}
	switch n.Kind() {
	case "preproc_include":
		if path := n.ChildByFieldName("path"); path != nil {
			w.addImport(w.text(path), n)
		}
	case "preproc_def", "preproc_function_def":
		if name := w.text(n.ChildByFieldName("name")); name != "" {
			w.symbol(n, name, model.KindConstant, parent, "#define "+name, true)
		}
	case "namespace_definition":
		name := w.text(n.ChildByFieldName("name"))
		if name == "" {
			return
		}
		w.symbol(n, name, model.KindNamespace, parent, "namespace "+name, true)
		if body := n.ChildByFieldName("body"); body != nil {
			w.cItems(body, name, true)
		}
	case "class_specifier":
		w.cRecord(n, parent, model.KindClass, "class", false)
	case "struct_specifier":
		w.cRecord(n, parent, model.KindInterface, "struct", true)
	case "union_specifier":
		name := w.text(n.ChildByFieldName("name"))
		if name != "" {
			w.symbol(n, name, model.KindType, parent, "union "+name, access)
		}
	case "function_definition":
		w.cFunction(n, parent, access)
	case "declaration":
		// Function prototypes: declaration wrapping a function_declarator.
		if fd := namedChildByKind(n, "function_declarator"); fd != nil {
			w.cDeclarator(n, fd, parent, access)
		}
	case "template_declaration", "linkage_specification", "preproc_ifdef", "preproc_if":
		w.cItems(n, parent, access)
	}
}

// cRecord extracts a class/struct body. defaultAccess is true for struct
// (members public by default) and false for class; access_specifier rows
// flip it as the body is scanned.
func (w *walker) cRecord(n *tree_sitter.Node, parent string, kind model.Kind, kw string, defaultAccess bool) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	w.symbol(n, name, kind, parent, kw+" "+name, true)

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	access := defaultAccess
	for i := uint(0); i < body.NamedChildCount(); i++ {
		m := body.NamedChild(i)
		if m == nil {
			continue
		}
		switch m.Kind() {
		case "access_specifier":
			access = strings.HasPrefix(w.text(m), "public")
		case "field_declaration":
			if fd := namedChildByKind(m, "function_declarator"); fd != nil {
				w.cMethodDecl(m, fd, name, access)
				continue
			}
			w.cField(m, name, access)
		case "function_definition":
			w.cFunction(m, name, access)
		case "class_specifier", "struct_specifier", "union_specifier":
			w.cItem(m, name, access)
		}
	}
}

func (w *walker) cField(m *tree_sitter.Node, owner string, access bool) {
	fieldType := w.text(m.ChildByFieldName("type"))
	cst.Walk(m, func(d *tree_sitter.Node) bool {
		if d.Kind() != "field_identifier" {
			return true
		}
		name := w.text(d)
		if name != "" {
			w.symbol(m, name, model.KindProperty, owner, strings.TrimSpace(fieldType+" "+name), access)
		}
		return false
	})
}

func (w *walker) cMethodDecl(m, fd *tree_sitter.Node, owner string, access bool) {
	name := calleeName(w.text(fd.ChildByFieldName("declarator")))
	if name == "" {
		return
	}
	params := w.text(fd.ChildByFieldName("parameters"))
	ret := w.text(m.ChildByFieldName("type"))
	w.symbol(m, name, model.KindMethod, owner, strings.TrimSpace(ret+" "+name+params), access)
}

// cFunction handles function_definition at top level, inside a namespace, or
// inside a class body. Out-of-class `Foo::bar` definitions attach to Foo.
func (w *walker) cFunction(n *tree_sitter.Node, parent string, access bool) {
	fd := n.ChildByFieldName("declarator")
	for fd != nil && fd.Kind() != "function_declarator" {
		fd = fd.ChildByFieldName("declarator")
	}
	if fd == nil {
		return
	}
	w.cDeclarator(n, fd, parent, access)
	decl := fd.ChildByFieldName("declarator")
	name := calleeName(w.text(decl))
	if name != "" {
		w.cBody(name, n.ChildByFieldName("body"))
	}
}

func (w *walker) cDeclarator(n, fd *tree_sitter.Node, parent string, access bool) {
	decl := fd.ChildByFieldName("declarator")
	if decl == nil {
		return
	}
	full := w.text(decl)
	name := calleeName(full)
	if name == "" {
		return
	}
	kind := model.KindFunction
	owner := parent
	if strings.Contains(full, "::") {
		// Qualified out-of-class definition: owner is the class part.
		if i := strings.LastIndex(full, "::"); i > 0 {
			owner = calleeName(full[:i])
		}
		kind = model.KindMethod
	} else if owner != "" && owner == parentRecordName(w, n) {
		kind = model.KindMethod
	}
	params := w.text(fd.ChildByFieldName("parameters"))
	ret := w.text(n.ChildByFieldName("type"))
	w.symbol(n, name, kind, owner, strings.TrimSpace(ret+" "+name+params), access)
}

// parentRecordName returns the name of the class/struct whose body directly
// contains n, or "".
func parentRecordName(w *walker, n *tree_sitter.Node) string {
	p := n.Parent()
	if p == nil || p.Kind() != "field_declaration_list" {
		return ""
	}
	rec := p.Parent()
	if rec == nil {
		return ""
	}
	switch rec.Kind() {
	case "class_specifier", "struct_specifier":
		return w.text(rec.ChildByFieldName("name"))
	}
	return ""
}

// cBody records call and instantiation references inside a function body.
func (w *walker) cBody(owner string, body *tree_sitter.Node) {
	if body == nil {
		return
	}
	cst.Walk(body, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "call_expression":
			if fn := n.ChildByFieldName("function"); fn != nil {
				w.addRef(owner, calleeName(w.text(fn)), model.DepCalls, n)
			}
		case "new_expression":
			if t := n.ChildByFieldName("type"); t != nil {
				w.addRef(owner, calleeName(w.text(t)), model.DepInstantiates, n)
			}
		}
		return true
	})
}
