package lang

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeatlas/codeatlas/internal/cst"
	"github.com/codeatlas/codeatlas/internal/model"
)

// walkTypeScript handles TypeScript, TSX and the JavaScript family. The two
// grammars share node kinds for everything this walker touches.
func (w *walker) walkTypeScript(root *tree_sitter.Node) {
	for i := uint(0); i < root.NamedChildCount(); i++ {
		w.tsDeclaration(root.NamedChild(i), "", false)
	}
}

// tsDeclaration dispatches one top-level or nested statement. An export
// statement descends into its declaration exactly once, marking it exported.
func (w *walker) tsDeclaration(n *tree_sitter.Node, parent string, exported bool) {
	if n == nil {
		return
	}
	switch n.Kind() {
	case "export_statement":
		if decl := n.ChildByFieldName("declaration"); decl != nil {
			w.tsDeclaration(decl, parent, true)
		}
	case "import_statement":
		if src := n.ChildByFieldName("source"); src != nil {
			w.addImport(w.text(src), n)
		}
	case "class_declaration", "abstract_class_declaration":
		w.tsClass(n, parent, exported)
	case "interface_declaration":
		w.tsInterface(n, parent, exported)
	case "enum_declaration":
		w.tsEnum(n, parent, exported)
	case "type_alias_declaration":
		if name := w.text(n.ChildByFieldName("name")); name != "" {
			w.symbol(n, name, model.KindType, parent, "type "+name, exported)
		}
	case "internal_module", "module":
		w.tsNamespace(n, parent, exported)
	case "function_declaration", "generator_function_declaration":
		w.tsFunction(n, parent, exported)
	case "lexical_declaration", "variable_declaration":
		w.tsVariables(n, parent, exported)
	case "expression_statement", "statement_block":
		for i := uint(0); i < n.NamedChildCount(); i++ {
			w.tsDeclaration(n.NamedChild(i), parent, false)
		}
	}
}

// tsHeritage collects extends/implements names from a class or interface.
func (w *walker) tsHeritage(n *tree_sitter.Node) (ext, impl []string) {
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		switch c.Kind() {
		case "class_heritage":
			for j := uint(0); j < c.ChildCount(); j++ {
				clause := c.Child(j)
				if clause == nil {
					continue
				}
				switch clause.Kind() {
				case "extends_clause":
					ext = append(ext, typeNames(w, clause)...)
				case "implements_clause":
					impl = append(impl, typeNames(w, clause)...)
				default:
					// JS grammar: class_heritage is "extends <expr>" directly.
					if clause.IsNamed() {
						if name := w.text(clause); name != "" {
							ext = append(ext, name)
						}
					}
				}
			}
		case "extends_type_clause":
			ext = append(ext, typeNames(w, c)...)
		}
	}
	return
}

// typeNames returns the simple names of a clause's named children.
func typeNames(w *walker, clause *tree_sitter.Node) []string {
	var names []string
	for i := uint(0); i < clause.NamedChildCount(); i++ {
		c := clause.NamedChild(i)
		if c == nil {
			continue
		}
		name := calleeName(w.text(c))
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (w *walker) tsClass(n *tree_sitter.Node, parent string, exported bool) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	ext, impl := w.tsHeritage(n)

	sig := "class " + name
	if len(ext) > 0 {
		sig += " extends " + strings.Join(ext, ", ")
	}
	if len(impl) > 0 {
		sig += " implements " + strings.Join(impl, ", ")
	}
	w.symbol(n, name, model.KindClass, parent, sig, exported)

	for _, e := range ext {
		w.addRef(name, e, model.DepExtends, n)
	}
	for _, im := range impl {
		w.addRef(name, im, model.DepImplements, n)
	}

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		member := body.NamedChild(i)
		if member == nil {
			continue
		}
		switch member.Kind() {
		case "method_definition":
			w.tsMethod(member, name)
		case "public_field_definition", "field_definition":
			fieldName := w.text(member.ChildByFieldName("name"))
			if fieldName == "" {
				fieldName = w.text(member.ChildByFieldName("property"))
			}
			if fieldName == "" {
				continue
			}
			if value := member.ChildByFieldName("value"); value != nil &&
				(value.Kind() == "arrow_function" || value.Kind() == "function_expression" || value.Kind() == "function") {
				sig := fieldName + w.tsParams(value)
				w.symbol(member, fieldName, model.KindMethod, name, sig, true)
				w.tsBodyRefs(fieldName, value.ChildByFieldName("body"))
				continue
			}
			sig := fieldName
			if t := member.ChildByFieldName("type"); t != nil {
				sig += w.text(t)
			}
			w.symbol(member, fieldName, model.KindProperty, name, sig, true)
		}
	}
}

func (w *walker) tsMethod(n *tree_sitter.Node, owner string) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	kind := model.KindMethod
	if name == "constructor" {
		kind = model.KindConstructor
	}
	w.symbol(n, name, kind, owner, name+w.tsParams(n), true)
	w.tsBodyRefs(name, n.ChildByFieldName("body"))
}

func (w *walker) tsInterface(n *tree_sitter.Node, parent string, exported bool) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	ext, _ := w.tsHeritage(n)
	sig := "interface " + name
	if len(ext) > 0 {
		sig += " extends " + strings.Join(ext, ", ")
	}
	w.symbol(n, name, model.KindInterface, parent, sig, exported)
	for _, e := range ext {
		w.addRef(name, e, model.DepExtends, n)
	}

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		member := body.NamedChild(i)
		if member == nil {
			continue
		}
		memberName := w.text(member.ChildByFieldName("name"))
		if memberName == "" {
			continue
		}
		switch member.Kind() {
		case "property_signature":
			w.symbol(member, memberName, model.KindProperty, name, memberName, true)
		case "method_signature":
			w.symbol(member, memberName, model.KindMethod, name, memberName+w.tsParams(member), true)
		}
	}
}

func (w *walker) tsEnum(n *tree_sitter.Node, parent string, exported bool) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	w.symbol(n, name, model.KindEnum, parent, "enum "+name, exported)

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		member := body.NamedChild(i)
		if member == nil {
			continue
		}
		memberName := ""
		switch member.Kind() {
		case "enum_assignment":
			memberName = w.text(member.ChildByFieldName("name"))
		case "property_identifier":
			memberName = w.text(member)
		}
		if memberName != "" {
			w.symbol(member, memberName, model.KindConstant, name, memberName, true)
		}
	}
}

func (w *walker) tsNamespace(n *tree_sitter.Node, parent string, exported bool) {
	name := strings.Trim(w.text(n.ChildByFieldName("name")), "\"'")
	if name == "" {
		return
	}
	kind := model.KindNamespace
	sig := "namespace " + name
	if n.Kind() == "module" {
		kind = model.KindModule
		sig = "module " + name
	}
	w.symbol(n, name, kind, parent, sig, exported)

	if body := n.ChildByFieldName("body"); body != nil {
		for i := uint(0); i < body.NamedChildCount(); i++ {
			w.tsDeclaration(body.NamedChild(i), name, false)
		}
	}
}

func (w *walker) tsFunction(n *tree_sitter.Node, parent string, exported bool) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	w.symbol(n, name, model.KindFunction, parent, "function "+name+w.tsParams(n), exported)
	w.tsBodyRefs(name, n.ChildByFieldName("body"))
}

// tsVariables handles const/let/var declarations, including arrow-function
// values which become function symbols.
func (w *walker) tsVariables(n *tree_sitter.Node, parent string, exported bool) {
	isConst := w.hasChildToken(n, "const")
	for i := uint(0); i < n.NamedChildCount(); i++ {
		decl := n.NamedChild(i)
		if decl == nil || decl.Kind() != "variable_declarator" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		if nameNode == nil || nameNode.Kind() != "identifier" {
			continue // destructuring patterns are not symbols
		}
		name := w.text(nameNode)
		value := decl.ChildByFieldName("value")
		if value != nil && (value.Kind() == "arrow_function" || value.Kind() == "function_expression" || value.Kind() == "function") {
			kw := "let"
			if isConst {
				kw = "const"
			}
			sig := kw + " " + name + " = " + w.tsParams(value) + " =>"
			w.symbol(decl, name, model.KindFunction, parent, sig, exported)
			w.tsBodyRefs(name, value.ChildByFieldName("body"))
			continue
		}
		kind := model.KindVariable
		if isConst {
			kind = model.KindConstant
		}
		w.symbol(decl, name, kind, parent, name, exported)
	}
}

// tsParams renders the parameter list text, "()" when absent.
func (w *walker) tsParams(n *tree_sitter.Node) string {
	if p := n.ChildByFieldName("parameters"); p != nil {
		return w.text(p)
	}
	if p := n.ChildByFieldName("parameter"); p != nil {
		return "(" + w.text(p) + ")"
	}
	return "()"
}

// tsBodyRefs records call and instantiation references inside a body,
// attributed to the enclosing symbol's name.
func (w *walker) tsBodyRefs(owner string, body *tree_sitter.Node) {
	if body == nil {
		return
	}
	cst.Walk(body, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "new_expression":
			if c := n.ChildByFieldName("constructor"); c != nil {
				w.addRef(owner, calleeName(w.text(c)), model.DepInstantiates, n)
			}
			return true
		case "call_expression":
			if fn := n.ChildByFieldName("function"); fn != nil {
				w.addRef(owner, calleeName(w.text(fn)), model.DepCalls, n)
			}
			return true
		}
		return true
	})
}
