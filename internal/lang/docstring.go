package lang

import (
	"bytes"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// docstring extracts the documentation comment for a declaration node.
// Python: triple-quoted string as first statement in the body (PEP 257).
// Everything else: scan source lines backwards from the declaration for a
// contiguous comment block (//, ///, /* ... */, /** ... */, #).
func (w *walker) docstring(n *tree_sitter.Node) string {
	if w.lang == Python {
		return w.pythonDocstring(n)
	}
	return commentDocstring(w.src, int(n.StartPosition().Row))
}

func (w *walker) pythonDocstring(n *tree_sitter.Node) string {
	body := n.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first == nil || first.Kind() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	strNode := first.NamedChild(0)
	if strNode == nil || strNode.Kind() != "string" {
		return ""
	}
	return cleanPythonDocstring(w.text(strNode))
}

// cleanPythonDocstring removes triple-quote delimiters and dedents.
func cleanPythonDocstring(s string) string {
	for _, delim := range []string{`"""`, `'''`} {
		if strings.HasPrefix(s, delim) && strings.HasSuffix(s, delim) && len(s) >= 6 {
			s = s[3 : len(s)-3]
			break
		}
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= 1 {
		return strings.TrimSpace(s)
	}
	minIndent := -1
	for _, line := range lines[1:] {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(trimmed)
		if minIndent < 0 || indent < minIndent {
			minIndent = indent
		}
	}
	if minIndent > 0 {
		for i := 1; i < len(lines); i++ {
			if len(lines[i]) >= minIndent {
				lines[i] = lines[i][minIndent:]
			}
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// commentDocstring scans backwards from startRow (0-based) for comments.
func commentDocstring(source []byte, startRow int) string {
	lines := bytes.Split(source, []byte("\n"))
	if startRow <= 0 || startRow > len(lines) {
		return ""
	}

	idx := startRow - 1
	trimmed := strings.TrimSpace(string(lines[idx]))
	if trimmed == "" {
		return ""
	}

	// Block comment ending with */
	if strings.HasSuffix(trimmed, "*/") {
		return blockComment(lines, idx)
	}

	// Contiguous line comments (//, ///, #)
	if isLineComment(trimmed) {
		var collected []string
		for idx >= 0 {
			t := strings.TrimSpace(string(lines[idx]))
			if !isLineComment(t) {
				break
			}
			collected = append([]string{stripLineComment(t)}, collected...)
			idx--
		}
		return strings.TrimSpace(strings.Join(collected, "\n"))
	}
	return ""
}

func isLineComment(line string) bool {
	return strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#")
}

func stripLineComment(line string) string {
	for _, prefix := range []string{"///", "//", "#"} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return line
}

// blockComment collects a /* ... */ or /** ... */ block ending at endIdx.
func blockComment(lines [][]byte, endIdx int) string {
	start := endIdx
	for start >= 0 {
		t := strings.TrimSpace(string(lines[start]))
		if strings.HasPrefix(t, "/*") {
			break
		}
		start--
	}
	if start < 0 {
		return ""
	}
	var collected []string
	for i := start; i <= endIdx; i++ {
		t := strings.TrimSpace(string(lines[i]))
		t = strings.TrimPrefix(t, "/**")
		t = strings.TrimPrefix(t, "/*")
		t = strings.TrimSuffix(t, "*/")
		t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "*"))
		if t != "" {
			collected = append(collected, t)
		}
	}
	return strings.TrimSpace(strings.Join(collected, "\n"))
}
