// Package cst holds the tree-sitter node helpers shared by the parser and
// the language walkers. It sits below both so neither has to duplicate
// traversal code.
package cst

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// WalkFunc is called for each node during tree traversal.
// Return false to skip children.
type WalkFunc func(node *tree_sitter.Node) bool

// Walk traverses the tree in depth-first order using an explicit stack, so
// deeply nested sources cannot exhaust the goroutine stack.
func Walk(node *tree_sitter.Node, fn WalkFunc) {
	if node == nil {
		return
	}
	stack := []*tree_sitter.Node{node}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(n) {
			continue
		}
		// Push children in reverse so traversal order matches the source.
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if child := n.Child(uint(i)); child != nil {
				stack = append(stack, child)
			}
		}
	}
}

// NodeText returns the text content of a node.
func NodeText(node *tree_sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}
