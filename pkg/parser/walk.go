package parser

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/ganezdragon/perl-language-server/pkg/model"
)

// ForEachNode visits node and every descendant in document order. The
// visitor returns false to skip the node's children.
func ForEachNode(node *sitter.Node, visit func(*sitter.Node) bool) {
	if node == nil {
		return
	}
	if !visit(node) {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		ForEachNode(node.Child(i), visit)
	}
}

// NodeAt returns the smallest named node covering the position.
func NodeAt(root *sitter.Node, pos model.Position) *sitter.Node {
	if root == nil {
		return nil
	}
	point := sitter.Point{Row: pos.Row, Column: pos.Column}
	return root.NamedDescendantForPointRange(point, point)
}

// RangeOf converts a node's extent to a model range.
func RangeOf(node *sitter.Node) model.Range {
	start := node.StartPoint()
	end := node.EndPoint()
	return model.Range{
		Start: model.Position{Row: start.Row, Column: start.Column},
		End:   model.Position{Row: end.Row, Column: end.Column},
	}
}

// Text returns the node's source text.
func Text(node *sitter.Node, src []byte) string {
	if node == nil {
		return ""
	}
	return node.Content(src)
}
