// Package analyzer turns a parsed Perl syntax tree into the per-file symbol
// record: subroutine declarations, call sites, and package scoping, plus
// syntax diagnostics for error and missing nodes.
package analyzer

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/ganezdragon/perl-language-server/pkg/model"
	"github.com/ganezdragon/perl-language-server/pkg/parser"
)

// Extract runs the single extraction pass over a tree and produces the
// per-file index. Declarations keep document order; references are grouped
// by function name, each group in document order.
func Extract(uri string, tree *sitter.Tree, src []byte) model.PerFileIndex {
	out := model.PerFileIndex{
		References: make(map[string][]model.FunctionReference),
	}
	parser.ForEachNode(tree.RootNode(), func(node *sitter.Node) bool {
		kind := node.Type()
		switch {
		case kind == KindFunctionDefinition:
			name := node.ChildByFieldName(FieldName)
			if name == nil {
				return true
			}
			out.Declarations = append(out.Declarations, model.FunctionReference{
				URI:          uri,
				FunctionName: parser.Text(name, src),
				PackageName:  enclosingPackage(node, src),
				Position:     parser.RangeOf(name),
			})
		case IsCallKind(kind):
			name := callNameNode(node)
			if name == nil {
				return true
			}
			text := parser.Text(name, src)
			out.References[text] = append(out.References[text], model.FunctionReference{
				URI:          uri,
				FunctionName: text,
				PackageName:  enclosingPackage(node, src),
				Position:     parser.RangeOf(name),
			})
		}
		return true
	})
	return out
}

// callNameNode resolves the function_name field of a call site, which sits
// either on the call node itself or on its first child.
func callNameNode(node *sitter.Node) *sitter.Node {
	if name := node.ChildByFieldName(FieldFunctionName); name != nil {
		return name
	}
	if node.ChildCount() == 0 {
		return nil
	}
	return node.Child(0).ChildByFieldName(FieldFunctionName)
}

// enclosingPackage walks ancestors until one contains package_statement
// descendants and returns the last such statement's package name. Nested
// packages are allowed; a file with no package statement yields "".
func enclosingPackage(node *sitter.Node, src []byte) string {
	for anc := node.Parent(); anc != nil; anc = anc.Parent() {
		var last *sitter.Node
		parser.ForEachNode(anc, func(n *sitter.Node) bool {
			if n.Type() == KindPackageStatement {
				last = n
				return false
			}
			return true
		})
		if last != nil {
			return packageNameOf(last, src)
		}
	}
	return ""
}

func packageNameOf(stmt *sitter.Node, src []byte) string {
	if name := stmt.ChildByFieldName(FieldPackageName); name != nil {
		return strings.TrimSpace(parser.Text(name, src))
	}
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		child := stmt.NamedChild(i)
		if child.Type() == KindPackageName {
			return strings.TrimSpace(parser.Text(child, src))
		}
	}
	return ""
}
