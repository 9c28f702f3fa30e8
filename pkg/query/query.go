// Package query implements the language-intelligence queries as pure
// functions over the workspace index: definition, references, rename,
// completion, hover, document and workspace symbols, and import synthesis.
// Node classification is by tree-sitter node kind only.
package query

import (
	"errors"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/ganezdragon/perl-language-server/pkg/analyzer"
	"github.com/ganezdragon/perl-language-server/pkg/model"
)

// ErrInvalidRename marks rename requests on empty names or non-symbols.
// The facade returns it as an ordinary request error whose message starts
// with "invalid params"; it sets no InvalidParams error code.
var ErrInvalidRename = errors.New("cannot rename at this position")

func isVariableKind(kind string) bool {
	return strings.HasSuffix(kind, "_variable")
}

// isFunctionContext reports whether the node sits in a call site or a
// subroutine declaration.
func isFunctionContext(node *sitter.Node) bool {
	parent := node.Parent()
	if parent == nil {
		return false
	}
	kind := parent.Type()
	return strings.Contains(kind, "call_expression") ||
		kind == analyzer.KindMethodInvocation ||
		kind == analyzer.KindFunctionDefinition
}

func protoRange(r model.Range) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: r.Start.Row, Character: r.Start.Column},
		End:   protocol.Position{Line: r.End.Row, Character: r.End.Column},
	}
}

func location(uri string, r model.Range) protocol.Location {
	return protocol.Location{URI: protocol.DocumentUri(uri), Range: protoRange(r)}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
