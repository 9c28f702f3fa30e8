package query

import (
	"context"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/ganezdragon/perl-language-server/pkg/index"
	"github.com/ganezdragon/perl-language-server/pkg/model"
	"github.com/ganezdragon/perl-language-server/pkg/parser"
)

// Hover renders a short markdown summary for variables and call sites.
// Anything else yields nil.
func Hover(ctx context.Context, store *index.Store, uri string, settings model.Settings, pos model.Position) (*protocol.Hover, error) {
	tree, src, release, err := store.TreeFor(ctx, uri, settings)
	if err != nil {
		return nil, err
	}
	defer release()

	node := parser.NodeAt(tree.RootNode(), pos)
	if node == nil {
		return nil, nil
	}

	var content string
	switch {
	case isVariableKind(node.Type()):
		content = "my " + parser.Text(node, src) + "; # " + node.Type()
	case node.Parent() != nil && strings.Contains(node.Parent().Type(), "call_expression"):
		content = "sub " + parser.Text(node.Parent(), src) + "; # function"
	default:
		return nil, nil
	}

	rng := protoRange(parser.RangeOf(node))
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: "```perl\n" + content + "\n```",
		},
		Range: &rng,
	}, nil
}
