package query

import (
	"context"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/ganezdragon/perl-language-server/pkg/index"
	"github.com/ganezdragon/perl-language-server/pkg/model"
	"github.com/ganezdragon/perl-language-server/pkg/parser"
)

// Definition resolves the symbol at the position. Variables resolve to
// their first visible occurrence in scope; anything else is treated as a
// function name and matched against every indexed declaration, in
// first-analysis order across URIs.
func Definition(ctx context.Context, store *index.Store, uri string, settings model.Settings, pos model.Position) ([]protocol.Location, error) {
	tree, src, release, err := store.TreeFor(ctx, uri, settings)
	if err != nil {
		return nil, err
	}
	defer release()

	node := parser.NodeAt(tree.RootNode(), pos)
	if node == nil {
		return []protocol.Location{}, nil
	}

	if isVariableKind(node.Type()) {
		text := parser.Text(node, src)
		for _, occ := range firstPerName(visibleVariables(tree.RootNode(), src, node, false)) {
			if occ.name == text {
				return []protocol.Location{location(uri, occ.rng)}, nil
			}
		}
		return []protocol.Location{}, nil
	}

	name := parser.Text(node, src)
	locations := []protocol.Location{}
	store.EachDeclaration(func(declURI string, decls []model.FunctionReference) bool {
		for _, decl := range decls {
			if decl.FunctionName == name {
				locations = append(locations, location(declURI, decl.Position))
			}
		}
		return true
	})
	return locations, nil
}
