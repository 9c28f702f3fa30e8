package query

import (
	"context"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/ganezdragon/perl-language-server/pkg/index"
	"github.com/ganezdragon/perl-language-server/pkg/model"
	"github.com/ganezdragon/perl-language-server/pkg/parser"
)

// References collects every occurrence of the symbol at the position.
// Variables yield all visible occurrences including those after the cursor;
// functions yield call sites (workspace-wide, or the current file only)
// followed by matching declarations.
func References(ctx context.Context, store *index.Store, uri string, settings model.Settings, pos model.Position, onlyCurrentFile bool) ([]protocol.Location, error) {
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
		locations := []protocol.Location{}
		for _, occ := range visibleVariables(tree.RootNode(), src, node, true) {
			if occ.name == text {
				locations = append(locations, location(uri, occ.rng))
			}
		}
		return locations, nil
	}

	if !isFunctionContext(node) {
		return []protocol.Location{}, nil
	}

	name := parser.Text(node, src)
	locations := []protocol.Location{}
	collectRefs := func(refURI string, refs map[string][]model.FunctionReference) bool {
		for _, ref := range refs[name] {
			locations = append(locations, location(refURI, ref.Position))
		}
		return true
	}
	collectDecls := func(declURI string, decls []model.FunctionReference) bool {
		for _, decl := range decls {
			if decl.FunctionName == name {
				locations = append(locations, location(declURI, decl.Position))
			}
		}
		return true
	}

	if onlyCurrentFile {
		collectRefs(uri, store.ReferencesFor(uri))
		collectDecls(uri, store.DeclarationsFor(uri))
	} else {
		store.EachReferenceGroup(collectRefs)
		store.EachDeclaration(collectDecls)
	}
	return locations, nil
}

// DocumentHighlight renders current-file references with the Read kind.
func DocumentHighlight(ctx context.Context, store *index.Store, uri string, settings model.Settings, pos model.Position) ([]protocol.DocumentHighlight, error) {
	locations, err := References(ctx, store, uri, settings, pos, true)
	if err != nil {
		return nil, err
	}
	kind := protocol.DocumentHighlightKindRead
	highlights := make([]protocol.DocumentHighlight, 0, len(locations))
	for _, loc := range locations {
		highlights = append(highlights, protocol.DocumentHighlight{
			Range: loc.Range,
			Kind:  &kind,
		})
	}
	return highlights, nil
}
