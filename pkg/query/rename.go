package query

import (
	"context"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/ganezdragon/perl-language-server/pkg/index"
	"github.com/ganezdragon/perl-language-server/pkg/model"
	"github.com/ganezdragon/perl-language-server/pkg/parser"
)

// Rename produces a workspace edit renaming the symbol at the position.
// Variables are renamed at every visible occurrence in scope; functions at
// every call site and declaration across the workspace.
func Rename(ctx context.Context, store *index.Store, uri string, settings model.Settings, pos model.Position, newName string) (*protocol.WorkspaceEdit, error) {
	if newName == "" {
		return nil, ErrInvalidRename
	}

	tree, src, release, err := store.TreeFor(ctx, uri, settings)
	if err != nil {
		return nil, err
	}
	defer release()

	node := parser.NodeAt(tree.RootNode(), pos)
	if node == nil {
		return nil, ErrInvalidRename
	}

	changes := make(map[protocol.DocumentUri][]protocol.TextEdit)
	add := func(editURI string, r model.Range) {
		key := protocol.DocumentUri(editURI)
		changes[key] = append(changes[key], protocol.TextEdit{
			Range:   protoRange(r),
			NewText: newName,
		})
	}

	switch {
	case isVariableKind(node.Type()):
		text := parser.Text(node, src)
		for _, occ := range visibleVariables(tree.RootNode(), src, node, true) {
			if occ.name == text {
				add(uri, occ.rng)
			}
		}
	case isFunctionContext(node):
		name := parser.Text(node, src)
		store.EachReferenceGroup(func(refURI string, refs map[string][]model.FunctionReference) bool {
			for _, ref := range refs[name] {
				add(refURI, ref.Position)
			}
			return true
		})
		store.EachDeclaration(func(declURI string, decls []model.FunctionReference) bool {
			for _, decl := range decls {
				if decl.FunctionName == name {
					add(declURI, decl.Position)
				}
			}
			return true
		})
	default:
		return nil, ErrInvalidRename
	}

	return &protocol.WorkspaceEdit{Changes: changes}, nil
}

// PrepareRenameResult is the range+placeholder reply shape.
type PrepareRenameResult struct {
	Range       protocol.Range `json:"range"`
	Placeholder string         `json:"placeholder"`
}

// PrepareRename reports the symbol range and current text at the position.
// Filtering of non-renameable nodes happens at rename time.
func PrepareRename(ctx context.Context, store *index.Store, uri string, settings model.Settings, pos model.Position) (*PrepareRenameResult, error) {
	tree, src, release, err := store.TreeFor(ctx, uri, settings)
	if err != nil {
		return nil, err
	}
	defer release()

	node := parser.NodeAt(tree.RootNode(), pos)
	if node == nil {
		return nil, nil
	}
	return &PrepareRenameResult{
		Range:       protoRange(parser.RangeOf(node)),
		Placeholder: parser.Text(node, src),
	}, nil
}
