package query

import (
	"context"
	"encoding/json"

	sitter "github.com/smacker/go-tree-sitter"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/ganezdragon/perl-language-server/pkg/analyzer"
	"github.com/ganezdragon/perl-language-server/pkg/index"
	"github.com/ganezdragon/perl-language-server/pkg/model"
	"github.com/ganezdragon/perl-language-server/pkg/parser"
)

var variableTriggers = map[string]bool{"$": true, "@": true, "%": true}

// CompletionData rides on a completion item so that resolve can synthesize
// the matching import without re-running the query.
type CompletionData struct {
	URI          string `json:"uri"`
	EditorURI    string `json:"editorUri"`
	FunctionName string `json:"functionName"`
	PackageName  string `json:"packageName"`
}

// Completion computes completion items at the position. Variable triggers
// produce the unique in-scope variable set; identifier typing produces
// package and function completions. A scope keyword immediately before the
// cursor suppresses completion entirely, since a fresh declaration cannot
// refer to anything yet.
func Completion(ctx context.Context, store *index.Store, uri string, settings model.Settings, pos model.Position, trigger string) ([]protocol.CompletionItem, error) {
	tree, src, release, err := store.TreeFor(ctx, uri, settings)
	if err != nil {
		return nil, err
	}
	defer release()
	root := tree.RootNode()

	at := pos
	if at.Column > 0 {
		at.Column--
	}
	node := parser.NodeAt(root, at)
	if node == nil {
		return []protocol.CompletionItem{}, nil
	}
	if node.Type() == analyzer.KindScope {
		return []protocol.CompletionItem{}, nil
	}

	if variableTriggers[trigger] {
		return variableCompletions(root, src, node), nil
	}
	return identifierCompletions(store, uri, settings, root, src, node), nil
}

func variableCompletions(root *sitter.Node, src []byte, at *sitter.Node) []protocol.CompletionItem {
	kind := protocol.CompletionItemKindVariable
	items := []protocol.CompletionItem{}
	for _, occ := range firstPerName(visibleVariables(root, src, at, true)) {
		items = append(items, protocol.CompletionItem{
			Label: occ.name,
			Kind:  &kind,
		})
	}
	return items
}

func identifierCompletions(store *index.Store, uri string, settings model.Settings, root *sitter.Node, src []byte, node *sitter.Node) []protocol.CompletionItem {
	word := parser.Text(node, src)
	inUseStatement := hasAncestorOfKind(node, analyzer.KindUseNoStatement)

	packageKind := protocol.CompletionItemKindModule
	functionKind := protocol.CompletionItemKindFunction
	items := []protocol.CompletionItem{}

	store.EachDeclaration(func(declURI string, decls []model.FunctionReference) bool {
		if len(decls) == 0 {
			return true
		}
		pkg := decls[0].PackageName
		if pkg == "" || !containsFold(pkg, word) {
			return true
		}
		insert := pkg + "::"
		if inUseStatement {
			insert = pkg
		}
		items = append(items, protocol.CompletionItem{
			Label:      pkg,
			Kind:       &packageKind,
			InsertText: &insert,
		})
		return true
	})

	store.EachDeclaration(func(declURI string, decls []model.FunctionReference) bool {
		for _, decl := range decls {
			if !containsFold(decl.FunctionName, word) {
				continue
			}
			label := decl.FunctionName
			if decl.PackageName != "" && settings.FunctionCallStyle != model.CallStyleNameOnly {
				label = decl.PackageName + "::" + decl.FunctionName
			}
			insert := decl.FunctionName + "()"
			sortText := "1_" + label
			if declURI == uri {
				sortText = "0_" + label
			}
			data, _ := json.Marshal(CompletionData{
				URI:          declURI,
				EditorURI:    uri,
				FunctionName: decl.FunctionName,
				PackageName:  decl.PackageName,
			})
			items = append(items, protocol.CompletionItem{
				Label:      label,
				Kind:       &functionKind,
				InsertText: &insert,
				SortText:   &sortText,
				Data:       json.RawMessage(data),
			})
		}
		return true
	})
	return items
}

func hasAncestorOfKind(node *sitter.Node, kind string) bool {
	for anc := node; anc != nil; anc = anc.Parent() {
		if anc.Type() == kind {
			return true
		}
	}
	return false
}

// ResolveCompletion attaches auto-import edits to a function completion
// selected from another file. Resolving the same item twice yields
// identical edits.
func ResolveCompletion(ctx context.Context, store *index.Store, settings model.Settings, item *protocol.CompletionItem) (*protocol.CompletionItem, error) {
	if item.Data == nil {
		return item, nil
	}
	raw, err := json.Marshal(item.Data)
	if err != nil {
		return item, nil
	}
	var data CompletionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return item, nil
	}
	if data.PackageName == "" || data.URI == "" || data.EditorURI == "" || data.URI == data.EditorURI {
		return item, nil
	}

	tree, src, release, err := store.TreeFor(ctx, data.EditorURI, settings)
	if err != nil {
		return item, nil
	}
	defer release()

	edits := SynthesizeImport(tree.RootNode(), src, data.PackageName, data.FunctionName, settings.ImportStyle)
	if len(edits) > 0 {
		item.AdditionalTextEdits = edits
	}
	return item, nil
}
