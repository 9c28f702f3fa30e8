package query

import (
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/ganezdragon/perl-language-server/pkg/index"
	"github.com/ganezdragon/perl-language-server/pkg/model"
)

// DocumentSymbols enumerates the file's subroutine declarations. Range and
// selection range both cover the name identifier.
func DocumentSymbols(store *index.Store, uri string) []protocol.DocumentSymbol {
	symbols := []protocol.DocumentSymbol{}
	for _, decl := range store.DeclarationsFor(uri) {
		rng := protoRange(decl.Position)
		symbols = append(symbols, protocol.DocumentSymbol{
			Name:           decl.FunctionName,
			Kind:           protocol.SymbolKindFunction,
			Range:          rng,
			SelectionRange: rng,
		})
	}
	return symbols
}

// WorkspaceSymbols matches declarations across every indexed file by
// case-insensitive substring. An empty query matches nothing.
func WorkspaceSymbols(store *index.Store, queryText string) []protocol.SymbolInformation {
	results := []protocol.SymbolInformation{}
	if queryText == "" {
		return results
	}
	store.EachDeclaration(func(uri string, decls []model.FunctionReference) bool {
		for _, decl := range decls {
			if !containsFold(decl.FunctionName, queryText) {
				continue
			}
			results = append(results, protocol.SymbolInformation{
				Name: decl.FunctionName,
				Kind: protocol.SymbolKindFunction,
				Location: protocol.Location{
					URI:   protocol.DocumentUri(uri),
					Range: protoRange(decl.Position),
				},
			})
		}
		return true
	})
	return results
}
