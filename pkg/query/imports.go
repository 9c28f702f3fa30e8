package query

import (
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/ganezdragon/perl-language-server/pkg/analyzer"
	"github.com/ganezdragon/perl-language-server/pkg/model"
	"github.com/ganezdragon/perl-language-server/pkg/parser"
)

// importStatement is one parsed use/no statement. A nil function list marks
// a full import; otherwise it is a function-only (qw) import.
type importStatement struct {
	keyword   string
	pkg       string
	functions []string
	rng       model.Range
	startByte uint32
	endByte   uint32
}

func (s importStatement) functionOnly() bool {
	return s.functions != nil
}

func (s importStatement) pragma() bool {
	return s.pkg == "strict" || s.pkg == "warnings"
}

func (s importStatement) render() string {
	keyword := s.keyword
	if keyword == "" {
		keyword = "use"
	}
	if !s.functionOnly() {
		return keyword + " " + s.pkg + ";"
	}
	return keyword + " " + s.pkg + " qw( " + strings.Join(s.functions, " ") + " );"
}

func collectImports(root *sitter.Node, src []byte) []importStatement {
	var imports []importStatement
	parser.ForEachNode(root, func(node *sitter.Node) bool {
		if node.Type() != analyzer.KindUseNoStatement {
			return true
		}
		stmt := importStatement{
			keyword:   "use",
			rng:       parser.RangeOf(node),
			startByte: node.StartByte(),
			endByte:   node.EndByte(),
		}
		if node.ChildCount() > 0 {
			if word := strings.TrimSpace(parser.Text(node.Child(0), src)); word == "no" {
				stmt.keyword = "no"
			}
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case analyzer.KindPackageName, analyzer.KindBarewordImport:
				if stmt.pkg == "" {
					stmt.pkg = strings.TrimSpace(parser.Text(child, src))
				}
			case analyzer.KindWordListQW:
				stmt.functions = parseQW(parser.Text(child, src))
			}
		}
		if stmt.pkg != "" {
			imports = append(imports, stmt)
		}
		return false
	})
	return imports
}

// parseQW splits the word list out of a qw( ... ) literal. The result is
// never nil so that an empty list still classifies as function-only.
func parseQW(text string) []string {
	text = strings.TrimSpace(text)
	if open := strings.IndexAny(text, "([{</"); open >= 0 {
		text = text[open+1:]
	}
	text = strings.TrimRight(text, ")]}>/")
	functions := strings.Fields(text)
	if functions == nil {
		functions = []string{}
	}
	return functions
}

// SynthesizeImport derives the text edits that import pkg::fn into the
// file. Existing imports are re-emitted in canonical order: the
// strict/warnings block first, then full imports, then function-only
// imports, each group sorted and blank-line separated. The result is a
// single replacement spanning the first to the last existing import, or an
// insertion at the top when the file has none. A file whose imports already
// match the canonical form yields no edits.
func SynthesizeImport(root *sitter.Node, src []byte, pkg, fn string, style model.ImportStyle) []protocol.TextEdit {
	imports := collectImports(root, src)
	imports, merged := mergeImport(imports, pkg, fn, style)

	text := renderCanonical(imports)

	if len(imports) == 1 && !merged {
		// No imports existed; insert the new block at the top.
		return []protocol.TextEdit{{
			Range: protocol.Range{
				Start: protocol.Position{Line: 0, Character: 0},
				End:   protocol.Position{Line: 0, Character: 0},
			},
			NewText: text + "\n",
		}}
	}

	first, last := imports[0], imports[0]
	lo, hi := uint32(0), uint32(0)
	seeded := false
	for _, stmt := range imports {
		if stmt.startByte == 0 && stmt.endByte == 0 && stmt.rng == (model.Range{}) {
			continue // the freshly added statement has no source extent
		}
		if !seeded || stmt.startByte < lo {
			lo, first = stmt.startByte, stmt
		}
		if !seeded || stmt.endByte > hi {
			hi, last = stmt.endByte, stmt
		}
		seeded = true
	}
	if !seeded {
		return nil
	}

	if int(lo) <= len(src) && int(hi) <= len(src) && string(src[lo:hi]) == text {
		return nil
	}

	return []protocol.TextEdit{{
		Range: protocol.Range{
			Start: protocol.Position{Line: first.rng.Start.Row, Character: first.rng.Start.Column},
			End:   protocol.Position{Line: last.rng.End.Row, Character: last.rng.End.Column},
		},
		NewText: text,
	}}
}

// mergeImport folds fn into the statement list. An existing function-only
// import for the package always absorbs the name, whatever the style; an
// existing full import already covers it. Only when the package has no
// import at all does the style shape the appended statement. The returned
// flag reports whether an existing statement was reused.
func mergeImport(imports []importStatement, pkg, fn string, style model.ImportStyle) ([]importStatement, bool) {
	for i := range imports {
		if imports[i].pkg != pkg {
			continue
		}
		if imports[i].functionOnly() {
			imports[i].functions = insertSorted(imports[i].functions, fn)
		}
		return imports, true
	}

	added := importStatement{keyword: "use", pkg: pkg}
	if style != model.ImportStyleFull {
		added.functions = []string{fn}
	}
	return append(imports, added), false
}

func renderCanonical(imports []importStatement) string {
	var pragmas, full, functionOnly []importStatement
	for _, stmt := range imports {
		stmt.functions = dedupeSorted(stmt.functions)
		switch {
		case stmt.pragma():
			pragmas = append(pragmas, stmt)
		case stmt.functionOnly():
			functionOnly = append(functionOnly, stmt)
		default:
			full = append(full, stmt)
		}
	}

	// Within the pragma block full imports come before function-only ones,
	// each side sorted.
	sort.SliceStable(pragmas, func(i, j int) bool {
		if pragmas[i].functionOnly() != pragmas[j].functionOnly() {
			return !pragmas[i].functionOnly()
		}
		return pragmas[i].pkg < pragmas[j].pkg
	})
	sort.SliceStable(full, func(i, j int) bool { return full[i].pkg < full[j].pkg })
	sort.SliceStable(functionOnly, func(i, j int) bool { return functionOnly[i].pkg < functionOnly[j].pkg })

	var blocks []string
	for _, group := range [][]importStatement{pragmas, full, functionOnly} {
		if len(group) == 0 {
			continue
		}
		lines := make([]string, 0, len(group))
		for _, stmt := range group {
			lines = append(lines, stmt.render())
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

func insertSorted(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	list = append(list, value)
	sort.Strings(list)
	return list
}

func dedupeSorted(list []string) []string {
	if list == nil {
		return nil
	}
	sorted := append([]string(nil), list...)
	sort.Strings(sorted)
	out := sorted[:0]
	for i, value := range sorted {
		if i == 0 || sorted[i-1] != value {
			out = append(out, value)
		}
	}
	return out
}
