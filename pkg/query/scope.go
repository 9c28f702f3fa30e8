package query

import (
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/ganezdragon/perl-language-server/pkg/analyzer"
	"github.com/ganezdragon/perl-language-server/pkg/model"
	"github.com/ganezdragon/perl-language-server/pkg/parser"
)

// varOccurrence is one sighting of a variable, sigil included.
type varOccurrence struct {
	name string
	kind string
	rng  model.Range
}

// visibleVariables computes the variables lexically visible at the query
// node: every *_variable in the outermost enclosing block, unioned with the
// file's root-level variables (the root walk does not descend into blocks).
// This over-approximates Perl's scoping but matches what every query needs.
// With includeSucceeding false, occurrences after the query node are
// dropped.
func visibleVariables(root *sitter.Node, src []byte, at *sitter.Node, includeSucceeding bool) []varOccurrence {
	var outer *sitter.Node
	for anc := at.Parent(); anc != nil; anc = anc.Parent() {
		if anc.Type() == analyzer.KindBlock {
			outer = anc
		}
	}

	var out []varOccurrence
	record := func(n *sitter.Node) {
		out = append(out, varOccurrence{
			name: parser.Text(n, src),
			kind: n.Type(),
			rng:  parser.RangeOf(n),
		})
	}

	parser.ForEachNode(root, func(n *sitter.Node) bool {
		if n.Type() == analyzer.KindBlock {
			return false
		}
		if isVariableKind(n.Type()) {
			record(n)
		}
		return true
	})
	if outer != nil {
		parser.ForEachNode(outer, func(n *sitter.Node) bool {
			if isVariableKind(n.Type()) {
				record(n)
			}
			return true
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].rng.Start.Before(out[j].rng.Start)
	})

	if includeSucceeding {
		return out
	}
	atStart := parser.RangeOf(at).Start
	visible := out[:0]
	for _, occ := range out {
		if !atStart.Before(occ.rng.Start) {
			visible = append(visible, occ)
		}
	}
	return visible
}

// firstPerName uniquifies occurrences by text, keeping document order.
func firstPerName(occs []varOccurrence) []varOccurrence {
	seen := make(map[string]bool, len(occs))
	unique := occs[:0:0]
	for _, occ := range occs {
		if seen[occ.name] {
			continue
		}
		seen[occ.name] = true
		unique = append(unique, occ)
	}
	return unique
}
