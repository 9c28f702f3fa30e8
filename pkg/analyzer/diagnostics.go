package analyzer

import (
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/ganezdragon/perl-language-server/pkg/parser"
)

const diagnosticSource = "perl"

// ProblemBudget caps diagnostics across a whole workspace scan. Files
// analyzed after the budget runs out still update the index, silently.
type ProblemBudget struct {
	mu        sync.Mutex
	remaining int
}

func NewProblemBudget(max int) *ProblemBudget {
	return &ProblemBudget{remaining: max}
}

// TryConsume takes one problem slot, reporting false once exhausted.
func (b *ProblemBudget) TryConsume() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

// Exhausted reports whether the cap has been reached.
func (b *ProblemBudget) Exhausted() bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining <= 0
}

// Diagnostics walks the tree and reports syntax errors. The walk descends
// into a node only when it carries an error or missing marker, so clean
// subtrees cost nothing. With showAllErrors disabled the walk stops after
// the first reported region.
func Diagnostics(tree *sitter.Tree, src []byte, budget *ProblemBudget, showAllErrors bool) []protocol.Diagnostic {
	var diags []protocol.Diagnostic
	severity := protocol.DiagnosticSeverityError
	source := diagnosticSource

	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil || (!node.HasError() && !node.IsMissing()) {
			return
		}
		if !showAllErrors && len(diags) > 0 {
			return
		}
		if node.IsMissing() {
			if budget.TryConsume() {
				diags = append(diags, protocol.Diagnostic{
					Range:    protoRange(node),
					Severity: &severity,
					Source:   &source,
					Message:  fmt.Sprintf("Syntax error: expected %q", node.Type()),
				})
			}
			return
		}
		if node.Type() == "ERROR" {
			if budget.TryConsume() {
				diags = append(diags, protocol.Diagnostic{
					Range:    protoRange(node),
					Severity: &severity,
					Source:   &source,
					Message:  "Syntax Error near expression " + parser.Text(node, src),
				})
			}
			return
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(tree.RootNode())
	return diags
}

func protoRange(node *sitter.Node) protocol.Range {
	start := node.StartPoint()
	end := node.EndPoint()
	return protocol.Range{
		Start: protocol.Position{Line: start.Row, Character: start.Column},
		End:   protocol.Position{Line: end.Row, Character: end.Column},
	}
}
