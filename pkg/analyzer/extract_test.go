package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganezdragon/perl-language-server/pkg/model"
	"github.com/ganezdragon/perl-language-server/pkg/parser"
)

// parseSource builds a host for grammar-backed tests, skipping when the
// grammar artifact is not installed on the host machine.
func parseSource(t *testing.T, src string) (*parser.Host, []byte) {
	t.Helper()
	host, err := parser.NewHost()
	if err != nil {
		t.Skipf("perl grammar artifact unavailable: %v", err)
	}
	return host, []byte(src)
}

func TestExtractDeclaration(t *testing.T) {
	host, src := parseSource(t, "package Foo::Bar;\nsub greet { return \"hi\"; }\n1;\n")
	tree, err := host.Parse(context.Background(), src)
	require.NoError(t, err)
	defer host.Free(tree)

	perFile := Extract("file:///ws/a.pm", tree, src)
	require.Len(t, perFile.Declarations, 1)

	decl := perFile.Declarations[0]
	assert.Equal(t, "greet", decl.FunctionName)
	assert.Equal(t, "Foo::Bar", decl.PackageName)
	assert.Equal(t, model.Position{Row: 1, Column: 4}, decl.Position.Start)
	assert.Equal(t, model.Position{Row: 1, Column: 9}, decl.Position.End)
}

func TestExtractCallSite(t *testing.T) {
	host, src := parseSource(t, "Foo::Bar::greet();\n")
	tree, err := host.Parse(context.Background(), src)
	require.NoError(t, err)
	defer host.Free(tree)

	perFile := Extract("file:///ws/b.pl", tree, src)
	refs := perFile.References["greet"]
	require.Len(t, refs, 1)
	assert.Equal(t, "greet", refs[0].FunctionName)
	assert.Equal(t, uint32(0), refs[0].Position.Start.Row)
}

func TestExtractNoPackage(t *testing.T) {
	host, src := parseSource(t, "sub lonely { 1; }\n")
	tree, err := host.Parse(context.Background(), src)
	require.NoError(t, err)
	defer host.Free(tree)

	perFile := Extract("file:///ws/script.pl", tree, src)
	require.Len(t, perFile.Declarations, 1)
	assert.Equal(t, "", perFile.Declarations[0].PackageName)
}

func TestDiagnosticsCleanFile(t *testing.T) {
	host, src := parseSource(t, "my $x = 1;\n$x;\n")
	tree, err := host.Parse(context.Background(), src)
	require.NoError(t, err)
	defer host.Free(tree)

	diags := Diagnostics(tree, src, NewProblemBudget(10), true)
	assert.Empty(t, diags)
}

func TestProblemBudget(t *testing.T) {
	budget := NewProblemBudget(2)
	assert.True(t, budget.TryConsume())
	assert.True(t, budget.TryConsume())
	assert.False(t, budget.TryConsume())
	assert.True(t, budget.Exhausted())
}
