package query

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganezdragon/perl-language-server/pkg/analyzer"
	"github.com/ganezdragon/perl-language-server/pkg/index"
	"github.com/ganezdragon/perl-language-server/pkg/model"
	"github.com/ganezdragon/perl-language-server/pkg/parser"
)

// writeWorkspace materializes sources on disk and analyzes them, so that
// TreeFor can re-read files the way the server does. Tests skip when the
// grammar artifact is not installed on the host machine.
func writeWorkspace(t *testing.T, files map[string]string) (*index.Store, map[string]string) {
	t.Helper()
	dir := t.TempDir()
	host, err := parser.NewHost()
	if err != nil {
		t.Skipf("perl grammar artifact unavailable: %v", err)
	}
	store := index.NewStore(host, nil)
	settings := model.DefaultSettings()

	uris := make(map[string]string, len(files))
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	// Deterministic analysis order: a.pm before b.pl.
	for _, name := range sortedCopy(names) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(files[name]), 0o644))
		uri := index.PathToURI(path)
		uris[name] = uri
		_, err := store.Analyze(context.Background(), uri, []byte(files[name]), settings, model.OnFileOpen, false, analyzer.NewProblemBudget(10))
		require.NoError(t, err)
	}
	return store, uris
}

func sortedCopy(names []string) []string {
	out := append([]string(nil), names...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func TestDefinitionAcrossFiles(t *testing.T) {
	store, uris := writeWorkspace(t, map[string]string{
		"a.pm": "package Foo::Bar;\nsub greet { return \"hi\"; }\n1;\n",
		"b.pl": "Foo::Bar::greet();\n",
	})
	settings := model.DefaultSettings()

	// Definition of greet from the call site in b.pl.
	locations, err := Definition(context.Background(), store, uris["b.pl"], settings, model.Position{Row: 0, Column: 11})
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, uris["a.pm"], string(locations[0].URI))
	assert.Equal(t, uint32(1), locations[0].Range.Start.Line)
	assert.Equal(t, uint32(4), locations[0].Range.Start.Character)
}

func TestDefinitionUnknownFunction(t *testing.T) {
	store, uris := writeWorkspace(t, map[string]string{
		"a.pl": "nothing_here();\n",
	})
	locations, err := Definition(context.Background(), store, uris["a.pl"], model.DefaultSettings(), model.Position{Row: 0, Column: 2})
	require.NoError(t, err)
	assert.Empty(t, locations)
}

func TestReferencesIncludeDeclaration(t *testing.T) {
	store, uris := writeWorkspace(t, map[string]string{
		"a.pm": "package Foo::Bar;\nsub greet { return \"hi\"; }\n1;\n",
		"b.pl": "Foo::Bar::greet();\n",
	})

	locations, err := References(context.Background(), store, uris["b.pl"], model.DefaultSettings(), model.Position{Row: 0, Column: 11}, false)
	require.NoError(t, err)
	require.Len(t, locations, 2, "one call site plus one declaration")

	byURI := map[string]int{}
	for _, loc := range locations {
		byURI[string(loc.URI)]++
	}
	assert.Equal(t, 1, byURI[uris["a.pm"]])
	assert.Equal(t, 1, byURI[uris["b.pl"]])
}

func TestVariableScoping(t *testing.T) {
	source := "my $outer = 1;\n" +
		"sub f {\n" +
		"    my $inner = 2;\n" +
		"    $inner;\n" +
		"}\n" +
		"$outer;\n"
	store, uris := writeWorkspace(t, map[string]string{"s.pl": source})
	settings := model.DefaultSettings()

	// Definition at the second $inner.
	locations, err := Definition(context.Background(), store, uris["s.pl"], settings, model.Position{Row: 3, Column: 5})
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, uint32(2), locations[0].Range.Start.Line)
	assert.Equal(t, uint32(7), locations[0].Range.Start.Character)

	// Definition at the second $outer.
	locations, err = Definition(context.Background(), store, uris["s.pl"], settings, model.Position{Row: 5, Column: 1})
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, uint32(0), locations[0].Range.Start.Line)
	assert.Equal(t, uint32(3), locations[0].Range.Start.Character)
}

func TestWorkspaceSymbolsEmptyQuery(t *testing.T) {
	store, _ := writeWorkspace(t, map[string]string{
		"a.pm": "package Foo::Bar;\nsub greet { 1; }\n1;\n",
	})
	assert.Empty(t, WorkspaceSymbols(store, ""))
	assert.Len(t, WorkspaceSymbols(store, "gre"), 1)
}

func TestDocumentSymbols(t *testing.T) {
	store, uris := writeWorkspace(t, map[string]string{
		"a.pm": "package Foo::Bar;\nsub greet { 1; }\nsub part { 2; }\n1;\n",
	})
	symbols := DocumentSymbols(store, uris["a.pm"])
	require.Len(t, symbols, 2)
	assert.Equal(t, "greet", symbols[0].Name)
	assert.Equal(t, symbols[0].Range, symbols[0].SelectionRange)
}

func TestRenameEmptyNameRejected(t *testing.T) {
	store, uris := writeWorkspace(t, map[string]string{
		"a.pl": "my $x = 1;\n$x;\n",
	})
	_, err := Rename(context.Background(), store, uris["a.pl"], model.DefaultSettings(), model.Position{Row: 0, Column: 4}, "")
	assert.ErrorIs(t, err, ErrInvalidRename)
}
