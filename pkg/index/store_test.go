package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganezdragon/perl-language-server/pkg/analyzer"
	"github.com/ganezdragon/perl-language-server/pkg/model"
	"github.com/ganezdragon/perl-language-server/pkg/parser"
)

// newTestStore skips grammar-backed tests when the artifact is not
// installed on the host machine.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	host, err := parser.NewHost()
	if err != nil {
		t.Skipf("perl grammar artifact unavailable: %v", err)
	}
	return NewStore(host, nil)
}

func analyzeSource(t *testing.T, store *Store, uri, src string, mode model.AnalysisMode) {
	t.Helper()
	_, err := store.Analyze(context.Background(), uri, []byte(src), model.DefaultSettings(), mode, false, analyzer.NewProblemBudget(10))
	require.NoError(t, err)
}

func TestAnalyzeReplacesEntriesWholesale(t *testing.T) {
	store := newTestStore(t)
	uri := "file:///ws/a.pm"

	analyzeSource(t, store, uri, "sub first_version { 1; }\n", model.OnFileOpen)
	decls := store.DeclarationsFor(uri)
	require.Len(t, decls, 1)
	assert.Equal(t, "first_version", decls[0].FunctionName)

	analyzeSource(t, store, uri, "sub second_version { 2; }\n", model.OnFileOpen)
	decls = store.DeclarationsFor(uri)
	require.Len(t, decls, 1, "no carry-over from the previous content")
	assert.Equal(t, "second_version", decls[0].FunctionName)
}

func TestDeclarationOrderFollowsFirstAnalysis(t *testing.T) {
	store := newTestStore(t)
	analyzeSource(t, store, "file:///ws/z.pm", "sub zeta { 1; }\n", model.OnWorkspaceOpen)
	analyzeSource(t, store, "file:///ws/a.pm", "sub alpha { 1; }\n", model.OnWorkspaceOpen)

	var seen []string
	store.EachDeclaration(func(uri string, decls []model.FunctionReference) bool {
		seen = append(seen, uri)
		return true
	})
	assert.Equal(t, []string{"file:///ws/z.pm", "file:///ws/a.pm"}, seen)
}

func TestTreeForReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.pm")
	require.NoError(t, os.WriteFile(path, []byte("sub on_disk { 1; }\n"), 0o644))

	store := newTestStore(t)
	tree, src, release, err := store.TreeFor(context.Background(), PathToURI(path), model.DefaultSettings())
	require.NoError(t, err)
	defer release()

	assert.NotNil(t, tree)
	assert.Contains(t, string(src), "on_disk")
}

func TestTreeForMissingFile(t *testing.T) {
	store := newTestStore(t)
	_, _, _, err := store.TreeFor(context.Background(), "file:///does/not/exist.pl", model.DefaultSettings())
	assert.Error(t, err)
}
