package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganezdragon/perl-language-server/pkg/model"
)

func seedStore() *Store {
	s := NewStore(nil, nil)
	s.decls["file:///ws/a.pm"] = []model.FunctionReference{
		{
			URI:          "file:///ws/a.pm",
			FunctionName: "greet",
			PackageName:  "Foo::Bar",
			Position: model.Range{
				Start: model.Position{Row: 1, Column: 4},
				End:   model.Position{Row: 1, Column: 9},
			},
		},
	}
	s.refs["file:///ws/b.pl"] = map[string][]model.FunctionReference{
		"greet": {
			{
				URI:          "file:///ws/b.pl",
				FunctionName: "greet",
				PackageName:  "",
				Position: model.Range{
					Start: model.Position{Row: 0, Column: 10},
					End:   model.Position{Row: 0, Column: 15},
				},
			},
		},
	}
	s.order = []string{"file:///ws/a.pm", "file:///ws/b.pl"}
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	saved := seedStore()
	require.NoError(t, saved.Save(dir))

	sidecar := filepath.Join(dir, ".vscode", "function_map.zip")
	_, err := os.Stat(sidecar)
	require.NoError(t, err, "sidecar should exist at the compatibility path")

	loaded := NewStore(nil, nil)
	require.True(t, loaded.Load(dir))

	assert.Equal(t, saved.decls, loaded.decls)
	assert.Equal(t, saved.refs["file:///ws/b.pl"], loaded.refs["file:///ws/b.pl"])
}

func TestLoadMissingSidecar(t *testing.T) {
	s := NewStore(nil, nil)
	assert.False(t, s.Load(t.TempDir()))
	assert.Empty(t, s.decls)
}

func TestLoadCorruptSidecar(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".vscode"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".vscode", "function_map.zip"), []byte("not brotli"), 0o644))

	s := NewStore(nil, nil)
	assert.False(t, s.Load(dir))
	assert.Empty(t, s.decls)
}

func TestCloseEvictsEverything(t *testing.T) {
	s := seedStore()
	s.Close("file:///ws/a.pm")

	_, hasDecls := s.decls["file:///ws/a.pm"]
	assert.False(t, hasDecls)
	assert.Equal(t, []string{"file:///ws/b.pl"}, s.order)
}
