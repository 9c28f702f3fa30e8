package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeGlob(t *testing.T) {
	assert.Equal(t, "**/*{.pl,.pm,.t,.esp}", normalizeGlob("**/*@(.pl|.pm|.t|.esp)"))
	assert.Equal(t, "**/*.pl", normalizeGlob("**/*.pl"))
	assert.Equal(t, "**/*.{pl,pm}", normalizeGlob("**/*.{pl,pm}"))
}

func TestDiscoverFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib", "Foo"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	write := func(rel string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, rel), []byte("1;\n"), 0o644))
	}
	write("script.pl")
	write(filepath.Join("lib", "Foo", "Bar.pm"))
	write(filepath.Join("lib", "Foo", "notes.txt"))
	write(filepath.Join(".git", "hook.pl"))

	files, err := DiscoverFiles(dir, DefaultGlob)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"script.pl", "lib/Foo/Bar.pm"}, files)
}

func TestGlobPatternOverride(t *testing.T) {
	t.Setenv("GLOB_PATTERN", "**/*.pl")
	assert.Equal(t, "**/*.pl", GlobPattern())

	t.Setenv("GLOB_PATTERN", "")
	assert.Equal(t, DefaultGlob, GlobPattern())
}

func TestURIRoundTrip(t *testing.T) {
	assert.Equal(t, "/ws/a.pm", URIToPath("file:///ws/a.pm"))
	assert.Equal(t, "file:///ws/a.pm", PathToURI("/ws/a.pm"))
}
