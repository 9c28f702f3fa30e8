// Package perl loads the tree-sitter Perl grammar from its compiled
// artifact. The entry point is resolved once at startup via dlopen, so the
// server binaries carry no grammar objects themselves; the shared library
// built from the grammar ships alongside them.
package perl

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
	sitter "github.com/smacker/go-tree-sitter"
)

// GrammarPathEnv overrides the artifact search with an explicit path.
const GrammarPathEnv = "PERL_TREESITTER_GRAMMAR"

// Load opens the grammar artifact at path and wraps its tree_sitter_perl
// entry point as a language handle. The handle is immutable and safe to
// share across parsers.
func Load(path string) (*sitter.Language, error) {
	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("open grammar %s: %w", path, err)
	}

	var language func() uintptr
	purego.RegisterLibFunc(&language, lib, "tree_sitter_perl")

	ptr := language()
	if ptr == 0 {
		return nil, fmt.Errorf("grammar %s returned a nil language", path)
	}
	return sitter.NewLanguage(unsafe.Pointer(ptr)), nil
}

// LoadDefault resolves the artifact from the environment override, the
// executable's directory, and the working directory, in that order.
func LoadDefault() (*sitter.Language, error) {
	path, err := locate()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

func locate() (string, error) {
	if env := os.Getenv(GrammarPathEnv); env != "" {
		return env, nil
	}

	name := artifactName()
	searched := make([]string, 0, 2)
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), name)
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, nil
		}
		searched = append(searched, candidate)
	}
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	searched = append(searched, name)

	return "", fmt.Errorf("grammar artifact %s not found (searched %v; set %s)", name, searched, GrammarPathEnv)
}

func artifactName() string {
	if runtime.GOOS == "darwin" {
		return "tree-sitter-perl.dylib"
	}
	return "tree-sitter-perl.so"
}
