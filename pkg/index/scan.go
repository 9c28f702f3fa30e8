package index

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"golang.org/x/sync/errgroup"

	"github.com/ganezdragon/perl-language-server/pkg/analyzer"
	"github.com/ganezdragon/perl-language-server/pkg/model"
)

// DefaultGlob matches the Perl source extensions the scanner considers.
// The historical extglob alternation form is accepted from GLOB_PATTERN.
const DefaultGlob = "**/*@(.pl|.pm|.t|.esp)"

// GlobPattern returns the workspace file pattern, honoring the
// GLOB_PATTERN environment override.
func GlobPattern() string {
	if env := strings.TrimSpace(os.Getenv("GLOB_PATTERN")); env != "" {
		return env
	}
	return DefaultGlob
}

// normalizeGlob rewrites extglob alternation `@(a|b)` into the brace form
// doublestar understands.
func normalizeGlob(pattern string) string {
	pattern = strings.ReplaceAll(pattern, "@(", "{")
	if strings.Contains(pattern, "{") {
		pattern = strings.ReplaceAll(pattern, "|", ",")
		pattern = strings.ReplaceAll(pattern, ")", "}")
	}
	return pattern
}

// DiscoverFiles resolves workspace source files under root using the
// configured glob. Hidden directories and the usual VCS/vendor trees are
// skipped.
func DiscoverFiles(root, pattern string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(root), normalizeGlob(pattern), doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(matches))
	for _, rel := range matches {
		if skippable(rel) {
			continue
		}
		files = append(files, rel)
	}
	return files, nil
}

func skippable(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if part == ".git" || part == "node_modules" || part == "blib" {
			return true
		}
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}

// ScanResult reports one scanned file back to the caller.
type ScanResult struct {
	URI         string
	Diagnostics []protocol.Diagnostic
}

// ScanWorkspace analyzes every matching file under root with a bounded
// worker pool. Unreadable files are logged and skipped; the scan always
// continues. onFile and onProgress are invoked from worker goroutines.
func (s *Store) ScanWorkspace(ctx context.Context, root string, settings model.Settings, budget *analyzer.ProblemBudget, onFile func(ScanResult), onProgress func(percent int)) error {
	files, err := DiscoverFiles(root, GlobPattern())
	if err != nil {
		return err
	}
	total := len(files)
	if total == 0 {
		if onProgress != nil {
			onProgress(100)
		}
		return nil
	}

	var processed atomic.Int64
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.GOMAXPROCS(0))

	for _, rel := range files {
		group.Go(func() error {
			defer func() {
				done := processed.Add(1)
				if onProgress != nil {
					onProgress(int(math.Round(float64(done) / float64(total) * 100)))
				}
			}()

			path := filepath.Join(root, filepath.FromSlash(rel))
			content, readErr := os.ReadFile(path)
			if readErr != nil {
				s.log.Warn("skipping unreadable file", "path", path, "err", readErr)
				return nil
			}

			uri := PathToURI(path)
			collect := !budget.Exhausted()
			diags, analyzeErr := s.Analyze(gctx, uri, content, settings, model.OnWorkspaceOpen, collect, budget)
			if analyzeErr != nil {
				s.log.Warn("analysis failed", "uri", uri, "err", analyzeErr)
				return nil
			}
			if onFile != nil && collect {
				onFile(ScanResult{URI: uri, Diagnostics: diags})
			}
			return nil
		})
	}
	return group.Wait()
}
