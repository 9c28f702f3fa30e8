// Package index maintains the workspace-wide symbol index: per-URI syntax
// trees, declarations, and call sites, with client-selectable tree caching,
// a Brotli-compressed on-disk form, and a filesystem watcher.
package index

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"
	sitter "github.com/smacker/go-tree-sitter"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/ganezdragon/perl-language-server/pkg/analyzer"
	"github.com/ganezdragon/perl-language-server/pkg/model"
	"github.com/ganezdragon/perl-language-server/pkg/parser"
)

type treeEntry struct {
	tree *sitter.Tree
	src  []byte
}

// Store is the workspace index. Reads may run concurrently; every mutation
// takes the write lock, so an analyze never overlaps a query.
type Store struct {
	mu   sync.RWMutex
	log  *slog.Logger
	host *parser.Host

	trees map[string]*treeEntry
	decls map[string][]model.FunctionReference
	refs  map[string]map[string][]model.FunctionReference
	sums  map[string]uint64
	open  map[string]bool
	order []string
}

func NewStore(host *parser.Host, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		log:   log,
		host:  host,
		trees: make(map[string]*treeEntry),
		decls: make(map[string][]model.FunctionReference),
		refs:  make(map[string]map[string][]model.FunctionReference),
		sums:  make(map[string]uint64),
		open:  make(map[string]bool),
	}
}

// Analyze parses content, replaces the URI's index entries wholesale, and
// returns syntax diagnostics when requested. Re-analyzing unchanged content
// is skipped unless the call needs diagnostics or has to force a tree in.
func (s *Store) Analyze(ctx context.Context, uri string, content []byte, settings model.Settings, mode model.AnalysisMode, collectDiagnostics bool, budget *analyzer.ProblemBudget) ([]protocol.Diagnostic, error) {
	sum := xxhash.Sum64(content)

	s.mu.RLock()
	prevSum, seen := s.sums[uri]
	_, hasTree := s.trees[uri]
	s.mu.RUnlock()

	needTree := mode == model.OnFileOpen || settings.Caching == model.CachingFull
	if seen && prevSum == sum && !collectDiagnostics && (!needTree || hasTree) {
		return nil, nil
	}

	tree, err := s.host.Parse(ctx, content)
	if err != nil {
		return nil, err
	}

	perFile := analyzer.Extract(uri, tree, content)
	var diags []protocol.Diagnostic
	if collectDiagnostics {
		diags = analyzer.Diagnostics(tree, content, budget, settings.ShowAllErrors)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, known := s.decls[uri]; !known {
		if _, known := s.refs[uri]; !known {
			s.order = append(s.order, uri)
		}
	}
	s.decls[uri] = perFile.Declarations
	s.refs[uri] = perFile.References
	s.sums[uri] = sum
	if mode == model.OnFileOpen {
		s.open[uri] = true
	}

	if needTree || s.open[uri] {
		s.replaceTreeLocked(uri, tree, content)
	} else {
		s.host.Free(tree)
	}
	return diags, nil
}

func (s *Store) replaceTreeLocked(uri string, tree *sitter.Tree, src []byte) {
	if prev, ok := s.trees[uri]; ok && prev.tree != nil {
		s.host.Free(prev.tree)
	}
	s.trees[uri] = &treeEntry{tree: tree, src: append([]byte(nil), src...)}
}

// TreeFor returns the cached tree for the URI, reading and parsing the file
// on a miss. The release function must be called when the caller is done;
// it frees the tree only when the store did not retain it.
func (s *Store) TreeFor(ctx context.Context, uri string, settings model.Settings) (*sitter.Tree, []byte, func(), error) {
	s.mu.RLock()
	if entry, ok := s.trees[uri]; ok {
		s.mu.RUnlock()
		return entry.tree, entry.src, func() {}, nil
	}
	s.mu.RUnlock()

	content, err := ReadURI(uri)
	if err != nil {
		return nil, nil, nil, err
	}
	tree, err := s.host.Parse(ctx, content)
	if err != nil {
		return nil, nil, nil, err
	}

	if settings.Caching == model.CachingFull {
		s.mu.Lock()
		s.replaceTreeLocked(uri, tree, content)
		s.mu.Unlock()
		return tree, content, func() {}, nil
	}
	host := s.host
	return tree, content, func() { host.Free(tree) }, nil
}

// Close evicts every entry keyed by the URI.
func (s *Store) Close(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.trees[uri]; ok {
		s.host.Free(entry.tree)
		delete(s.trees, uri)
	}
	delete(s.decls, uri)
	delete(s.refs, uri)
	delete(s.sums, uri)
	delete(s.open, uri)
	for i, u := range s.order {
		if u == uri {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// DeclarationsFor returns the URI's declarations in document order.
func (s *Store) DeclarationsFor(uri string) []model.FunctionReference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.decls[uri]
}

// ReferencesFor returns the URI's call sites grouped by function name. The
// returned map is shared; callers must not mutate it.
func (s *Store) ReferencesFor(uri string) map[string][]model.FunctionReference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refs[uri]
}

// EachDeclaration visits every URI's declarations in first-analysis order.
// The visitor returns false to stop early.
func (s *Store) EachDeclaration(visit func(uri string, decls []model.FunctionReference) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, uri := range s.order {
		if decls, ok := s.decls[uri]; ok {
			if !visit(uri, decls) {
				return
			}
		}
	}
}

// EachReferenceGroup visits every URI's call-site groups in first-analysis
// order. The visitor returns false to stop early.
func (s *Store) EachReferenceGroup(visit func(uri string, refs map[string][]model.FunctionReference) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, uri := range s.order {
		if refs, ok := s.refs[uri]; ok {
			if !visit(uri, refs) {
				return
			}
		}
	}
}

// URIs returns the indexed URIs in first-analysis order.
func (s *Store) URIs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}
