// Package parser owns the tree-sitter language handle for Perl and turns
// source text into syntax trees. The language object is initialized once and
// shared; parsers are created per call because they are not safe for
// concurrent use.
package parser

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/ganezdragon/perl-language-server/pkg/parser/perl"
)

var errNilTree = errors.New("parser produced no tree")

// Host wraps the Perl grammar handle.
type Host struct {
	lang *sitter.Language
}

// NewHost loads the grammar artifact and initializes the language handle.
// Callers must construct the host before servicing any analyzer or LSP
// request.
func NewHost() (*Host, error) {
	lang, err := perl.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("initialize perl grammar: %w", err)
	}
	return &Host{lang: lang}, nil
}

// Language returns the shared grammar handle.
func (h *Host) Language() *sitter.Language {
	return h.lang
}

// Parse parses source text into a fresh syntax tree.
func (h *Host) Parse(ctx context.Context, src []byte) (*sitter.Tree, error) {
	p := sitter.NewParser()
	p.SetLanguage(h.lang)
	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, errNilTree
	}
	return tree, nil
}

// Reparse parses src reusing an old tree where possible. Callers remain
// responsible for freeing the old tree.
func (h *Host) Reparse(ctx context.Context, old *sitter.Tree, src []byte) (*sitter.Tree, error) {
	p := sitter.NewParser()
	p.SetLanguage(h.lang)
	tree, err := p.ParseCtx(ctx, old, src)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, errNilTree
	}
	return tree, nil
}

// Free releases a tree's native memory.
func (h *Host) Free(tree *sitter.Tree) {
	if tree != nil {
		tree.Close()
	}
}
