package lsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func rangeAt(startLine, startChar, endLine, endChar uint32) *protocol.Range {
	return &protocol.Range{
		Start: protocol.Position{Line: startLine, Character: startChar},
		End:   protocol.Position{Line: endLine, Character: endChar},
	}
}

func TestApplyChangesWholeDocument(t *testing.T) {
	out := applyChanges([]byte("old"), []any{
		protocol.TextDocumentContentChangeEventWhole{Text: "new text"},
	})
	assert.Equal(t, "new text", string(out))
}

func TestApplyChangesInsert(t *testing.T) {
	src := []byte("my $x = 1;\n")
	out := applyChanges(src, []any{
		protocol.TextDocumentContentChangeEvent{
			Range: rangeAt(0, 10, 0, 10),
			Text:  " # count",
		},
	})
	assert.Equal(t, "my $x = 1; # count\n", string(out))
}

func TestApplyChangesReplaceAcrossLines(t *testing.T) {
	src := []byte("line one\nline two\nline three\n")
	out := applyChanges(src, []any{
		protocol.TextDocumentContentChangeEvent{
			Range: rangeAt(0, 5, 2, 5),
			Text:  "X",
		},
	})
	assert.Equal(t, "line Xthree\n", string(out))
}

func TestApplyChangesSequential(t *testing.T) {
	src := []byte("abc")
	out := applyChanges(src, []any{
		protocol.TextDocumentContentChangeEvent{Range: rangeAt(0, 3, 0, 3), Text: "d"},
		protocol.TextDocumentContentChangeEvent{Range: rangeAt(0, 0, 0, 1), Text: ""},
	})
	assert.Equal(t, "bcd", string(out))
}

func TestDocumentStore(t *testing.T) {
	docs := newDocumentStore()
	docs.set("file:///a.pl", []byte("1;"))

	text, ok := docs.get("file:///a.pl")
	assert.True(t, ok)
	assert.Equal(t, "1;", string(text))

	docs.delete("file:///a.pl")
	_, ok = docs.get("file:///a.pl")
	assert.False(t, ok)
}
