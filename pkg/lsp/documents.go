package lsp

import (
	"sync"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// documentStore keeps the live text of documents the editor has open.
type documentStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func newDocumentStore() *documentStore {
	return &documentStore{docs: make(map[string][]byte)}
}

func (d *documentStore) set(uri string, text []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.docs[uri] = text
}

func (d *documentStore) get(uri string) ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	text, ok := d.docs[uri]
	return text, ok
}

func (d *documentStore) delete(uri string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.docs, uri)
}

// applyChanges folds a didChange batch into the stored text. Both
// incremental range edits and whole-document replacements are handled.
func applyChanges(src []byte, changes []any) []byte {
	for _, raw := range changes {
		switch change := raw.(type) {
		case protocol.TextDocumentContentChangeEvent:
			src = applyRangeEdit(src, change)
		case *protocol.TextDocumentContentChangeEvent:
			src = applyRangeEdit(src, *change)
		case protocol.TextDocumentContentChangeEventWhole:
			src = []byte(change.Text)
		case *protocol.TextDocumentContentChangeEventWhole:
			src = []byte(change.Text)
		}
	}
	return src
}

func applyRangeEdit(src []byte, change protocol.TextDocumentContentChangeEvent) []byte {
	if change.Range == nil {
		return []byte(change.Text)
	}
	start := byteOffset(src, change.Range.Start)
	end := byteOffset(src, change.Range.End)
	if start > len(src) {
		start = len(src)
	}
	if end > len(src) {
		end = len(src)
	}
	if end < start {
		end = start
	}
	edited := make([]byte, 0, len(src)-(end-start)+len(change.Text))
	edited = append(edited, src[:start]...)
	edited = append(edited, change.Text...)
	edited = append(edited, src[end:]...)
	return edited
}

// byteOffset resolves an LSP position to a byte offset. Columns are
// treated as byte columns, which holds for ASCII and keeps the common case
// cheap.
func byteOffset(src []byte, pos protocol.Position) int {
	offset := 0
	line := uint32(0)
	for offset < len(src) && line < pos.Line {
		if src[offset] == '\n' {
			line++
		}
		offset++
	}
	col := uint32(0)
	for offset < len(src) && col < pos.Character && src[offset] != '\n' {
		offset++
		col++
	}
	return offset
}
