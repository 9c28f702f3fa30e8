package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/andybalholm/brotli"

	"github.com/ganezdragon/perl-language-server/pkg/model"
)

// The sidecar keeps its historical name even though the payload is
// Brotli-compressed JSON, not a zip archive.
const sidecarName = "function_map.zip"

func sidecarPath(root string) string {
	return filepath.Join(root, ".vscode", sidecarName)
}

// persistedIndex is the on-disk subset of the store: declarations and call
// sites only. Trees are never persisted.
type persistedIndex struct {
	Declarations map[string][]model.FunctionReference            `json:"uriToFunctionDeclarations"`
	References   map[string]map[string][]model.FunctionReference `json:"functionReference"`
}

// Save writes the persisted subset of the index under <root>/.vscode.
func (s *Store) Save(root string) error {
	s.mu.RLock()
	snapshot := persistedIndex{
		Declarations: make(map[string][]model.FunctionReference, len(s.decls)),
		References:   make(map[string]map[string][]model.FunctionReference, len(s.refs)),
	}
	for uri, decls := range s.decls {
		snapshot.Declarations[uri] = decls
	}
	for uri, refs := range s.refs {
		snapshot.References[uri] = refs
	}
	s.mu.RUnlock()

	path := sidecarPath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	compressor := brotli.NewWriter(file)
	if err := json.NewEncoder(compressor).Encode(snapshot); err != nil {
		return err
	}
	return compressor.Close()
}

// Load merges the persisted subset into the store: each URI in the sidecar
// replaces that URI's declarations and references, and URIs the sidecar
// does not mention are kept. It reports whether a sidecar was loaded; any
// read or decode fault leaves the store unchanged and is not fatal.
func (s *Store) Load(root string) bool {
	file, err := os.Open(sidecarPath(root))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Info("index sidecar unreadable", "path", sidecarPath(root), "err", err)
		}
		return false
	}
	defer file.Close()

	var snapshot persistedIndex
	if err := json.NewDecoder(brotli.NewReader(file)).Decode(&snapshot); err != nil {
		s.log.Info("index sidecar corrupt, starting empty", "path", sidecarPath(root), "err", err)
		return false
	}

	uris := make(map[string]bool, len(snapshot.Declarations)+len(snapshot.References))
	for uri := range snapshot.Declarations {
		uris[uri] = true
	}
	for uri := range snapshot.References {
		uris[uri] = true
	}
	ordered := make([]string, 0, len(uris))
	for uri := range uris {
		ordered = append(ordered, uri)
	}
	sort.Strings(ordered)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, uri := range ordered {
		if _, known := s.decls[uri]; known {
			continue
		}
		if _, known := s.refs[uri]; known {
			continue
		}
		s.order = append(s.order, uri)
	}
	for uri, decls := range snapshot.Declarations {
		s.decls[uri] = decls
	}
	for uri, refs := range snapshot.References {
		if refs == nil {
			refs = make(map[string][]model.FunctionReference)
		}
		s.refs[uri] = refs
	}
	return true
}
