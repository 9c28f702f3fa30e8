package index

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// URIToPath converts a canonical file:// URI to a filesystem path.
func URIToPath(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	if parsed, err := url.Parse(uri); err == nil {
		return parsed.Path
	}
	return strings.TrimPrefix(uri, "file://")
}

// PathToURI converts a filesystem path to a file:// URI.
func PathToURI(path string) string {
	abs := path
	if !filepath.IsAbs(abs) {
		if resolved, err := filepath.Abs(abs); err == nil {
			abs = resolved
		}
	}
	return "file://" + filepath.ToSlash(abs)
}

// ReadURI reads the file a URI points at.
func ReadURI(uri string) ([]byte, error) {
	return os.ReadFile(URIToPath(uri))
}
