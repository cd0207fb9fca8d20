package document

import (
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
)

// PathToURI builds a file URI for an absolute path.
func PathToURI(path string) string {
	slash := filepath.ToSlash(filepath.Clean(path))
	if !strings.HasPrefix(slash, "/") {
		// windows drive path
		slash = "/" + slash
	}
	u := url.URL{
		Scheme: "file",
		Path:   slash,
	}
	return u.String()
}

// URIToPath converts a file URI to a local path. Anything that is not a
// file URI is returned unchanged.
func URIToPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}
	path := u.Path
	if runtime.GOOS == "windows" {
		path = strings.TrimPrefix(path, "/")
	}
	return filepath.Clean(filepath.FromSlash(path))
}
