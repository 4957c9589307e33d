// Package ui serves the web page that drives the strip.
package ui

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// Dir returns a Handler for the static asset directory dir.
func Dir(dir string) http.Handler {
	return Handler(os.DirFS(dir))
}

// Handler serves files from fsys. Paths without an extension that do not
// name a file fall back to index.html.
func Handler(fsys fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean(r.URL.Path)

		f, openErr := fsys.Open(strings.TrimPrefix(p, "/"))
		if openErr == nil {
			defer func() { _ = f.Close() }()
			stat, statErr := f.Stat()
			if statErr == nil && !stat.IsDir() {
				fileServer.ServeHTTP(w, r)
				return
			}
		}

		if !strings.Contains(path.Base(p), ".") {
			r.URL.Path = "/"
		}

		fileServer.ServeHTTP(w, r)
	})
}
