package panel

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
)

// indexDocument is the document frames are pointed at; it is served as the
// SPA root rather than redirected.
const indexDocument = "/index.html"

//go:embed web/*
var content embed.FS

// Handler returns an http.Handler that serves the dashboard frontend.
//
// When dir is non-empty and the directory exists, assets are served from the
// filesystem (the frontend build directory). Otherwise the embedded
// placeholder page is served.
//
// Both modes implement SPA fallback: if a requested file doesn't exist,
// index.html is served so client-side routing works correctly.
// Panics if the embedded web assets cannot be loaded (build error).
func Handler(dir string) http.Handler {
	var fileSystem http.FileSystem

	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			fileSystem = http.Dir(dir)
		}
	}

	if fileSystem == nil {
		webFS, err := fs.Sub(content, "web")
		if err != nil {
			panic(fmt.Sprintf("panel: failed to load embedded web assets: %v", err))
		}
		fileSystem = http.FS(webFS)
	}

	fileServer := http.FileServer(fileSystem)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// index.html and the bootstrap script change on every deploy.
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		upath := path.Clean("/" + r.URL.Path)

		// http.FileServer would redirect /index.html to /, which breaks
		// frames loading the document by name.
		if upath == "/" || upath == indexDocument {
			r.URL.Path = "/"
			fileServer.ServeHTTP(w, r)
			return
		}

		f, err := fileSystem.Open(upath)
		if err != nil {
			// SPA fallback: serve index.html with 200
			r.URL.Path = "/"
			fileServer.ServeHTTP(w, r)
			return
		}
		f.Close()

		fileServer.ServeHTTP(w, r)
	})
}
