// Package site serves the landing page linking to the API docs and
// operational endpoints.
package site

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFS embed.FS

// assets is staticFS rooted at static/.
func assets() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err) // static is embedded at build time
	}
	return http.FS(sub)
}

// Register attaches the landing page routes to mux. Only "/" and the
// stylesheet are served; every other unmatched path stays a 404.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	files := http.FileServer(assets())
	mux.Handle("GET /{$}", files)
	mux.Handle("GET /style.css", files)
}
