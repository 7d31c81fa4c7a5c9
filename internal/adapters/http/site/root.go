// Package site serves the embedded coach console, a minimal browser client
// for driving a session by hand.
package site

import (
	"context"
	"net/http"
)

// Register attaches the console routes to mux.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("GET /{$}", http.FileServer(FS()))
	mux.Handle("GET /static/", http.StripPrefix("/static", http.FileServer(FS())))
}
