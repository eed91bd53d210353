// Package ui embeds the preview page: a dash.js player that lists the
// running sessions and plays the selected manifest.
package ui

import (
	_ "embed"
	"net/http"
)

//go:embed player.html
var playerHTML []byte

// Handler serves the preview page.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(playerHTML)
	})
}
