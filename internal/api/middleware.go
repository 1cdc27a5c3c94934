package api

import (
	"net/http"
	"path"
	"strings"
)

var scriptExtensions = map[string]bool{
	".js": true, ".mjs": true, ".php": true, ".py": true, ".pl": true,
	".rb": true, ".sh": true, ".cgi": true, ".asp": true, ".aspx": true,
	".jsp": true, ".exe": true, ".bat": true, ".cmd": true, ".ps1": true,
}

// BlockScripts answers 404 for script-looking paths before they reach
// routing.
func BlockScripts(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if scriptExtensions[strings.ToLower(path.Ext(r.URL.Path))] {
			NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func NotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}
