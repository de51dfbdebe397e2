package static

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// Handler serves a built web client from dir. Requests for files that exist
// are served as is; every other path gets index.html so client side routes
// work on reload. An empty dir yields a 404 handler.
func Handler(dir string) http.Handler {
	if dir == "" {
		return http.NotFoundHandler()
	}
	return FSHandler(os.DirFS(dir))
}

func FSHandler(root fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name != "" && name != "index.html" {
			if st, err := fs.Stat(root, name); err == nil && !st.IsDir() {
				fileServer.ServeHTTP(w, r)
				return
			}
		}
		// Serve index.html directly; FileServer would redirect it to "/".
		b, err := fs.ReadFile(root, "index.html")
		if err != nil {
			http.Error(w, "index not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
	})
}
