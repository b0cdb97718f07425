package server

import (
	"bytes"
	_ "embed"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/a-h/templ"
)

//go:embed reload.js
var reloadClient []byte

const reloadTag = `<script src="` + clientPath + `" async></script>`

func (s *Server) handleClient(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(reloadClient)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	urlPath := path.Clean("/" + r.URL.Path)
	name := filepath.Join(s.root, filepath.FromSlash(urlPath))

	info, err := os.Stat(name)
	if err == nil && info.IsDir() {
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.Redirect(w, r, urlPath+"/", http.StatusMovedPermanently)
			return
		}
		name = filepath.Join(name, "index.html")
		info, err = os.Stat(name)
	}
	if err != nil || info.IsDir() {
		s.notFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	if isHTML(name) {
		data, err := os.ReadFile(name)
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		http.ServeContent(w, r, info.Name(), info.ModTime(), bytes.NewReader(InjectReloadScript(data)))
		return
	}

	f, err := os.Open(name)
	if err != nil {
		s.notFound(w, r)
		return
	}
	defer f.Close()
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// notFound serves the site's own 404.html when it has one and the built-in
// page otherwise, both with the reload client so the page recovers once the
// file appears.
func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	if data, err := os.ReadFile(filepath.Join(s.root, "404.html")); err == nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write(InjectReloadScript(data))
		return
	}
	templ.Handler(notFoundPage(r.URL.Path), templ.WithStatus(http.StatusNotFound)).ServeHTTP(w, r)
}

func isHTML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".html" || ext == ".htm"
}

// InjectReloadScript inserts the reload client before the last </body>, or
// at the end of documents without one. Documents that already load the
// client are returned unchanged.
func InjectReloadScript(doc []byte) []byte {
	if bytes.Contains(doc, []byte(reloadTag)) {
		return doc
	}

	idx := lastIndexFold(doc, []byte("</body>"))
	out := make([]byte, 0, len(doc)+len(reloadTag)+1)
	if idx < 0 {
		out = append(out, doc...)
		return append(out, reloadTag...)
	}
	out = append(out, doc[:idx]...)
	out = append(out, reloadTag...)
	return append(out, doc[idx:]...)
}

// lastIndexFold is bytes.LastIndex with ASCII case folding.
func lastIndexFold(s, sep []byte) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		if bytes.EqualFold(s[i:i+len(sep)], sep) {
			return i
		}
	}
	return -1
}
