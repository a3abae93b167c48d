package assets

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gnemet/datatables/cache"
)

var contentTypes = map[Kind]string{
	Style:  "text/css; charset=utf-8",
	Script: "text/javascript; charset=utf-8",
}

// Handler serves one bundle kind. The spec comes from the query string.
type Handler struct {
	Selector *Selector
	Kind     Kind
	Logger   *slog.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	spec, err := h.Selector.ParseQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bundle, err := h.Selector.Resolve(r.Context(), spec, h.Kind)
	if err != nil {
		var missing *AssetNotFoundError
		if errors.As(err, &missing) {
			h.logger().Error("asset bundle incomplete", "path", missing.Path)
			http.Error(w, "asset not found", http.StatusNotFound)
			return
		}
		h.logger().Error("asset bundle failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// the tag follows the bytes, so redeployed files invalidate clients
	etag := `"` + cache.Key(string(h.Kind), string(bundle)) + `"`
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", contentTypes[h.Kind])
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if r.Method == http.MethodHead {
		return
	}
	w.Write(bundle)
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Register mounts the style and script handlers under prefix as
// prefix/css and prefix/js.
func Register(mux *http.ServeMux, prefix string, s *Selector) {
	mux.Handle("GET "+prefix+"/css", &Handler{Selector: s, Kind: Style, Logger: s.logger})
	mux.Handle("GET "+prefix+"/js", &Handler{Selector: s, Kind: Script, Logger: s.logger})
}
