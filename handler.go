package datatables

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gnemet/datatables/assets"
	"github.com/gnemet/datatables/session"
)

// Response is the envelope the widget expects from the data endpoint.
type Response struct {
	Draw            int     `json:"draw"`
	RecordsTotal    int     `json:"recordsTotal"`
	RecordsFiltered int     `json:"recordsFiltered"`
	Data            [][]any `json:"data"`
	Error           string  `json:"error,omitempty"`
}

// Server exposes the data, configuration and asset endpoints of every
// registered table under Prefix.
type Server struct {
	Builder  *Builder
	Executor Executor
	Assets   *assets.Selector
	Prefix   string
	Logger   *slog.Logger
}

func NewServer(b *Builder, exec Executor, sel *assets.Selector, prefix string) *Server {
	return &Server{
		Builder:  b,
		Executor: exec,
		Assets:   sel,
		Prefix:   strings.TrimRight(prefix, "/"),
		Logger:   slog.Default(),
	}
}

// DataURL is the data endpoint of a table.
func (s *Server) DataURL(table string) string {
	return s.Prefix + "/" + table + "/data"
}

// Routes mounts the endpoints on mux:
//
//	GET       {prefix}/assets/css
//	GET       {prefix}/assets/js
//	GET|POST  {prefix}/{table}/data
//	GET       {prefix}/{table}/config
func (s *Server) Routes(mux *http.ServeMux) {
	if s.Assets != nil {
		assets.Register(mux, s.Prefix+"/assets", s.Assets)
	}
	mux.HandleFunc(s.Prefix+"/{table}/data", s.handleData)
	mux.HandleFunc("GET "+s.Prefix+"/{table}/config", s.handleConfig)
}

// Handler returns a mux with the routes mounted.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Routes(mux)
	return mux
}

func (s *Server) bundle(r *http.Request, table string) (*ConfigBundle, error) {
	var opts []GetOption
	if sess, ok := session.FromContext(r.Context()); ok {
		opts = append(opts, WithSession(sess, r.URL.Path))
	}
	return s.Builder.GetConfigBundle(r.Context(), table, opts...)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	bundle, err := s.bundle(r, table)
	if err != nil {
		s.definitionError(w, table, err)
		return
	}

	if r.Method != bundle.Options.Ajax.Type {
		w.Header().Set("Allow", bundle.Options.Ajax.Type)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := ParseRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: err.Error(), Data: [][]any{}})
		return
	}

	resp, err := s.Data(r.Context(), bundle, req)
	if err != nil {
		status := http.StatusInternalServerError
		if IsRequestError(err) {
			status = http.StatusBadRequest
		} else {
			s.Logger.Error("data request failed", "table", table, "error", err)
		}
		writeJSON(w, status, Response{Draw: req.Draw, Error: err.Error(), Data: [][]any{}})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Data answers one widget request for bundle.
func (s *Server) Data(ctx context.Context, bundle *ConfigBundle, req *Request) (*Response, error) {
	q, err := BuildQuery(req, bundle.Columns, bundle.Query)
	if err != nil {
		return nil, err
	}

	total, err := s.Executor.Count(ctx, q, false)
	if err != nil {
		return nil, err
	}
	filtered := total
	if len(q.Filters) > 0 {
		if filtered, err = s.Executor.Count(ctx, q, true); err != nil {
			return nil, err
		}
	}

	rows, err := s.Executor.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	renderer := bundle.RowRenderer()
	cols := bundle.Columns.All()
	data := make([][]any, 0, len(rows))
	for _, row := range rows {
		cells, err := renderer.RenderRow(row, cols)
		if err != nil {
			return nil, err
		}
		data = append(data, cells)
	}
	return &Response{
		Draw:            req.Draw,
		RecordsTotal:    total,
		RecordsFiltered: filtered,
		Data:            data,
	}, nil
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	bundle, err := s.bundle(r, table)
	if err != nil {
		s.definitionError(w, table, err)
		return
	}
	cfg, err := bundle.WidgetConfig(s.DataURL(table))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(cfg)
}

func (s *Server) definitionError(w http.ResponseWriter, table string, err error) {
	if errors.Is(err, ErrUnknownDefinition) || errors.Is(err, ErrForeignDefinition) {
		http.Error(w, "unknown table "+table, http.StatusNotFound)
		return
	}
	s.Logger.Error("table configuration failed", "table", table, "error", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
