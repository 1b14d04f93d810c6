// Package server exposes read-only graph queries over HTTP.
//
// Routes:
//
//	GET /healthz
//	GET /api/v1/stats
//	GET /api/v1/relationships?path=&relationship=&content_type=&depth=&include_tests=&marketplace=
//	GET /api/v1/packs/{packID}/dependencies?all_levels=&mandatory_only=
//	GET /api/v1/dangling?marketplace=
//	GET /api/v1/dependencies.dot?focus=&mandatory_only=&first_level=
//	GET /metrics
//
// Errors are JSON objects with a code and a message. Input errors map to 400
// and unknown paths or packs to 404.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/contentgraph/pkg/content"
	cgerrors "github.com/matzehuels/contentgraph/pkg/errors"
	"github.com/matzehuels/contentgraph/pkg/graph"
	"github.com/matzehuels/contentgraph/pkg/render"
)

// Options configures a Server.
type Options struct {
	// Marketplace is used when a request does not name one.
	Marketplace content.Marketplace

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	Logger *log.Logger
}

// Server serves queries against one opened graph.
type Server struct {
	graph       *graph.Graph
	marketplace content.Marketplace
	logger      *log.Logger
	router      chi.Router
}

// New builds the router for g.
func New(g *graph.Graph, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{graph: g, marketplace: opts.Marketplace, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.stats)
		r.Get("/relationships", s.relationships)
		r.Get("/packs/{packID}/dependencies", s.packDependencies)
		r.Get("/dangling", s.dangling)
		r.Get("/dependencies.dot", s.dependencyDOT)
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("serving graph", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.graph.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	commit, err := s.graph.CommitHash(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		graph.Stats
		Commit string `json:"commit,omitempty"`
	}{st, commit})
}

func (s *Server) relationships(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseQuery(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.graph.RelationshipsByPath(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) parseQuery(r *http.Request) (graph.Query, error) {
	v := r.URL.Query()
	q := graph.Query{Path: v.Get("path")}
	if q.Path == "" {
		return q, cgerrors.New(cgerrors.ErrCodeInvalidPath, "path is required")
	}
	if rel := v.Get("relationship"); rel != "" {
		t, err := content.ParseRelationshipType(rel)
		if err != nil {
			return q, cgerrors.Wrap(cgerrors.ErrCodeInvalidRelationship, err, "relationship")
		}
		q.Relationship = t
	}
	if ct := v.Get("content_type"); ct != "" {
		t, err := content.ParseContentType(ct)
		if err != nil {
			return q, cgerrors.Wrap(cgerrors.ErrCodeInvalidContentType, err, "content_type")
		}
		q.ContentType = t
	}
	if d := v.Get("depth"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil {
			return q, cgerrors.New(cgerrors.ErrCodeInvalidDepth, "depth %q is not a number", d)
		}
		q.Depth = n
	}
	q.IncludeTests = boolParam(v.Get("include_tests"))
	m, err := s.marketplaceParam(r)
	if err != nil {
		return q, err
	}
	q.Marketplace = m
	return q, nil
}

func (s *Server) packDependencies(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "packID")
	v := r.URL.Query()
	out, err := s.graph.PackDependencies(r.Context(), id, graph.FilterOptions{
		AllLevels:     boolParam(v.Get("all_levels")),
		MandatoryOnly: boolParam(v.Get("mandatory_only")),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if out == nil {
		out = []content.PackDependency{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) dangling(w http.ResponseWriter, r *http.Request) {
	m, err := s.marketplaceParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	refs, err := s.graph.DanglingReferences(r.Context(), m)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if refs == nil {
		refs = []graph.DanglingReference{}
	}
	writeJSON(w, http.StatusOK, refs)
}

func (s *Server) dependencyDOT(w http.ResponseWriter, r *http.Request) {
	snap, err := s.graph.Snapshot(r.Context(), "")
	if err != nil {
		s.writeError(w, err)
		return
	}
	v := r.URL.Query()
	dot := render.ToDOT(snap.PackDependencies, render.Options{
		Focus:          v.Get("focus"),
		FirstLevelOnly: boolParam(v.Get("first_level")),
		MandatoryOnly:  boolParam(v.Get("mandatory_only")),
	})
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	_, _ = w.Write([]byte(dot))
}

func (s *Server) marketplaceParam(r *http.Request) (content.Marketplace, error) {
	raw := r.URL.Query().Get("marketplace")
	if raw == "" {
		return s.marketplace, nil
	}
	m, err := content.ParseMarketplace(raw)
	if err != nil {
		return "", cgerrors.Wrap(cgerrors.ErrCodeInvalidMarketplace, err, "marketplace")
	}
	return m, nil
}

func boolParam(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := cgerrors.GetCode(err)
	status := http.StatusInternalServerError
	switch {
	case strings.HasPrefix(string(code), "INVALID_"):
		status = http.StatusBadRequest
	case code == cgerrors.ErrCodeNotFound, code == cgerrors.ErrCodePackNotFound, code == cgerrors.ErrCodeFileNotFound:
		status = http.StatusNotFound
	default:
		s.logger.Error("request failed", "err", err)
	}
	if code == "" {
		code = cgerrors.ErrCodeInternal
	}
	writeJSON(w, status, errorBody{Code: string(code), Message: cgerrors.UserMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
