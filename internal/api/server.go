// Package api serves stored analysis runs over HTTP.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/branchpoints/internal/branching"
	"github.com/banshee-data/branchpoints/internal/db"
	"github.com/banshee-data/branchpoints/internal/httputil"
	"github.com/banshee-data/branchpoints/internal/render"
	"github.com/banshee-data/branchpoints/internal/version"
)

// RunStore is the subset of db.RunStore the server needs.
type RunStore interface {
	Get(ctx context.Context, id string) (*db.Run, error)
	List(ctx context.Context) ([]db.RunSummary, error)
	Delete(ctx context.Context, id string) error
}

type Server struct {
	runs RunStore
}

func NewServer(runs RunStore) *Server {
	return &Server{runs: runs}
}

// VersionInfo is the body of /api/version.
type VersionInfo struct {
	Version   string `json:"version"`
	GitSHA    string `json:"git_sha"`
	BuildTime string `json:"build_time"`
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/version", s.showVersion)
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.showRun)
	mux.HandleFunc("DELETE /api/runs/{id}", s.deleteRun)
	mux.HandleFunc("GET /api/runs/{id}/definitions.csv", s.downloadDefinitions)
	mux.HandleFunc("GET /api/runs/{id}/lineage", s.showLineage)
	mux.HandleFunc("GET /charts/runs/{id}", s.treeChart)
	mux.HandleFunc("GET /charts/runs/{id}/dendrogram.png", s.dendrogram)
	return mux
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, VersionInfo{
		Version:   version.Version,
		GitSHA:    version.GitSHA,
		BuildTime: version.BuildTime,
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.List(r.Context())
	if err != nil {
		httputil.InternalServerError(w, err)
		return
	}
	httputil.WriteJSONOK(w, runs)
}

// loadRun fetches the run named by the {id} path value, writing the error
// response itself when it fails.
func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*db.Run, bool) {
	id := r.PathValue("id")
	run, err := s.runs.Get(r.Context(), id)
	switch {
	case errors.Is(err, db.ErrRunNotFound):
		httputil.NotFound(w, fmt.Sprintf("run %q not found", id))
		return nil, false
	case err != nil:
		httputil.InternalServerError(w, err)
		return nil, false
	}
	return run, true
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	if run, ok := s.loadRun(w, r); ok {
		httputil.WriteJSONOK(w, run)
	}
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.runs.Delete(r.Context(), id)
	switch {
	case errors.Is(err, db.ErrRunNotFound):
		httputil.NotFound(w, fmt.Sprintf("run %q not found", id))
	case err != nil:
		httputil.InternalServerError(w, err)
	default:
		httputil.NoContent(w)
	}
}

func (s *Server) downloadDefinitions(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := render.WriteCSV(&buf, run.Definitions); err != nil {
		httputil.InternalServerError(w, err)
		return
	}
	stem := run.ID
	if run.Label != "" {
		stem = run.Label
	}
	httputil.WriteAttachment(w, "text/csv", stem+"-definitions", ".csv", buf.Bytes())
}

func (s *Server) showLineage(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	points, err := branching.Lineage(run.Definitions)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	httputil.WriteJSONOK(w, points)
}

func chartTitle(run *db.Run) string {
	if run.Label != "" {
		return run.Label
	}
	return "Run " + run.ID
}

func (s *Server) treeChart(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	tree, err := render.TreeChart(run.Definitions, chartTitle(run))
	if err != nil {
		httputil.WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := render.RenderHTML(&buf, tree); err != nil {
		httputil.InternalServerError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) dendrogram(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := render.WriteDendrogram(&buf, run.Definitions, chartTitle(run), "png"); err != nil {
		httputil.WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}
