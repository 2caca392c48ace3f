package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/branchpoints/internal/branching"
	"github.com/banshee-data/branchpoints/internal/db"
	"github.com/banshee-data/branchpoints/internal/monitoring"
	"github.com/banshee-data/branchpoints/internal/version"
)

func testRun() *db.Run {
	return &db.Run{
		Label:   "scenario",
		Classes: []string{"A", "B", "C"},
		Times:   []float64{0, 1, 2, 3, 4, 5},
		Params:  branching.Params{Epsilon: 0.005, TLimit: 5},
		BranchPoints: []branching.BranchPoint{
			{Time: 2, Left: []string{"A"}, Right: []string{"B"}},
			{Time: 4, Left: []string{"A", "B"}, Right: []string{"C"}},
		},
		Definitions: []branching.BranchDefinition{
			{Classes: []string{"A", "B", "C"}, Start: 4, End: 5},
			{Classes: []string{"A", "B"}, Start: 2, End: 4},
			{Classes: []string{"C"}, Start: 0, End: 4},
			{Classes: []string{"A"}, Start: 0, End: 2},
			{Classes: []string{"B"}, Start: 0, End: 2},
		},
	}
}

func setupTestServer(t *testing.T) (*http.ServeMux, *db.RunStore) {
	t.Helper()
	dbInst, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbInst.Close() })

	store := db.NewRunStore(dbInst, nil)
	return NewServer(store).ServeMux(), store
}

func do(t *testing.T, mux http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestShowVersion(t *testing.T) {
	mux, _ := setupTestServer(t)

	w := do(t, mux, http.MethodGet, "/api/version")
	require.Equal(t, http.StatusOK, w.Code)

	var info VersionInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	assert.Equal(t, version.Version, info.Version)
	assert.Equal(t, version.GitSHA, info.GitSHA)
}

func TestRunsLifecycle(t *testing.T) {
	mux, store := setupTestServer(t)
	ctx := context.Background()

	w := do(t, mux, http.MethodGet, "/api/runs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	run := testRun()
	require.NoError(t, store.Insert(ctx, run))

	w = do(t, mux, http.MethodGet, "/api/runs")
	require.Equal(t, http.StatusOK, w.Code)
	var list []db.RunSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, run.ID, list[0].ID)
	assert.Equal(t, 3, list[0].NumClasses)

	w = do(t, mux, http.MethodGet, "/api/runs/"+run.ID)
	require.Equal(t, http.StatusOK, w.Code)
	var got db.Run
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, run.Definitions, got.Definitions)
	assert.Equal(t, run.BranchPoints, got.BranchPoints)

	w = do(t, mux, http.MethodDelete, "/api/runs/"+run.ID)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, mux, http.MethodGet, "/api/runs/"+run.ID)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, mux, http.MethodDelete, "/api/runs/"+run.ID)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadDefinitions(t *testing.T) {
	mux, store := setupTestServer(t)
	run := testRun()
	require.NoError(t, store.Insert(context.Background(), run))

	w := do(t, mux, http.MethodGet, "/api/runs/"+run.ID+"/definitions.csv")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=scenario-definitions.csv", w.Header().Get("Content-Disposition"))

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Equal(t, []string{"classes,start,end", "C,0,4", "A,0,2", "B,0,2", "A|B,2,4", "A|B|C,4,5"}, lines)
}

func TestShowLineage(t *testing.T) {
	mux, store := setupTestServer(t)
	run := testRun()
	require.NoError(t, store.Insert(context.Background(), run))

	w := do(t, mux, http.MethodGet, "/api/runs/"+run.ID+"/lineage")
	require.Equal(t, http.StatusOK, w.Code)
	var points []branching.BranchPoint
	require.NoError(t, json.NewDecoder(w.Body).Decode(&points))
	assert.Equal(t, run.BranchPoints, points)
}

func TestCharts(t *testing.T) {
	mux, store := setupTestServer(t)
	run := testRun()
	require.NoError(t, store.Insert(context.Background(), run))

	w := do(t, mux, http.MethodGet, "/charts/runs/"+run.ID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "scenario")

	w = do(t, mux, http.MethodGet, "/charts/runs/"+run.ID+"/dendrogram.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = do(t, mux, http.MethodGet, "/charts/runs/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBrokenDefinitionsAreUnprocessable(t *testing.T) {
	mux, store := setupTestServer(t)
	run := testRun()
	run.Definitions = run.Definitions[:4] // B is missing
	require.NoError(t, store.Insert(context.Background(), run))

	for _, path := range []string{"/charts/runs/", "/api/runs/"} {
		suffix := ""
		if path == "/api/runs/" {
			suffix = "/lineage"
		}
		w := do(t, mux, http.MethodGet, path+run.ID+suffix)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, path)
	}
}

// failingStore returns an error from every call.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (*db.Run, error) { return nil, errors.New("boom") }
func (failingStore) List(context.Context) ([]db.RunSummary, error) { return nil, errors.New("boom") }
func (failingStore) Delete(context.Context, string) error { return errors.New("boom") }

func TestStoreFailures(t *testing.T) {
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(prev) })

	mux := NewServer(failingStore{}).ServeMux()
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/runs"},
		{http.MethodGet, "/api/runs/x"},
		{http.MethodDelete, "/api/runs/x"},
	} {
		w := do(t, mux, tc.method, tc.path)
		assert.Equal(t, http.StatusInternalServerError, w.Code, tc.path)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	mux, _ := setupTestServer(t)
	w := do(t, mux, http.MethodPost, "/api/runs")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestLoggingMiddleware(t *testing.T) {
	var lines []string
	prev := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})
	t.Cleanup(func() { monitoring.SetLogger(prev) })

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := do(t, h, http.MethodGet, "/anything")
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Len(t, lines, 1)
}

func TestStatusCodeColor(t *testing.T) {
	assert.Contains(t, statusCodeColor(200), "200")
	assert.Contains(t, statusCodeColor(200), colorBoldGreen)
	assert.Contains(t, statusCodeColor(302), colorYellow)
	assert.Contains(t, statusCodeColor(404), colorBoldRed)
	assert.Contains(t, statusCodeColor(503), colorBoldRed)
	assert.Equal(t, "100", statusCodeColor(100))
}
