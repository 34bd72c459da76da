package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"dirindex/internal/scanner"
	"dirindex/internal/search"
	"dirindex/internal/startup"
	"dirindex/internal/store"
	"dirindex/internal/watchmgr"
)

type testAPI struct {
	router  *mux.Router
	store   *store.Store
	manager *watchmgr.Manager
	dir     string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	base := t.TempDir()
	s, err := store.New(context.Background(), filepath.Join(base, "index.db"))
	if err != nil {
		t.Fatalf("store.New() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	sc := scanner.New(s, scanner.Config{Walker: scanner.WalkerConfig{NumWorkers: 2}})
	mgr := watchmgr.New(s, sc, watchmgr.Config{DefaultPollInterval: time.Minute})
	t.Cleanup(mgr.Stop)

	config := &startup.Config{DefaultPollInterval: time.Minute}
	h := New(s, search.NewService(s), mgr, config)

	router := mux.NewRouter()
	h.Routes(router)

	dir := filepath.Join(base, "tree")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("Mkdir() failed: %v", err)
	}
	return &testAPI{router: router, store: s, manager: mgr, dir: dir}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("response is not valid JSON: %v\n%s", err, rec.Body.String())
	}
}

func (a *testAPI) waitForEntry(t *testing.T, rootID int64, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := a.store.GetEntry(context.Background(), rootID, path); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("entry %s never appeared", path)
}

func TestRootLifecycle(t *testing.T) {
	api := newTestAPI(t)

	file := filepath.Join(api.dir, "a.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	rec := api.do(t, "POST", "/api/roots", rootRequest{Path: api.dir})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/roots = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var root store.WatchedRoot
	decode(t, rec, &root)
	if root.ID == 0 || root.Path != api.dir {
		t.Fatalf("created root = %+v", root)
	}

	api.waitForEntry(t, root.ID, file)

	rec = api.do(t, "GET", "/api/roots", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/roots = %d", rec.Code)
	}
	var roots []store.WatchedRoot
	decode(t, rec, &roots)
	if len(roots) != 1 {
		t.Errorf("listed %d roots, want 1", len(roots))
	}

	rec = api.do(t, "GET", fmt.Sprintf("/api/roots/%d", root.ID), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("GET root = %d, want 200", rec.Code)
	}
	rec = api.do(t, "GET", "/api/roots/9999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET missing root = %d, want 404", rec.Code)
	}

	// Re-registering the same path conflicts.
	rec = api.do(t, "POST", "/api/roots", rootRequest{Path: api.dir})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate POST = %d, want 409", rec.Code)
	}

	// Deleting an indexed root needs the force flag.
	rec = api.do(t, "DELETE", fmt.Sprintf("/api/roots/%d", root.ID), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("DELETE without force = %d, want 409", rec.Code)
	}
	rec = api.do(t, "DELETE", fmt.Sprintf("/api/roots/%d?force=true", root.ID), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("DELETE with force = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateRootValidation(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, "POST", "/api/roots", rootRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST without path = %d, want 400", rec.Code)
	}

	rec = api.do(t, "POST", "/api/roots", rootRequest{Path: api.dir, PollInterval: "not-a-duration"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST with bad interval = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest("POST", "/api/roots", bytes.NewReader([]byte("{broken")))
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST with broken JSON = %d, want 400", rec.Code)
	}
}

func TestEnableDisableRescan(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, "POST", "/api/roots", rootRequest{Path: api.dir})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/roots = %d", rec.Code)
	}
	var root store.WatchedRoot
	decode(t, rec, &root)

	rec = api.do(t, "POST", fmt.Sprintf("/api/roots/%d/disable", root.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("disable = %d", rec.Code)
	}
	var got store.WatchedRoot
	decode(t, rec, &got)
	if got.Enabled {
		t.Error("root still enabled after disable")
	}

	// A disabled root has no runner to rescan.
	rec = api.do(t, "POST", fmt.Sprintf("/api/roots/%d/rescan", root.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("rescan while disabled = %d, want 404", rec.Code)
	}

	rec = api.do(t, "POST", fmt.Sprintf("/api/roots/%d/enable", root.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("enable = %d", rec.Code)
	}
	rec = api.do(t, "POST", fmt.Sprintf("/api/roots/%d/rescan", root.ID), nil)
	if rec.Code != http.StatusAccepted {
		t.Errorf("rescan = %d, want 202", rec.Code)
	}
}

func seedSearchRoot(t *testing.T, api *testAPI) *store.WatchedRoot {
	t.Helper()
	ctx := context.Background()

	root := &store.WatchedRoot{
		Path:         "/data/lib",
		Kind:         store.KindLocal,
		PollInterval: time.Minute,
		Enabled:      true,
	}
	if err := api.store.CreateRoot(ctx, root); err != nil {
		t.Fatalf("CreateRoot() failed: %v", err)
	}

	entries := []store.FileEntry{
		{RootID: root.ID, Path: "/data/lib/holiday.mp4", ParentPath: "/data/lib", Name: "holiday.mp4", Extension: "mp4", Size: 1, ModTime: time.Unix(1700000000, 0), Generation: 1},
		{RootID: root.ID, Path: "/data/lib/report.txt", ParentPath: "/data/lib", Name: "report.txt", Extension: "txt", Size: 1, ModTime: time.Unix(1700000000, 0), Generation: 1},
	}
	if err := api.store.UpsertEntries(ctx, entries); err != nil {
		t.Fatalf("UpsertEntries() failed: %v", err)
	}
	return root
}

func TestSearchEndpoint(t *testing.T) {
	api := newTestAPI(t)
	seedSearchRoot(t, api)

	rec := api.do(t, "GET", "/api/search?q=holiday", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search = %d: %s", rec.Code, rec.Body.String())
	}
	var result store.SearchResult
	decode(t, rec, &result)
	if len(result.Items) != 1 || result.Items[0].Name != "holiday.mp4" {
		t.Errorf("search result = %+v", result.Items)
	}

	rec = api.do(t, "GET", "/api/search?ext=txt", nil)
	decode(t, rec, &result)
	if len(result.Items) != 1 || result.Items[0].Extension != "txt" {
		t.Errorf("extension filter result = %+v", result.Items)
	}
}

func TestBrowseEndpoint(t *testing.T) {
	api := newTestAPI(t)
	root := seedSearchRoot(t, api)

	rec := api.do(t, "GET", "/api/browse", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("browse without root = %d, want 400", rec.Code)
	}

	rec = api.do(t, "GET", fmt.Sprintf("/api/browse?root=%d", root.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("browse = %d: %s", rec.Code, rec.Body.String())
	}
	var entries []store.FileEntry
	decode(t, rec, &entries)
	if len(entries) != 2 {
		t.Errorf("browse returned %d entries, want 2", len(entries))
	}

	rec = api.do(t, "GET", "/api/browse?root=9999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("browse unknown root = %d, want 404", rec.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	api := newTestAPI(t)
	root := seedSearchRoot(t, api)

	rec := api.do(t, "GET", fmt.Sprintf("/api/roots/%d/export", root.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export = %d", rec.Code)
	}
	var entries []store.FileEntry
	decode(t, rec, &entries)
	if len(entries) != 2 {
		t.Errorf("JSON export has %d entries, want 2", len(entries))
	}

	rec = api.do(t, "GET", fmt.Sprintf("/api/roots/%d/export?format=csv", root.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csv export = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("csv Content-Type = %q", ct)
	}

	rec = api.do(t, "GET", fmt.Sprintf("/api/roots/%d/export?format=xml", root.ID), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unsupported format = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, "GET", "/livez", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("livez = %d", rec.Code)
	}

	rec = api.do(t, "GET", "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz = %d", rec.Code)
	}

	rec = api.do(t, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}
	var health HealthResponse
	decode(t, rec, &health)
	if health.Status != statusHealthy {
		t.Errorf("health status = %q, want %q", health.Status, statusHealthy)
	}

	// A paused store fails readiness but stays alive.
	api.do(t, "POST", "/api/admin/pause", nil)
	rec = api.do(t, "GET", "/readyz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz while paused = %d, want 503", rec.Code)
	}
	rec = api.do(t, "GET", "/livez", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("livez while paused = %d, want 200", rec.Code)
	}
	api.do(t, "POST", "/api/admin/resume", nil)
	rec = api.do(t, "GET", "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz after resume = %d", rec.Code)
	}
}

func TestVersionEndpoint(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, "GET", "/version", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("version = %d", rec.Code)
	}
	var info startup.BuildInfo
	decode(t, rec, &info)
	if info.GoVersion == "" {
		t.Error("version response missing goVersion")
	}
}

func TestStatusEndpoint(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, "GET", "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status StatusResponse
	decode(t, rec, &status)
	if status.Overall != store.HealthNormal || status.Roots == nil {
		t.Errorf("status = %+v, want normal with empty roots array", status)
	}
}

func TestScanErrorEndpoints(t *testing.T) {
	api := newTestAPI(t)
	root := seedSearchRoot(t, api)
	ctx := context.Background()

	if err := api.store.InsertScanError(ctx, root.ID, "/data/lib/locked", "permission denied"); err != nil {
		t.Fatalf("InsertScanError() failed: %v", err)
	}

	rec := api.do(t, "GET", "/api/scan-errors", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("scan-errors = %d", rec.Code)
	}
	var errs []store.ScanError
	decode(t, rec, &errs)
	if len(errs) != 1 {
		t.Fatalf("listed %d scan errors, want 1", len(errs))
	}

	rec = api.do(t, "POST", fmt.Sprintf("/api/scan-errors/%d/resolve", errs[0].ID), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("resolve = %d", rec.Code)
	}

	rec = api.do(t, "DELETE", "/api/scan-errors", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("clear = %d", rec.Code)
	}
	rec = api.do(t, "GET", "/api/scan-errors?resolved=true", nil)
	decode(t, rec, &errs)
	if len(errs) != 0 {
		t.Errorf("%d scan errors remain after clear", len(errs))
	}
}

func TestStatsAndExtensionsEndpoints(t *testing.T) {
	api := newTestAPI(t)
	seedSearchRoot(t, api)

	rec := api.do(t, "GET", "/api/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats = %d", rec.Code)
	}
	var stats store.IndexStats
	decode(t, rec, &stats)
	if stats.TotalFiles != 2 {
		t.Errorf("stats.TotalFiles = %d, want 2", stats.TotalFiles)
	}

	rec = api.do(t, "GET", "/api/extensions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("extensions = %d", rec.Code)
	}
	var exts []store.ExtensionCount
	decode(t, rec, &exts)
	if len(exts) != 2 {
		t.Errorf("extensions = %+v, want two kinds", exts)
	}
}

func TestAdminVacuum(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, "POST", "/api/admin/vacuum", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("vacuum = %d: %s", rec.Code, rec.Body.String())
	}
	rec = api.do(t, "POST", "/api/admin/rebuild-fts", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("rebuild-fts = %d: %s", rec.Code, rec.Body.String())
	}
}
