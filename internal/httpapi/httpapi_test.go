package httpapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dcmrelay/mpps-proxy/internal/forwardrule"
)

func newTestRouter(deps Deps) *http.ServeMux {
	// wrap chi's mux behind the standard ServeMux-compatible interface the
	// test only needs ServeHTTP from.
	mux := http.NewServeMux()
	h := NewHandler(deps)
	mux.Handle("/", NewRouter(h, RouterConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		MetricsEnabled: false,
	}))
	return mux
}

func TestHealthReportsHealthyWithoutDatabase(t *testing.T) {
	router := newTestRouter(Deps{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReadyWithoutDatabaseReturnsOK(t *testing.T) {
	router := newTestRouter(Deps{})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestForwardRulesDumpsLoadedEvaluators(t *testing.T) {
	eval := forwardrule.NewConfigEvaluator([]forwardrule.Rule{
		{Name: "to-archive", DestinationAETs: []string{"ARCHIVE"}},
	})
	router := newTestRouter(Deps{Evaluators: map[string]*forwardrule.ConfigEvaluator{"MOD1": eval}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forward-rules", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !contains(rec.Body.String(), "to-archive") {
		t.Errorf("expected response to contain rule name, got %s", rec.Body.String())
	}
}

func TestReloadWithoutConfiguredCallbackReturnsNotImplemented(t *testing.T) {
	router := newTestRouter(Deps{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reload", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}

func TestReloadInvokesCallback(t *testing.T) {
	called := false
	router := newTestRouter(Deps{Reload: func() error {
		called = true
		return nil
	}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reload", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !called {
		t.Error("expected reload callback to be invoked")
	}
}

func TestSweepWithoutConfiguredSweeperReturnsNotImplemented(t *testing.T) {
	router := newTestRouter(Deps{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sweep", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}

func TestSpoolBacklogFallsBackToFilesystemCount(t *testing.T) {
	root := t.TempDir()
	destDir := filepath.Join(root, "ARCHIVE")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.dcm", "b.dcm"} {
		if err := os.WriteFile(filepath.Join(destDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	router := newTestRouter(Deps{SpoolRoots: []string{root}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/spool/ARCHIVE", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !contains(rec.Body.String(), `"count":2`) {
		t.Errorf("expected count 2 in response, got %s", rec.Body.String())
	}
	if !contains(rec.Body.String(), `"source":"filesystem"`) {
		t.Errorf("expected filesystem source in response, got %s", rec.Body.String())
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
