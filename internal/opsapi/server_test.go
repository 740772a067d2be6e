package opsapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"ares_api/internal/progressstore"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	progress, err := progressstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("progressstore.New: %v", err)
	}
	return New(nil, progress, nil, gin.TestMode)
}

func TestHealthIsOpen(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", w.Code)
	}
}

func TestHealthReportsDegradedOnDBPingFailure(t *testing.T) {
	s := newTestServer(t).WithDBPing(func() error { return http.ErrServerClosed })
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET /health with failing ping = %d, want 503", w.Code)
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/symbols", nil)

	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("POST /admin/symbols without a token = %d, want 401", w.Code)
	}
}

func TestAdminConsoleProgressMissingRecord(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin-console/executions/nope/progress", nil)

	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("GET missing progress = %d, want 404", w.Code)
	}
}

func TestAdminConsoleProgressReturnsRecord(t *testing.T) {
	progress, err := progressstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("progressstore.New: %v", err)
	}
	if _, err := progress.StartAnalysis("BTCUSDT", "exec-ops"); err != nil {
		t.Fatalf("StartAnalysis: %v", err)
	}
	s := New(nil, progress, nil, gin.TestMode)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin-console/executions/exec-ops/progress", nil)

	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("GET progress = %d, want 200", w.Code)
	}
}
