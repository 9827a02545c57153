package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"ingest-gateway/internal/app"
	"ingest-gateway/internal/config"
	"ingest-gateway/internal/controller"
)

func newTestApplication(t *testing.T) *app.Application {
	t.Helper()

	cfg := config.GetDefaultConfig()
	application, err := app.NewApplication(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	return application
}

func TestHealthEndpoint(t *testing.T) {
	application := newTestApplication(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	application.GetRouter().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("health = %d, want 200", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status = %v, want ok", body["status"])
	}
	if body["service"] != "ingest-gateway" {
		t.Errorf("health service = %v", body["service"])
	}
}

// Health не зависит от наличия стримов
func TestHealthIndependentOfSessions(t *testing.T) {
	application := newTestApplication(t)
	router := application.GetRouter()

	probe := func() int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := probe(); code != http.StatusOK {
		t.Fatalf("health with empty registry = %d, want 200", code)
	}

	if _, err := application.GetService().AutoProvision(context.Background(), &controller.AutoStreamRequest{
		ClientID: "probe_client",
		UserID:   "probe_user",
		Camera:   "probe_camera",
	}); err != nil {
		t.Fatalf("AutoProvision: %v", err)
	}

	if code := probe(); code != http.StatusOK {
		t.Fatalf("health with active stream = %d, want 200", code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	application := newTestApplication(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	application.GetRouter().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestNoRouteReturnsJSON(t *testing.T) {
	application := newTestApplication(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	application.GetRouter().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown path = %d, want 404", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("404 body is not JSON: %v", err)
	}
	if body["error"] != "Not Found" {
		t.Errorf("404 error = %v", body["error"])
	}
}
