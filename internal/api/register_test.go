package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/crowdsense/sensorcloud-core/internal/infrastructure/config"
	"github.com/crowdsense/sensorcloud-core/internal/infrastructure/logging"
	"github.com/crowdsense/sensorcloud-core/internal/registry"
)

// setupTestServer builds a server over an in-memory store.
func setupTestServer(t *testing.T) (*Server, *registry.SQLiteStore) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE device_records (
			device TEXT NOT NULL,
			version INTEGER NOT NULL,
			lat REAL NOT NULL,
			long REAL NOT NULL,
			pin TEXT NOT NULL,
			address TEXT NOT NULL DEFAULT '-',
			manager TEXT NOT NULL DEFAULT '-',
			space TEXT NOT NULL DEFAULT 'UNKNOWN',
			modified INTEGER NOT NULL,
			PRIMARY KEY (device, version)
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}

	store := registry.NewSQLiteStore(db)
	server, err := New(Deps{
		Config:       config.Default().API,
		Registration: config.Default().Registration,
		Logger:       logging.Default(),
		Reconciler:   registry.NewReconciler(store),
		Version:      "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return server, store
}

// postRegister sends a register request through the full router.
func postRegister(t *testing.T, server *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshaling response: %v", err)
	}
	return body
}

func TestHandleRegister_Created(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := postRegister(t, server,
		`{"device": "sensor-001", "lat": 37.5665, "long": 126.978, "pin": "4321"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "success" {
		t.Errorf("status = %v, want success", body["status"])
	}
	if body["message"] != "device registered" {
		t.Errorf("message = %v, want %q", body["message"], "device registered")
	}
}

func TestHandleRegister_Updated(t *testing.T) {
	server, _ := setupTestServer(t)

	report := `{"device": "sensor-001", "lat": 37.5665, "long": 126.978, "pin": "4321"}`
	if rec := postRegister(t, server, report); rec.Code != http.StatusOK {
		t.Fatalf("first register status = %d", rec.Code)
	}

	rec := postRegister(t, server, report)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["message"] != "device updated" {
		t.Errorf("message = %v, want %q", body["message"], "device updated")
	}
}

func TestHandleRegister_ValidationFailure(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := postRegister(t, server, `{"device": "sensor-001"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "error" {
		t.Errorf("status = %v, want error", body["status"])
	}
	// One top-level entry per violated field.
	for _, field := range []string{"lat", "long", "pin"} {
		if _, ok := body[field]; !ok {
			t.Errorf("body missing violations for %q: %v", field, body)
		}
	}
}

func TestHandleRegister_NumericPin(t *testing.T) {
	server, store := setupTestServer(t)

	rec := postRegister(t, server,
		`{"device": "sensor-001", "lat": 37.5665, "long": 126.978, "pin": 4321}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	stored, err := store.LatestVersion(context.Background(), "sensor-001")
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if stored.Pin != "4321" {
		t.Errorf("Pin = %q, want %q", stored.Pin, "4321")
	}
}

func TestHandleRegister_PinMismatch(t *testing.T) {
	server, _ := setupTestServer(t)

	if rec := postRegister(t, server,
		`{"device": "sensor-001", "lat": 37.5665, "long": 126.978, "pin": "4321"}`); rec.Code != http.StatusOK {
		t.Fatalf("first register status = %d", rec.Code)
	}

	rec := postRegister(t, server,
		`{"device": "sensor-001", "lat": 37.5665, "long": 126.978, "pin": "9999"}`)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403; body: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "error" {
		t.Errorf("status = %v, want error", body["status"])
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "pin") {
		t.Errorf("error = %v, want pin mismatch description", body["error"])
	}
}

func TestHandleRegister_CountTooLarge(t *testing.T) {
	server, store := setupTestServer(t)

	rec := postRegister(t, server,
		`{"device": "sensor-001", "lat": 37.5665, "long": 126.978, "pin": "4321", "count": 5000}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	if _, ok := body["error"].(string); !ok {
		t.Errorf("body missing error message: %v", body)
	}

	// No storage access attempted.
	if _, err := store.LatestVersion(context.Background(), "sensor-001"); err == nil {
		t.Error("record was written for a rejected report")
	}
}

func TestHandleRegister_MalformedBody(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := postRegister(t, server, `{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "error" {
		t.Errorf("status = %v, want error", body["status"])
	}
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	server.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
}
