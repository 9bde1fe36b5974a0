package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"vlab/internal/api"
)

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/validation/sessions/3", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": 3, "max_capacity_declared": 40, "status": "COMPLETED",
			"detected_max_occupancy": 28, "total_frames": 600,
		})
	})
	mux.HandleFunc("/validation/sessions/3/frame-stats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"timestamp_relative": 0.0, "detected_passengers": 5},
			{"timestamp_relative": 1.0, "detected_passengers": 6},
		})
	})
	return httptest.NewServer(mux)
}

func TestExportSessionWritesReportFile(t *testing.T) {
	srv := fakeBackend(t)
	defer srv.Close()

	dir := t.TempDir()
	b := NewBuilder(api.NewClient(srv.URL, "5s"))

	path, err := b.ExportSession(context.Background(), 3, dir)
	if err != nil {
		t.Fatalf("ExportSession failed: %v", err)
	}
	if filepath.Base(path) != "validation-3.json" {
		t.Errorf("Unexpected report filename: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("Report is not valid JSON: %v", err)
	}
	if payload.Session == nil || payload.Session.ID != 3 {
		t.Errorf("Expected session 3 in the report, got %+v", payload.Session)
	}
	if payload.Metrics.MaxCapacityDeclared != 40 {
		t.Errorf("Expected declared capacity 40, got %d", payload.Metrics.MaxCapacityDeclared)
	}
	if payload.Metrics.DetectedMaxOccupancy == nil || *payload.Metrics.DetectedMaxOccupancy != 28 {
		t.Errorf("Expected detected occupancy 28, got %+v", payload.Metrics.DetectedMaxOccupancy)
	}
	if len(payload.Frames) != 2 {
		t.Errorf("Expected 2 frames, got %d", len(payload.Frames))
	}
	if payload.GeneratedAt.IsZero() {
		t.Error("Expected a generation timestamp")
	}
}

func TestExportAllSkipsSessionsWithoutID(t *testing.T) {
	srv := fakeBackend(t)
	defer srv.Close()

	dir := t.TempDir()
	b := NewBuilder(api.NewClient(srv.URL, "5s"))

	sessions := []api.ValidationSession{{ID: 0}, {ID: 3}}
	path, err := b.ExportAll(context.Background(), sessions, dir)
	if err != nil {
		t.Fatalf("ExportAll failed: %v", err)
	}
	if filepath.Base(path) != "validations.json" {
		t.Errorf("Unexpected bundle filename: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		t.Fatalf("Bundle is not valid JSON: %v", err)
	}
	if len(bundle.Sessions) != 1 {
		t.Errorf("Expected 1 exported session, got %d", len(bundle.Sessions))
	}
}

func TestExportAllErrorsWhenNothingExportable(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(api.NewClient("http://localhost:1", "1s"))

	if _, err := b.ExportAll(context.Background(), []api.ValidationSession{{ID: 0}}, dir); err == nil {
		t.Error("Expected an error when no sessions are exportable")
	}
}
