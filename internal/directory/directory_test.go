package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vlab/internal/api"
)

func serve(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/validation/sessions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestRefreshProjectsRows(t *testing.T) {
	body := `[
		{"id": 1, "max_capacity_declared": 40, "status": "COMPLETED",
		 "processed_video_path": "/media/processed/bus_morning.mp4",
		 "detected_max_occupancy": 31, "total_frames": 900,
		 "created_at": "2026-08-20T09:15:00Z"},
		{"id": 2, "max_capacity_declared": 40, "status": "PROCESSING",
		 "original_video_path": "/media/original/bus_evening.mp4",
		 "created_at": "2026-08-21T18:40:00Z"},
		{"id": 3, "max_capacity_declared": 40,
		 "created_at": "2026-08-22T07:00:00Z"}
	]`
	srv := serve(t, body, http.StatusOK)
	defer srv.Close()

	d := New(api.NewClient(srv.URL, "5s"), nil, 30)
	d.Refresh(context.Background())

	if msg := d.Err(); msg != "" {
		t.Fatalf("Unexpected error: %s", msg)
	}
	rows := d.Rows()
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}

	// Processed path wins for the display name.
	if rows[0].Filename != "bus_morning.mp4" {
		t.Errorf("Expected processed-path filename, got %q", rows[0].Filename)
	}
	// 900 frames at 30fps is 30 seconds.
	if rows[0].Duration != "30s" {
		t.Errorf("Expected duration 30s, got %q", rows[0].Duration)
	}
	if rows[0].Status != "completed" || rows[0].DetectedCount != 31 {
		t.Errorf("Row not normalized: %+v", rows[0])
	}

	// Original path is the fallback; no frame count means no duration.
	if rows[1].Filename != "bus_evening.mp4" {
		t.Errorf("Expected original-path filename, got %q", rows[1].Filename)
	}
	if rows[1].Duration != "—" {
		t.Errorf("Expected duration placeholder, got %q", rows[1].Duration)
	}

	// No paths at all: synthetic name; no status: pending.
	if rows[2].Filename != "session-3" {
		t.Errorf("Expected synthetic filename, got %q", rows[2].Filename)
	}
	if rows[2].Status != api.StatusPending {
		t.Errorf("Expected pending default, got %q", rows[2].Status)
	}
}

func TestRefreshFailureResetsListAndKeepsMessage(t *testing.T) {
	// First a successful refresh, then a failing one.
	srv := serve(t, `[{"id": 1, "max_capacity_declared": 40, "status": "COMPLETED", "created_at": "2026-08-20T09:15:00Z"}]`, http.StatusOK)
	d := New(api.NewClient(srv.URL, "5s"), nil, 30)
	d.Refresh(context.Background())
	srv.Close()
	if len(d.Rows()) != 1 {
		t.Fatalf("Expected 1 row after the first refresh, got %d", len(d.Rows()))
	}

	failing := serve(t, `{"detail": "session list unavailable"}`, http.StatusInternalServerError)
	defer failing.Close()
	d2 := New(api.NewClient(failing.URL, "5s"), nil, 30)
	d2.Refresh(context.Background())

	if msg := d2.Err(); msg != "session list unavailable" {
		t.Errorf("Expected the backend detail, got %q", msg)
	}
	if len(d2.Rows()) != 0 {
		t.Errorf("Expected the list reset to empty on failure, got %d rows", len(d2.Rows()))
	}
}

func TestRefreshNullPayloadIsEmptyList(t *testing.T) {
	srv := serve(t, `null`, http.StatusOK)
	defer srv.Close()

	d := New(api.NewClient(srv.URL, "5s"), nil, 30)
	d.Refresh(context.Background())

	if msg := d.Err(); msg != "" {
		t.Errorf("Unexpected error: %s", msg)
	}
	if rows := d.Rows(); len(rows) != 0 {
		t.Errorf("Expected empty list for null payload, got %d", len(rows))
	}
}

func TestLatestPicksNewestCompletedSession(t *testing.T) {
	body := `[
		{"id": 1, "status": "COMPLETED", "created_at": "2026-08-20T09:00:00Z"},
		{"id": 2, "status": "PROCESSING", "created_at": "2026-08-23T09:00:00Z"},
		{"id": 3, "status": "COMPLETED", "created_at": "2026-08-22T09:00:00Z"}
	]`
	srv := serve(t, body, http.StatusOK)
	defer srv.Close()

	d := New(api.NewClient(srv.URL, "5s"), nil, 30)
	d.Refresh(context.Background())

	latest, ok := d.Latest()
	if !ok {
		t.Fatal("Expected a latest completed session")
	}
	// Session 2 is newer but not completed.
	if latest.ID != 3 {
		t.Errorf("Expected session 3, got %d", latest.ID)
	}
	if latest.CreatedAt.Before(time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected created_at: %v", latest.CreatedAt)
	}
}

func TestCloseDropsLateRefresh(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`[{"id": 9, "status": "COMPLETED", "created_at": "2026-08-20T09:00:00Z"}]`))
	}))
	defer srv.Close()

	d := New(api.NewClient(srv.URL, "5s"), nil, 30)

	done := make(chan struct{})
	go func() {
		d.Refresh(context.Background())
		close(done)
	}()

	// Close before the response lands; the late result must be discarded.
	time.Sleep(20 * time.Millisecond)
	d.Close()
	close(release)
	<-done

	if rows := d.Rows(); len(rows) != 0 {
		t.Errorf("A refresh landing after Close must be dropped, got %d rows", len(rows))
	}
}
