package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "store_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	s, err := NewStore(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCredentialRoundtrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetCredential(CredAccessToken, "tok-1"); err != nil {
		t.Fatalf("Failed to set credential: %v", err)
	}
	// Overwrite replaces, not duplicates.
	if err := s.SetCredential(CredAccessToken, "tok-2"); err != nil {
		t.Fatalf("Failed to overwrite credential: %v", err)
	}

	got, err := s.Credential(CredAccessToken)
	if err != nil {
		t.Fatalf("Failed to read credential: %v", err)
	}
	if got != "tok-2" {
		t.Errorf("Expected tok-2, got %q", got)
	}

	// Missing keys read back as empty without an error.
	got, err = s.Credential("no_such_key")
	if err != nil || got != "" {
		t.Errorf("Expected empty value for a missing key, got %q err=%v", got, err)
	}
}

func TestClearAuthKeepsRememberedEmail(t *testing.T) {
	s := newTestStore(t)

	s.SetCredential(CredAccessToken, "tok")
	s.SetCredential(CredTokenType, "bearer")
	s.SetCredential(CredUserEmail, "driver@fleet.example")
	s.SetCredential(CredRememberedEmail, "driver@fleet.example")

	if err := s.ClearAuth(); err != nil {
		t.Fatalf("ClearAuth failed: %v", err)
	}

	if token, _ := s.Credential(CredAccessToken); token != "" {
		t.Errorf("Expected token cleared, got %q", token)
	}
	if email, _ := s.Credential(CredUserEmail); email != "" {
		t.Errorf("Expected user email cleared, got %q", email)
	}
	// The login prompt convenience survives a logout.
	if email, _ := s.Credential(CredRememberedEmail); email != "driver@fleet.example" {
		t.Errorf("Expected remembered email kept, got %q", email)
	}
}

func TestTokenSourceBehavesAnonymouslyWhenEmpty(t *testing.T) {
	s := newTestStore(t)

	token, tokenType := s.Token()
	if token != "" || tokenType != "" {
		t.Errorf("Expected anonymous token state, got %q %q", token, tokenType)
	}

	s.SetCredential(CredAccessToken, "tok")
	s.SetCredential(CredTokenType, "bearer")
	token, tokenType = s.Token()
	if token != "tok" || tokenType != "bearer" {
		t.Errorf("Expected stored token state, got %q %q", token, tokenType)
	}
}

func TestUploadQueueLifecycle(t *testing.T) {
	s := newTestStore(t)

	modTime := time.Now()
	if err := s.AddOrUpdateUpload("/footage/a.mp4", 100, modTime.Add(-time.Hour)); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if err := s.AddOrUpdateUpload("/footage/b.mp4", 200, modTime); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	pending, err := s.PendingUploads(10)
	if err != nil {
		t.Fatalf("Failed to list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending, got %d", len(pending))
	}
	// Oldest first.
	if pending[0].Path != "/footage/a.mp4" {
		t.Errorf("Expected oldest first, got %s", pending[0].Path)
	}

	if err := s.MarkUploaded("/footage/a.mp4", 42); err != nil {
		t.Fatalf("Failed to mark uploaded: %v", err)
	}

	pending, _ = s.PendingUploads(10)
	if len(pending) != 1 {
		t.Errorf("Expected 1 pending after upload, got %d", len(pending))
	}

	candidates, err := s.PruneCandidates(10)
	if err != nil {
		t.Fatalf("Failed to list prune candidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 prune candidate, got %d", len(candidates))
	}
	if !candidates[0].SessionID.Valid || candidates[0].SessionID.Int64 != 42 {
		t.Errorf("Expected session id 42 recorded, got %+v", candidates[0].SessionID)
	}

	if size, _ := s.TotalSize(); size != 300 {
		t.Errorf("Expected total size 300, got %d", size)
	}
	if n, _ := s.PendingCount(); n != 1 {
		t.Errorf("Expected pending count 1, got %d", n)
	}
}

func TestRewrittenFileResetsToPending(t *testing.T) {
	s := newTestStore(t)

	modTime := time.Now()
	s.AddOrUpdateUpload("/footage/a.mp4", 100, modTime)
	s.MarkUploaded("/footage/a.mp4", 42)

	if n, _ := s.PendingCount(); n != 0 {
		t.Fatalf("Expected nothing pending, got %d", n)
	}

	// Modified footage re-enters the queue.
	if err := s.AddOrUpdateUpload("/footage/a.mp4", 150, modTime.Add(time.Minute)); err != nil {
		t.Fatalf("Failed to re-enqueue: %v", err)
	}

	pending, _ := s.PendingUploads(10)
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending after rewrite, got %d", len(pending))
	}
	if pending[0].Size != 150 {
		t.Errorf("Expected updated size 150, got %d", pending[0].Size)
	}
	if pending[0].Status != StatusPending {
		t.Errorf("Expected status PENDING, got %s", pending[0].Status)
	}
}
