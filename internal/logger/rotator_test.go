package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogRotatorRotatesAtCap(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "vlab-log-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	logFile := filepath.Join(tmpDir, "test.log")
	rotator := &LogRotator{
		Filename:   logFile,
		MaxSizeMB:  1,
		MaxBackups: 2,
	}
	defer rotator.Close()

	// Two 0.6MB writes cross the 1MB cap and force a rotation.
	data := make([]byte, 600*1024)
	if _, err := rotator.Write(data); err != nil {
		t.Fatalf("Write 1 failed: %v", err)
	}

	info, err := os.Stat(logFile)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != int64(len(data)) {
		t.Errorf("Expected size %d, got %d", len(data), info.Size())
	}

	if _, err := rotator.Write(data); err != nil {
		t.Fatalf("Write 2 failed: %v", err)
	}

	// Current file plus one timestamped backup.
	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("Expected 2 files after rotation, got %d", len(files))
		for _, f := range files {
			t.Logf("Found: %s", f.Name())
		}
	}
}

func TestLogRotatorCleanupKeepsMaxBackups(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "vlab-log-cleanup")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	logFile := filepath.Join(tmpDir, "cleanup.log")
	rotator := &LogRotator{
		Filename:   logFile,
		MaxSizeMB:  1,
		MaxBackups: 2,
	}
	defer rotator.Close()

	// Seed 4 old backups with distinct timestamps.
	for i := 0; i < 4; i++ {
		ts := time.Now().Add(-time.Duration(i+1) * time.Hour)
		name := fmt.Sprintf("cleanup-%s.log", ts.Format("20060102-150405.000"))
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("old"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := rotator.Write([]byte("fresh entry")); err != nil {
		t.Fatal(err)
	}
	if err := rotator.rotate(); err != nil {
		t.Fatal(err)
	}

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatal(err)
	}

	backups := 0
	current := 0
	for _, f := range files {
		switch {
		case f.Name() == "cleanup.log":
			current++
		case strings.HasPrefix(f.Name(), "cleanup-"):
			backups++
		}
	}
	if current != 1 {
		t.Errorf("Expected 1 current log file, got %d", current)
	}
	if backups != 2 {
		t.Errorf("Expected %d backups kept, got %d", rotator.MaxBackups, backups)
	}
}

func TestLogRotatorRejectsOversizedWrite(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "vlab-log-oversize")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	rotator := &LogRotator{
		Filename:  filepath.Join(tmpDir, "big.log"),
		MaxSizeMB: 1,
	}
	defer rotator.Close()

	if _, err := rotator.Write(make([]byte, 2*1024*1024)); err == nil {
		t.Error("Expected an error for a write larger than the cap")
	}
}
