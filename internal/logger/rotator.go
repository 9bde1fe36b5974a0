package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ensure we implement io.WriteCloser
var _ io.WriteCloser = (*LogRotator)(nil)

// LogRotator writes to a log file and rotates it when it reaches a size cap.
// Rotated files carry a timestamp suffix; only MaxBackups of them are kept.
type LogRotator struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int

	size int64
	file *os.File
	mu   sync.Mutex
}

// Write writes data to the log file, rotating if necessary.
func (l *LogRotator) Write(p []byte) (n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	writeLen := int64(len(p))
	if writeLen > l.max() {
		return 0, fmt.Errorf("write length %d exceeds max file size %d", writeLen, l.max())
	}

	if l.file == nil {
		if err := l.open(); err != nil {
			return 0, err
		}
	}

	if l.size+writeLen > l.max() {
		if err := l.rotate(); err != nil {
			return 0, err
		}
	}

	n, err = l.file.Write(p)
	l.size += int64(n)
	return n, err
}

// Close closes the current log file.
func (l *LogRotator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *LogRotator) max() int64 {
	if l.MaxSizeMB <= 0 {
		return 10 * 1024 * 1024
	}
	return int64(l.MaxSizeMB) * 1024 * 1024
}

func (l *LogRotator) open() error {
	if err := os.MkdirAll(filepath.Dir(l.Filename), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.Filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	l.file = f
	l.size = info.Size()
	return nil
}

// rotate renames the current file to name-<timestamp>.log, opens a fresh
// one, and drops the oldest backups beyond MaxBackups.
func (l *LogRotator) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	l.file = nil

	backup := l.backupName(time.Now())
	if err := os.Rename(l.Filename, backup); err != nil && !os.IsNotExist(err) {
		return err
	}

	if err := l.open(); err != nil {
		return err
	}
	l.cleanup()
	return nil
}

func (l *LogRotator) backupName(t time.Time) string {
	dir := filepath.Dir(l.Filename)
	base := filepath.Base(l.Filename)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", prefix, t.Format("20060102-150405.000"), ext))
}

// cleanup removes the oldest backups beyond MaxBackups. Best effort.
func (l *LogRotator) cleanup() {
	if l.MaxBackups <= 0 {
		return
	}

	dir := filepath.Dir(l.Filename)
	base := filepath.Base(l.Filename)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext) + "-"

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var backups []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ext) {
			backups = append(backups, name)
		}
	}
	if len(backups) <= l.MaxBackups {
		return
	}

	// Timestamped names sort chronologically.
	sort.Strings(backups)
	for _, name := range backups[:len(backups)-l.MaxBackups] {
		os.Remove(filepath.Join(dir, name))
	}
}
