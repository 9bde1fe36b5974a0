package daemon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"time"

	"vlab/internal/api"
	"vlab/internal/config"
	"vlab/internal/metrics"
	"vlab/internal/store"
)

// Uploader drains the footage queue: each pending video becomes a backend
// validation session with the configured declared capacity, gets its file
// uploaded, and is marked UPLOADED locally with the resulting session id.
type Uploader struct {
	cfg   *config.Config
	store *store.Store
	apic  *api.Client
	met   *metrics.Metrics
	log   *slog.Logger
	stop  chan struct{}
}

func NewUploader(cfg *config.Config, s *store.Store, client *api.Client, met *metrics.Metrics, logger *slog.Logger) *Uploader {
	return &Uploader{
		cfg:   cfg,
		store: s,
		apic:  client,
		met:   met,
		log:   logger,
		stop:  make(chan struct{}),
	}
}

// Start launches the queue drain loop.
func (u *Uploader) Start() {
	interval := config.Duration(u.cfg.UploadCheckInterval, 2*time.Second)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				u.processBatch()
			case <-u.stop:
				return
			}
		}
	}()
}

// Stop halts the drain loop.
func (u *Uploader) Stop() {
	close(u.stop)
}

func (u *Uploader) processBatch() {
	records, err := u.store.PendingUploads(10)
	if err != nil {
		u.log.Error("Uploader: error fetching pending videos", "error", err)
		return
	}

	if n, err := u.store.PendingCount(); err == nil {
		u.met.QueueDepth.Set(float64(n))
	}

	for _, r := range records {
		select {
		case <-u.stop:
			return
		default:
		}
		u.process(r)
	}
}

// process handles the full lifecycle of one queued video:
// 1. Create a validation session with the configured declared capacity.
// 2. Upload the video file to that session.
// 3. Mark the video UPLOADED locally, remembering the session id.
// Failures leave the record PENDING so the next batch retries it.
func (u *Uploader) process(rec store.UploadRecord) {
	if u.cfg.MaxCapacity <= 0 {
		// Same precondition the interactive flow enforces: no declared
		// capacity, no session.
		u.log.Warn("Uploader: max_capacity is not configured, skipping queue")
		return
	}

	if _, err := os.Stat(rec.Path); err != nil {
		if os.IsNotExist(err) {
			u.log.Warn("Uploader: file vanished before upload, removing from queue", "path", rec.Path)
			_ = u.store.RemoveUpload(rec.Path)
			return
		}
		u.log.Error("Uploader: cannot stat file", "path", rec.Path, "error", err)
		return
	}

	// Checksum before upload so a later dispute about what was sent can be
	// settled from the logs.
	checksum, err := calculateSHA256(rec.Path)
	if err != nil {
		u.log.Error("Uploader: failed to checksum file", "path", rec.Path, "error", err)
		return
	}

	ctx := context.Background()

	session, err := u.apic.CreateSession(ctx, api.SessionCreate{
		MaxCapacityDeclared: u.cfg.MaxCapacity,
		BusID:               u.cfg.BusID,
	})
	if err != nil {
		u.log.Error("Uploader: session creation failed", "path", rec.Path, "error", err)
		u.met.UploadFailures.Inc()
		return
	}
	if session == nil || session.ID == 0 {
		u.log.Warn("Uploader: backend returned no session id", "path", rec.Path)
		u.met.UploadFailures.Inc()
		return
	}

	u.log.Info("Starting upload", "path", rec.Path, "size", rec.Size, "sha256", checksum, "session_id", session.ID)

	uploadStart := time.Now()
	if err := u.apic.UploadVideo(ctx, session.ID, rec.Path); err != nil {
		u.log.Error("Uploader: video upload failed", "path", rec.Path, "session_id", session.ID, "error", err)
		u.met.UploadFailures.Inc()
		return
	}

	if err := u.store.MarkUploaded(rec.Path, session.ID); err != nil {
		u.log.Error("Uploader: failed to mark as uploaded", "path", rec.Path, "error", err)
		return
	}

	u.met.UploadsTotal.Inc()
	u.met.UploadedBytes.Add(float64(rec.Size))
	u.log.Info("Upload success", "path", rec.Path, "session_id", session.ID, "duration", time.Since(uploadStart))
}

func calculateSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
