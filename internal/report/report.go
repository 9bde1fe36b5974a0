package report

// Package report builds and exports validation session reports as JSON
// files, mirroring what the lab's export action produces.

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vlab/internal/api"
)

// Metrics is the summary block of a session report.
type Metrics struct {
	DetectedMaxOccupancy *int   `json:"detected_max_occupancy"`
	MaxCapacityDeclared  int    `json:"max_capacity_declared"`
	TotalFrames          *int   `json:"total_frames"`
	Status               string `json:"status"`
}

// Payload is one session's full report.
type Payload struct {
	Session     *api.ValidationSession `json:"session"`
	Metrics     Metrics                `json:"metrics"`
	Frames      []api.FrameStat        `json:"frames"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// Bundle wraps multiple session reports for an export-all.
type Bundle struct {
	GeneratedAt time.Time `json:"generated_at"`
	Sessions    []Payload `json:"sessions"`
}

// Builder assembles reports from the backend.
type Builder struct {
	apic *api.Client
}

func NewBuilder(apic *api.Client) *Builder {
	return &Builder{apic: apic}
}

// BuildSession fetches the session record and its frame stats concurrently
// and assembles the report payload.
func (b *Builder) BuildSession(ctx context.Context, sessionID int64) (*Payload, error) {
	type sessionResult struct {
		session *api.ValidationSession
		err     error
	}
	type framesResult struct {
		frames []api.FrameStat
		err    error
	}

	sessionCh := make(chan sessionResult, 1)
	framesCh := make(chan framesResult, 1)

	go func() {
		s, err := b.apic.GetSession(ctx, sessionID)
		sessionCh <- sessionResult{s, err}
	}()
	go func() {
		f, err := b.apic.FrameStats(ctx, sessionID)
		framesCh <- framesResult{f, err}
	}()

	sres := <-sessionCh
	fres := <-framesCh
	if sres.err != nil {
		return nil, fmt.Errorf("failed to fetch session %d: %w", sessionID, sres.err)
	}
	if fres.err != nil {
		return nil, fmt.Errorf("failed to fetch frame stats for session %d: %w", sessionID, fres.err)
	}

	return &Payload{
		Session: sres.session,
		Metrics: Metrics{
			DetectedMaxOccupancy: sres.session.DetectedMaxOccupancy,
			MaxCapacityDeclared:  sres.session.MaxCapacityDeclared,
			TotalFrames:          sres.session.TotalFrames,
			Status:               sres.session.Status,
		},
		Frames:      fres.frames,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// ExportSession writes one session report to dir as validation-<id>.json and
// returns the written path.
func (b *Builder) ExportSession(ctx context.Context, sessionID int64, dir string) (string, error) {
	payload, err := b.BuildSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("validation-%d.json", sessionID))
	if err := writeJSON(path, payload); err != nil {
		return "", err
	}
	return path, nil
}

// ExportAll writes a bundle of every listed session to validations.json.
// Sessions without an id are skipped.
func (b *Builder) ExportAll(ctx context.Context, sessions []api.ValidationSession, dir string) (string, error) {
	bundle := Bundle{GeneratedAt: time.Now().UTC()}
	for _, s := range sessions {
		if s.ID == 0 {
			continue
		}
		payload, err := b.BuildSession(ctx, s.ID)
		if err != nil {
			return "", err
		}
		bundle.Sessions = append(bundle.Sessions, *payload)
	}
	if len(bundle.Sessions) == 0 {
		return "", fmt.Errorf("no exportable sessions")
	}

	path := filepath.Join(dir, "validations.json")
	if err := writeJSON(path, bundle); err != nil {
		return "", err
	}
	return path, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
