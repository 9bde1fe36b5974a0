package directory

// Package directory fetches and normalizes the validation session list for
// display and selection. Fetch failures never take the screen down: the list
// resets to empty and the error message is kept for the user.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"vlab/internal/api"
)

// AssumedFrameRate is used to approximate a session's duration from its
// total frame count when the backend has not reported one.
const AssumedFrameRate = 30.0

// Row is the display-friendly projection of a session.
type Row struct {
	ID            int64
	Filename      string
	Date          time.Time
	Duration      string
	DetectedCount int
	MaxCapacity   int
	Status        string
	Raw           api.ValidationSession
}

// Directory owns the session-list fetch lifecycle. A generation counter
// gates late-arriving responses so a refresh that lands after teardown (or
// after a newer refresh) is dropped.
type Directory struct {
	apic      *api.Client
	log       *slog.Logger
	frameRate float64

	mu       sync.Mutex
	gen      int
	sessions []api.ValidationSession
	rows     []Row
	errMsg   string
	loading  bool
}

// New creates a directory using the given frame rate for duration estimates;
// pass 0 to use AssumedFrameRate.
func New(apic *api.Client, logger *slog.Logger, frameRate float64) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	if frameRate <= 0 {
		frameRate = AssumedFrameRate
	}
	return &Directory{apic: apic, log: logger, frameRate: frameRate}
}

// Refresh re-fetches the session list. On failure the list resets to empty
// and the backend's message (when present) is retained for display.
func (d *Directory) Refresh(ctx context.Context) {
	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.loading = true
	d.errMsg = ""
	d.mu.Unlock()

	sessions, err := d.apic.ListSessions(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		// A newer refresh superseded this one, or the directory was closed.
		return
	}
	d.loading = false

	if err != nil {
		d.log.Error("Directory: session list fetch failed", "error", err)
		d.errMsg = api.ErrorMessage(err, "could not fetch the validation sessions")
		d.sessions = nil
		d.rows = nil
		return
	}

	d.sessions = sessions
	d.rows = make([]Row, 0, len(sessions))
	for _, s := range sessions {
		d.rows = append(d.rows, d.buildRow(s))
	}
}

// Close invalidates any in-flight refresh.
func (d *Directory) Close() {
	d.mu.Lock()
	d.gen++
	d.loading = false
	d.mu.Unlock()
}

// Rows returns the display rows from the last successful refresh.
func (d *Directory) Rows() []Row {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows := make([]Row, len(d.rows))
	copy(rows, d.rows)
	return rows
}

// Raw returns the unprojected session records.
func (d *Directory) Raw() []api.ValidationSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	sessions := make([]api.ValidationSession, len(d.sessions))
	copy(sessions, d.sessions)
	return sessions
}

// Err returns the user-visible message of the last failed refresh, or "".
func (d *Directory) Err() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errMsg
}

// Loading reports whether a refresh is in flight.
func (d *Directory) Loading() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loading
}

// Latest returns the most recently created completed session, if any.
func (d *Directory) Latest() (api.ValidationSession, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var latest api.ValidationSession
	found := false
	for _, s := range d.sessions {
		if s.NormalizedStatus() != api.StatusCompleted {
			continue
		}
		if !found || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
			found = true
		}
	}
	return latest, found
}

func (d *Directory) buildRow(s api.ValidationSession) Row {
	row := Row{
		ID:          s.ID,
		Filename:    filename(s),
		Date:        s.CreatedAt,
		Duration:    "—",
		MaxCapacity: s.MaxCapacityDeclared,
		Status:      strings.ToLower(s.Status),
		Raw:         s,
	}
	if row.Status == "" {
		row.Status = api.StatusPending
	}
	if s.DetectedMaxOccupancy != nil {
		row.DetectedCount = *s.DetectedMaxOccupancy
	}
	if s.TotalFrames != nil && *s.TotalFrames > 0 {
		seconds := math.Round(float64(*s.TotalFrames) / d.frameRate)
		row.Duration = fmt.Sprintf("%ds", int(seconds))
	}
	return row
}

// filename derives a display name: the last segment of the processed path,
// else of the original path, else a synthetic name from the id.
func filename(s api.ValidationSession) string {
	if name := lastSegment(s.ProcessedVideoPath); name != "" {
		return name
	}
	if name := lastSegment(s.OriginalVideoPath); name != "" {
		return name
	}
	return fmt.Sprintf("session-%d", s.ID)
}

func lastSegment(path *string) string {
	if path == nil || *path == "" {
		return ""
	}
	parts := strings.Split(*path, "/")
	return parts[len(parts)-1]
}
