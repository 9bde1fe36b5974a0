package detail

// Package detail loads one session plus its per-frame detection statistics
// and normalizes the frames into a timestamp-ordered detection sequence.
// Both fetches run concurrently and both must land before the loader reports
// loaded, so the caller never sees a partial-state flash.

import (
	"context"
	"log/slog"
	"sync"

	"vlab/internal/api"
)

// Details is the loaded state for one session id.
type Details struct {
	Session *api.ValidationSession
	Frames  []Frame
}

// Loader owns the fetch lifecycle for the current session id. Changing the
// id re-fetches; a generation counter drops responses that arrive for a
// superseded id or after Close. No caching beyond the current id.
type Loader struct {
	apic *api.Client
	log  *slog.Logger

	mu        sync.Mutex
	gen       int
	sessionID int64
	session   *api.ValidationSession
	frames    []Frame
	errMsg    string
	loading   bool
}

func NewLoader(apic *api.Client, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{apic: apic, log: logger}
}

// SetSession switches the loader to a session id and fetches its details.
// Setting the same id again is a refresh.
func (l *Loader) SetSession(ctx context.Context, sessionID int64) {
	l.mu.Lock()
	l.gen++
	gen := l.gen
	l.sessionID = sessionID
	l.loading = true
	l.errMsg = ""
	l.mu.Unlock()

	if sessionID == 0 {
		l.mu.Lock()
		if gen == l.gen {
			l.session = nil
			l.frames = nil
			l.loading = false
		}
		l.mu.Unlock()
		return
	}

	details, err := l.fetch(ctx, sessionID)

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return
	}
	l.loading = false

	if err != nil {
		l.log.Error("Detail: session load failed", "session_id", sessionID, "error", err)
		l.errMsg = api.ErrorMessage(err, "could not load the session data")
		l.session = nil
		l.frames = nil
		return
	}

	l.session = details.Session
	l.frames = details.Frames
}

// fetch runs the session and frame-stats requests concurrently and joins
// them. Either failure fails the whole load.
func (l *Loader) fetch(ctx context.Context, sessionID int64) (*Details, error) {
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
		s, err := l.apic.GetSession(ctx, sessionID)
		sessionCh <- sessionResult{s, err}
	}()
	go func() {
		f, err := l.apic.FrameStats(ctx, sessionID)
		framesCh <- framesResult{f, err}
	}()

	sres := <-sessionCh
	fres := <-framesCh

	if sres.err != nil {
		return nil, sres.err
	}
	if fres.err != nil {
		return nil, fres.err
	}

	frames := make([]Frame, 0, len(fres.frames))
	for i, raw := range fres.frames {
		frames = append(frames, NormalizeFrame(raw, i))
	}

	return &Details{Session: sres.session, Frames: frames}, nil
}

// Close invalidates any in-flight load.
func (l *Loader) Close() {
	l.mu.Lock()
	l.gen++
	l.loading = false
	l.mu.Unlock()
}

// Session returns the loaded session record, or nil.
func (l *Loader) Session() *api.ValidationSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Frames returns the normalized, timestamp-ordered detection sequence.
func (l *Loader) Frames() []Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	frames := make([]Frame, len(l.frames))
	copy(frames, l.frames)
	return frames
}

// Err returns the user-visible message of the last failed load, or "".
func (l *Loader) Err() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errMsg
}

// Loading reports whether a load is in flight.
func (l *Loader) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}
