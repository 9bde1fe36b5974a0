package controller

// Package controller drives a single validation run from file selection to
// results navigation: create a backend session, upload the footage, run the
// cosmetic progress display, and poll the backend until it confirms
// completion. The countdown and staged progress are purely user feedback;
// the status poller is the only thing that ever finishes a run.

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vlab/internal/api"

	"github.com/google/uuid"
)

// Phase is the lifecycle state of the active run.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseUploading  Phase = "uploading"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
)

// ValidationError is a precondition failure: the action is blocked with an
// inline message and nothing is sent to the backend.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Timings collects every interval the controller runs on. Tests swap in fast
// values; production uses DefaultTimings.
type Timings struct {
	CountdownSeconds int           // initial countdown estimate shown to the user
	CountdownTick    time.Duration // how often the countdown decrements
	StageInterval    time.Duration // cosmetic stage advance interval
	PollInterval     time.Duration // backend status poll interval
	CompletionDelay  time.Duration // how long the success stage stays visible
}

// DefaultTimings are the production constants: a 180s estimate, 2.5s stage
// steps, a 3s poll and a 2.5s completion display.
func DefaultTimings() Timings {
	return Timings{
		CountdownSeconds: 180,
		CountdownTick:    time.Second,
		StageInterval:    2500 * time.Millisecond,
		PollInterval:     3 * time.Second,
		CompletionDelay:  2500 * time.Millisecond,
	}
}

type stage struct {
	progress int
	label    string
}

// Fixed milestone sequence shown while the backend does the real work. It
// tops out at 90; only the backend confirming completion reaches 100.
var processingStages = []stage{
	{30, "Analyzing video frames..."},
	{55, "Applying detection algorithms..."},
	{75, "Counting detected passengers..."},
	{90, "Generating metrics and reports..."},
}

const (
	stageUploading  = "Uploading video to the server..."
	stageProcessing = "The video is being processed..."
	stageCompleted  = "Video processed successfully"
)

// Hooks are the side effects the controller exposes to its collaborators:
// refreshing the session directory and navigating to the results view.
type Hooks struct {
	RefreshDirectory  func()
	NavigateToResults func(sessionID int64, session *api.ValidationSession)
}

// Snapshot is the externally visible state of the active run.
type Snapshot struct {
	Phase        Phase
	Progress     int
	Stage        string
	CountdownSec int
	SessionID    int64
	RunID        string
	Err          string // last abort reason; cleared when a new run starts
}

type signalKind int

const (
	signalCosmetic signalKind = iota
	signalAuthoritative
)

// signal is the single merge point between the cosmetic simulator and the
// authoritative status poller. Only an authoritative "completed" finishes
// the run, no matter what the simulator shows.
type signal struct {
	kind     signalKind
	progress int
	label    string
	status   string
	session  *api.ValidationSession
}

// run owns the timers and pollers of one validation run. Every handle is
// tracked here so completion, cancellation and teardown can clear all of
// them deterministically.
type run struct {
	id         string
	sessionID  int64
	session    *api.ValidationSession // latest known backend snapshot
	done       chan struct{}          // closed once; stops all tick goroutines
	halted     bool                   // cancelled or completed; gates every mutation
	cancelled  bool
	stageIndex int
	delay      *time.Timer // completion display delay
}

// Controller coordinates the validation-run state machine. All state is
// guarded by mu; tick callbacks re-check the run's halted flag under the same
// lock, which is what makes Cancel synchronous.
type Controller struct {
	apic    *api.Client
	log     *slog.Logger
	timings Timings
	hooks   Hooks

	mu   sync.Mutex
	run  *run
	snap Snapshot
}

// New creates a controller in the Idle phase.
func New(apic *api.Client, logger *slog.Logger, timings Timings, hooks Hooks) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		apic:    apic,
		log:     logger,
		timings: timings,
		hooks:   hooks,
	}
	c.snap = c.idleSnapshot()
	return c
}

func (c *Controller) idleSnapshot() Snapshot {
	return Snapshot{Phase: PhaseIdle, CountdownSec: c.timings.CountdownSeconds}
}

// Snapshot returns a copy of the current run state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Upload starts a validation run for the file at path.
//
// A non-positive capacity is rejected with a ValidationError before anything
// touches the backend. Backend failures during session creation or upload do
// NOT come back as errors: the run aborts to Idle, the reason lands in the
// snapshot, and the caller's screen stays alive. The returned bool reports
// whether processing actually started.
func (c *Controller) Upload(ctx context.Context, path string, maxCapacity int, busID *int64) (bool, error) {
	if maxCapacity <= 0 {
		return false, &ValidationError{Msg: "a positive max capacity must be configured before uploading"}
	}

	c.mu.Lock()
	if c.run != nil {
		c.mu.Unlock()
		return false, &ValidationError{Msg: "another validation run is already active"}
	}
	r := &run{id: uuid.NewString(), done: make(chan struct{})}
	c.run = r
	c.snap = Snapshot{
		Phase:        PhaseUploading,
		Progress:     10,
		Stage:        stageUploading,
		CountdownSec: c.timings.CountdownSeconds,
		RunID:        r.id,
	}
	c.mu.Unlock()

	session, err := c.apic.CreateSession(ctx, api.SessionCreate{
		MaxCapacityDeclared: maxCapacity,
		BusID:               busID,
	})
	if err != nil {
		c.log.Error("Controller: session creation failed", "error", err)
		c.abort(r, api.ErrorMessage(err, "could not create the validation session"))
		return false, nil
	}
	if session == nil || session.ID == 0 {
		c.log.Warn("Controller: no session id returned on creation")
		c.abort(r, "the backend did not return a session id")
		return false, nil
	}

	c.mu.Lock()
	if r.halted {
		// Cancelled while the creation request was in flight.
		c.mu.Unlock()
		return false, nil
	}
	r.sessionID = session.ID
	r.session = session
	c.snap.SessionID = session.ID
	c.mu.Unlock()

	if err := c.apic.UploadVideo(ctx, session.ID, path); err != nil {
		c.log.Error("Controller: video upload failed", "session_id", session.ID, "error", err)
		c.abort(r, api.ErrorMessage(err, "could not upload the video"))
		return false, nil
	}

	c.mu.Lock()
	if r.halted {
		c.mu.Unlock()
		return false, nil
	}
	c.mu.Unlock()

	if c.hooks.RefreshDirectory != nil {
		c.hooks.RefreshDirectory()
	}

	c.startProcessing(r)
	return true, nil
}

// startProcessing enters the Processing phase and launches the three
// independent timing mechanisms: countdown, staged progress, status poll.
func (c *Controller) startProcessing(r *run) {
	c.mu.Lock()
	if r.halted {
		c.mu.Unlock()
		return
	}
	c.snap.Phase = PhaseProcessing
	if c.snap.Progress < 20 {
		c.snap.Progress = 20
	}
	c.snap.Stage = stageProcessing
	c.snap.CountdownSec = c.timings.CountdownSeconds
	c.mu.Unlock()

	go c.runCountdown(r)
	go c.runStages(r)
	go c.runPoller(r)
}

func (c *Controller) runCountdown(r *run) {
	ticker := time.NewTicker(c.timings.CountdownTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			if r.halted {
				c.mu.Unlock()
				return
			}
			if c.snap.CountdownSec > 0 {
				c.snap.CountdownSec--
			}
			expired := c.snap.CountdownSec == 0
			c.mu.Unlock()
			if expired {
				return
			}
		case <-r.done:
			return
		}
	}
}

func (c *Controller) runStages(r *run) {
	ticker := time.NewTicker(c.timings.StageInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			if r.halted || r.stageIndex >= len(processingStages) {
				c.mu.Unlock()
				return
			}
			s := processingStages[r.stageIndex]
			r.stageIndex++
			c.mu.Unlock()
			c.apply(r, signal{kind: signalCosmetic, progress: s.progress, label: s.label})
		case <-r.done:
			return
		}
	}
}

func (c *Controller) runPoller(r *run) {
	c.pollOnce(r)

	ticker := time.NewTicker(c.timings.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.pollOnce(r)
		case <-r.done:
			return
		}
	}
}

// pollOnce asks the backend for the session status. Poll failures are
// transient by definition: log, swallow, let the next tick retry.
func (c *Controller) pollOnce(r *run) {
	session, err := c.apic.GetSession(context.Background(), r.sessionID)
	if err != nil {
		c.log.Warn("Controller: status poll failed", "session_id", r.sessionID, "error", err)
		return
	}
	c.apply(r, signal{kind: signalAuthoritative, status: session.NormalizedStatus(), session: session})
}

// apply merges a signal into the run state. Cosmetic signals only move the
// progress display; an authoritative signal with any status other than
// completed just refreshes the session snapshot.
func (c *Controller) apply(r *run, sig signal) {
	c.mu.Lock()
	if r.halted {
		c.mu.Unlock()
		return
	}

	switch sig.kind {
	case signalCosmetic:
		if c.snap.Phase == PhaseProcessing {
			c.snap.Progress = sig.progress
			c.snap.Stage = sig.label
		}
		c.mu.Unlock()

	case signalAuthoritative:
		if sig.session != nil {
			r.session = sig.session
		}
		if sig.status != api.StatusCompleted {
			c.mu.Unlock()
			return
		}
		c.completeLocked(r)
	}
}

// completeLocked finishes the run on confirmed backend completion: freeze the
// display at 100%, stop every timer, and schedule the navigation handoff
// after the completion display delay. Called with mu held; releases it.
func (c *Controller) completeLocked(r *run) {
	r.halted = true
	close(r.done)

	c.snap.Phase = PhaseCompleted
	c.snap.Progress = 100
	c.snap.Stage = stageCompleted
	c.snap.CountdownSec = 0

	r.delay = time.AfterFunc(c.timings.CompletionDelay, func() {
		c.finish(r)
	})
	c.mu.Unlock()

	c.log.Info("Controller: backend confirmed completion", "session_id", r.sessionID)
	if c.hooks.RefreshDirectory != nil {
		c.hooks.RefreshDirectory()
	}
}

// finish hands off to the results view and resets the controller to Idle.
func (c *Controller) finish(r *run) {
	c.mu.Lock()
	if r.cancelled {
		c.mu.Unlock()
		return
	}
	sessionID := r.sessionID
	session := r.session
	if c.run == r {
		c.run = nil
		c.snap = c.idleSnapshot()
	}
	c.mu.Unlock()

	if c.hooks.NavigateToResults != nil {
		c.hooks.NavigateToResults(sessionID, session)
	}
}

// Cancel stops the active run. Every timer, poller and the pending
// completion handoff are cleared before Cancel returns, so no further state
// mutation from that run can occur. The backend session, if one was created,
// is left in whatever state the backend put it.
func (c *Controller) Cancel() {
	c.mu.Lock()
	r := c.run
	if r == nil {
		c.mu.Unlock()
		return
	}
	r.cancelled = true
	if !r.halted {
		r.halted = true
		close(r.done)
	}
	if r.delay != nil {
		r.delay.Stop()
	}
	c.run = nil
	c.snap = c.idleSnapshot()
	c.mu.Unlock()

	c.log.Info("Controller: run cancelled", "session_id", r.sessionID)
}

// Close is component teardown; it behaves like a cancel.
func (c *Controller) Close() {
	c.Cancel()
}

// abort returns to Idle after a best-effort failure, recording the reason in
// the snapshot for the caller to display.
func (c *Controller) abort(r *run, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.halted {
		return
	}
	r.halted = true
	close(r.done)
	if c.run == r {
		c.run = nil
		c.snap = c.idleSnapshot()
		c.snap.Err = msg
	}
}
