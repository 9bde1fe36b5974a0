package playback

// Package playback correlates a playhead position with the detection
// sequence of a session: which frame is nearest, what the occupancy is right
// now, and whether it exceeds the declared capacity.

import (
	"math"

	"vlab/internal/detail"
)

// HistoryCap bounds the detection history ring buffer.
const HistoryCap = 20

// HistoryEntry is one correlated sample kept for the rolling history chart.
type HistoryEntry struct {
	Timestamp  float64
	Count      int
	Confidence float64
}

// State is the occupancy state derived for a playhead position. Confidence
// is nil when the correlated frame carried no confidence (or no frame
// matched at all).
type State struct {
	Count            int
	Confidence       *float64
	CapacityExceeded bool
	Frame            *detail.Frame
}

// Correlator resolves playhead times against an ordered detection sequence.
//
// Window is the optional correlation tolerance in seconds: when positive, a
// nearest frame further away than Window counts as "no detection here".
// Zero disables the window, so the nearest frame always wins. The value is a
// tunable, not a contract.
type Correlator struct {
	frames      []detail.Frame
	maxCapacity int
	Window      float64

	history []HistoryEntry
}

// NewCorrelator builds a correlator over frames with the session's declared
// max capacity.
func NewCorrelator(frames []detail.Frame, maxCapacity int) *Correlator {
	return &Correlator{frames: frames, maxCapacity: maxCapacity}
}

// At returns the occupancy state at playhead time t and, when a frame
// matched, appends the sample to the bounded history.
//
// The selected frame minimizes the absolute timestamp distance to t; ties
// resolve to the earlier frame, which keeps the result deterministic for
// identical input. An empty sequence yields the zero/unknown state.
func (c *Correlator) At(t float64) State {
	frame := c.nearest(t)
	if frame == nil {
		return State{}
	}

	state := State{
		Count:            frame.Count,
		Confidence:       frame.Confidence,
		CapacityExceeded: frame.Count > c.maxCapacity,
		Frame:            frame,
	}

	confidence := 0.0
	if frame.Confidence != nil {
		confidence = *frame.Confidence
	}
	c.history = append(c.history, HistoryEntry{
		Timestamp:  t,
		Count:      frame.Count,
		Confidence: confidence,
	})
	if len(c.history) > HistoryCap {
		c.history = c.history[len(c.history)-HistoryCap:]
	}

	return state
}

// nearest returns the frame closest to t, or nil when the sequence is empty
// or the nearest frame falls outside the tolerance window.
func (c *Correlator) nearest(t float64) *detail.Frame {
	if len(c.frames) == 0 {
		return nil
	}

	best := 0
	bestDiff := math.Abs(c.frames[0].Timestamp - t)
	for i := 1; i < len(c.frames); i++ {
		diff := math.Abs(c.frames[i].Timestamp - t)
		if diff < bestDiff {
			best = i
			bestDiff = diff
		}
	}

	if c.Window > 0 && bestDiff > c.Window {
		return nil
	}
	return &c.frames[best]
}

// History returns a copy of the rolling detection history, oldest first.
func (c *Correlator) History() []HistoryEntry {
	out := make([]HistoryEntry, len(c.history))
	copy(out, c.history)
	return out
}

// Reset clears the history, e.g. when the playhead jumps to a new session.
func (c *Correlator) Reset() {
	c.history = nil
}
