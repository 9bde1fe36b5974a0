package playback

import (
	"testing"

	"vlab/internal/detail"
)

func f(v float64) *float64 { return &v }

func frames(ts ...float64) []detail.Frame {
	out := make([]detail.Frame, len(ts))
	for i, t := range ts {
		out[i] = detail.Frame{Timestamp: t, Count: i + 1}
	}
	return out
}

func TestAtPicksNearestFrame(t *testing.T) {
	c := NewCorrelator(frames(0, 1, 2, 3), 50)

	state := c.At(1.2)
	if state.Frame == nil || state.Frame.Timestamp != 1 {
		t.Fatalf("Expected frame at t=1, got %+v", state.Frame)
	}
	if state.Count != 2 {
		t.Errorf("Expected count 2, got %d", state.Count)
	}

	state = c.At(2.7)
	if state.Frame == nil || state.Frame.Timestamp != 3 {
		t.Errorf("Expected frame at t=3, got %+v", state.Frame)
	}
}

func TestAtTiesResolveToEarlierFrame(t *testing.T) {
	c := NewCorrelator(frames(1, 3), 50)

	// t=2 is equidistant from both; the earlier frame wins, deterministically.
	for i := 0; i < 5; i++ {
		state := c.At(2)
		if state.Frame == nil || state.Frame.Timestamp != 1 {
			t.Fatalf("Expected the earlier frame on a tie, got %+v", state.Frame)
		}
	}
}

func TestAtEmptySequenceYieldsZeroState(t *testing.T) {
	c := NewCorrelator(nil, 50)

	state := c.At(10)
	if state.Frame != nil || state.Count != 0 || state.CapacityExceeded {
		t.Errorf("Expected the zero state, got %+v", state)
	}
	if state.Confidence != nil {
		t.Error("Expected unknown confidence for the zero state")
	}
	if len(c.History()) != 0 {
		t.Error("A miss must not append to the history")
	}
}

func TestCapacityExceededIsStrict(t *testing.T) {
	seq := []detail.Frame{
		{Timestamp: 0, Count: 50},
		{Timestamp: 1, Count: 55},
	}
	c := NewCorrelator(seq, 50)

	if state := c.At(0); state.CapacityExceeded {
		t.Error("Count equal to capacity must not flag as exceeded")
	}
	if state := c.At(1); !state.CapacityExceeded {
		t.Error("Count above capacity must flag as exceeded")
	}
}

func TestWindowRejectsDistantFrames(t *testing.T) {
	c := NewCorrelator(frames(0, 10), 50)
	c.Window = 2

	if state := c.At(5); state.Frame != nil {
		t.Errorf("Expected no match outside the window, got %+v", state.Frame)
	}
	if state := c.At(1.5); state.Frame == nil {
		t.Error("Expected a match inside the window")
	}

	// Window zero disables the tolerance entirely.
	c.Window = 0
	if state := c.At(100); state.Frame == nil {
		t.Error("With the window disabled the nearest frame always matches")
	}
}

func TestHistoryIsBounded(t *testing.T) {
	c := NewCorrelator(frames(0, 1, 2, 3), 50)

	for i := 0; i < HistoryCap+15; i++ {
		c.At(float64(i % 4))
	}

	hist := c.History()
	if len(hist) != HistoryCap {
		t.Errorf("Expected history capped at %d, got %d", HistoryCap, len(hist))
	}

	c.Reset()
	if len(c.History()) != 0 {
		t.Error("Expected empty history after reset")
	}
}

func TestHistoryRecordsUnknownConfidenceAsZero(t *testing.T) {
	seq := []detail.Frame{
		{Timestamp: 0, Count: 3, Confidence: f(0.8)},
		{Timestamp: 1, Count: 4}, // no confidence reported
	}
	c := NewCorrelator(seq, 50)

	c.At(0)
	c.At(1)

	hist := c.History()
	if len(hist) != 2 {
		t.Fatalf("Expected 2 history entries, got %d", len(hist))
	}
	if hist[0].Confidence != 0.8 {
		t.Errorf("Expected confidence 0.8 in history, got %v", hist[0].Confidence)
	}
	if hist[1].Confidence != 0 {
		t.Errorf("Unknown confidence charts as zero, got %v", hist[1].Confidence)
	}
}
