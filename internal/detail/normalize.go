package detail

import "vlab/internal/api"

// Detection is the canonical per-person bounding box. Missing numeric fields
// normalize to zero.
type Detection struct {
	X          float64
	Y          float64
	Width      float64
	Height     float64
	Confidence float64
}

// Frame is one normalized detection sample of a session.
// Confidence is nil when the backend reported none: "unknown" stays
// distinguishable from "zero confidence".
type Frame struct {
	Timestamp  float64
	Count      int
	Confidence *float64
	Detections []Detection
}

// NormalizeFrame maps a raw frame record into the canonical shape. Defaults:
// a missing timestamp falls back to the frame's index in the sequence, and a
// missing passenger count falls back to the number of detections.
func NormalizeFrame(raw api.FrameStat, index int) Frame {
	var detections []Detection
	if raw.RawMetadata != nil {
		detections = make([]Detection, 0, len(raw.RawMetadata.Detections))
		for _, d := range raw.RawMetadata.Detections {
			detections = append(detections, normalizeDetection(d))
		}
	}

	frame := Frame{
		Timestamp:  float64(index),
		Count:      len(detections),
		Detections: detections,
	}
	if raw.TimestampRelative != nil {
		frame.Timestamp = *raw.TimestampRelative
	}
	if raw.DetectedPassengers != nil {
		frame.Count = *raw.DetectedPassengers
	}
	if raw.RawMetadata != nil && raw.RawMetadata.Confidence != nil {
		conf := *raw.RawMetadata.Confidence
		frame.Confidence = &conf
	}
	return frame
}

// normalizeDetection resolves the two wire shapes the backend emits.
// Precedence per coordinate: the named field, then the bbox array element,
// then zero. Confidence: the named field, then the separate score, then zero.
func normalizeDetection(raw api.RawDetection) Detection {
	var d Detection
	d.X = pick(raw.X, raw.BBox, 0)
	d.Y = pick(raw.Y, raw.BBox, 1)
	d.Width = pick(raw.Width, raw.BBox, 2)
	d.Height = pick(raw.Height, raw.BBox, 3)

	switch {
	case raw.Confidence != nil:
		d.Confidence = *raw.Confidence
	case raw.Score != nil:
		d.Confidence = *raw.Score
	}
	return d
}

func pick(named *float64, bbox []float64, idx int) float64 {
	if named != nil {
		return *named
	}
	if idx < len(bbox) {
		return bbox[idx]
	}
	return 0
}
