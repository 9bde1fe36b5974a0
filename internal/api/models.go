package api

import (
	"strings"
	"time"
)

// TokenResponse is returned by the login endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// UserProfile describes the authenticated user as reported by /users/me.
type UserProfile struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	IsActive bool   `json:"is_active,omitempty"`
}

// Canonical (lower-cased) session lifecycle states. The backend reports them
// upper-cased; compare via ValidationSession.NormalizedStatus.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ValidationSession is one validation run tied to one uploaded video.
// The client never mutates it; it only re-fetches.
type ValidationSession struct {
	ID                   int64     `json:"id"`
	BusID                *int64    `json:"bus_id"`
	MaxCapacityDeclared  int       `json:"max_capacity_declared"`
	Status               string    `json:"status"`
	OriginalVideoPath    *string   `json:"original_video_path"`
	ProcessedVideoPath   *string   `json:"processed_video_path"`
	DetectedMaxOccupancy *int      `json:"detected_max_occupancy"`
	TotalFrames          *int      `json:"total_frames"`
	CreatedAt            time.Time `json:"created_at"`
}

// NormalizedStatus lower-cases the backend status, defaulting to pending when
// the field is empty.
func (s *ValidationSession) NormalizedStatus() string {
	if s == nil || s.Status == "" {
		return StatusPending
	}
	return strings.ToLower(s.Status)
}

// SessionCreate is the payload for POST /validation/sessions.
type SessionCreate struct {
	MaxCapacityDeclared int    `json:"max_capacity_declared"`
	BusID               *int64 `json:"bus_id"`
}

// FrameStat is one sampled frame of a session as returned by the frame-stats
// endpoint. Raw detection metadata is optional and polymorphic; see
// RawDetection.
type FrameStat struct {
	ID                 int64        `json:"id,omitempty"`
	TimestampRelative  *float64     `json:"timestamp_relative"`
	DetectedPassengers *int         `json:"detected_passengers"`
	RawMetadata        *RawMetadata `json:"raw_metadata_json"`
}

// RawMetadata is the frame-level detection blob produced by the backend's
// detector. Confidence is nil when the detector did not report one.
type RawMetadata struct {
	Detections []RawDetection `json:"detections"`
	Confidence *float64       `json:"confidence"`
}

// RawDetection is a single per-person detection in whichever of the two wire
// shapes the backend emits: named fields {x,y,width,height,confidence} or a
// 4-element bbox array [x,y,w,h] plus a separate score.
type RawDetection struct {
	X          *float64  `json:"x"`
	Y          *float64  `json:"y"`
	Width      *float64  `json:"width"`
	Height     *float64  `json:"height"`
	Confidence *float64  `json:"confidence"`
	BBox       []float64 `json:"bbox"`
	Score      *float64  `json:"score"`
}

// BusState is one vehicle's live occupancy snapshot from the fleet dashboard
// endpoint.
type BusState struct {
	BusID           int64      `json:"bus_id"`
	InternalCode    string     `json:"internal_code"`
	RouteID         *int64     `json:"route_id"`
	RouteCode       *string    `json:"route_code"`
	TotalPassengers int        `json:"total_passengers"`
	OccupancyLevel  string     `json:"occupancy_level"`
	Latitude        *float64   `json:"latitude"`
	Longitude       *float64   `json:"longitude"`
	LastUpdate      *time.Time `json:"last_update"`
}
