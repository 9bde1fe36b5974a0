package api

// Package api provides a client for the passenger-counting validation backend.
// It wraps the REST endpoints for authentication, validation sessions, frame
// statistics and the fleet dashboard, and attaches the persisted bearer token
// to every request. The structures in models.go mirror the backend schemas.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TokenSource supplies the persisted bearer token, if any. An empty token
// means the request goes out unauthenticated.
type TokenSource interface {
	Token() (token string, tokenType string)
}

// Client is the HTTP client wrapper for communicating with the validation API.
type Client struct {
	BaseURL    string       // The API root, including the /api/v1 prefix
	HTTPClient *http.Client // underlying http.Client with timeouts configured
	Tokens     TokenSource  // optional; nil disables auth headers
}

// NewClient creates a new API client with configured timeouts and connection pooling.
func NewClient(baseURL string, timeoutStr string) *Client {
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		timeout = 30 * time.Second
	}

	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second, // Close idle connections to purge memory
				TLSHandshakeTimeout: 10 * time.Second, // Don't hang forever if TLS fails
			},
		},
	}
}

// do sends the request with the bearer token attached and classifies failures
// into NetworkError (no response) vs APIError (backend said no).
func (c *Client) do(req *http.Request, op string) (*http.Response, error) {
	if c.Tokens != nil {
		if token, tokenType := c.Tokens.Token(); token != "" {
			if tokenType == "" || strings.EqualFold(tokenType, "bearer") {
				tokenType = "Bearer"
			}
			req.Header.Set("Authorization", tokenType+" "+token)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}

	return resp, nil
}

// Login authenticates with form-encoded credentials and returns the bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(req, "login")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}
	return &token, nil
}

// CurrentUser fetches the profile of the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (*UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/users/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user request: %w", err)
	}

	resp, err := c.do(req, "current user")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var profile UserProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode user profile: %w", err)
	}
	return &profile, nil
}

// ListSessions returns every validation session known to the backend.
// Non-array payloads (null, error objects sneaking past the status code) are
// coerced to an empty list instead of failing the caller.
func (c *Client) ListSessions(ctx context.Context) ([]ValidationSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/validation/sessions", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build sessions request: %w", err)
	}

	resp, err := c.do(req, "list sessions")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "list sessions", Err: err}
	}

	var sessions []ValidationSession
	if err := json.Unmarshal(raw, &sessions); err != nil {
		return []ValidationSession{}, nil
	}
	if sessions == nil {
		sessions = []ValidationSession{}
	}
	return sessions, nil
}

// CreateSession registers a new validation session with the declared capacity
// and optional vehicle id.
func (c *Client) CreateSession(ctx context.Context, in SessionCreate) (*ValidationSession, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/validation/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build create-session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req, "create session")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var session ValidationSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode created session: %w", err)
	}
	return &session, nil
}

// UploadVideo streams the file at path to the session's upload endpoint as a
// multipart "file" part. The body is piped rather than buffered so large
// footage never lands in memory.
func (c *Client) UploadVideo(ctx context.Context, sessionID int64, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open video: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	endpoint := fmt.Sprintf("%s/validation/sessions/%d/upload-video", c.BaseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req, "upload video")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Drain the ack body so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// GetSession fetches a single session record, including its current status
// and processed video path.
func (c *Client) GetSession(ctx context.Context, sessionID int64) (*ValidationSession, error) {
	endpoint := fmt.Sprintf("%s/validation/sessions/%d", c.BaseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build session request: %w", err)
	}

	resp, err := c.do(req, "get session")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var session ValidationSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

// FrameStats fetches the per-frame detection statistics of a session, ordered
// by relative timestamp. A null payload yields an empty slice.
func (c *Client) FrameStats(ctx context.Context, sessionID int64) ([]FrameStat, error) {
	endpoint := fmt.Sprintf("%s/validation/sessions/%d/frame-stats", c.BaseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build frame-stats request: %w", err)
	}

	resp, err := c.do(req, "frame stats")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var frames []FrameStat
	if err := json.NewDecoder(resp.Body).Decode(&frames); err != nil {
		return nil, fmt.Errorf("failed to decode frame stats: %w", err)
	}
	return frames, nil
}

// BusStates fetches the live fleet occupancy snapshot for the dashboard.
func (c *Client) BusStates(ctx context.Context) ([]BusState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/dashboard/buses/state", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build bus-state request: %w", err)
	}

	resp, err := c.do(req, "bus states")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var states []BusState
	if err := json.NewDecoder(resp.Body).Decode(&states); err != nil {
		return nil, fmt.Errorf("failed to decode bus states: %w", err)
	}
	return states, nil
}

// ProcessedVideoURL resolves a processed-video path to something a browser or
// phone can open. Absolute URLs pass through; relative media paths are joined
// against the API origin (the base URL minus its /api/v1 prefix).
func (c *Client) ProcessedVideoURL(path string) string {
	if path == "" {
		return ""
	}
	lower := strings.ToLower(path)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return path
	}

	if parsed, err := url.Parse(c.BaseURL); err == nil && parsed.Host != "" {
		return parsed.Scheme + "://" + parsed.Host + path
	}

	trimmed := strings.TrimRight(strings.TrimSuffix(c.BaseURL, "/api/v1"), "/")
	if trimmed != "" {
		return trimmed + path
	}
	return path
}
