package store

// Package store handles local persistence using SQLite. It keeps two things:
// the client credential state (bearer token, token type, remembered email)
// that a browser would put in local storage, and the watch-folder upload
// queue (PENDING vs UPLOADED footage) so the daemon survives restarts.

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// Credential keys. One row per key in the credentials table.
const (
	CredAccessToken     = "access_token"
	CredTokenType       = "token_type"
	CredRememberedEmail = "remembered_email"
	CredUserEmail       = "user_email"
)

// UploadStatus represents the processing state of a queued video.
type UploadStatus string

const (
	StatusPending  UploadStatus = "PENDING"  // Footage detected but not yet uploaded
	StatusUploaded UploadStatus = "UPLOADED" // Upload confirmed, session created
)

// UploadRecord represents a row in the 'uploads' table.
type UploadRecord struct {
	ID         int64
	Path       string
	Size       int64
	ModTime    time.Time
	Status     UploadStatus
	SessionID  sql.NullInt64
	UploadedAt sql.NullTime
}

// Store wraps the SQL database connection.
type Store struct {
	db *sql.DB
}

// NewStore initializes the SQLite database connection and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS credentials (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS uploads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		size INTEGER NOT NULL,
		mod_time DATETIME NOT NULL,
		status TEXT NOT NULL,
		session_id INTEGER,
		uploaded_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_uploads_status_mod_time ON uploads(status, mod_time);
	`
	_, err := s.db.Exec(query)
	return err
}

// SetCredential stores or replaces a credential value.
func (s *Store) SetCredential(key, value string) error {
	query := `
	INSERT INTO credentials (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value;
	`
	_, err := s.db.Exec(query, key, value)
	return err
}

// Credential returns the stored value for key, or "" when absent.
func (s *Store) Credential(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// DeleteCredential removes a credential if present.
func (s *Store) DeleteCredential(key string) error {
	_, err := s.db.Exec(`DELETE FROM credentials WHERE key = ?`, key)
	return err
}

// ClearAuth drops the token state but keeps the remembered email, matching
// what a logout does.
func (s *Store) ClearAuth() error {
	_, err := s.db.Exec(`DELETE FROM credentials WHERE key IN (?, ?, ?)`,
		CredAccessToken, CredTokenType, CredUserEmail)
	return err
}

// Token implements api.TokenSource. Lookup failures behave like an anonymous
// client rather than erroring out of a request that hasn't started yet.
func (s *Store) Token() (string, string) {
	token, err := s.Credential(CredAccessToken)
	if err != nil || token == "" {
		return "", ""
	}
	tokenType, _ := s.Credential(CredTokenType)
	return token, tokenType
}

// AddOrUpdateUpload inserts a new queued video or updates an existing one.
// A re-written file is reset to PENDING so modified footage is re-uploaded.
func (s *Store) AddOrUpdateUpload(path string, size int64, modTime time.Time) error {
	query := `
	INSERT INTO uploads (path, size, mod_time, status)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		size = excluded.size,
		mod_time = excluded.mod_time,
		status = ?;
	`
	_, err := s.db.Exec(query, path, size, modTime, StatusPending, StatusPending)
	return err
}

// MarkUploaded flips a queued video to UPLOADED and records the backend
// session it produced.
func (s *Store) MarkUploaded(path string, sessionID int64) error {
	query := `
	UPDATE uploads
	SET status = ?, session_id = ?, uploaded_at = ?
	WHERE path = ?;
	`
	_, err := s.db.Exec(query, StatusUploaded, sessionID, time.Now(), path)
	return err
}

// RemoveUpload deletes a queue record.
func (s *Store) RemoveUpload(path string) error {
	_, err := s.db.Exec(`DELETE FROM uploads WHERE path = ?`, path)
	return err
}

// PendingUploads returns queued videos waiting to be uploaded, oldest first.
func (s *Store) PendingUploads(limit int) ([]UploadRecord, error) {
	return s.listByStatus(StatusPending, limit)
}

// PruneCandidates returns videos that are safe to delete locally
// (already UPLOADED), oldest first.
func (s *Store) PruneCandidates(limit int) ([]UploadRecord, error) {
	return s.listByStatus(StatusUploaded, limit)
}

func (s *Store) listByStatus(status UploadStatus, limit int) ([]UploadRecord, error) {
	query := `
	SELECT id, path, size, mod_time, status, session_id, uploaded_at
	FROM uploads
	WHERE status = ?
	ORDER BY mod_time ASC
	LIMIT ?
	`
	rows, err := s.db.Query(query, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []UploadRecord
	for rows.Next() {
		var r UploadRecord
		if err := rows.Scan(&r.ID, &r.Path, &r.Size, &r.ModTime, &r.Status, &r.SessionID, &r.UploadedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// TotalSize returns the sum of the sizes of all tracked footage.
func (s *Store) TotalSize() (int64, error) {
	var size int64
	err := s.db.QueryRow(`SELECT COALESCE(SUM(size), 0) FROM uploads`).Scan(&size)
	return size, err
}

// PendingCount reports the queue depth for status output and metrics.
func (s *Store) PendingCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM uploads WHERE status = ?`, StatusPending).Scan(&n)
	return n, err
}
