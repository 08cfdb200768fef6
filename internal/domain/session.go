package domain

import (
	"context"
	"time"
)

// SenderUser marks messages typed by the person using the assistant
const SenderUser = "user"

// Session is the JSON record stored per chat session. Timestamps are unix milliseconds.
type Session struct {
	CreatedAt    int64          `json:"createdAt"`
	LastActiveAt int64          `json:"lastActiveAt"`
	Messages     []ChatMessage  `json:"messages"`
	Uploads      []UploadRecord `json:"uploads"`
}

// ChatMessage is one entry of a session's message log
type ChatMessage struct {
	Sender string   `json:"sender"`
	Text   string   `json:"text"`
	Files  []string `json:"files"`
}

// UploadRecord links a stored temp file to the name the client sent
type UploadRecord struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
}

// NewSession returns an empty session stamped with now
func NewSession(now time.Time) *Session {
	ms := now.UnixMilli()
	return &Session{
		CreatedAt:    ms,
		LastActiveAt: ms,
		Messages:     []ChatMessage{},
		Uploads:      []UploadRecord{},
	}
}

// TouchResult reports whether a session mutation reached the store
type TouchResult int

const (
	// TouchApplied means the record existed and was rewritten with a fresh TTL
	TouchApplied TouchResult = iota
	// TouchSessionMissing means the record had expired or never existed; nothing was written
	TouchSessionMissing
)

func (r TouchResult) String() string {
	switch r {
	case TouchApplied:
		return "applied"
	case TouchSessionMissing:
		return "session_missing"
	default:
		return "unknown"
	}
}

// SessionStore defines the interface for session storage
type SessionStore interface {
	Create(ctx context.Context) (string, error)
	Validate(ctx context.Context, sessionID string) (bool, error)
	Touch(ctx context.Context, sessionID string, mutate func(*Session)) (TouchResult, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	CountActive(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}
