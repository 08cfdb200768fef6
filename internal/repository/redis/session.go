package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/policy-assistant/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionIDPrefix = "session_"

// SessionStore keeps chat sessions as JSON strings with a sliding TTL
type SessionStore struct {
	client    *Client
	ttl       time.Duration
	keyPrefix string
	now       func() time.Time
}

var _ domain.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a session store. keyPrefix is prepended to every session id to form
// the Redis key and may be empty.
func NewSessionStore(client *Client, ttl time.Duration, keyPrefix string) *SessionStore {
	return &SessionStore{
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

func (s *SessionStore) key(sessionID string) string {
	return s.keyPrefix + sessionID
}

// Create writes an empty session record and returns its id
func (s *SessionStore) Create(ctx context.Context) (string, error) {
	sessionID := sessionIDPrefix + uuid.NewString()

	data, err := json.Marshal(domain.NewSession(s.now()))
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.rdb.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: create session: %v", domain.ErrStoreUnavailable, err)
	}

	return sessionID, nil
}

// Validate reports whether the session exists, extending its TTL when it does
func (s *SessionStore) Validate(ctx context.Context, sessionID string) (bool, error) {
	// EXPIRE on a missing key returns false, so one round trip both checks and refreshes
	ok, err := s.client.rdb.Expire(ctx, s.key(sessionID), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: validate session: %v", domain.ErrStoreUnavailable, err)
	}
	return ok, nil
}

// Touch applies mutate to the stored session and writes it back with a fresh TTL.
// A missing session is reported as TouchSessionMissing and nothing is written.
// Concurrent touches of one session are last-writer-wins.
func (s *SessionStore) Touch(ctx context.Context, sessionID string, mutate func(*domain.Session)) (domain.TouchResult, error) {
	session, err := s.load(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.TouchSessionMissing, nil
	}
	if err != nil {
		return domain.TouchSessionMissing, err
	}

	if mutate != nil {
		mutate(session)
	}
	session.LastActiveAt = s.now().UnixMilli()

	data, err := json.Marshal(session)
	if err != nil {
		return domain.TouchSessionMissing, fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.rdb.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return domain.TouchSessionMissing, fmt.Errorf("%w: write session: %v", domain.ErrStoreUnavailable, err)
	}

	return domain.TouchApplied, nil
}

// Get returns the stored session without refreshing its TTL
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.load(ctx, sessionID)
}

func (s *SessionStore) load(ctx context.Context, sessionID string) (*domain.Session, error) {
	data, err := s.client.rdb.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read session: %v", domain.ErrStoreUnavailable, err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.Messages == nil {
		session.Messages = []domain.ChatMessage{}
	}
	if session.Uploads == nil {
		session.Uploads = []domain.UploadRecord{}
	}

	return &session, nil
}

// CountActive counts live session keys
func (s *SessionStore) CountActive(ctx context.Context) (int64, error) {
	pattern := s.keyPrefix + sessionIDPrefix + "*"
	var cursor uint64
	var count int64

	for {
		keys, nextCursor, err := s.client.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return count, fmt.Errorf("%w: scan sessions: %v", domain.ErrStoreUnavailable, err)
		}
		count += int64(len(keys))

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return count, nil
}

// Ping checks store connectivity
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}
