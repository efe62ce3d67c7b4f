package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/opsdesk/opsdesk/internal/secretbox"
)

// Snapshot is the point-in-time resolved permission state carried by a
// session: the user's role and effective permission set, plus the grants
// epoch at which it was resolved. The session gate compares the epoch
// against the global counter and re-resolves when grants have moved.
type Snapshot struct {
	RoleID      int64
	Role        string
	Permissions []string
	Epoch       int64
}

// Has reports membership in the snapshot's permission set.
func (s Snapshot) Has(perm string) bool {
	for _, p := range s.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// SessionManager orchestrates cookie based sessions backed by Redis.
// Payloads are sealed with the secretbox codec before they are stored,
// so session contents are opaque to anyone reading the store directly.
type SessionManager struct {
	client     *redis.Client
	codec      *secretbox.Codec
	cookieName string
	ttl        time.Duration
	secure     bool
	sameSite   http.SameSite
}

// Session holds per-request session data.
type Session struct {
	ID         string
	previousID string
	values     map[string]string
	userID     string
	snapshot   Snapshot
	isNew      bool
	dirty      bool
	destroyed  bool
}

type sessionPayload struct {
	Values   map[string]string `json:"values"`
	UserID   string            `json:"user_id"`
	Snapshot snapshotPayload   `json:"snapshot"`
}

type snapshotPayload struct {
	RoleID      int64    `json:"role_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	Epoch       int64    `json:"epoch"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, codec *secretbox.Codec, cookieName string, ttl time.Duration, secure bool, sameSite http.SameSite) *SessionManager {
	return &SessionManager{
		client:     client,
		codec:      codec,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		sameSite:   sameSite,
	}
}

// Load loads or creates a new session for request. A carried session id
// that resolves to nothing, or to a payload that fails to open, yields a
// fresh unauthenticated session: validation that is inconclusive never
// produces an authenticated one.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	sealed, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			sess := sm.newSession()
			sess.ID = cookie.Value
			return sess, nil
		}
		return nil, err
	}

	payload, err := sm.codec.Decode(sealed)
	if err != nil {
		// Unopenable payload: key rotation or store tampering. Treat as
		// absent rather than trusting any part of it.
		sess := sm.newSession()
		sess.ID = cookie.Value
		return sess, nil
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		sess := sm.newSession()
		sess.ID = cookie.Value
		return sess, nil
	}

	sess := sm.newSession()
	sess.ID = cookie.Value
	sess.values = stored.Values
	sess.userID = stored.UserID
	sess.snapshot = Snapshot(stored.Snapshot)
	sess.isNew = false
	sess.dirty = false
	return sess, nil
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: sm.sameSite,
		})
		return nil
	}

	if sess.previousID != "" && sess.previousID != sess.ID {
		if err := sm.client.Del(ctx, sm.redisKey(sess.previousID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		sess.previousID = ""
	}

	if sess.isNew && sess.ID == "" {
		sess.ID = sm.generateSessionID()
	}

	if sess.dirty || sess.isNew {
		payload := sessionPayload{
			Values:   sess.values,
			UserID:   sess.userID,
			Snapshot: snapshotPayload(sess.snapshot),
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		sealed, err := sm.codec.Encode(data)
		if err != nil {
			return err
		}
		if err := sm.client.Set(ctx, sm.redisKey(sess.ID), sealed, sm.ttl).Err(); err != nil {
			return err
		}
		sess.dirty = false
	}

	if sess.ID != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: sm.sameSite,
			Expires:  time.Now().Add(sm.ttl),
		})
	}

	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// DeleteByID removes a session directly from the store, bypassing any
// request. Used by administrative deactivation sweeps.
func (sm *SessionManager) DeleteByID(ctx context.Context, id string) error {
	err := sm.client.Del(ctx, sm.redisKey(id)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Session helpers

// Rotate assigns a fresh session id, invalidating the previous one on
// commit. Called at login so an id fixed before authentication never
// names an authenticated session.
func (s *Session) Rotate() {
	if s.ID != "" {
		s.previousID = s.ID
	}
	s.ID = uuid.NewString()
	s.dirty = true
}

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if s.values == nil {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// SetUser associates the session with a user ID.
func (s *Session) SetUser(id string) {
	s.userID = id
	s.dirty = true
}

// User returns the current user ID. Empty for unauthenticated sessions.
func (s *Session) User() string {
	return s.userID
}

// SetSnapshot replaces the resolved permission snapshot.
func (s *Session) SetSnapshot(snap Snapshot) {
	s.snapshot = snap
	s.dirty = true
}

// Snapshot returns the resolved permission snapshot.
func (s *Session) Snapshot() Snapshot {
	return s.snapshot
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:     sm.generateSessionID(),
		values: make(map[string]string),
		isNew:  true,
		dirty:  true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}

func (sm *SessionManager) generateSessionID() string {
	return uuid.NewString()
}
