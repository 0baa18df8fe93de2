package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionBusinessUnitKey stores the business unit the user is acting in.
const SessionBusinessUnitKey = "business_unit_id"

// SessionManager orchestrates cookie based sessions backed by Redis.
type SessionManager struct {
	client     redis.UniversalClient
	cookieName string
	ttl        time.Duration
	secure     bool
}

// Session holds per-request session data.
type Session struct {
	ID        string
	previous  string
	values    map[string]string
	userID    string
	isNew     bool
	dirty     bool
	destroyed bool
}

type sessionPayload struct {
	Values map[string]string `json:"values"`
	UserID string            `json:"user_id"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client redis.UniversalClient, cookieName string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
	}
}

// Load loads the session named by the request cookie or starts a new one. Unknown or
// expired ids are never adopted.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return newSession(), nil
		}
		return nil, err
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return newSession(), nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}
	sess := newSession()
	sess.ID = cookie.Value
	sess.values = stored.Values
	if sess.values == nil {
		sess.values = make(map[string]string)
	}
	sess.userID = stored.UserID
	sess.isNew = false
	sess.dirty = false
	return sess, nil
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.previous != "" {
		if err := sm.client.Del(ctx, sm.redisKey(sess.previous)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		sess.previous = ""
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
			SameSite: http.SameSiteStrictMode,
		})
		return nil
	}

	if sess.dirty || sess.isNew {
		data, err := json.Marshal(sessionPayload{Values: sess.values, UserID: sess.userID})
		if err != nil {
			return err
		}
		if err := sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl).Err(); err != nil {
			return err
		}
		sess.dirty = false
		sess.isNew = false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(sm.ttl),
	})
	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	delete(s.values, key)
	s.dirty = true
}

// SetUser associates the session with a user ID.
func (s *Session) SetUser(id string) {
	s.userID = id
	s.dirty = true
}

// User returns the current user ID.
func (s *Session) User() string {
	return s.userID
}

// BusinessUnit returns the selected business unit, or uuid.Nil.
func (s *Session) BusinessUnit() uuid.UUID {
	id, err := uuid.Parse(s.Get(SessionBusinessUnitKey))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// SetBusinessUnit records the selected business unit.
func (s *Session) SetBusinessUnit(id uuid.UUID) {
	s.Set(SessionBusinessUnitKey, id.String())
}

// Renew moves the session to a fresh id and clears its values. Call it on login.
func (s *Session) Renew() {
	if !s.isNew {
		s.previous = s.ID
	}
	s.ID = uuid.NewString()
	s.values = make(map[string]string)
	s.userID = ""
	s.isNew = true
	s.dirty = true
}

// Destroyed reports whether the session was marked for deletion.
func (s *Session) Destroyed() bool {
	return s.destroyed
}

func newSession() *Session {
	return &Session{
		ID:     uuid.NewString(),
		values: make(map[string]string),
		isNew:  true,
		dirty:  true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}
