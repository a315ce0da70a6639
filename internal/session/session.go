// Package session keeps per-browser state on the server. The browser holds an HS256-signed JWT
// cookie whose "sid" claim names a row in the sessions table.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nknaian/musicorg/internal/shared"
	"golang.org/x/oauth2"
)

// Keys stored in a session.
const (
	KeyUserID      = "user_id"
	KeyDisplayName = "display_name"
	KeyToken       = "token"
	KeyOAuthState  = "oauth_state"
)

// Flash categories understood by the templates.
const (
	FlashSuccess = "success"
	FlashWarning = "warning"
	FlashDanger  = "danger"
	FlashInfo    = "info"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Session is the state of one browser. It is not safe for concurrent use; each request gets its own copy.
type Session struct {
	id        string
	values    map[string]string
	flashes   []Flash
	createdAt time.Time
	isNew     bool
	dirty     bool
}

type payload struct {
	Values  map[string]string `json:"values"`
	Flashes []Flash           `json:"flashes,omitempty"`
}

func newSession() *Session {
	return &Session{id: shared.GenerateID(), values: make(map[string]string), isNew: true}
}

func decode(id, data string, createdAt time.Time) (*Session, error) {
	var p payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	if p.Values == nil {
		p.Values = make(map[string]string)
	}
	return &Session{id: id, values: p.Values, flashes: p.Flashes, createdAt: createdAt}, nil
}

func (s *Session) encode() (string, error) {
	data, err := json.Marshal(payload{Values: s.values, Flashes: s.flashes})
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}
	return string(data), nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// IsNew reports whether the session has never been saved.
func (s *Session) IsNew() bool { return s.isNew }

// Get returns the value stored under key.
func (s *Session) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *Session) Set(key, value string) {
	if cur, ok := s.values[key]; ok && cur == value {
		return
	}
	s.values[key] = value
	s.dirty = true
}

// Delete removes key.
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

// Clear removes every value and pending flash.
func (s *Session) Clear() {
	if len(s.values) == 0 && len(s.flashes) == 0 {
		return
	}
	s.values = make(map[string]string)
	s.flashes = nil
	s.dirty = true
}

// AddFlash queues a message for the next rendered page.
func (s *Session) AddFlash(category, message string) {
	s.flashes = append(s.flashes, Flash{Category: category, Message: message})
	s.dirty = true
}

// PopFlashes returns and removes the pending flashes.
func (s *Session) PopFlashes() []Flash {
	if len(s.flashes) == 0 {
		return nil
	}
	flashes := s.flashes
	s.flashes = nil
	s.dirty = true
	return flashes
}

// LoggedIn reports whether a Spotify token is stored.
func (s *Session) LoggedIn() bool {
	v, ok := s.values[KeyToken]
	return ok && v != ""
}

// UserID returns the Spotify user id recorded at login.
func (s *Session) UserID() string {
	return s.values[KeyUserID]
}

// Token decodes the stored OAuth2 token. It returns nil when none is stored.
func (s *Session) Token() (*oauth2.Token, error) {
	raw, ok := s.values[KeyToken]
	if !ok || raw == "" {
		return nil, nil
	}

	var token oauth2.Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, fmt.Errorf("%w: stored token: %v", shared.ErrInvalidInput, err)
	}
	return &token, nil
}

// SetToken stores token as JSON.
func (s *Session) SetToken(token *oauth2.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	s.Set(KeyToken, string(raw))
	return nil
}
