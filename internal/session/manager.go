package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/nknaian/musicorg/internal/repositories"
	"github.com/nknaian/musicorg/internal/shared"
)

const (
	// CookieName is the cookie [jwtauth.TokenFromCookie] reads.
	CookieName = "jwt"

	subject  = "albumcollections session"
	claimSID = "sid"
)

// Store persists session records.
type Store interface {
	Get(ctx context.Context, id string) (*repositories.SessionRecord, error)
	Save(ctx context.Context, rec *repositories.SessionRecord) error
	Delete(ctx context.Context, id string) error
}

type ctxKey struct{}

// Manager loads sessions from the request cookie and writes them back.
type Manager struct {
	store  Store
	auth   *jwtauth.JWTAuth
	ttl    time.Duration
	secure bool
	logger *log.Logger
}

// NewManager creates a [Manager] signing cookies with secret.
func NewManager(store Store, secret string, ttl time.Duration, secure bool, logger *log.Logger) *Manager {
	return &Manager{
		store:  store,
		auth:   jwtauth.New("HS256", []byte(secret), nil),
		ttl:    ttl,
		secure: secure,
		logger: logger,
	}
}

// Load is middleware that attaches the request's [Session] to its context. Requests without a
// valid cookie get a new, unsaved session.
func (m *Manager) Load(next http.Handler) http.Handler {
	verify := jwtauth.Verifier(m.auth)
	return verify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := m.load(r)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, s)))
	}))
}

func (m *Manager) load(r *http.Request) *Session {
	token, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || token == nil {
		return newSession()
	}
	if sub, _ := token.Subject(); sub != subject {
		return newSession()
	}

	sid, _ := claims[claimSID].(string)
	if sid == "" {
		return newSession()
	}

	rec, err := m.store.Get(r.Context(), sid)
	if err != nil {
		if !errors.Is(err, shared.ErrSessionNotFound) {
			m.logger.Warn("failed to load session", "error", err)
		}
		return newSession()
	}

	s, err := decode(rec.ID, rec.Data, rec.CreatedAt)
	if err != nil {
		m.logger.Warn("discarding unreadable session", "error", err)
		return newSession()
	}
	return s
}

// FromContext returns the session attached by [Manager.Load], or a new empty session.
func FromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(ctxKey{}).(*Session); ok {
		return s
	}
	return newSession()
}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// Save persists s if it changed and re-issues the cookie so its expiry matches the stored row.
// It must run before the response header is written.
func (m *Manager) Save(w http.ResponseWriter, r *http.Request, s *Session) error {
	if !s.dirty {
		return nil
	}

	data, err := s.encode()
	if err != nil {
		return err
	}

	expires := time.Now().Add(m.ttl)
	rec := &repositories.SessionRecord{ID: s.id, Data: data, CreatedAt: s.createdAt, ExpiresAt: expires}
	if err := m.store.Save(r.Context(), rec); err != nil {
		return err
	}
	s.createdAt = rec.CreatedAt
	s.dirty = false
	s.isNew = false
	return m.setCookie(w, s.id, expires)
}

// Renew replaces the session id, dropping the stored row under the old id. Values are kept.
func (m *Manager) Renew(ctx context.Context, s *Session) error {
	if !s.isNew {
		if err := m.store.Delete(ctx, s.id); err != nil {
			return err
		}
	}
	s.id = shared.GenerateID()
	s.createdAt = time.Time{}
	s.isNew = true
	s.dirty = true
	return nil
}

func (m *Manager) setCookie(w http.ResponseWriter, sid string, expires time.Time) error {
	_, signed, err := m.auth.Encode(map[string]any{
		jwt.SubjectKey:    subject,
		jwt.IssuedAtKey:   time.Now().Unix(),
		jwt.ExpirationKey: expires,
		claimSID:          sid,
	})
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Expires:  expires,
		Secure:   m.secure,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
