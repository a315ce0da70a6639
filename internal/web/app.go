package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nknaian/musicorg/internal/models"
	"github.com/nknaian/musicorg/internal/services"
	"github.com/nknaian/musicorg/internal/session"
	"github.com/nknaian/musicorg/internal/shared"
	"golang.org/x/oauth2"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pages = []string{"index.html", "collection.html", "error.html"}

// UserStore records users and the playback playlist generated for each of them.
type UserStore interface {
	Upsert(ctx context.Context, id, displayName string) error
	PlaybackPlaylistID(ctx context.Context, userID string) (string, error)
	SetPlaybackPlaylistID(ctx context.Context, userID, playlistID string) error
}

// Options configures an [App].
type Options struct {
	Provider services.Provider
	Sessions *session.Manager
	Users    UserStore
	Logger   *log.Logger
	Reporter *shared.Reporter

	// PublicURL names the site in generated playlist descriptions.
	PublicURL string
}

// App holds the handlers of the web front-end.
type App struct {
	provider  services.Provider
	sessions  *session.Manager
	users     UserStore
	logger    *log.Logger
	reporter  *shared.Reporter
	publicURL string
	templates map[string]*template.Template
}

// New parses the embedded templates and returns an [App].
func New(opts Options) (*App, error) {
	if opts.Provider == nil || opts.Sessions == nil || opts.Users == nil {
		return nil, shared.ErrMissingArgument
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		t, err := template.New(page).Funcs(funcs).ParseFS(templateFS, "templates/base.html", "templates/"+page)
		if err != nil {
			return nil, err
		}
		templates[page] = t
	}

	return &App{
		provider:  opts.Provider,
		sessions:  opts.Sessions,
		users:     opts.Users,
		logger:    opts.Logger.WithPrefix("web"),
		reporter:  opts.Reporter,
		publicURL: opts.PublicURL,
		templates: templates,
	}, nil
}

// Mount registers the routes on r.
func (a *App) Mount(r chi.Router) {
	static, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.Group(func(r chi.Router) {
		r.Use(a.sessions.Load)

		r.Get("/", a.handle(a.index))
		r.Get("/collection/{playlist_id}", a.handle(a.collection))
		r.Post("/collection/remove_album", a.handle(a.removeAlbum))
		r.Post("/collection/get_devices", a.handle(a.getDevices))
		r.Post("/collection/play_collection", a.handle(a.playCollection))
		r.Post("/collection/reorder_collection", a.handle(a.reorderCollection))

		r.Get("/user/login", a.handle(a.login))
		r.Post("/user/login", a.handle(a.login))
		r.Post("/user/logout", a.handle(a.logout))
		r.Get("/sp_auth_complete", a.handle(a.authComplete))
	})
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle adapts h, turning the errors it returns into redirects or the error page.
func (a *App) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		if authErr, ok := services.AsAuthRequired(err); ok {
			a.logger.Debug("redirecting to spotify authorization", "path", r.URL.Path, "cause", authErr.Err)
			a.redirect(w, r, authErr.URL)
			return
		}

		var pageErr *PageError
		if errors.As(err, &pageErr) {
			a.logger.Warn("page failed", "path", r.URL.Path, "error", err)
			session.FromContext(r.Context()).AddFlash(session.FlashDanger, pageErr.Message)
			a.redirect(w, r, pageErr.Fallback)
			return
		}

		a.logger.Error("request failed", "path", r.URL.Path, "error", err)
		a.reporter.Capture(err, map[string]string{"route": chi.RouteContext(r.Context()).RoutePattern()})
		a.render(w, r, http.StatusInternalServerError, "error.html", pageData{
			Title:     "Error",
			Error:     err.Error(),
			RequestID: middleware.GetReqID(r.Context()),
		})
	}
}

// authURL stores a fresh state in s and returns the authorization URL carrying it.
func (a *App) authURL(s *session.Session) string {
	state, err := shared.GenerateState()
	if err != nil {
		a.logger.Warn("falling back to uuid oauth state", "error", err)
		state = shared.GenerateID()
	}
	s.Set(session.KeyOAuthState, state)
	return a.provider.AuthURL(state)
}

// userClient builds a client from the session token. Refreshed tokens are written back to the session.
func (a *App) userClient(r *http.Request) (services.UserClient, error) {
	s := session.FromContext(r.Context())

	token, err := s.Token()
	if err != nil {
		a.logger.Warn("dropping unreadable token", "error", err)
		s.Delete(session.KeyToken)
		token = nil
	}

	return a.provider.UserClient(r.Context(), token, services.UserClientOpts{
		OnRefresh: func(t *oauth2.Token) {
			if err := s.SetToken(t); err != nil {
				a.logger.Warn("failed to store refreshed token", "error", err)
			}
		},
		AuthURL: func() string { return a.authURL(s) },
	})
}

// collectionClient picks the user's client when logged in and the public one otherwise.
func (a *App) collectionClient(r *http.Request) (services.CollectionReader, error) {
	if session.FromContext(r.Context()).LoggedIn() {
		return a.userClient(r)
	}
	return a.provider.Public(), nil
}

// currentUserID returns the logged-in user's id, looking the profile up when login never finished.
func (a *App) currentUserID(ctx context.Context, s *session.Session, client services.UserClient) (string, error) {
	if id := s.UserID(); id != "" {
		return id, nil
	}

	profile, err := client.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	if err := a.users.Upsert(ctx, profile.ID, profile.DisplayName); err != nil {
		return "", err
	}
	s.Set(session.KeyUserID, profile.ID)
	s.Set(session.KeyDisplayName, profile.Name())
	return profile.ID, nil
}

func (a *App) saveSession(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Save(w, r, session.FromContext(r.Context())); err != nil {
		a.logger.Error("failed to save session", "error", err)
		a.reporter.Capture(err, map[string]string{"component": "session"})
	}
}

func (a *App) redirect(w http.ResponseWriter, r *http.Request, url string) {
	a.saveSession(w, r)
	http.Redirect(w, r, url, http.StatusFound)
}

func (a *App) writeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	a.saveSession(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(v)
}

type pageData struct {
	Title       string
	LoggedIn    bool
	DisplayName string
	Flashes     []session.Flash
	Playlists   []models.Playlist
	Collection  *models.Collection
	Error       string
	RequestID   string
}

func (a *App) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	s := session.FromContext(r.Context())
	data.LoggedIn = s.LoggedIn()
	data.DisplayName, _ = s.Get(session.KeyDisplayName)
	data.Flashes = s.PopFlashes()

	var buf bytes.Buffer
	if err := a.templates[page].ExecuteTemplate(&buf, "base", data); err != nil {
		a.logger.Error("failed to render template", "page", page, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	a.saveSession(w, r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
