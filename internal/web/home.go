package web

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/nknaian/musicorg/internal/services"
	"github.com/nknaian/musicorg/internal/session"
)

var funcs = template.FuncMap{
	"join": strings.Join,
}

// index renders the home page. Logged-in users see their playlists; a listing failure
// degrades to an empty list with a flash.
func (a *App) index(w http.ResponseWriter, r *http.Request) error {
	s := session.FromContext(r.Context())
	data := pageData{Title: "Album Collections"}

	if s.LoggedIn() {
		client, err := a.userClient(r)
		if err == nil {
			data.Playlists, err = client.UserPlaylists(r.Context())
		}
		if _, ok := services.AsAuthRequired(err); ok {
			return err
		}
		if err != nil {
			a.logger.Warn("failed to list playlists", "user_id", s.UserID(), "error", err)
			s.AddFlash(session.FlashWarning, "Could not load your playlists from Spotify.")
		}
	}

	a.render(w, r, http.StatusOK, "index.html", data)
	return nil
}
