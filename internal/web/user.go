package web

import (
	"fmt"
	"net/http"

	"github.com/nknaian/musicorg/internal/services"
	"github.com/nknaian/musicorg/internal/session"
	"github.com/nknaian/musicorg/internal/shared"
)

// login sends users without a token to Spotify. With a token it records the profile and greets the user.
func (a *App) login(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	s := session.FromContext(ctx)
	if !s.LoggedIn() {
		return &services.AuthRequiredError{URL: a.authURL(s)}
	}

	client, err := a.userClient(r)
	if err != nil {
		return err
	}
	profile, err := client.CurrentUser(ctx)
	if err != nil {
		return pageError(err, "/", "Failed to log in")
	}
	if err := a.users.Upsert(ctx, profile.ID, profile.DisplayName); err != nil {
		return pageError(err, "/", "Failed to log in")
	}

	s.Set(session.KeyUserID, profile.ID)
	s.Set(session.KeyDisplayName, profile.Name())
	s.AddFlash(session.FlashSuccess, fmt.Sprintf("Hello %s! You are now logged in through your Spotify account.", profile.Name()))
	a.logger.Info("user logged in", "user_id", profile.ID)

	a.redirect(w, r, "/")
	return nil
}

func (a *App) logout(w http.ResponseWriter, r *http.Request) error {
	s := session.FromContext(r.Context())
	if err := a.sessions.Renew(r.Context(), s); err != nil {
		a.logger.Warn("failed to drop old session", "error", err)
	}
	s.Clear()
	s.AddFlash(session.FlashWarning, "You are now logged out.")

	a.redirect(w, r, "/")
	return nil
}

// authComplete is the OAuth2 redirect target. A denied authorization arrives without a code and
// leaves the session untouched.
func (a *App) authComplete(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		a.logger.Info("spotify authorization not granted", "error", q.Get("error"))
		http.Redirect(w, r, "/", http.StatusFound)
		return nil
	}

	s := session.FromContext(r.Context())
	expected, _ := s.Get(session.KeyOAuthState)
	s.Delete(session.KeyOAuthState)
	if expected == "" || q.Get("state") != expected {
		return &PageError{Message: "Spotify login failed, please try again.", Fallback: "/", Err: shared.ErrStateMismatch}
	}

	token, err := a.provider.Exchange(r.Context(), code)
	if err != nil {
		return &PageError{Message: "Spotify login failed, please try again.", Fallback: "/", Err: err}
	}

	if err := a.sessions.Renew(r.Context(), s); err != nil {
		a.logger.Warn("failed to drop old session", "error", err)
	}
	if err := s.SetToken(token); err != nil {
		return err
	}

	a.redirect(w, r, "/user/login")
	return nil
}
