package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nknaian/musicorg/internal/models"
	"github.com/nknaian/musicorg/internal/shared"
	"golang.org/x/oauth2"
)

// fakeSpotify serves the subset of the Web API and accounts service the client uses.
type fakeSpotify struct {
	mu           sync.Mutex
	calls        []string
	bodies       map[string][]byte
	items        []map[string]any
	playlists    []string
	unauthorized bool

	// failures queues status codes returned, in order, before a call reaches the handler.
	failures map[string][]int
}

func newFakeSpotify(t *testing.T) (*fakeSpotify, *httptest.Server) {
	t.Helper()

	f := &fakeSpotify{
		bodies:    make(map[string][]byte),
		failures:  make(map[string][]int),
		playlists: []string{"abc", "old"},
		items: []map[string]any{
			trackItem("a1", "A"), trackItem("a2", "A"),
			trackItem("b1", "B"),
			trackItem("c1", "C"), trackItem("c2", "C"),
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "refreshed",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "refresh",
		})
	})
	mux.HandleFunc("GET /v1/playlists/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"status": 404, "message": "Not found."}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":          r.PathValue("id"),
			"name":        "Favourites",
			"snapshot_id": "snap1",
			"uri":         "spotify:playlist:" + r.PathValue("id"),
			"owner":       map[string]any{"id": "user1"},
			"tracks":      map[string]any{"total": len(f.items)},
		})
	})
	for _, suffix := range []string{"tracks", "items"} {
		mux.HandleFunc("GET /v1/playlists/{id}/"+suffix, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"items": f.items, "total": len(f.items), "limit": 100, "offset": 0})
		})
		mux.HandleFunc("POST /v1/playlists/{id}/"+suffix, f.snapshot(http.StatusCreated))
		mux.HandleFunc("PUT /v1/playlists/{id}/"+suffix, f.snapshot(http.StatusOK))
		mux.HandleFunc("DELETE /v1/playlists/{id}/"+suffix, f.snapshot(http.StatusOK))
	}
	mux.HandleFunc("GET /v1/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "user1", "display_name": "Nick"})
	})
	mux.HandleFunc("GET /v1/me/playlists", func(w http.ResponseWriter, r *http.Request) {
		var items []map[string]any
		for _, id := range f.playlists {
			items = append(items, map[string]any{"id": id, "name": id, "tracks": map[string]any{"total": 0}})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items), "limit": 50, "offset": 0})
	})
	mux.HandleFunc("POST /v1/users/{user}/playlists", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":          "new",
			"name":        body.Name,
			"description": body.Description,
			"uri":         "spotify:playlist:new",
			"owner":       map[string]any{"id": r.PathValue("user")},
		})
	})
	mux.HandleFunc("DELETE /v1/playlists/{id}/followers", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /v1/me/player/devices", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"devices": []map[string]any{
			{"id": "d1", "name": "Kitchen", "type": "Speaker", "is_active": true, "is_restricted": false, "volume_percent": 40},
		}})
	})
	mux.HandleFunc("PUT /v1/me/player/shuffle", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("PUT /v1/me/player/play", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		call := r.Method + " " + r.URL.Path
		f.mu.Lock()
		f.calls = append(f.calls, call)
		f.bodies[call] = body
		unauthorized := f.unauthorized
		var failure int
		if queued := f.failures[call]; len(queued) > 0 {
			failure, f.failures[call] = queued[0], queued[1:]
		}
		f.mu.Unlock()

		if failure != 0 {
			w.Header().Set("Retry-After", "0")
			writeJSON(w, failure, map[string]any{"error": map[string]any{"status": failure, "message": http.StatusText(failure)}})
			return
		}

		if unauthorized && r.URL.Path != "/api/token" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{"status": 401, "message": "The access token expired"}})
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeSpotify) snapshot(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, map[string]any{"snapshot_id": "snap2"})
	}
}

func (f *fakeSpotify) called(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.calls, call)
}

func (f *fakeSpotify) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeSpotify) fail(call string, statuses ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[call] = append(f.failures[call], statuses...)
}

func (f *fakeSpotify) indexOf(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Index(f.calls, call)
}

func (f *fakeSpotify) body(call string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[call]
}

func trackItem(id, album string) map[string]any {
	return map[string]any{
		"is_local": false,
		"track": map[string]any{
			"type":        "track",
			"id":          id,
			"uri":         "spotify:track:" + id,
			"name":        "Track " + id,
			"duration_ms": 1000,
			"album": map[string]any{
				"id":      album,
				"name":    "Album " + album,
				"uri":     "spotify:album:" + album,
				"artists": []map[string]any{{"name": "Artist " + album}},
				"images":  []map[string]any{{"url": "https://img/" + album}},
			},
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newTestService(t *testing.T, srv *httptest.Server) *SpotifyService {
	t.Helper()

	svc, err := NewSpotifyService(
		shared.SpotifyConfig{ClientID: "test_client_id", ClientSecret: "test_client_secret", RedirectURI: "http://localhost/sp_auth_complete"},
		shared.RemoteConfig{},
		shared.NewLogger(io.Discard),
		WithHTTPClient(srv.Client()),
		WithEndpoints(srv.URL+"/v1/", srv.URL+"/authorize", srv.URL+"/api/token"),
	)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return svc
}

func validToken() *oauth2.Token {
	return &oauth2.Token{AccessToken: "access", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
}

func newTestUserClient(t *testing.T, svc *SpotifyService) UserClient {
	t.Helper()
	client, err := svc.UserClient(context.Background(), validToken(), UserClientOpts{
		AuthURL: func() string { return "https://auth.example/authorize" },
	})
	if err != nil {
		t.Fatalf("failed to create user client: %v", err)
	}
	return client
}

func TestSpotifyService(t *testing.T) {
	t.Run("NewSpotifyService", func(t *testing.T) {
		tc := []struct {
			name  string
			creds shared.SpotifyConfig
		}{
			{name: "Missing Client ID", creds: shared.SpotifyConfig{ClientSecret: "s", RedirectURI: "r"}},
			{name: "Missing Client Secret", creds: shared.SpotifyConfig{ClientID: "c", RedirectURI: "r"}},
			{name: "Missing Redirect URI", creds: shared.SpotifyConfig{ClientID: "c", ClientSecret: "s"}},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				_, err := NewSpotifyService(tt.creds, shared.RemoteConfig{}, shared.NewLogger(io.Discard))
				if !errors.Is(err, shared.ErrMissingCredentials) {
					t.Errorf("expected ErrMissingCredentials, got %v", err)
				}
			})
		}
	})

	t.Run("AuthURL", func(t *testing.T) {
		svc, err := NewSpotifyService(
			shared.SpotifyConfig{ClientID: "test_client_id", ClientSecret: "secret", RedirectURI: "http://localhost/cb"},
			shared.RemoteConfig{},
			shared.NewLogger(io.Discard),
		)
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		authURL, err := url.Parse(svc.AuthURL("test_state"))
		if err != nil {
			t.Fatalf("invalid auth URL: %v", err)
		}

		if authURL.Host != "accounts.spotify.com" {
			t.Errorf("auth URL should point at accounts.spotify.com, got %s", authURL.Host)
		}
		q := authURL.Query()
		if q.Get("client_id") != "test_client_id" {
			t.Errorf("auth URL should contain client_id, got %q", q.Get("client_id"))
		}
		if q.Get("state") != "test_state" {
			t.Errorf("auth URL should contain state, got %q", q.Get("state"))
		}
		if !strings.Contains(q.Get("scope"), "playlist-modify-private") {
			t.Errorf("auth URL should request playlist-modify-private, got %q", q.Get("scope"))
		}
	})

	t.Run("Exchange", func(t *testing.T) {
		_, srv := newFakeSpotify(t)
		svc := newTestService(t, srv)

		token, err := svc.Exchange(context.Background(), "code")
		if err != nil {
			t.Fatalf("Exchange() error: %v", err)
		}
		if token.AccessToken != "refreshed" {
			t.Errorf("expected access token from token endpoint, got %s", token.AccessToken)
		}
	})

	t.Run("WithShuffleSeed gives each client its own source", func(t *testing.T) {
		_, srv := newFakeSpotify(t)
		svc, err := NewSpotifyService(
			shared.SpotifyConfig{ClientID: "test_client_id", ClientSecret: "test_client_secret", RedirectURI: "http://localhost/sp_auth_complete"},
			shared.RemoteConfig{},
			shared.NewLogger(io.Discard),
			WithHTTPClient(srv.Client()),
			WithEndpoints(srv.URL+"/v1/", srv.URL+"/authorize", srv.URL+"/api/token"),
			WithShuffleSeed(7),
		)
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		a := newTestUserClient(t, svc).(*spotifyClient)
		b := newTestUserClient(t, svc).(*spotifyClient)
		if a.rng == nil || b.rng == nil {
			t.Fatal("expected seeded clients to carry a source")
		}
		if a.rng == b.rng {
			t.Fatal("clients should not share a source")
		}

		first := a.rng.Uint64()
		if got := b.rng.Uint64(); got != first {
			t.Errorf("expected clients with the same seed to draw %d, got %d", first, got)
		}
		if newTestUserClient(t, newTestService(t, srv)).(*spotifyClient).rng != nil {
			t.Error("unseeded clients should leave shuffling to a fresh source")
		}
	})
}

func TestPublicClient(t *testing.T) {
	t.Run("GetCollection groups albums", func(t *testing.T) {
		_, srv := newFakeSpotify(t)
		svc := newTestService(t, srv)

		collection, err := svc.Public().GetCollection(context.Background(), "abc")
		if err != nil {
			t.Fatalf("GetCollection() error: %v", err)
		}

		if collection.Name != "Favourites" || collection.SnapshotID != "snap1" {
			t.Errorf("unexpected metadata %+v", collection)
		}
		if len(collection.Albums) != 3 {
			t.Fatalf("expected 3 albums, got %d", len(collection.Albums))
		}
		c := collection.Albums[2]
		if c.ID != "C" || c.Start != 3 || len(c.Tracks) != 2 {
			t.Errorf("unexpected album C: %+v", c)
		}
		if c.ImageURL != "https://img/C" || c.Artists[0] != "Artist C" {
			t.Errorf("album details not mapped: %+v", c.AlbumRef)
		}
	})

	t.Run("missing playlist", func(t *testing.T) {
		_, srv := newFakeSpotify(t)
		svc := newTestService(t, srv)

		_, err := svc.Public().GetCollection(context.Background(), "missing")
		if !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("unauthorized is an ordinary failure", func(t *testing.T) {
		fake, srv := newFakeSpotify(t)
		fake.unauthorized = true
		svc := newTestService(t, srv)

		_, err := svc.Public().GetCollection(context.Background(), "abc")
		if _, ok := AsAuthRequired(err); ok {
			t.Fatal("public client should never ask for user authorization")
		}
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})
}

func TestUserClient(t *testing.T) {
	ctx := context.Background()

	t.Run("missing token requires authorization", func(t *testing.T) {
		_, srv := newFakeSpotify(t)
		svc := newTestService(t, srv)

		_, err := svc.UserClient(ctx, nil, UserClientOpts{AuthURL: func() string { return "https://auth.example" }})
		authErr, ok := AsAuthRequired(err)
		if !ok {
			t.Fatalf("expected AuthRequiredError, got %v", err)
		}
		if authErr.URL != "https://auth.example" {
			t.Errorf("expected auth URL to be carried, got %s", authErr.URL)
		}
	})

	t.Run("401 requires authorization", func(t *testing.T) {
		fake, srv := newFakeSpotify(t)
		fake.unauthorized = true
		client := newTestUserClient(t, newTestService(t, srv))

		_, err := client.Devices(ctx)
		authErr, ok := AsAuthRequired(err)
		if !ok {
			t.Fatalf("expected AuthRequiredError, got %v", err)
		}
		if authErr.URL != "https://auth.example/authorize" {
			t.Errorf("unexpected auth URL %s", authErr.URL)
		}
	})

	t.Run("refresh reports new token", func(t *testing.T) {
		_, srv := newFakeSpotify(t)
		svc := newTestService(t, srv)

		var refreshed *oauth2.Token
		expired := &oauth2.Token{AccessToken: "old", RefreshToken: "refresh", Expiry: time.Now().Add(-time.Hour)}
		client, err := svc.UserClient(ctx, expired, UserClientOpts{OnRefresh: func(t *oauth2.Token) { refreshed = t }})
		if err != nil {
			t.Fatalf("UserClient() error: %v", err)
		}

		if _, err := client.CurrentUser(ctx); err != nil {
			t.Fatalf("CurrentUser() error: %v", err)
		}
		if refreshed == nil || refreshed.AccessToken != "refreshed" {
			t.Errorf("expected refreshed token to be reported, got %+v", refreshed)
		}
	})

	t.Run("Devices", func(t *testing.T) {
		_, srv := newFakeSpotify(t)
		client := newTestUserClient(t, newTestService(t, srv))

		devices, err := client.Devices(ctx)
		if err != nil {
			t.Fatalf("Devices() error: %v", err)
		}
		want := models.Device{ID: "d1", Name: "Kitchen", Type: "Speaker", Active: true, Volume: 40}
		if len(devices) != 1 || devices[0] != want {
			t.Errorf("expected %+v, got %+v", want, devices)
		}
	})

	t.Run("PlaylistExists", func(t *testing.T) {
		_, srv := newFakeSpotify(t)
		client := newTestUserClient(t, newTestService(t, srv))

		exists, err := client.PlaylistExists(ctx, "old")
		if err != nil || !exists {
			t.Errorf("expected old to exist, got %v, %v", exists, err)
		}
		exists, err = client.PlaylistExists(ctx, "gone")
		if err != nil || exists {
			t.Errorf("expected gone to be absent, got %v, %v", exists, err)
		}
	})

	t.Run("CreatePlaylist and RemovePlaylist", func(t *testing.T) {
		fake, srv := newFakeSpotify(t)
		client := newTestUserClient(t, newTestService(t, srv))

		playlist, err := client.CreatePlaylist(ctx, "Collection Playback: Favourites", "generated")
		if err != nil {
			t.Fatalf("CreatePlaylist() error: %v", err)
		}
		if playlist.ID != "new" || playlist.Name != "Collection Playback: Favourites" {
			t.Errorf("unexpected playlist %+v", playlist)
		}
		if !fake.called("POST /v1/users/user1/playlists") {
			t.Error("expected playlist to be created for the current user")
		}

		if err := client.RemovePlaylist(ctx, "old"); err != nil {
			t.Fatalf("RemovePlaylist() error: %v", err)
		}
		if !fake.called("DELETE /v1/playlists/old/followers") {
			t.Error("expected playlist to be unfollowed")
		}
	})

	t.Run("ReorderCollection", func(t *testing.T) {
		fake, srv := newFakeSpotify(t)
		client := newTestUserClient(t, newTestService(t, srv))

		if err := client.ReorderCollection(ctx, "abc", "A", "C"); err != nil {
			t.Fatalf("ReorderCollection() error: %v", err)
		}

		var body struct {
			RangeStart   int    `json:"range_start"`
			RangeLength  int    `json:"range_length"`
			InsertBefore int    `json:"insert_before"`
			SnapshotID   string `json:"snapshot_id"`
		}
		if err := json.Unmarshal(fake.body("PUT /v1/playlists/abc/tracks"), &body); err != nil {
			t.Fatalf("failed to decode reorder body: %v", err)
		}
		if body.RangeStart != 0 || body.RangeLength != 2 || body.InsertBefore != 3 || body.SnapshotID != "snap1" {
			t.Errorf("unexpected reorder request %+v", body)
		}
	})

	t.Run("ReorderCollection noop", func(t *testing.T) {
		fake, srv := newFakeSpotify(t)
		client := newTestUserClient(t, newTestService(t, srv))

		if err := client.ReorderCollection(ctx, "abc", "A", "B"); err != nil {
			t.Fatalf("ReorderCollection() error: %v", err)
		}
		if fake.called("PUT /v1/playlists/abc/tracks") {
			t.Error("expected no reorder request for a noop move")
		}
	})

	t.Run("ReorderCollection unknown album", func(t *testing.T) {
		_, srv := newFakeSpotify(t)
		client := newTestUserClient(t, newTestService(t, srv))

		if err := client.ReorderCollection(ctx, "abc", "Q", ""); !errors.Is(err, shared.ErrAlbumNotFound) {
			t.Errorf("expected ErrAlbumNotFound, got %v", err)
		}
	})

	t.Run("RemoveAlbumFromPlaylist", func(t *testing.T) {
		fake, srv := newFakeSpotify(t)
		client := newTestUserClient(t, newTestService(t, srv))

		if err := client.RemoveAlbumFromPlaylist(ctx, "abc", "C"); err != nil {
			t.Fatalf("RemoveAlbumFromPlaylist() error: %v", err)
		}

		var body struct {
			Tracks []struct {
				URI       string `json:"uri"`
				Positions []int  `json:"positions"`
			} `json:"tracks"`
		}
		if err := json.Unmarshal(fake.body("DELETE /v1/playlists/abc/tracks"), &body); err != nil {
			t.Fatalf("failed to decode remove body: %v", err)
		}
		if len(body.Tracks) != 2 {
			t.Fatalf("expected 2 tracks removed, got %+v", body.Tracks)
		}
		got := map[string][]int{}
		for _, tr := range body.Tracks {
			got[tr.URI] = tr.Positions
		}
		if !slices.Equal(got["spotify:track:c1"], []int{3}) || !slices.Equal(got["spotify:track:c2"], []int{4}) {
			t.Errorf("unexpected positions %v", got)
		}
	})

	t.Run("RemoveAlbumFromPlaylist unknown album", func(t *testing.T) {
		fake, srv := newFakeSpotify(t)
		client := newTestUserClient(t, newTestService(t, srv))

		if err := client.RemoveAlbumFromPlaylist(ctx, "abc", "Q"); !errors.Is(err, shared.ErrAlbumNotFound) {
			t.Errorf("expected ErrAlbumNotFound, got %v", err)
		}
		if fake.called("DELETE /v1/playlists/abc/tracks") {
			t.Error("expected no remove request")
		}
	})

	t.Run("PlayCollection", func(t *testing.T) {
		fake, srv := newFakeSpotify(t)
		client := newTestUserClient(t, newTestService(t, srv))

		collection, err := client.GetCollection(ctx, "abc")
		if err != nil {
			t.Fatalf("GetCollection() error: %v", err)
		}

		playlist := &models.Playlist{ID: "new", URI: "spotify:playlist:new"}
		if err := client.PlayCollection(ctx, collection, "B", false, playlist, "d1"); err != nil {
			t.Fatalf("PlayCollection() error: %v", err)
		}

		add := fake.indexOf("POST /v1/playlists/new/tracks")
		shuffle := fake.indexOf("PUT /v1/me/player/shuffle")
		play := fake.indexOf("PUT /v1/me/player/play")
		if add < 0 || shuffle < 0 || play < 0 {
			t.Fatalf("expected add, shuffle and play calls, got %v", fake.calls)
		}
		if !(add < shuffle && shuffle < play) {
			t.Errorf("expected add < shuffle < play, got %d %d %d", add, shuffle, play)
		}

		var added struct {
			URIs []string `json:"uris"`
		}
		if err := json.Unmarshal(fake.body("POST /v1/playlists/new/tracks"), &added); err != nil {
			t.Fatalf("failed to decode add body: %v", err)
		}
		want := []string{"spotify:track:b1", "spotify:track:c1", "spotify:track:c2", "spotify:track:a1", "spotify:track:a2"}
		if !slices.Equal(added.URIs, want) {
			t.Errorf("expected %v, got %v", want, added.URIs)
		}

		var started struct {
			ContextURI string `json:"context_uri"`
		}
		if err := json.Unmarshal(fake.body("PUT /v1/me/player/play"), &started); err != nil {
			t.Fatalf("failed to decode play body: %v", err)
		}
		if started.ContextURI != "spotify:playlist:new" {
			t.Errorf("expected playback of the new playlist, got %q", started.ContextURI)
		}
	})
}
