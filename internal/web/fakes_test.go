package web

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nknaian/musicorg/internal/models"
	"github.com/nknaian/musicorg/internal/services"
	"golang.org/x/oauth2"
)

const fakeAuthorizeURL = "https://accounts.test/authorize"

var errRemote = errors.New("remote exploded")

type fakeProvider struct {
	mu        sync.Mutex
	authURLs  int
	exchanged []string
	tokens    []string // access tokens handed to UserClient
	refreshTo *oauth2.Token

	public *fakeClient
	user   *fakeClient
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{public: newFakeClient(), user: newFakeClient()}
}

func (p *fakeProvider) Public() services.CollectionReader { return p.public }

func (p *fakeProvider) AuthURL(state string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authURLs++
	return fakeAuthorizeURL + "?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if code == "bad" {
		return nil, errRemote
	}
	p.exchanged = append(p.exchanged, code)
	return &oauth2.Token{AccessToken: "access-" + code, RefreshToken: "refresh", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}, nil
}

func (p *fakeProvider) UserClient(_ context.Context, token *oauth2.Token, opts services.UserClientOpts) (services.UserClient, error) {
	if token == nil {
		return nil, &services.AuthRequiredError{URL: opts.AuthURL()}
	}

	p.mu.Lock()
	p.tokens = append(p.tokens, token.AccessToken)
	refresh := p.refreshTo
	p.refreshTo = nil
	p.mu.Unlock()

	if refresh != nil && opts.OnRefresh != nil {
		opts.OnRefresh(refresh)
	}

	p.user.mu.Lock()
	p.user.opts = opts
	p.user.mu.Unlock()
	return p.user, nil
}

func (p *fakeProvider) authCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authURLs
}

func (p *fakeProvider) lastToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.tokens) == 0 {
		return ""
	}
	return p.tokens[len(p.tokens)-1]
}

// fakeClient records every call as "op:args" in order.
type fakeClient struct {
	mu          sync.Mutex
	opts        services.UserClientOpts
	calls       []string
	collections map[string]*models.Collection
	existing    map[string]bool
	devices     []models.Device
	failures    map[string]error
	authFail    map[string]bool
	created     int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		collections: map[string]*models.Collection{"pl-1": testCollection()},
		existing:    map[string]bool{},
		failures:    map[string]error{},
		authFail:    map[string]bool{},
	}
}

func testCollection() *models.Collection {
	track := func(id string) models.Track { return models.Track{ID: id, URI: "spotify:track:" + id, Name: id} }
	a1 := &models.AlbumRef{ID: "a1", Name: "First", Artists: []string{"Ann"}}
	a2 := &models.AlbumRef{ID: "a2", Name: "Second", Artists: []string{"Bob", "Cid"}}
	return models.NewCollection(
		models.Playlist{ID: "pl-1", Name: "Favourites", OwnerID: "user-1"},
		[]models.Item{{Track: track("t1"), Album: a1}, {Track: track("t2"), Album: a1}, {Track: track("t3"), Album: a2}},
	)
}

func (c *fakeClient) record(op string, args ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, strings.Join(append([]string{op}, args...), ":"))
	if c.authFail[op] {
		return &services.AuthRequiredError{URL: c.opts.AuthURL(), Err: errors.New("token revoked")}
	}
	return c.failures[op]
}

func (c *fakeClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeClient) GetCollection(_ context.Context, playlistID string) (*models.Collection, error) {
	if err := c.record("get_collection", playlistID); err != nil {
		return nil, err
	}
	col, ok := c.collections[playlistID]
	if !ok {
		return nil, errors.New("playlist not found")
	}
	return col, nil
}

func (c *fakeClient) CurrentUser(context.Context) (*models.Profile, error) {
	if err := c.record("current_user"); err != nil {
		return nil, err
	}
	return &models.Profile{ID: "user-1", DisplayName: "Test User"}, nil
}

func (c *fakeClient) UserPlaylists(context.Context) ([]models.Playlist, error) {
	if err := c.record("user_playlists"); err != nil {
		return nil, err
	}
	return []models.Playlist{{ID: "pl-1", Name: "Favourites", TrackCount: 3}}, nil
}

func (c *fakeClient) RemoveAlbumFromPlaylist(_ context.Context, playlistID, albumID string) error {
	return c.record("remove_album", playlistID, albumID)
}

func (c *fakeClient) Devices(context.Context) ([]models.Device, error) {
	if err := c.record("devices"); err != nil {
		return nil, err
	}
	return c.devices, nil
}

func (c *fakeClient) PlaylistExists(_ context.Context, playlistID string) (bool, error) {
	if err := c.record("exists", playlistID); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.existing[playlistID], nil
}

func (c *fakeClient) CreatePlaylist(_ context.Context, name, description string) (*models.Playlist, error) {
	if err := c.record("create_playlist", name, description); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created++
	id := fmt.Sprintf("playback-%d", c.created)
	c.existing[id] = true
	return &models.Playlist{ID: id, Name: name, Description: description}, nil
}

func (c *fakeClient) RemovePlaylist(_ context.Context, playlistID string) error {
	if err := c.record("remove_playlist", playlistID); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.existing, playlistID)
	return nil
}

func (c *fakeClient) PlayCollection(_ context.Context, col *models.Collection, startAlbumID string, shuffle bool, playlist *models.Playlist, deviceID string) error {
	return c.record("play", col.ID, startAlbumID, fmt.Sprint(shuffle), playlist.ID, deviceID)
}

func (c *fakeClient) ReorderCollection(_ context.Context, playlistID, movedID, nextID string) error {
	return c.record("reorder", playlistID, movedID, nextID)
}
