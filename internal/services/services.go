// package services wraps the Spotify Web API behind the capabilities the web handlers need
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/nknaian/musicorg/internal/models"
	"golang.org/x/oauth2"
)

// CollectionReader is the capability shared by the public and the per-user clients.
type CollectionReader interface {
	// GetCollection loads a playlist and groups its tracks into albums.
	GetCollection(ctx context.Context, playlistID string) (*models.Collection, error)
}

// UserClient is the capability set available only to a logged-in user.
type UserClient interface {
	CollectionReader

	CurrentUser(ctx context.Context) (*models.Profile, error)
	UserPlaylists(ctx context.Context) ([]models.Playlist, error)

	// RemoveAlbumFromPlaylist removes every track of the album entry from the playlist.
	RemoveAlbumFromPlaylist(ctx context.Context, playlistID, albumID string) error
	Devices(ctx context.Context) ([]models.Device, error)
	PlaylistExists(ctx context.Context, playlistID string) (bool, error)
	CreatePlaylist(ctx context.Context, name, description string) (*models.Playlist, error)
	RemovePlaylist(ctx context.Context, playlistID string) error

	// PlayCollection fills playlist with the collection's tracks, album by album, and starts it on deviceID.
	PlayCollection(ctx context.Context, collection *models.Collection, startAlbumID string, shuffle bool, playlist *models.Playlist, deviceID string) error

	// ReorderCollection moves movedID before nextID, or to the end when nextID is empty.
	ReorderCollection(ctx context.Context, playlistID, movedID, nextID string) error
}

// Provider builds clients and drives the OAuth2 authorization code flow.
type Provider interface {
	Public() CollectionReader
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	UserClient(ctx context.Context, token *oauth2.Token, opts UserClientOpts) (UserClient, error)
}

// UserClientOpts configures a per-user client.
type UserClientOpts struct {
	// OnRefresh receives the new token whenever the access token is refreshed.
	OnRefresh func(*oauth2.Token)

	// AuthURL produces the authorization URL carried by [AuthRequiredError].
	AuthURL func() string
}

// AuthRequiredError signals that the user must (re)authorize with Spotify at URL.
type AuthRequiredError struct {
	URL string
	Err error
}

func (e *AuthRequiredError) Error() string {
	if e.Err == nil {
		return "spotify authorization required"
	}
	return fmt.Sprintf("spotify authorization required: %v", e.Err)
}

func (e *AuthRequiredError) Unwrap() error { return e.Err }

// AsAuthRequired reports whether err carries an [AuthRequiredError].
func AsAuthRequired(err error) (*AuthRequiredError, bool) {
	var target *AuthRequiredError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
