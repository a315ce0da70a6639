package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nknaian/musicorg/internal/models"
	"github.com/nknaian/musicorg/internal/shared"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	pageSize     = 50
	itemPageSize = 100
	batchSize    = 100 // max items per add/remove request
)

// spotifyClient implements [UserClient]. The public variant has a nil authURL and only serves
// [CollectionReader].
type spotifyClient struct {
	api     *spotify.Client
	limiter *rate.Limiter
	logger  *log.Logger
	authURL func() string
	rng     *rand.Rand
	userID  string
}

// call runs one remote operation under the rate limiter, recording metrics and classifying the error.
func (c *spotifyClient) call(ctx context.Context, op string, fn func() error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		requestsTotal.WithLabelValues(op, outcomeRateLimit).Inc()
		return fmt.Errorf("%w: %s: %w", shared.ErrServiceUnavailable, op, err)
	}

	start := time.Now()
	err := fn()
	requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		requestsTotal.WithLabelValues(op, outcomeOK).Inc()
		return nil
	case c.authURL != nil && isAuthFailure(err):
		requestsTotal.WithLabelValues(op, outcomeAuth).Inc()
		c.logger.Warn("spotify authorization rejected", "operation", op, "error", err)
		return &AuthRequiredError{URL: c.authURL(), Err: err}
	default:
		requestsTotal.WithLabelValues(op, outcomeError).Inc()
		c.logger.Debug("spotify request failed", "operation", op, "error", err)
		return fmt.Errorf("%w: %s: %w", shared.ErrAPIRequest, op, err)
	}
}

// statusOf extracts the HTTP status of a Spotify API error, or 0.
func statusOf(err error) int {
	var value spotify.Error
	if errors.As(err, &value) {
		return value.Status
	}
	var ptr *spotify.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Status
	}
	return 0
}

func isAuthFailure(err error) bool {
	if statusOf(err) == http.StatusUnauthorized {
		return true
	}
	var retrieve *oauth2.RetrieveError
	return errors.As(err, &retrieve)
}

// GetCollection loads playlist metadata and every item, then groups them into albums.
func (c *spotifyClient) GetCollection(ctx context.Context, playlistID string) (*models.Collection, error) {
	var playlist *spotify.FullPlaylist
	err := c.call(ctx, "get_playlist", func() (err error) {
		playlist, err = c.api.GetPlaylist(ctx, spotify.ID(playlistID))
		return err
	})
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
		}
		return nil, err
	}

	var items []models.Item
	for offset := 0; ; {
		var page *spotify.PlaylistItemPage
		err := c.call(ctx, "get_playlist_items", func() (err error) {
			page, err = c.api.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(itemPageSize), spotify.Offset(offset))
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			items = append(items, toItem(item))
		}

		offset += len(page.Items)
		if len(page.Items) == 0 || offset >= int(page.Total) {
			break
		}
	}

	meta := toPlaylist(playlist.SimplePlaylist)
	meta.TrackCount = len(items)
	return models.NewCollection(meta, items), nil
}

// CurrentUser returns the profile of the token's owner.
func (c *spotifyClient) CurrentUser(ctx context.Context) (*models.Profile, error) {
	var user *spotify.PrivateUser
	err := c.call(ctx, "current_user", func() (err error) {
		user, err = c.api.CurrentUser(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.userID = user.ID
	return &models.Profile{ID: user.ID, DisplayName: user.DisplayName}, nil
}

// UserPlaylists returns every playlist the user owns or follows.
func (c *spotifyClient) UserPlaylists(ctx context.Context) ([]models.Playlist, error) {
	var playlists []models.Playlist
	for offset := 0; ; {
		var page *spotify.SimplePlaylistPage
		err := c.call(ctx, "current_users_playlists", func() (err error) {
			page, err = c.api.CurrentUsersPlaylists(ctx, spotify.Limit(pageSize), spotify.Offset(offset))
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, p := range page.Playlists {
			playlists = append(playlists, toPlaylist(p))
		}

		offset += len(page.Playlists)
		if len(page.Playlists) == 0 || offset >= int(page.Total) {
			break
		}
	}
	return playlists, nil
}

// RemoveAlbumFromPlaylist removes the tracks of every run of albumID, by position.
func (c *spotifyClient) RemoveAlbumFromPlaylist(ctx context.Context, playlistID, albumID string) error {
	collection, err := c.GetCollection(ctx, playlistID)
	if err != nil {
		return err
	}

	type entry struct {
		trackID  string
		position int
	}
	var entries []entry
	for _, album := range collection.Albums {
		if album.ID != albumID {
			continue
		}
		for i, t := range album.Tracks {
			entries = append(entries, entry{trackID: t.ID, position: album.Start + i})
		}
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: %s in playlist %s", shared.ErrAlbumNotFound, albumID, playlistID)
	}

	// Later positions go first so earlier batches keep their indexes.
	slices.Reverse(entries)
	snapshot := collection.SnapshotID
	for chunk := range slices.Chunk(entries, batchSize) {
		positions := make(map[string][]int)
		var order []string
		for _, e := range chunk {
			if _, ok := positions[e.trackID]; !ok {
				order = append(order, e.trackID)
			}
			positions[e.trackID] = append(positions[e.trackID], e.position)
		}

		tracks := make([]spotify.TrackToRemove, 0, len(order))
		for _, id := range order {
			tracks = append(tracks, spotify.NewTrackToRemove(id, positions[id]))
		}

		err := c.call(ctx, "remove_tracks", func() (err error) {
			snapshot, err = c.api.RemoveTracksFromPlaylistOpt(ctx, spotify.ID(playlistID), tracks, snapshot)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Devices lists the user's available Spotify Connect devices.
func (c *spotifyClient) Devices(ctx context.Context) ([]models.Device, error) {
	var devices []spotify.PlayerDevice
	err := c.call(ctx, "player_devices", func() (err error) {
		devices, err = c.api.PlayerDevices(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := make([]models.Device, 0, len(devices))
	for _, d := range devices {
		result = append(result, models.Device{
			ID:         string(d.ID),
			Name:       d.Name,
			Type:       d.Type,
			Active:     d.Active,
			Restricted: d.Restricted,
			Volume:     int(d.Volume),
		})
	}
	return result, nil
}

// PlaylistExists reports whether playlistID is still among the user's playlists.
func (c *spotifyClient) PlaylistExists(ctx context.Context, playlistID string) (bool, error) {
	playlists, err := c.UserPlaylists(ctx)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(playlists, func(p models.Playlist) bool { return p.ID == playlistID }), nil
}

// CreatePlaylist creates a private playlist owned by the current user.
func (c *spotifyClient) CreatePlaylist(ctx context.Context, name, description string) (*models.Playlist, error) {
	if c.userID == "" {
		if _, err := c.CurrentUser(ctx); err != nil {
			return nil, err
		}
	}

	var created *spotify.FullPlaylist
	err := c.call(ctx, "create_playlist", func() (err error) {
		created, err = c.api.CreatePlaylistForUser(ctx, c.userID, name, description, false, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	p := toPlaylist(created.SimplePlaylist)
	return &p, nil
}

// RemovePlaylist unfollows the playlist, which is how Spotify deletes a playlist for its owner.
func (c *spotifyClient) RemovePlaylist(ctx context.Context, playlistID string) error {
	return c.call(ctx, "unfollow_playlist", func() error {
		return c.api.UnfollowPlaylist(ctx, spotify.ID(playlistID))
	})
}

// PlayCollection queues the collection's albums into playlist and starts playing it on deviceID.
func (c *spotifyClient) PlayCollection(ctx context.Context, collection *models.Collection, startAlbumID string, shuffle bool, playlist *models.Playlist, deviceID string) error {
	albums, err := collection.PlaybackOrder(startAlbumID, shuffle, c.rng)
	if err != nil {
		return err
	}

	ids := models.TrackIDs(albums)
	trackIDs := make([]spotify.ID, len(ids))
	for i, id := range ids {
		trackIDs[i] = spotify.ID(id)
	}

	for chunk := range slices.Chunk(trackIDs, batchSize) {
		err := c.call(ctx, "add_tracks", func() error {
			_, err := c.api.AddTracksToPlaylist(ctx, spotify.ID(playlist.ID), chunk...)
			return err
		})
		if err != nil {
			return err
		}
	}

	opts := &spotify.PlayOptions{}
	if deviceID != "" {
		device := spotify.ID(deviceID)
		opts.DeviceID = &device
	}

	// Track-level shuffle would scramble the album order.
	err = c.call(ctx, "shuffle", func() error { return c.api.ShuffleOpt(ctx, false, opts) })
	if _, ok := AsAuthRequired(err); ok {
		return err
	} else if err != nil {
		c.logger.Warn("failed to disable shuffle", "device_id", deviceID, "error", err)
	}

	uri := spotify.URI(playlist.URI)
	if uri == "" {
		uri = spotify.URI("spotify:playlist:" + playlist.ID)
	}
	opts.PlaybackContext = &uri

	return c.call(ctx, "play", func() error { return c.api.PlayOpt(ctx, opts) })
}

// ReorderCollection moves an album entry with a single range reorder.
func (c *spotifyClient) ReorderCollection(ctx context.Context, playlistID, movedID, nextID string) error {
	collection, err := c.GetCollection(ctx, playlistID)
	if err != nil {
		return err
	}

	move, err := collection.Move(movedID, nextID)
	if err != nil {
		return err
	}
	if move.Noop {
		return nil
	}

	return c.call(ctx, "reorder_tracks", func() error {
		_, err := c.api.ReorderPlaylistTracks(ctx, spotify.ID(playlistID), spotify.PlaylistReorderOptions{
			RangeStart:   spotify.Numeric(move.RangeStart),
			RangeLength:  spotify.Numeric(move.RangeLength),
			InsertBefore: spotify.Numeric(move.InsertBefore),
			SnapshotID:   collection.SnapshotID,
		})
		return err
	})
}

func toPlaylist(p spotify.SimplePlaylist) models.Playlist {
	playlist := models.Playlist{
		ID:          string(p.ID),
		Name:        p.Name,
		Description: p.Description,
		URI:         string(p.URI),
		OwnerID:     p.Owner.ID,
		SnapshotID:  p.SnapshotID,
		TrackCount:  int(p.Tracks.Total),
		Public:      p.IsPublic,
	}
	if len(p.Images) > 0 {
		playlist.ImageURL = p.Images[0].URL
	}
	return playlist
}

func toItem(item spotify.PlaylistItem) models.Item {
	track := item.Track.Track
	if track == nil {
		return models.Item{}
	}

	result := models.Item{Track: models.Track{
		ID:         string(track.ID),
		URI:        string(track.URI),
		Name:       track.Name,
		DurationMS: int(track.Duration),
	}}
	if item.IsLocal || track.Album.ID == "" {
		return result
	}

	album := &models.AlbumRef{
		ID:   string(track.Album.ID),
		Name: track.Album.Name,
		URI:  string(track.Album.URI),
	}
	for _, a := range track.Album.Artists {
		album.Artists = append(album.Artists, a.Name)
	}
	if len(track.Album.Images) > 0 {
		album.ImageURL = track.Album.Images[0].URL
	}
	result.Album = album
	return result
}
