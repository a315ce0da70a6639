package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nknaian/musicorg/internal/models"
	"github.com/nknaian/musicorg/internal/services"
	"github.com/nknaian/musicorg/internal/session"
	"github.com/nknaian/musicorg/internal/shared"
)

// PlaybackPlaylistPrefix starts the name of every generated playback playlist.
const PlaybackPlaylistPrefix = "Collection Playback"

type actionResult struct {
	Success   bool    `json:"success"`
	Exception *string `json:"exception"`
}

type devicesResult struct {
	Exception *string         `json:"exception"`
	Devices   []models.Device `json:"devices"`
}

type playResult struct {
	Played    bool    `json:"played"`
	Exception *string `json:"exception"`
}

type playRequest struct {
	PlaylistID    string `json:"playlist_id"`
	DeviceID      string `json:"device_id"`
	StartAlbumID  string `json:"start_album_id"`
	ShuffleAlbums bool   `json:"shuffle_albums"`
}

type reorderRequest struct {
	PlaylistID   string `json:"playlist_id"`
	MovedAlbumID string `json:"moved_album_id"`
	NextAlbumID  string `json:"next_album_id"`
}

// PlaybackPlaylistName names the playlist generated to play collectionName.
func PlaybackPlaylistName(collectionName string) string {
	return PlaybackPlaylistPrefix + ": " + collectionName
}

func (a *App) playbackDescription() string {
	by := "albumcollections"
	if a.publicURL != "" {
		by = a.publicURL
	}
	return "This playlist was automatically generated by " + by
}

// decodeData reads the JSON document posted in the "data" form field.
func decodeData(r *http.Request, v any) error {
	raw := r.PostFormValue("data")
	if raw == "" {
		return fmt.Errorf("%w: data", shared.ErrMissingArgument)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: data: %v", shared.ErrInvalidArgument, err)
	}
	return nil
}

func (a *App) collection(w http.ResponseWriter, r *http.Request) error {
	playlistID := chi.URLParam(r, "playlist_id")

	reader, err := a.collectionClient(r)
	if err != nil {
		return pageError(err, "/", "Failed to create spotify interface")
	}

	c, err := reader.GetCollection(r.Context(), playlistID)
	if err != nil {
		return pageError(err, "/", "Failed to load collection %s", playlistID)
	}

	a.render(w, r, http.StatusOK, "collection.html", pageData{Title: c.Name, Collection: c})
	return nil
}

// actionFailed logs and reports a failed JSON action. It returns err when it must escape
// to the adapter instead of being folded into the response.
func (a *App) actionFailed(r *http.Request, action string, err error, kv ...any) error {
	if _, ok := services.AsAuthRequired(err); ok {
		return err
	}
	a.logger.Error("action failed", append([]any{"action", action, "error", err}, kv...)...)
	a.reporter.Capture(err, map[string]string{"action": action, "user_id": session.FromContext(r.Context()).UserID()})
	return nil
}

func (a *App) removeAlbum(w http.ResponseWriter, r *http.Request) error {
	playlistID := r.PostFormValue("playlist_id")
	albumID := r.PostFormValue("album_id")

	err := func() error {
		if playlistID == "" || albumID == "" {
			return fmt.Errorf("%w: playlist_id and album_id are required", shared.ErrMissingArgument)
		}
		client, err := a.userClient(r)
		if err != nil {
			return err
		}
		return client.RemoveAlbumFromPlaylist(r.Context(), playlistID, albumID)
	}()
	if err != nil {
		if err := a.actionFailed(r, "remove_album", err, "playlist_id", playlistID, "album_id", albumID); err != nil {
			return err
		}
	}
	return a.writeJSON(w, r, actionResult{Success: err == nil, Exception: exception(err)})
}

func (a *App) getDevices(w http.ResponseWriter, r *http.Request) error {
	var devices []models.Device
	err := func() error {
		client, err := a.userClient(r)
		if err != nil {
			return err
		}
		devices, err = client.Devices(r.Context())
		return err
	}()
	if err != nil {
		if err := a.actionFailed(r, "get_devices", err); err != nil {
			return err
		}
		return a.writeJSON(w, r, devicesResult{Exception: exception(err)})
	}

	if devices == nil {
		devices = []models.Device{}
	}
	return a.writeJSON(w, r, devicesResult{Devices: devices})
}

// playCollection replaces the user's playback playlist with the collection's tracks and starts it.
// The new playlist id is recorded before playback starts so a failed start still leaves it tracked.
func (a *App) playCollection(w http.ResponseWriter, r *http.Request) error {
	var req playRequest
	err := func() error {
		if err := decodeData(r, &req); err != nil {
			return err
		}
		if req.PlaylistID == "" {
			return fmt.Errorf("%w: playlist_id", shared.ErrMissingArgument)
		}

		ctx := r.Context()
		client, err := a.userClient(r)
		if err != nil {
			return err
		}
		userID, err := a.currentUserID(ctx, session.FromContext(ctx), client)
		if err != nil {
			return err
		}

		c, err := client.GetCollection(ctx, req.PlaylistID)
		if err != nil {
			return err
		}

		previous, err := a.users.PlaybackPlaylistID(ctx, userID)
		if err != nil {
			return err
		}
		if previous != "" {
			exists, err := client.PlaylistExists(ctx, previous)
			if err != nil {
				return err
			}
			if exists {
				if err := client.RemovePlaylist(ctx, previous); err != nil {
					return err
				}
			}
		}

		playlist, err := client.CreatePlaylist(ctx, PlaybackPlaylistName(c.Name), a.playbackDescription())
		if err != nil {
			return err
		}
		if err := a.users.SetPlaybackPlaylistID(ctx, userID, playlist.ID); err != nil {
			return err
		}

		a.logger.Info("playing collection", "playlist_id", req.PlaylistID, "playback_playlist_id", playlist.ID,
			"device_id", req.DeviceID, "shuffle", req.ShuffleAlbums)
		return client.PlayCollection(ctx, c, req.StartAlbumID, req.ShuffleAlbums, playlist, req.DeviceID)
	}()
	if err != nil {
		if err := a.actionFailed(r, "play_collection", err, "playlist_id", req.PlaylistID); err != nil {
			return err
		}
	}
	return a.writeJSON(w, r, playResult{Played: err == nil, Exception: exception(err)})
}

func (a *App) reorderCollection(w http.ResponseWriter, r *http.Request) error {
	var req reorderRequest
	err := func() error {
		if err := decodeData(r, &req); err != nil {
			return err
		}
		if req.PlaylistID == "" || req.MovedAlbumID == "" {
			return fmt.Errorf("%w: playlist_id and moved_album_id are required", shared.ErrMissingArgument)
		}
		client, err := a.userClient(r)
		if err != nil {
			return err
		}
		return client.ReorderCollection(r.Context(), req.PlaylistID, req.MovedAlbumID, req.NextAlbumID)
	}()
	if err != nil {
		if err := a.actionFailed(r, "reorder_collection", err, "playlist_id", req.PlaylistID,
			"moved_album_id", req.MovedAlbumID, "next_album_id", req.NextAlbumID); err != nil {
			return err
		}
	}
	return a.writeJSON(w, r, actionResult{Success: err == nil, Exception: exception(err)})
}
