package models

import "time"

// Track is a single playable item of a playlist.
type Track struct {
	ID         string `json:"id"`
	URI        string `json:"uri"`
	Name       string `json:"name"`
	DurationMS int    `json:"duration_ms"`
}

// AlbumRef identifies the album a playlist item belongs to.
type AlbumRef struct {
	ID       string
	Name     string
	Artists  []string
	ImageURL string
	URI      string
}

// Item is one playlist entry. Album is nil for local files and podcast episodes.
type Item struct {
	Track Track
	Album *AlbumRef
}

// Playlist is the metadata of a remote playlist.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URI         string `json:"uri"`
	OwnerID     string `json:"owner_id"`
	ImageURL    string `json:"image_url"`
	SnapshotID  string `json:"snapshot_id"`
	TrackCount  int    `json:"track_count"`
	Public      bool   `json:"public"`
}

// Device is a Spotify Connect device that can receive playback.
type Device struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Active     bool   `json:"is_active"`
	Restricted bool   `json:"is_restricted"`
	Volume     int    `json:"volume_percent"`
}

// Profile is the remote identity of the logged-in user.
type Profile struct {
	ID          string
	DisplayName string
}

// Name returns the display name, falling back to the account id.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}

// User is a Spotify account that has logged in to the application.
type User struct {
	ID                 string
	DisplayName        string
	PlaybackPlaylistID string // empty when no playback playlist is recorded
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasPlaybackPlaylist reports whether a playback playlist id is recorded.
func (u *User) HasPlaybackPlaylist() bool {
	return u != nil && u.PlaybackPlaylistID != ""
}
