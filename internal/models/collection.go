package models

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/nknaian/musicorg/internal/shared"
)

// Collection is a playlist presented as an ordered list of albums.
type Collection struct {
	ID          string
	Name        string
	Description string
	Owner       string
	ImageURL    string
	SnapshotID  string
	Albums      []Album

	// TrackCount is the number of items in the underlying playlist, including items that
	// belong to no album.
	TrackCount int

	// layout maps each playlist position to an index into Albums, or -1 for album-less items.
	layout []int
}

// Album is a run of consecutive playlist tracks from the same album.
type Album struct {
	AlbumRef
	Tracks   []Track
	Position int // index within the collection
	Start    int // playlist position of the first track
}

// NewCollection groups items into albums. Consecutive tracks sharing an album id form one entry;
// an album-less item ends the current run but still occupies a playlist position.
func NewCollection(meta Playlist, items []Item) *Collection {
	c := &Collection{
		ID:          meta.ID,
		Name:        meta.Name,
		Description: meta.Description,
		Owner:       meta.OwnerID,
		ImageURL:    meta.ImageURL,
		SnapshotID:  meta.SnapshotID,
		TrackCount:  len(items),
		layout:      make([]int, 0, len(items)),
	}

	current := -1
	for i, item := range items {
		if item.Album == nil || item.Album.ID == "" {
			current = -1
			c.layout = append(c.layout, -1)
			continue
		}

		if current < 0 || c.Albums[current].ID != item.Album.ID {
			c.Albums = append(c.Albums, Album{AlbumRef: *item.Album, Position: len(c.Albums), Start: i})
			current = len(c.Albums) - 1
		}
		c.Albums[current].Tracks = append(c.Albums[current].Tracks, item.Track)
		c.layout = append(c.layout, current)
	}
	return c
}

// Album returns the first album entry with the given id.
func (c *Collection) Album(id string) (*Album, bool) {
	for i := range c.Albums {
		if c.Albums[i].ID == id {
			return &c.Albums[i], true
		}
	}
	return nil, false
}

// Move is a contiguous range move in the underlying playlist.
type Move struct {
	RangeStart   int
	RangeLength  int
	InsertBefore int
	Noop         bool
}

// Move relocates the album movedID so that it immediately precedes nextID, or becomes last when
// nextID is empty. It returns the equivalent playlist range move and updates the collection.
func (c *Collection) Move(movedID, nextID string) (Move, error) {
	moved, ok := c.Album(movedID)
	if !ok {
		return Move{}, fmt.Errorf("%w: %s", shared.ErrAlbumNotFound, movedID)
	}

	m := Move{RangeStart: moved.Start, RangeLength: len(moved.Tracks), InsertBefore: c.TrackCount}
	if nextID != "" {
		next, ok := c.Album(nextID)
		if !ok {
			return Move{}, fmt.Errorf("%w: %s", shared.ErrAlbumNotFound, nextID)
		}
		m.InsertBefore = next.Start
	}

	if m.InsertBefore >= m.RangeStart && m.InsertBefore <= m.RangeStart+m.RangeLength {
		m.Noop = true
		return m, nil
	}

	c.apply(m)
	return m, nil
}

// apply performs m on the layout and regroups the albums.
func (c *Collection) apply(m Move) {
	block := slices.Clone(c.layout[m.RangeStart : m.RangeStart+m.RangeLength])
	rest := slices.Delete(slices.Clone(c.layout), m.RangeStart, m.RangeStart+m.RangeLength)

	at := m.InsertBefore
	if at > m.RangeStart {
		at -= m.RangeLength
	}
	layout := slices.Insert(rest, at, block...)

	albums := make([]Album, 0, len(c.Albums))
	remap := make([]int, len(layout))
	for pos, idx := range layout {
		if idx < 0 {
			remap[pos] = -1
			continue
		}
		if pos == 0 || layout[pos-1] != idx {
			a := c.Albums[idx]
			a.Position = len(albums)
			a.Start = pos
			albums = append(albums, a)
		}
		remap[pos] = len(albums) - 1
	}

	c.Albums = albums
	c.layout = remap
}

// PlaybackOrder returns the albums in the order they should be queued.
//
// Without shuffle the collection order is kept, rotated so that startAlbumID comes first.
// With shuffle the albums are shuffled and startAlbumID, when given, is moved to the front.
func (c *Collection) PlaybackOrder(startAlbumID string, shuffle bool, rng *rand.Rand) ([]Album, error) {
	if len(c.Albums) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrEmptyCollection, c.Name)
	}

	start := 0
	if startAlbumID != "" {
		a, ok := c.Album(startAlbumID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", shared.ErrAlbumNotFound, startAlbumID)
		}
		start = a.Position
	}

	if !shuffle {
		return append(slices.Clone(c.Albums[start:]), c.Albums[:start]...), nil
	}

	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	order := slices.Clone(c.Albums)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	if startAlbumID != "" {
		i := slices.IndexFunc(order, func(a Album) bool { return a.Position == start })
		order[0], order[i] = order[i], order[0]
	}
	return order, nil
}

// TrackIDs flattens the tracks of albums in order.
func TrackIDs(albums []Album) []string {
	var ids []string
	for _, a := range albums {
		for _, t := range a.Tracks {
			ids = append(ids, t.ID)
		}
	}
	return ids
}
