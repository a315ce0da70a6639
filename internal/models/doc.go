// Package models defines the data transfer objects exchanged between the Spotify client, the
// persistence layer and the web handlers.
//
// A [Collection] is a playlist viewed as an ordered list of [Album] entries. It is rebuilt from
// the playlist's items on every request by grouping consecutive tracks that share an album
// ([NewCollection]); nothing about a collection is stored locally.
//
// Album order changes are computed here rather than remotely: [Collection.Move] translates
// "move album X before album Y" into the range arguments of a single playlist reorder call and
// applies the same move to the collection. [Collection.PlaybackOrder] decides the album order
// used to fill a playback playlist.
//
// [User] is the only persisted entity and carries the id of the user's current playback playlist.
package models
