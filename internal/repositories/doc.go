// Package repositories implements SQLite persistence for the little state the application keeps.
//
// Key Implementations:
//   - [SessionRepository] : server-side web sessions addressed by the id signed into the session cookie
//   - [UserRepository] : Spotify accounts that have logged in, and the id of each user's current playback playlist
//
// Collections themselves are never stored; they are loaded from Spotify on every request.
// All timestamps are written in UTC so that expiry comparisons in SQL are consistent.
package repositories
