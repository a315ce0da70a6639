// Package web serves the album collections front-end.
//
// Routes:
//
//	GET      /                               home page; the user's playlists when logged in
//	GET      /collection/{playlist_id}       a playlist rendered as albums
//	POST     /collection/remove_album        form playlist_id, album_id           → {success, exception}
//	POST     /collection/get_devices                                              → {exception, devices}
//	POST     /collection/play_collection     form data={playlist_id, device_id, start_album_id, shuffle_albums} → {played, exception}
//	POST     /collection/reorder_collection  form data={playlist_id, moved_album_id, next_album_id}             → {success, exception}
//	GET/POST /user/login
//	POST     /user/logout
//	GET      /sp_auth_complete               OAuth2 redirect target
//	GET      /static/*
//
// Handlers return errors instead of writing failures themselves. The adapter in [App.handle] sorts them:
//   - [services.AuthRequiredError] : redirect to the Spotify authorization URL it carries
//   - [PageError] : flash the message and redirect to its fallback
//   - anything else : log, report and render the error page with a 500
//
// The JSON action endpoints never return such errors for ordinary failures. They fold the failure into
// the response body and answer 200 so the page script can show it inline; only authorization failures
// escape to the adapter.
package web
