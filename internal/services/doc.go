// Package services implements the Spotify side of the application on top of github.com/zmb3/spotify/v2.
//
// # Clients
//
// [SpotifyService] is the [Provider]. It owns the OAuth2 configuration and hands out two client variants:
//   - [SpotifyService.Public] : a client-credentials client that can only read public playlists
//   - [SpotifyService.UserClient] : a client bound to one user's token, implementing [UserClient]
//
// Both variants share a single retrying HTTP transport (hashicorp/go-retryablehttp) and a process-wide
// rate limiter, and every remote call is counted in the spotify_requests_total metric.
//
// # Authentication failures
//
// When Spotify answers 401 or the refresh token is rejected, the user client returns an
// [AuthRequiredError] carrying the authorization URL. The web layer converts it into a redirect.
// Every other failure is wrapped around [shared.ErrAPIRequest] or a more specific sentinel.
//
// # Token refresh
//
// Refreshed tokens are reported through [UserClientOpts.OnRefresh] so the caller can persist them.
package services
