// Package services defines the [Service] interface for music streaming providers and implements it for Spotify.
//
// # Service Interface
//
// Providers implement a common abstraction so that track validation and graph ingestion do not depend on a
// specific catalog. [Enricher] is the optional extension used to pull audio features and artist genres.
//
// # Spotify Implementation
//
// [SpotifyService] authenticates with a static access token, an authorization code exchange or the
// client credentials grant. The [oauth2.Client] refreshes expired tokens where a refresh token exists.
//
// Every request waits on a [rate.Limiter] and runs inside a circuit breaker. Five consecutive failures
// (transport errors, 429 and 5xx responses) open the circuit; other 4xx responses do not count.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : Authenticate() not called
//   - [shared.ErrTokenExpired] : OAuth token expired, reauthorization needed
//   - [shared.ErrAPIRequest] : HTTP request failed
//   - [shared.ErrServiceUnavailable] : provider failing or circuit open
//   - [shared.ErrMalformedResponse] : response body could not be decoded
//   - [shared.ErrPlaylistNotFound] : Playlist ID not found
//
// # API Mappings
//
// Search and recommendation results map to [models.Candidate] with the track URI as external id,
// artist names joined by ", " and the first album image as artwork.
package services
