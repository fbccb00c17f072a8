// Spotify API implementation of [Service]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/shared"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	spotifyTrackURIPrefix = "spotify:track:"
	// the recommendations endpoint accepts at most five seeds across tracks, artists and genres
	maxRecommendationSeeds = 5
	defaultSearchLimit     = 10
)

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	Popularity int             `json:"popularity"`
	URI        string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
	URI    string   `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
}

// SpotifyAudioFeatures is the audio analysis summary of a track.
type SpotifyAudioFeatures struct {
	ID               string  `json:"id"`
	Energy           float64 `json:"energy"`
	Valence          float64 `json:"valence"`
	Danceability     float64 `json:"danceability"`
	Tempo            float64 `json:"tempo"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
}

type owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyPlaylistTrack represents a track within a playlist context.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPaginatedPlaylistTracks represents a page of playlist items.
type SpotifyPaginatedPlaylistTracks struct {
	Items []SpotifyPlaylistTrack `json:"items"`
	Total int                    `json:"total"`
	Next  *string                `json:"next"`
}

// SpotifyPlaylist represents a Spotify playlist.
type SpotifyPlaylist struct {
	ID          string                         `json:"id"`
	Name        string                         `json:"name"`
	Description string                         `json:"description"`
	Owner       owner                          `json:"owner"`
	Public      bool                           `json:"public"`
	Tracks      SpotifyPaginatedPlaylistTracks `json:"tracks"`
	URI         string                         `json:"uri"`
}

type simplePlaylistTracks struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Owner       owner                `json:"owner"`
	Public      bool                 `json:"public"`
	Tracks      simplePlaylistTracks `json:"tracks"`
}

// SpotifyPaginatedPlaylists represents a paginated response of playlists.
type SpotifyPaginatedPlaylists struct {
	Items  []SpotifySimplePlaylist `json:"items"`
	Total  int                     `json:"total"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
	Next   *string                 `json:"next"`
}

// errClientStatus marks 4xx responses other than 429; they do not trip the circuit breaker.
var (
	errClientStatus   = errors.New("client error status")
	errNotFoundStatus = fmt.Errorf("%w: not found", errClientStatus)
)

// SpotifyService implements the Service interface for Spotify API interactions.
// Uses [oauth2] for authentication, a [rate.Limiter] for pacing and a circuit breaker around every request.
type SpotifyService struct {
	config      *oauth2.Config
	token       *oauth2.Token
	httpClient  *http.Client
	credentials map[string]string

	baseURL string
	market  string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *log.Logger
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
//
// rps limits outgoing requests per second; zero or less disables limiting.
func NewSpotifyService(credentials map[string]string, rps float64, logger *log.Logger) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret := credentials["client_secret"]
	accessToken := credentials["access_token"]
	if clientSecret == "" && accessToken == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	tokenURL := credentials["token_url"]
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}

	baseURL := credentials["base_url"]
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}

	if logger == nil {
		logger = shared.NewDiscardLogger()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}

	return &SpotifyService{
		config:      config,
		credentials: credentials,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		market:      credentials["market"],
		limiter:     limiter,
		breaker:     shared.NewCircuitBreaker[[]byte]("spotify", logger, errClientStatus),
		logger:      logger,
	}, nil
}

// Authenticate prepares the HTTP client.
//
// An "access_token" is used as-is; otherwise the client credentials grant is used, which is enough
// for search, recommendations, public playlists and audio features.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken, ok := credentials["access_token"]; ok && accessToken != "" {
		s.token = &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
		s.httpClient = s.config.Client(ctx, s.token)
		return nil
	}

	if s.config.ClientSecret == "" {
		return fmt.Errorf("%w: missing access_token or client_secret", shared.ErrMissingCredentials)
	}

	cc := &clientcredentials.Config{
		ClientID:     s.config.ClientID,
		ClientSecret: s.config.ClientSecret,
		TokenURL:     s.config.Endpoint.TokenURL,
	}
	token, err := cc.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: client credentials grant failed: %v", shared.ErrAuthFailed, err)
	}
	s.token = token
	s.httpClient = oauth2.NewClient(ctx, cc.TokenSource(ctx))
	return nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// doRequest performs an authenticated GET against the Spotify API and decodes the response into result.
func (s *SpotifyService) doRequest(ctx context.Context, endpoint string, result any) error {
	if s.httpClient == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := s.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: %w", shared.ErrTokenExpired, errClientStatus)
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s: %w", shared.ErrAPIRequest, endpoint, errNotFoundStatus)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: spotify status %d", shared.ErrServiceUnavailable, resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, fmt.Errorf("%w: spotify status %d: %w", shared.ErrAPIRequest, resp.StatusCode, errClientStatus)
		}
		return data, nil
	})
	if err != nil {
		return shared.BreakerError(err)
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrMalformedResponse, err)
		}
	}
	return nil
}

// Search runs a search query of the given kind (usually "track") and returns track candidates.
func (s *SpotifyService) Search(ctx context.Context, query, kind string) ([]models.Candidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", shared.ErrInvalidInput)
	}
	if kind == "" {
		kind = "track"
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", kind)
	params.Set("limit", fmt.Sprint(defaultSearchLimit))
	if s.market != "" {
		params.Set("market", s.market)
	}

	var response struct {
		Tracks struct {
			Items []SpotifyTrack `json:"items"`
		} `json:"tracks"`
	}
	if err := s.doRequest(ctx, "/search?"+params.Encode(), &response); err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, len(response.Tracks.Items))
	for _, t := range response.Tracks.Items {
		candidates = append(candidates, toCandidate(t))
	}
	return candidates, nil
}

// Recommendations returns up to count tracks seeded by track ids or URIs and genres.
// Track seeds take precedence; the total is capped at five seeds.
func (s *SpotifyService) Recommendations(ctx context.Context, seedIDs, seedGenres []string, count int) ([]models.Candidate, error) {
	var tracks, genres []string
	for _, id := range seedIDs {
		if len(tracks) >= maxRecommendationSeeds {
			break
		}
		if id = TrackID(id); id != "" {
			tracks = append(tracks, id)
		}
	}
	for _, g := range seedGenres {
		if len(tracks)+len(genres) >= maxRecommendationSeeds {
			break
		}
		if g = strings.TrimSpace(strings.ToLower(g)); g != "" {
			genres = append(genres, g)
		}
	}
	if len(tracks)+len(genres) == 0 {
		return nil, fmt.Errorf("%w: at least one seed is required", shared.ErrInvalidInput)
	}
	if count <= 0 {
		count = 20
	}

	params := url.Values{}
	params.Set("limit", fmt.Sprint(min(count, 100)))
	if len(tracks) > 0 {
		params.Set("seed_tracks", strings.Join(tracks, ","))
	}
	if len(genres) > 0 {
		params.Set("seed_genres", strings.Join(genres, ","))
	}
	if s.market != "" {
		params.Set("market", s.market)
	}

	var response struct {
		Tracks []SpotifyTrack `json:"tracks"`
	}
	if err := s.doRequest(ctx, "/recommendations?"+params.Encode(), &response); err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, len(response.Tracks))
	for _, t := range response.Tracks {
		candidates = append(candidates, toCandidate(t))
	}
	return candidates, nil
}

// AudioFeatures fetches audio features for up to 100 track ids or URIs, keyed by track id.
// Tracks without analysis are absent from the result.
func (s *SpotifyService) AudioFeatures(ctx context.Context, ids []string) (map[string]*models.AudioFeatures, error) {
	if len(ids) == 0 {
		return map[string]*models.AudioFeatures{}, nil
	}
	if len(ids) > 100 {
		return nil, fmt.Errorf("%w: maximum 100 track IDs allowed", shared.ErrInvalidInput)
	}

	trackIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		trackIDs = append(trackIDs, TrackID(id))
	}

	var response struct {
		AudioFeatures []*SpotifyAudioFeatures `json:"audio_features"`
	}
	endpoint := "/audio-features?ids=" + url.QueryEscape(strings.Join(trackIDs, ","))
	if err := s.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	features := make(map[string]*models.AudioFeatures, len(response.AudioFeatures))
	for _, f := range response.AudioFeatures {
		if f == nil {
			continue
		}
		features[f.ID] = &models.AudioFeatures{
			Energy:           f.Energy,
			Valence:          f.Valence,
			Danceability:     f.Danceability,
			Tempo:            f.Tempo,
			Acousticness:     f.Acousticness,
			Instrumentalness: f.Instrumentalness,
		}
	}
	return features, nil
}

// ArtistGenres fetches genres for up to 50 artist ids, keyed by artist id.
func (s *SpotifyService) ArtistGenres(ctx context.Context, artistIDs []string) (map[string][]string, error) {
	if len(artistIDs) == 0 {
		return map[string][]string{}, nil
	}
	if len(artistIDs) > 50 {
		return nil, fmt.Errorf("%w: maximum 50 artist IDs allowed", shared.ErrInvalidInput)
	}

	var response struct {
		Artists []*SpotifyArtist `json:"artists"`
	}
	endpoint := "/artists?ids=" + url.QueryEscape(strings.Join(artistIDs, ","))
	if err := s.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	genres := make(map[string][]string, len(response.Artists))
	for _, a := range response.Artists {
		if a != nil {
			genres[a.ID] = a.Genres
		}
	}
	return genres, nil
}

// UserPlaylists retrieves the current user's playlists with pagination.
func (s *SpotifyService) UserPlaylists(ctx context.Context, limit, offset int) (*SpotifyPaginatedPlaylists, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", limit, offset)

	var response SpotifyPaginatedPlaylists
	if err := s.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// Playlist retrieves a playlist by ID, including the first page of its tracks.
func (s *SpotifyService) Playlist(ctx context.Context, playlistID string) (*SpotifyPlaylist, error) {
	endpoint := fmt.Sprintf("/playlists/%s", url.PathEscape(playlistID))

	var playlist SpotifyPlaylist
	if err := s.doRequest(ctx, endpoint, &playlist); err != nil {
		if errors.Is(err, errNotFoundStatus) {
			return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
		}
		return nil, err
	}

	return &playlist, nil
}

// GetPlaylists retrieves all playlists for the authenticated user.
func (s *SpotifyService) GetPlaylists(ctx context.Context) ([]Playlist, error) {
	var allPlaylists []Playlist
	limit := 50
	offset := 0

	for {
		response, err := s.UserPlaylists(ctx, limit, offset)
		if err != nil {
			return nil, err
		}

		for _, sp := range response.Items {
			allPlaylists = append(allPlaylists, Playlist{
				ID:          sp.ID,
				Name:        sp.Name,
				Description: sp.Description,
				TrackCount:  sp.Tracks.Total,
				Public:      sp.Public,
			})
		}

		if response.Next == nil {
			break
		}
		offset += limit
	}

	return allPlaylists, nil
}

// GetPlaylist retrieves a specific playlist by ID.
func (s *SpotifyService) GetPlaylist(ctx context.Context, playlistID string) (*Playlist, error) {
	sp, err := s.Playlist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	return &Playlist{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		TrackCount:  sp.Tracks.Total,
		Public:      sp.Public,
	}, nil
}

// ExportPlaylist exports a playlist with all its tracks, following track pagination.
func (s *SpotifyService) ExportPlaylist(ctx context.Context, playlistID string) (*PlaylistExport, error) {
	sp, err := s.Playlist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	export := &PlaylistExport{
		Playlist: Playlist{
			ID:          sp.ID,
			Name:        sp.Name,
			Description: sp.Description,
			TrackCount:  sp.Tracks.Total,
			Public:      sp.Public,
		},
	}

	page := sp.Tracks
	for {
		for _, item := range page.Items {
			if item.Track == nil || item.Track.ID == "" {
				continue
			}
			export.Tracks = append(export.Tracks, toTrack(*item.Track))
		}

		if page.Next == nil || *page.Next == "" {
			break
		}
		endpoint := strings.TrimPrefix(*page.Next, s.baseURL)
		page = SpotifyPaginatedPlaylistTracks{}
		if err := s.doRequest(ctx, endpoint, &page); err != nil {
			return nil, err
		}
	}

	return export, nil
}

// TrackID strips the "spotify:track:" URI prefix.
func TrackID(idOrURI string) string {
	return strings.TrimPrefix(strings.TrimSpace(idOrURI), spotifyTrackURIPrefix)
}

// TrackURI builds a "spotify:track:" URI from an id; URIs pass through.
func TrackURI(idOrURI string) string {
	if strings.HasPrefix(idOrURI, spotifyTrackURIPrefix) || idOrURI == "" {
		return idOrURI
	}
	return spotifyTrackURIPrefix + idOrURI
}

func artworkURL(images []SpotifyImage) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}

func joinArtists(artists []SpotifyArtist) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

func toCandidate(t SpotifyTrack) models.Candidate {
	uri := t.URI
	if uri == "" {
		uri = TrackURI(t.ID)
	}
	return models.Candidate{
		Title:      t.Name,
		Artist:     joinArtists(t.Artists),
		ExternalID: uri,
		Popularity: t.Popularity,
		ArtworkURL: artworkURL(t.Album.Images),
	}
}

func toTrack(t SpotifyTrack) Track {
	track := Track{
		ID:         t.ID,
		URI:        t.URI,
		Title:      t.Name,
		Album:      t.Album.Name,
		Duration:   t.DurationMS / 1000,
		Popularity: t.Popularity,
		ArtworkURL: artworkURL(t.Album.Images),
	}
	if track.URI == "" {
		track.URI = TrackURI(t.ID)
	}
	if len(t.Artists) > 0 {
		track.Artist = t.Artists[0].Name
		track.ArtistID = t.Artists[0].ID
	}
	return track
}
