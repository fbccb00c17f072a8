package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/vibes/internal/models"
)

// feature dimensions used for clustering, with the three levels each is binned into
var (
	featureDims   = []string{"energy", "valence", "danceability"}
	featureLevels = []string{"low", "mid", "high"}
)

// level bins v into 0 (<0.33), 1 (<0.66) or 2.
func level(v float64) int {
	switch {
	case v < 0.33:
		return 0
	case v < 0.66:
		return 1
	default:
		return 2
	}
}

// ClusterBucket maps audio features to one of 27 buckets by binning energy, valence and danceability.
func ClusterBucket(f *models.AudioFeatures) int {
	return level(f.Energy)*9 + level(f.Valence)*3 + level(f.Danceability)
}

func featureValues(f *models.AudioFeatures) []float64 {
	return []float64{f.Energy, f.Valence, f.Danceability}
}

func genreName(g string) string {
	return strings.ToLower(strings.TrimSpace(g))
}

// Ingest builds or extends the graph from an ordered list of songs and returns the song nodes in order.
// Songs that could not be stored are nil in the result.
//
// Edges: song to artist (RELATED), artist to genre (IN_GENRE), song to genre (HAS_GENRE), song to
// audio-feature level (HAS_FEATURE), consecutive songs by one artist (SAME_ARTIST), consecutive songs
// in the same feature bucket (SIMILAR chain), and consecutive visited songs (NEXT).
func (s *Store) Ingest(ctx context.Context, songs []models.SessionSong) []*models.Node {
	nodes := s.ingest(ctx, songs)
	s.InvalidateCache()
	s.Sync(ctx)
	return nodes
}

func (s *Store) ingest(ctx context.Context, songs []models.SessionSong) []*models.Node {
	nodes := make([]*models.Node, len(songs))
	buckets := make(map[int][]string)
	var (
		bucketOrder []int
		prev        *models.Node
		prevVisited *models.Node
	)

	for i, song := range songs {
		n := s.ingestSong(ctx, song)
		nodes[i] = n
		if n == nil {
			continue
		}

		if prev != nil && song.Artist != "" && strings.EqualFold(prev.Artist(), song.Artist) {
			s.Connect(ctx, prev.ID, n.ID, models.EdgeSameArtist, 1)
		}
		prev = n

		if song.Visited {
			if prevVisited != nil && prevVisited.ID != n.ID {
				s.Connect(ctx, prevVisited.ID, n.ID, models.EdgeNext, 1)
			}
			prevVisited = n
		}

		if f := n.Attributes.Features; f != nil {
			b := ClusterBucket(f)
			if _, ok := buckets[b]; !ok {
				bucketOrder = append(bucketOrder, b)
			}
			buckets[b] = append(buckets[b], n.ID)
		}
	}

	for _, b := range bucketOrder {
		members := buckets[b]
		for i := 1; i < len(members); i++ {
			if members[i-1] != members[i] {
				s.Connect(ctx, members[i-1], members[i], models.EdgeSimilar, 1)
			}
		}
	}

	s.logger.Debug("ingested songs", "count", len(songs), "buckets", len(bucketOrder))
	return nodes
}

func (s *Store) ingestSong(ctx context.Context, song models.SessionSong) *models.Node {
	if strings.TrimSpace(song.Name) == "" {
		return nil
	}

	genres := make([]string, 0, len(song.Genres))
	for _, g := range song.Genres {
		if name := genreName(g); name != "" {
			genres = append(genres, name)
		}
	}

	attrs := models.Attributes{
		Artist:     song.Artist,
		Album:      song.Album,
		ArtworkURL: song.ArtworkURL,
		Popularity: song.Popularity,
		Genres:     genres,
		Features:   song.Features,
	}

	n := s.GetOrCreateNode(ctx, models.NodeSong, song.Name, song.ExternalID, attrs)
	if n == nil {
		return nil
	}
	if lateData(n.Attributes, attrs) {
		if merged := s.UpdateAttributes(ctx, n.ID, attrs); merged != nil {
			n = merged
		}
	}

	var artist *models.Node
	if song.Artist != "" {
		artist = s.GetOrCreateNode(ctx, models.NodeArtist, song.Artist, "", models.Attributes{Genres: genres})
		if artist != nil {
			s.Connect(ctx, n.ID, artist.ID, models.EdgeRelated, 1)
		}
	}

	for _, name := range genres {
		g := s.GetOrCreateNode(ctx, models.NodeGenre, name, "", models.Attributes{})
		if g == nil {
			continue
		}
		s.Connect(ctx, n.ID, g.ID, models.EdgeHasGenre, 1)
		if artist != nil {
			s.Connect(ctx, artist.ID, g.ID, models.EdgeInGenre, 1)
		}
	}

	if f := n.Attributes.Features; f != nil {
		for i, v := range featureValues(f) {
			name := fmt.Sprintf("%s:%s", featureDims[i], featureLevels[level(v)])
			fn := s.GetOrCreateNode(ctx, models.NodeAudioFeature, name, "", models.Attributes{})
			if fn != nil {
				s.Connect(ctx, n.ID, fn.ID, models.EdgeHasFeature, 1)
			}
		}
	}

	return n
}

// lateData reports whether incoming carries anything existing lacks.
func lateData(existing, incoming models.Attributes) bool {
	return (existing.Features == nil && incoming.Features != nil) ||
		(len(existing.Genres) == 0 && len(incoming.Genres) > 0) ||
		(existing.Album == "" && incoming.Album != "") ||
		(existing.ArtworkURL == "" && incoming.ArtworkURL != "") ||
		(existing.Artist == "" && incoming.Artist != "")
}

// CommitSession ingests a listening session and files its visited songs under a VIBE node.
//
// Each visited song is linked to the vibe with RELATED in both directions and HAS_VIBE from the song.
// The vibe is marked as played. Returns the vibe node, or nil when vibeName is empty or storage failed.
func (s *Store) CommitSession(ctx context.Context, vibeName string, songs []models.SessionSong) *models.Node {
	defer func() {
		s.InvalidateCache()
		s.Sync(ctx)
	}()

	nodes := s.ingest(ctx, songs)

	vibeName = strings.TrimSpace(vibeName)
	if vibeName == "" {
		return nil
	}

	vibe := s.GetOrCreateNode(ctx, models.NodeVibe, vibeName, "", models.Attributes{})
	if vibe == nil {
		return nil
	}

	for i, n := range nodes {
		if n == nil || !songs[i].Visited {
			continue
		}
		s.Connect(ctx, n.ID, vibe.ID, models.EdgeRelated, 1)
		s.Connect(ctx, vibe.ID, n.ID, models.EdgeRelated, 1)
		s.Connect(ctx, n.ID, vibe.ID, models.EdgeHasVibe, 1)
	}

	if played := s.RecordPlay(ctx, vibe.ID); played != nil {
		vibe = played
	}

	s.logger.Info("session committed", "vibe", vibeName, "songs", len(songs))
	return vibe
}
