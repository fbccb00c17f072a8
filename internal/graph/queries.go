package graph

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/shared"
)

const (
	tasteReps         = 6
	tasteGenres       = 8
	tasteVibes        = 5
	audioProfileSongs = 20
)

// sortedEdges returns the node's outgoing edges by weight descending, keeping insertion order on ties.
func (s *Store) sortedEdges(ctx context.Context, nodeID string) []models.Edge {
	edges, err := s.backend.OutgoingEdges(ctx, nodeID)
	if err != nil {
		s.logger.Error("failed to read outgoing edges", "id", nodeID, "error", err)
		return nil
	}
	slices.SortStableFunc(edges, func(a, b models.Edge) int {
		return cmp.Compare(b.Weight, a.Weight)
	})
	return edges
}

// GetNeighbors returns up to limit outgoing neighbors by edge weight descending. limit <= 0 means all.
func (s *Store) GetNeighbors(ctx context.Context, nodeID string, limit int) []models.Neighbor {
	var out []models.Neighbor
	for _, e := range s.sortedEdges(ctx, nodeID) {
		if limit > 0 && len(out) >= limit {
			break
		}
		target := s.GetNode(ctx, e.Target)
		if target == nil {
			continue
		}
		out = append(out, models.Neighbor{
			NodeID:     target.ID,
			Type:       target.Type,
			Name:       target.Name,
			Artist:     target.Artist(),
			ExternalID: target.ExternalID,
			EdgeType:   e.Type,
			Weight:     e.Weight,
		})
	}
	return out
}

// GetNextSuggested picks the song to play after nodeID.
//
// Candidates are SONG targets of outgoing edges, not played today, whose node id or external id is
// not in exclude. The candidate behind the heaviest edge wins. Returns nil when none qualify.
func (s *Store) GetNextSuggested(ctx context.Context, nodeID string, exclude []string) *models.Node {
	today := shared.StartOfDay(s.now())
	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	for _, e := range s.sortedEdges(ctx, nodeID) {
		if _, ok := excluded[e.Target]; ok {
			continue
		}
		n := s.GetNode(ctx, e.Target)
		if n == nil || n.Type != models.NodeSong || !n.PlayedBefore(today) {
			continue
		}
		if _, ok := excluded[n.ExternalID]; ok && n.ExternalID != "" {
			continue
		}
		return n
	}
	return nil
}

// songsByPlays returns SONG nodes by play count descending, keeping insertion order on ties.
func (s *Store) songsByPlays(ctx context.Context) []*models.Node {
	songs, err := s.backend.NodesByType(ctx, models.NodeSong)
	if err != nil {
		s.logger.Error("failed to list songs", "error", err)
		return nil
	}
	slices.SortStableFunc(songs, func(a, b *models.Node) int {
		return cmp.Compare(b.PlayCount, a.PlayCount)
	})
	return songs
}

// GetClusterRepresentatives selects up to limit top-played songs, preferring one per artist.
//
// The first pass takes the most played song, then each following song whose artist differs from
// every accepted one. If that leaves the result short, the remaining songs fill it in order.
func (s *Store) GetClusterRepresentatives(ctx context.Context, limit int) []*models.Node {
	songs := s.songsByPlays(ctx)
	if len(songs) == 0 || limit <= 0 {
		return nil
	}

	picked := []*models.Node{songs[0]}
	taken := map[int]bool{0: true}
	for i := 1; i < len(songs) && len(picked) < limit; i++ {
		if !artistTaken(picked, songs[i].Artist()) {
			picked = append(picked, songs[i])
			taken[i] = true
		}
	}

	for i := 1; i < len(songs) && len(picked) < limit; i++ {
		if !taken[i] {
			picked = append(picked, songs[i])
		}
	}
	return picked
}

func artistTaken(picked []*models.Node, artist string) bool {
	for _, n := range picked {
		if strings.EqualFold(n.Artist(), artist) {
			return true
		}
	}
	return false
}

// GetTopGenres groups HAS_GENRE edges by genre, ordered by total weight descending.
func (s *Store) GetTopGenres(ctx context.Context, limit int) []models.GenreStat {
	edges, err := s.backend.EdgesByType(ctx, models.EdgeHasGenre)
	if err != nil {
		s.logger.Error("failed to read genre edges", "error", err)
		return nil
	}

	type agg struct {
		weight float64
		songs  map[string]struct{}
	}
	var order []string
	byGenre := make(map[string]*agg)
	for _, e := range edges {
		a, ok := byGenre[e.Target]
		if !ok {
			a = &agg{songs: make(map[string]struct{})}
			byGenre[e.Target] = a
			order = append(order, e.Target)
		}
		a.weight += e.Weight
		a.songs[e.Source] = struct{}{}
	}

	stats := make([]models.GenreStat, 0, len(order))
	for _, id := range order {
		g := s.GetNode(ctx, id)
		if g == nil || g.Type != models.NodeGenre {
			continue
		}
		a := byGenre[id]
		stats = append(stats, models.GenreStat{Name: g.Name, SongCount: len(a.songs), TotalWeight: a.weight})
	}

	slices.SortStableFunc(stats, func(a, b models.GenreStat) int {
		return cmp.Compare(b.TotalWeight, a.TotalWeight)
	})
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats
}

// GetSongsByGenres returns songs linked by HAS_GENRE to any of the named genres, scored by summed
// edge weight over the matching genres. Songs whose external id is in excludeExternalIDs are skipped.
func (s *Store) GetSongsByGenres(ctx context.Context, names []string, limit int, excludeExternalIDs []string) []*models.Node {
	if len(names) == 0 {
		return nil
	}

	genres, err := s.backend.NodesByType(ctx, models.NodeGenre)
	if err != nil {
		s.logger.Error("failed to list genres", "error", err)
		return nil
	}
	wanted := make(map[string]struct{})
	for _, g := range genres {
		for _, name := range names {
			if strings.EqualFold(g.Name, strings.TrimSpace(name)) {
				wanted[g.ID] = struct{}{}
			}
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	edges, err := s.backend.EdgesByType(ctx, models.EdgeHasGenre)
	if err != nil {
		s.logger.Error("failed to read genre edges", "error", err)
		return nil
	}

	var order []string
	scores := make(map[string]float64)
	for _, e := range edges {
		if _, ok := wanted[e.Target]; !ok {
			continue
		}
		if _, ok := scores[e.Source]; !ok {
			order = append(order, e.Source)
		}
		scores[e.Source] += e.Weight
	}

	excluded := make(map[string]struct{}, len(excludeExternalIDs))
	for _, id := range excludeExternalIDs {
		excluded[id] = struct{}{}
	}

	var songs []*models.Node
	for _, id := range order {
		n := s.GetNode(ctx, id)
		if n == nil || n.Type != models.NodeSong {
			continue
		}
		if _, skip := excluded[n.ExternalID]; skip && n.ExternalID != "" {
			continue
		}
		songs = append(songs, n)
	}

	slices.SortStableFunc(songs, func(a, b *models.Node) int {
		return cmp.Compare(scores[b.ID], scores[a.ID])
	})
	if limit > 0 && len(songs) > limit {
		songs = songs[:limit]
	}
	return songs
}

// GetTasteProfile summarizes listening history for prompt context.
func (s *Store) GetTasteProfile(ctx context.Context) models.TasteProfile {
	return models.TasteProfile{
		ClusterReps:  s.GetClusterRepresentatives(ctx, tasteReps),
		TopGenres:    s.GetTopGenres(ctx, tasteGenres),
		RecentVibes:  s.recentVibes(ctx, tasteVibes),
		AudioProfile: s.audioProfile(ctx),
	}
}

func (s *Store) recentVibes(ctx context.Context, limit int) []string {
	vibes, err := s.backend.NodesByType(ctx, models.NodeVibe)
	if err != nil {
		s.logger.Error("failed to list vibes", "error", err)
		return nil
	}

	vibes = slices.DeleteFunc(vibes, func(n *models.Node) bool { return n.LastPlayedAt.IsZero() })
	slices.SortStableFunc(vibes, func(a, b *models.Node) int {
		return b.LastPlayedAt.Compare(a.LastPlayedAt)
	})

	var names []string
	for _, v := range vibes {
		if len(names) >= limit {
			break
		}
		names = append(names, v.Name)
	}
	return names
}

// audioProfile averages energy, valence and danceability over the most played songs carrying features.
func (s *Store) audioProfile(ctx context.Context) *models.AudioFeatures {
	var (
		sum   models.AudioFeatures
		count int
	)
	for _, n := range s.songsByPlays(ctx) {
		if count >= audioProfileSongs {
			break
		}
		f := n.Attributes.Features
		if f == nil {
			continue
		}
		sum.Energy += f.Energy
		sum.Valence += f.Valence
		sum.Danceability += f.Danceability
		count++
	}
	if count == 0 {
		return nil
	}

	c := float64(count)
	return &models.AudioFeatures{Energy: sum.Energy / c, Valence: sum.Valence / c, Danceability: sum.Danceability / c}
}

// FindSong resolves a song by external id, falling back to a case-insensitive title (and artist, when given) match.
func (s *Store) FindSong(ctx context.Context, externalID, title, artist string) *models.Node {
	if externalID != "" {
		if n := s.findNode(ctx, models.NodeSong, "", externalID); n != nil {
			return n
		}
	}
	if title == "" {
		return nil
	}

	songs, err := s.backend.NodesByType(ctx, models.NodeSong)
	if err != nil {
		s.logger.Error("failed to list songs", "error", err)
		return nil
	}
	for _, n := range songs {
		if !strings.EqualFold(n.Name, strings.TrimSpace(title)) {
			continue
		}
		if artist == "" || strings.EqualFold(n.Artist(), strings.TrimSpace(artist)) {
			return n
		}
	}
	return nil
}
