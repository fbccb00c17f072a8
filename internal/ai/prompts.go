package ai

import (
	"fmt"
	"strings"

	"github.com/desertthunder/vibes/internal/models"
)

const systemPrompt = `You are a music curator with deep catalog knowledge.
Only suggest real, released recordings that can be found on Spotify.
Answer with JSON only. Do not wrap the answer in prose.`

// maxContextItems bounds every list rendered into a prompt.
const maxContextItems = 25

// ListeningContext is the history shared by every prompt.
type ListeningContext struct {
	History    []string
	Favorites  []models.FavoriteTrack
	Exclusions []string
	Taste      *models.TasteProfile
}

// VibeOptionsRequest asks for browseable vibe options.
type VibeOptionsRequest struct {
	Instruction string
	Count       int
	ListeningContext
}

// RescueRequest asks for a new direction after a run of skips.
type RescueRequest struct {
	RecentSkips []models.PlayedTrack
	Count       int
	ListeningContext
}

// ExpandRequest asks for discoveries that extend a seed track.
type ExpandRequest struct {
	Seed      models.PlayedTrack
	Mood      string
	Neighbors []models.Neighbor
	Genres    []models.GenreStat
	Count     int
	ListeningContext
}

type promptBuilder struct {
	strings.Builder
}

func (b *promptBuilder) line(format string, args ...any) {
	fmt.Fprintf(&b.Builder, format, args...)
	b.WriteByte('\n')
}

func (b *promptBuilder) list(heading string, items []string) {
	if len(items) == 0 {
		return
	}
	if len(items) > maxContextItems {
		items = items[:maxContextItems]
	}
	b.line("%s:", heading)
	for _, item := range items {
		b.line("- %s", item)
	}
}

func (b *promptBuilder) context(c ListeningContext) {
	b.list("Recently played", c.History)

	favorites := make([]string, 0, len(c.Favorites))
	for _, f := range c.Favorites {
		favorites = append(favorites, fmt.Sprintf("%s - %s", f.Title, f.Artist))
	}
	b.list("Favorites", favorites)

	if t := c.Taste; t != nil {
		reps := make([]string, 0, len(t.ClusterReps))
		for _, n := range t.ClusterReps {
			reps = append(reps, fmt.Sprintf("%s - %s", n.Name, n.Artist()))
		}
		b.list("Representative tracks from different corners of their taste", reps)

		genres := make([]string, 0, len(t.TopGenres))
		for _, g := range t.TopGenres {
			genres = append(genres, g.Name)
		}
		if len(genres) > 0 {
			b.line("Top genres: %s", strings.Join(genres, ", "))
		}
		if len(t.RecentVibes) > 0 {
			b.line("Recent vibes: %s", strings.Join(t.RecentVibes, ", "))
		}
		if a := t.AudioProfile; a != nil {
			b.line("Typical audio profile: energy %.2f, valence %.2f, danceability %.2f", a.Energy, a.Valence, a.Danceability)
		}
	}

	b.list("Do NOT suggest any of these (already played or disliked)", c.Exclusions)
}

const trackShape = `{"title": "...", "artist": "...", "reason": "..."}`

// VibeOptionsPrompt builds the prompt for [Suggester.GenerateVibeOptions].
func VibeOptionsPrompt(req VibeOptionsRequest) string {
	var b promptBuilder
	b.line("Suggest %d distinct listening vibes for this listener right now.", req.Count)
	if req.Instruction != "" {
		b.line("The listener asked for: %s", req.Instruction)
	}
	b.context(req.ListeningContext)
	b.line("Each vibe needs a short evocative title, a one sentence description and one seed track that opens it.")
	b.line(`Respond as {"options": [{"title": "...", "description": "...", "reason": "...", "track": %s}]}`, trackShape)
	return b.String()
}

// RescuePrompt builds the prompt for [Suggester.GenerateRescueVibe].
func RescuePrompt(req RescueRequest) string {
	var b promptBuilder
	b.line("The listener keeps skipping tracks. Take the session in a new direction with %d tracks.", req.Count)
	skips := make([]string, 0, len(req.RecentSkips))
	for _, s := range req.RecentSkips {
		skips = append(skips, fmt.Sprintf("%s - %s", s.Title, s.Artist))
	}
	b.list("Recently skipped", skips)
	b.context(req.ListeningContext)
	b.line(`Respond as {"vibe": "name of the new direction", "reasoning": "...", "tracks": [%s]}`, trackShape)
	return b.String()
}

// ExpandPrompt builds the prompt for [Suggester.ExpandVibe].
func ExpandPrompt(req ExpandRequest) string {
	var b promptBuilder
	b.line("Extend the vibe started by %q by %s with %d discoveries the listener has not heard.", req.Seed.Title, req.Seed.Artist, req.Count)
	if req.Mood != "" {
		b.line("Current mood: %s", req.Mood)
	}

	neighbors := make([]string, 0, len(req.Neighbors))
	for _, n := range req.Neighbors {
		if n.Artist != "" {
			neighbors = append(neighbors, fmt.Sprintf("%s - %s", n.Name, n.Artist))
		} else {
			neighbors = append(neighbors, fmt.Sprintf("%s (%s)", n.Name, strings.ToLower(string(n.Type))))
		}
	}
	b.list("Connected in their listening graph", neighbors)

	genres := make([]string, 0, len(req.Genres))
	for _, g := range req.Genres {
		genres = append(genres, g.Name)
	}
	if len(genres) > 0 {
		b.line("Genres they gravitate to: %s", strings.Join(genres, ", "))
	}

	b.context(req.ListeningContext)
	b.line(`Respond as {"mood": "...", "reasoning": "...", "tracks": [%s]}`, trackShape)
	return b.String()
}

// BackfillPrompt asks for replacements for suggestions that could not be found.
func BackfillPrompt(count int, failed, accepted []string) string {
	var b promptBuilder
	b.line("Some suggested tracks could not be found on Spotify. Suggest %d replacements in the same spirit.", count)
	b.list("Could not be found", failed)
	b.list("Already chosen (do not repeat)", accepted)
	b.line(`Respond as {"tracks": [%s]}`, trackShape)
	return b.String()
}
