package recommend

import (
	"cmp"
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vibes/internal/ai"
	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/persistence"
	"github.com/desertthunder/vibes/internal/shared"
	"github.com/desertthunder/vibes/internal/validation"
)

const (
	DefaultVibeOptionTarget = 8
	DefaultRescueTarget     = 10
	DefaultExpandTarget     = 10

	// SmartFallbackVibe labels results produced by the graph cascade.
	SmartFallbackVibe = "Genre Mix (Smart Fallback)"

	favoritesContext  = 10
	skipsContext      = 10
	expandNeighbors   = 20
	expandGenres      = 6
	maxNeighborItems  = 5
	cascadeGenres     = 10
	cascadeSeedGenres = 5
	maxGraphSeeds     = 2
	// spotify caps recommendation seeds across tracks and genres
	maxSeeds = 5
)

// Graph is the slice of the graph store the orchestrator reads and writes.
type Graph interface {
	GetTasteProfile(ctx context.Context) models.TasteProfile
	GetTopGenres(ctx context.Context, limit int) []models.GenreStat
	GetSongsByGenres(ctx context.Context, names []string, limit int, excludeExternalIDs []string) []*models.Node
	GetNeighbors(ctx context.Context, nodeID string, limit int) []models.Neighbor
	FindSong(ctx context.Context, externalID, title, artist string) *models.Node
	RecordPlay(ctx context.Context, nodeID string) *models.Node
	CommitSession(ctx context.Context, vibeName string, songs []models.SessionSong) *models.Node
}

// Suggester is the AI suggestion provider.
type Suggester interface {
	GenerateVibeOptions(ctx context.Context, req ai.VibeOptionsRequest) ([]models.VibeOption, error)
	GenerateRescueVibe(ctx context.Context, req ai.RescueRequest) (*models.Suggestions, error)
	ExpandVibe(ctx context.Context, req ai.ExpandRequest) (*models.Suggestions, error)
}

// Validator confirms suggestions against the search provider.
type Validator interface {
	Validate(ctx context.Context, req validation.Request) validation.Result
}

// Recommender seeds catalog recommendations from tracks and genres.
type Recommender interface {
	Recommendations(ctx context.Context, seedIDs, seedGenres []string, count int) ([]models.Candidate, error)
}

// History is the listening history collaborator.
type History interface {
	ExclusionSource
	Favorites(ctx context.Context, limit int) ([]models.FavoriteTrack, error)
	RecentSkips(ctx context.Context, limit int) ([]models.PlayedTrack, error)
	RecordPlay(ctx context.Context, ev persistence.PlayEvent) error
	SubmitFeedback(ctx context.Context, trackName, feedback string) error
	SetPreference(ctx context.Context, key, value string) error
}

// OrchestratorOpts holds the orchestrator's collaborators and tunables.
type OrchestratorOpts struct {
	Graph       Graph
	Suggester   Suggester
	Validator   Validator
	Recommender Recommender
	History     History
	Logger      *log.Logger

	VibeOptionTarget int
	RescueTarget     int
	ExpandTarget     int
	ExclusionTTL     time.Duration
}

type unavailableSuggester struct{}

func (unavailableSuggester) GenerateVibeOptions(context.Context, ai.VibeOptionsRequest) ([]models.VibeOption, error) {
	return nil, shared.ErrProviderUnavailable
}

func (unavailableSuggester) GenerateRescueVibe(context.Context, ai.RescueRequest) (*models.Suggestions, error) {
	return nil, shared.ErrProviderUnavailable
}

func (unavailableSuggester) ExpandVibe(context.Context, ai.ExpandRequest) (*models.Suggestions, error) {
	return nil, shared.ErrProviderUnavailable
}

type emptyValidator struct{}

func (emptyValidator) Validate(context.Context, validation.Request) validation.Result {
	return validation.Result{}
}

// Orchestrator sequences AI generation, graph fallbacks and validation into the user-facing entry points.
// Entry points never fail: provider errors degrade to the next cascade tier and the worst case is an empty result.
type Orchestrator struct {
	graph       Graph
	suggester   Suggester
	validator   Validator
	recommender Recommender
	history     History
	exclusions  *ExclusionCache
	logger      *log.Logger

	vibeOptionTarget int
	rescueTarget     int
	expandTarget     int

	shuffle func(n int, swap func(i, j int))
}

// NewOrchestrator creates an Orchestrator. A nil Suggester behaves as an unavailable provider and a nil
// Validator confirms nothing, so the entry points fall through to the graph.
func NewOrchestrator(opts OrchestratorOpts) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewDiscardLogger()
	}

	var suggester Suggester = unavailableSuggester{}
	if opts.Suggester != nil {
		suggester = opts.Suggester
	}
	var validator Validator = emptyValidator{}
	if opts.Validator != nil {
		validator = opts.Validator
	}

	return &Orchestrator{
		graph:            opts.Graph,
		suggester:        suggester,
		validator:        validator,
		recommender:      opts.Recommender,
		history:          opts.History,
		exclusions:       NewExclusionCache(opts.History, opts.ExclusionTTL, logger),
		logger:           logger,
		vibeOptionTarget: cmp.Or(opts.VibeOptionTarget, DefaultVibeOptionTarget),
		rescueTarget:     cmp.Or(opts.RescueTarget, DefaultRescueTarget),
		expandTarget:     cmp.Or(opts.ExpandTarget, DefaultExpandTarget),
		shuffle:          rand.Shuffle,
	}
}

// Exclusions exposes the exclusion cache.
func (o *Orchestrator) Exclusions() *ExclusionCache { return o.exclusions }

func (o *Orchestrator) favorites(ctx context.Context) []models.FavoriteTrack {
	favorites, err := o.history.Favorites(ctx, favoritesContext)
	if err != nil {
		o.logger.Warn("failed to read favorites", "error", err)
	}
	return favorites
}

func (o *Orchestrator) listeningContext(ctx context.Context, excl *ExclusionSet, taste *models.TasteProfile) ai.ListeningContext {
	return ai.ListeningContext{
		History:    excl.Played(),
		Favorites:  o.favorites(ctx),
		Exclusions: excl.Labels(),
		Taste:      taste,
	}
}

// VibeOptions asks for up to 16 vibe options and keeps those whose seed track validates,
// at most the vibe option target. Validated backfill seeds become options of their own.
func (o *Orchestrator) VibeOptions(ctx context.Context, instruction string) []models.VibeOption {
	excl := o.exclusions.Get(ctx)
	taste := o.graph.GetTasteProfile(ctx)

	options, err := o.suggester.GenerateVibeOptions(ctx, ai.VibeOptionsRequest{
		Instruction:      instruction,
		Count:            ai.MaxVibeOptions,
		ListeningContext: o.listeningContext(ctx, excl, &taste),
	})
	if err != nil {
		o.logger.Warn("vibe options unavailable", "error", err)
		return nil
	}
	if len(options) == 0 {
		return nil
	}

	seeds := make([]models.RawSuggestion, 0, len(options))
	for _, opt := range options {
		seed := opt.Track
		if seed.Reason == "" {
			seed.Reason = opt.Reason
		}
		seeds = append(seeds, seed)
	}

	res := o.validator.Validate(ctx, validation.Request{
		Suggestions:   seeds,
		Target:        o.vibeOptionTarget,
		ExcludeIDs:    excl.IDs(),
		ExcludeLabels: excl.Labels(),
	})

	byLabel := make(map[string]models.ValidatedTrack, len(res.Validated))
	var extras []models.ValidatedTrack
	labels := make(map[string]struct{}, len(options))
	for _, opt := range options {
		labels[opt.Track.Label()] = struct{}{}
	}
	for _, v := range res.Validated {
		if _, ok := labels[v.OriginalSuggestion]; ok {
			if _, dup := byLabel[v.OriginalSuggestion]; !dup {
				byLabel[v.OriginalSuggestion] = v
				continue
			}
		}
		extras = append(extras, v)
	}

	var out []models.VibeOption
	for _, opt := range options {
		v, ok := byLabel[opt.Track.Label()]
		if !ok || v.ExternalID == "" {
			continue
		}
		delete(byLabel, opt.Track.Label())
		opt.Seed = &v
		out = append(out, opt)
	}
	for i, v := range extras {
		out = append(out, models.VibeOption{
			ID:          fmt.Sprintf("vibe-extra-%d", i+1),
			Title:       "Discovery: " + v.Title,
			Description: v.Reason,
			Track:       models.RawSuggestion{Title: v.Title, Artist: v.Artist, Reason: v.Reason},
			Reason:      v.Reason,
			Seed:        &v,
		})
	}

	if len(out) > o.vibeOptionTarget {
		out = out[:o.vibeOptionTarget]
	}
	o.logger.Info("vibe options", "requested", len(options), "validated", len(out), "message", res.Message)
	return out
}

// RescueVibe proposes a new direction after a run of skips. When the AI path yields no tracks the
// graph cascade takes over. Returns nil when every tier comes back empty.
func (o *Orchestrator) RescueVibe(ctx context.Context, recentSkips []models.PlayedTrack) *models.VibeResult {
	excl := o.exclusions.Get(ctx)
	if len(recentSkips) == 0 {
		skips, err := o.history.RecentSkips(ctx, skipsContext)
		if err != nil {
			o.logger.Warn("failed to read recent skips", "error", err)
		}
		recentSkips = skips
	}

	lc := o.listeningContext(ctx, excl, nil)
	suggestions, err := o.suggester.GenerateRescueVibe(ctx, ai.RescueRequest{
		RecentSkips:      recentSkips,
		Count:            o.rescueTarget,
		ListeningContext: lc,
	})
	if err != nil {
		o.logger.Warn("rescue suggestions unavailable", "error", err)
	}

	if suggestions != nil && len(suggestions.Items) > 0 {
		res := o.validator.Validate(ctx, validation.Request{
			Suggestions:   suggestions.Items,
			Target:        o.rescueTarget,
			ExcludeIDs:    excl.IDs(),
			ExcludeLabels: excl.Labels(),
		})
		if len(res.Validated) > 0 {
			return &models.VibeResult{
				Items:     truncate(res.Validated, o.rescueTarget),
				Vibe:      cmp.Or(suggestions.Vibe, "Fresh Start"),
				Reasoning: suggestions.Reasoning,
				Source:    models.SourceAI,
				Message:   res.Message,
			}
		}
	}

	o.logger.Info("rescue falling back to graph cascade")
	return o.cascade(ctx, o.rescueTarget, excl, lc.Favorites)
}

// ExpandContext is the playback state an expansion must not repeat.
type ExpandContext struct {
	Queue []models.PlayedTrack
	Mood  string
}

// ExpandVibe extends the vibe around seed with AI discoveries followed by up to five graph
// neighbors. When nothing validates and the AI path failed, the graph cascade takes over.
func (o *Orchestrator) ExpandVibe(ctx context.Context, seed models.PlayedTrack, ec ExpandContext) *models.VibeResult {
	excl := o.exclusions.Get(ctx)
	for _, q := range ec.Queue {
		excl.addID(q.ExternalID)
		if q.Title != "" {
			excl.addPlayed(shared.DisplayKey(q.Title, q.Artist))
		}
	}
	excl.addID(seed.ExternalID)

	var neighbors []models.Neighbor
	if node := o.graph.FindSong(ctx, seed.ExternalID, seed.Title, seed.Artist); node != nil {
		neighbors = o.graph.GetNeighbors(ctx, node.ID, expandNeighbors)
	}
	genres := o.graph.GetTopGenres(ctx, expandGenres)
	lc := o.listeningContext(ctx, excl, nil)

	suggestions, aiErr := o.suggester.ExpandVibe(ctx, ai.ExpandRequest{
		Seed:             seed,
		Mood:             ec.Mood,
		Neighbors:        neighbors,
		Genres:           genres,
		Count:            o.expandTarget,
		ListeningContext: lc,
	})
	if aiErr != nil {
		o.logger.Warn("expand suggestions unavailable", "error", aiErr)
	}

	var list []models.RawSuggestion
	var mood, reasoning string
	if suggestions != nil {
		list = append(list, suggestions.Items...)
		mood, reasoning = suggestions.Mood, suggestions.Reasoning
	}
	fromAI := len(list)

	for _, n := range neighbors {
		if len(list)-fromAI >= maxNeighborItems {
			break
		}
		if n.Type != models.NodeSong || excl.Excludes(n.ExternalID, n.Name, n.Artist) {
			continue
		}
		list = append(list, models.RawSuggestion{
			Title:  n.Name,
			Artist: n.Artist,
			Reason: fmt.Sprintf("connected in your listening graph (weight %.1f)", n.Weight),
		})
	}

	if len(list) > 0 {
		res := o.validator.Validate(ctx, validation.Request{
			Suggestions:   list,
			Target:        o.expandTarget,
			ExcludeIDs:    excl.IDs(),
			ExcludeLabels: excl.Labels(),
		})
		if len(res.Validated) > 0 {
			source := models.SourceAI
			if fromAI == 0 {
				source = models.SourceGraphHybrid
			}
			return &models.VibeResult{
				Items:     truncate(res.Validated, o.expandTarget),
				Vibe:      cmp.Or(mood, ec.Mood, seed.Title+" Radio"),
				Reasoning: reasoning,
				Source:    source,
				Message:   res.Message,
			}
		}
	}

	if aiErr == nil {
		o.logger.Info("expand found nothing new", "seed", seed.Title)
		return nil
	}

	result := o.cascade(ctx, o.expandTarget, excl, lc.Favorites)
	if result != nil {
		result.Vibe = SmartFallbackVibe
	}
	return result
}

// cascade builds a result from the graph when the AI path is empty: about 60% songs from the top
// genres, the rest from catalog recommendations seeded by those songs and genres, then shuffled
// favorites to fill any remaining slots.
func (o *Orchestrator) cascade(ctx context.Context, target int, excl *ExclusionSet, favorites []models.FavoriteTrack) *models.VibeResult {
	var (
		items     []models.ValidatedTrack
		graphIDs  []string
		genreUsed []string
	)
	taken := make(map[string]struct{})
	add := func(t models.ValidatedTrack) bool {
		if len(items) >= target || t.ExternalID == "" {
			return false
		}
		if _, dup := taken[t.ExternalID]; dup || excl.Excludes(t.ExternalID, t.Title, t.Artist) {
			return false
		}
		taken[t.ExternalID] = struct{}{}
		items = append(items, t)
		return true
	}

	genres := o.graph.GetTopGenres(ctx, cascadeGenres)
	if len(genres) > 0 {
		for _, g := range genres[:min(len(genres), cascadeSeedGenres)] {
			genreUsed = append(genreUsed, g.Name)
		}

		graphTarget := (target*6 + 9) / 10
		for _, n := range o.graph.GetSongsByGenres(ctx, genreUsed, graphTarget*2, excl.IDs()) {
			if len(items) >= graphTarget {
				break
			}
			if add(models.ValidatedTrack{
				Title:      n.Name,
				Artist:     n.Artist(),
				ExternalID: n.ExternalID,
				ArtworkURL: n.Attributes.ArtworkURL,
				Reason:     "from your top genres",
			}) {
				graphIDs = append(graphIDs, n.ExternalID)
			}
		}

		if remaining := target - len(items); remaining > 0 && o.recommender != nil {
			seedIDs := graphIDs[:min(len(graphIDs), maxGraphSeeds)]
			seedGenres := genreUsed[:min(len(genreUsed), maxSeeds-len(seedIDs))]
			recs, err := o.recommender.Recommendations(ctx, seedIDs, seedGenres, remaining*2)
			if err != nil {
				o.logger.Warn("recommendations unavailable", "error", err)
			}
			for _, c := range recs {
				add(models.ValidatedTrack{
					Title:      c.Title,
					Artist:     c.Artist,
					ExternalID: c.ExternalID,
					ArtworkURL: c.ArtworkURL,
					Reason:     "recommended from your listening graph",
				})
			}
		}
	}

	fromGraph := len(items)
	if len(items) < target && len(favorites) > 0 {
		shuffled := make([]models.FavoriteTrack, len(favorites))
		copy(shuffled, favorites)
		o.shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		for _, f := range shuffled {
			add(models.ValidatedTrack{Title: f.Title, Artist: f.Artist, ExternalID: f.ExternalID, Reason: "one of your favorites"})
		}
	}

	if len(items) == 0 {
		o.logger.Warn("every cascade tier came back empty")
		return nil
	}

	if fromGraph == 0 {
		return &models.VibeResult{
			Items:     items,
			Vibe:      "Your Favorites",
			Reasoning: "Your most played tracks, shuffled.",
			Source:    models.SourceFavorites,
		}
	}
	return &models.VibeResult{
		Items:     items,
		Vibe:      SmartFallbackVibe,
		Reasoning: "Built from your top genres: " + strings.Join(genreUsed, ", ") + ".",
		Source:    models.SourceGraphHybrid,
	}
}

// RecordPlay stores a playback event, bumps the graph node when the song is known and a full play,
// and marks the track in the exclusion cache.
func (o *Orchestrator) RecordPlay(ctx context.Context, track models.PlayedTrack, skipped bool, playContext string) error {
	if err := o.history.RecordPlay(ctx, persistence.PlayEvent{Track: track, Skipped: skipped, Context: playContext}); err != nil {
		return err
	}

	if !skipped {
		if node := o.graph.FindSong(ctx, track.ExternalID, track.Title, track.Artist); node != nil {
			o.graph.RecordPlay(ctx, node.ID)
		}
	}
	o.exclusions.MarkPlayed(track.ExternalID, track.Title, track.Artist)
	return nil
}

// SubmitFeedback records like or dislike feedback for a "title - artist" track name.
func (o *Orchestrator) SubmitFeedback(ctx context.Context, trackName, feedback string) error {
	if err := o.history.SubmitFeedback(ctx, trackName, feedback); err != nil {
		return err
	}
	o.exclusions.Invalidate()
	return nil
}

// ChangeVibe records the active vibe and drops cached exclusions.
func (o *Orchestrator) ChangeVibe(ctx context.Context, name string) {
	o.exclusions.Invalidate()
	if err := o.history.SetPreference(ctx, "vibe", name); err != nil {
		o.logger.Warn("failed to store vibe preference", "vibe", name, "error", err)
	}
}

// CommitSession writes a finished listening session into the graph.
func (o *Orchestrator) CommitSession(ctx context.Context, vibeName string, songs []models.SessionSong) *models.Node {
	vibe := o.graph.CommitSession(ctx, vibeName, songs)
	o.exclusions.Invalidate()
	return vibe
}

func truncate(tracks []models.ValidatedTrack, n int) []models.ValidatedTrack {
	if n > 0 && len(tracks) > n {
		return tracks[:n]
	}
	return tracks
}
