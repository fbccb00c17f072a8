package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/vibes/internal/ai"
	"github.com/desertthunder/vibes/internal/match"
	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/shared"
)

const (
	// MaxBackfillRounds bounds the backfill loop regardless of provider behavior.
	MaxBackfillRounds = 2
	// backfillSurplus is requested on top of the shortfall since some replacements fail too.
	backfillSurplus       = 3
	maxConcurrentSearches = 4
)

// Searcher is the track search provider.
type Searcher interface {
	Search(ctx context.Context, query, kind string) ([]models.Candidate, error)
}

// BackfillProvider returns raw model text with replacement suggestions for a prompt.
type BackfillProvider interface {
	Backfill(ctx context.Context, prompt string) (string, error)
}

// Seen tracks accepted external ids and normalized "title|artist" keys.
// It is not safe for concurrent use; the batch path only touches it from one goroutine.
type Seen struct {
	ids  map[string]struct{}
	keys map[string]struct{}
}

// NewSeen returns an empty Seen.
func NewSeen() *Seen {
	return &Seen{ids: make(map[string]struct{}), keys: make(map[string]struct{})}
}

// ExcludeIDs marks external ids as already seen.
func (s *Seen) ExcludeIDs(ids ...string) {
	for _, id := range ids {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
}

// ExcludeLabels marks "title - artist" display keys as already seen.
func (s *Seen) ExcludeLabels(labels ...string) {
	for _, l := range labels {
		if l != "" {
			s.keys[shared.DisplayKeyToTrackKey(l)] = struct{}{}
		}
	}
}

// Has reports whether t matches a seen external id or normalized title and artist.
func (s *Seen) Has(t models.ValidatedTrack) bool {
	if _, ok := s.ids[t.ExternalID]; ok {
		return true
	}
	_, ok := s.keys[shared.NormalizeTrackKey(t.Title, t.Artist)]
	return ok
}

// Add marks t as seen by external id and by normalized title and artist.
func (s *Seen) Add(t models.ValidatedTrack) {
	s.ExcludeIDs(t.ExternalID)
	s.keys[shared.NormalizeTrackKey(t.Title, t.Artist)] = struct{}{}
}

// BatchResult is the outcome of validating a batch of suggestions.
type BatchResult struct {
	Validated []models.ValidatedTrack
	// Failed holds suggestions with no accepted match and suggestions that resolved to an already seen track.
	Failed []models.RawSuggestion
}

// Request describes one validation run.
type Request struct {
	Suggestions   []models.RawSuggestion
	Target        int
	ExcludeIDs    []string
	ExcludeLabels []string
}

// Result is a completed validation run including backfill.
type Result struct {
	Validated []models.ValidatedTrack
	Failed    []models.RawSuggestion
	Rounds    int
	// Message reports a shortfall, e.g. "found only 6 of 8 requested".
	Message string
}

// Pipeline turns raw suggestions into confirmed tracks.
type Pipeline struct {
	searcher Searcher
	backfill BackfillProvider
	logger   *log.Logger
}

// New creates a pipeline. A nil backfill provider disables backfill.
func New(searcher Searcher, backfill BackfillProvider, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = shared.NewDiscardLogger()
	}
	return &Pipeline{searcher: searcher, backfill: backfill, logger: logger}
}

// StrictQuery builds a field-filtered search query.
func StrictQuery(title, artist string) string {
	clean := strings.NewReplacer(`"`, "").Replace
	return fmt.Sprintf(`track:"%s" artist:"%s"`, clean(title), clean(artist))
}

// LooseQuery builds an unfiltered search query, preferring the suggestion's own query.
func LooseQuery(s models.RawSuggestion) string {
	if q := strings.TrimSpace(s.Query); q != "" {
		return q
	}
	return strings.TrimSpace(s.Title + " " + s.Artist)
}

// resolve finds the best accepted match for s without consulting the seen set.
func (p *Pipeline) resolve(ctx context.Context, s models.RawSuggestion) *models.ValidatedTrack {
	if strings.TrimSpace(s.Title) == "" {
		return nil
	}

	for _, query := range []string{StrictQuery(s.Title, s.Artist), LooseQuery(s)} {
		candidates, err := p.searcher.Search(ctx, query, "track")
		if err != nil {
			p.logger.Warn("search failed", "query", query, "error", err)
			continue
		}

		best, score := match.FindBestMatch(candidates, s.Title, s.Artist)
		if best == nil {
			continue
		}

		p.logger.Debug("matched suggestion", "suggestion", s.Label(), "match", best.Title+" - "+best.Artist,
			"score", score.Value, "reasons", strings.Join(score.Reasons, ","))
		return &models.ValidatedTrack{
			Title:              best.Title,
			Artist:             best.Artist,
			ExternalID:         best.ExternalID,
			ArtworkURL:         best.ArtworkURL,
			Reason:             s.Reason,
			OriginalSuggestion: s.Label(),
		}
	}

	p.logger.Debug("no match for suggestion", "suggestion", s.Label())
	return nil
}

// ValidateTrack searches with a strict query, then a loose one, and returns the accepted match.
// Returns nil when nothing scores above the acceptance threshold or the match was already seen.
func (p *Pipeline) ValidateTrack(ctx context.Context, s models.RawSuggestion, seen *Seen) *models.ValidatedTrack {
	v := p.resolve(ctx, s)
	if v == nil {
		return nil
	}
	if seen.Has(*v) {
		p.logger.Debug("duplicate track", "track", v.Label(), "id", v.ExternalID)
		return nil
	}
	seen.Add(*v)
	return v
}

// ValidateBatch resolves every suggestion concurrently, then suppresses duplicates in one
// sequential pass in input order so the earliest suggestion claims a track.
func (p *Pipeline) ValidateBatch(ctx context.Context, suggestions []models.RawSuggestion, seen *Seen) BatchResult {
	resolved := make([]*models.ValidatedTrack, len(suggestions))

	var g errgroup.Group
	g.SetLimit(maxConcurrentSearches)
	for i, s := range suggestions {
		g.Go(func() error {
			resolved[i] = p.resolve(ctx, s)
			return nil
		})
	}
	_ = g.Wait()

	var result BatchResult
	for i, v := range resolved {
		if v == nil || seen.Has(*v) {
			result.Failed = append(result.Failed, suggestions[i])
			continue
		}
		seen.Add(*v)
		result.Validated = append(result.Validated, *v)
	}
	return result
}

// PerformBackfill asks for replacements while the result is short of target, at most
// [MaxBackfillRounds] times. It stops early when the provider has nothing to offer.
// Returns the number of rounds run and a shortfall message, empty when target was reached.
func (p *Pipeline) PerformBackfill(ctx context.Context, result *BatchResult, target int, seen *Seen) (int, string) {
	rounds := 0
	for len(result.Validated) < target && rounds < MaxBackfillRounds && len(result.Failed) > 0 {
		if p.backfill == nil {
			break
		}
		rounds++

		needed := target - len(result.Validated)
		prompt := ai.BackfillPrompt(needed+backfillSurplus, suggestionLabels(result.Failed), trackLabels(result.Validated))
		suggestions := p.requestBackfill(ctx, prompt)
		if len(suggestions) == 0 {
			p.logger.Info("backfill returned nothing", "round", rounds, "validated", len(result.Validated), "target", target)
			break
		}

		batch := p.ValidateBatch(ctx, suggestions, seen)
		result.Validated = append(result.Validated, batch.Validated...)
		result.Failed = append(result.Failed, batch.Failed...)
		p.logger.Debug("backfill round", "round", rounds, "accepted", len(batch.Validated), "failed", len(batch.Failed))
	}

	if len(result.Validated) < target {
		return rounds, fmt.Sprintf("found only %d of %d requested", len(result.Validated), target)
	}
	return rounds, ""
}

func (p *Pipeline) requestBackfill(ctx context.Context, prompt string) []models.RawSuggestion {
	raw, err := p.backfill.Backfill(ctx, prompt)
	if err != nil {
		p.logger.Warn("backfill request failed", "error", err)
		return nil
	}
	parsed, err := ai.ParseSuggestions(raw)
	if err != nil {
		p.logger.Warn("backfill response unusable", "error", err)
		return nil
	}
	return parsed.Items
}

// Validate runs a batch and backfills it toward the request target.
func (p *Pipeline) Validate(ctx context.Context, req Request) Result {
	seen := NewSeen()
	seen.ExcludeIDs(req.ExcludeIDs...)
	seen.ExcludeLabels(req.ExcludeLabels...)

	batch := p.ValidateBatch(ctx, req.Suggestions, seen)
	rounds, message := p.PerformBackfill(ctx, &batch, req.Target, seen)

	if message != "" {
		p.logger.Info("validation short of target", "message", message)
	}
	return Result{Validated: batch.Validated, Failed: batch.Failed, Rounds: rounds, Message: message}
}

func suggestionLabels(s []models.RawSuggestion) []string {
	labels := make([]string, 0, len(s))
	for _, v := range s {
		labels = append(labels, v.Label())
	}
	return labels
}

func trackLabels(t []models.ValidatedTrack) []string {
	labels := make([]string, 0, len(t))
	for _, v := range t {
		labels = append(labels, v.Label())
	}
	return labels
}
