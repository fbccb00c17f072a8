package persistence

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/shared"
)

// Key prefixes for KV storage
const (
	playedKeyPrefix = "played:"
	statsKeyPrefix  = "stats:"
	prefKeyPrefix   = "pref:"
	skipsKey        = "skips"
	exclusionsKey   = "exclusions"
)

const maxRecentSkips = 50

// Feedback values accepted by [History.SubmitFeedback].
const (
	FeedbackLike    = "like"
	FeedbackDislike = "dislike"
)

// PlayEvent is one playback report.
type PlayEvent struct {
	Track    models.PlayedTrack `json:"track"`
	Skipped  bool               `json:"skipped"`
	Context  string             `json:"context,omitempty"`
	PlayedAt time.Time          `json:"playedAt"`
}

// trackStats aggregates plays per track.
type trackStats struct {
	Title      string    `json:"title"`
	Artist     string    `json:"artist"`
	ExternalID string    `json:"externalId"`
	Plays      int       `json:"plays"`
	Skips      int       `json:"skips"`
	Feedback   string    `json:"feedback,omitempty"`
	LastPlayed time.Time `json:"lastPlayed"`
}

// playedDay is the persisted "played today" record.
type playedDay struct {
	Keys []string `json:"keys"`
	IDs  []string `json:"ids"`
}

// History is the listening history collaborator: daily played lists, per-track stats, skips,
// feedback and preferences on a [KV], plus an in-memory session history.
type History struct {
	kv     KV
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	session []string
}

// NewHistory creates a History stored in kv.
func NewHistory(kv KV, logger *log.Logger) *History {
	if logger == nil {
		logger = shared.NewDiscardLogger()
	}
	return &History{kv: kv, logger: logger, now: time.Now}
}

func dayKey(t time.Time) string {
	return playedKeyPrefix + t.Format(time.DateOnly)
}

func statsKey(title, artist string) string {
	return statsKeyPrefix + shared.NormalizeTrackKey(title, artist)
}

// RecordPlay stores a playback event. Skipped tracks still count as played today.
func (h *History) RecordPlay(ctx context.Context, ev PlayEvent) error {
	if ev.Track.Title == "" {
		return fmt.Errorf("%w: track title", shared.ErrMissingArgument)
	}
	if ev.PlayedAt.IsZero() {
		ev.PlayedAt = h.now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if ev.Track.ExternalID != "" {
		h.session = append(h.session, ev.Track.ExternalID)
	}

	key := dayKey(ev.PlayedAt)
	var day playedDay
	if _, err := getJSON(ctx, h.kv, key, &day); err != nil {
		return err
	}
	display := shared.DisplayKey(ev.Track.Title, ev.Track.Artist)
	if !slices.Contains(day.Keys, display) {
		day.Keys = append(day.Keys, display)
	}
	if ev.Track.ExternalID != "" && !slices.Contains(day.IDs, ev.Track.ExternalID) {
		day.IDs = append(day.IDs, ev.Track.ExternalID)
	}
	if err := setJSON(ctx, h.kv, key, day); err != nil {
		return err
	}

	st, err := h.stats(ctx, ev.Track.Title, ev.Track.Artist)
	if err != nil {
		return err
	}
	if ev.Track.ExternalID != "" {
		st.ExternalID = ev.Track.ExternalID
	}
	st.LastPlayed = ev.PlayedAt
	if ev.Skipped {
		st.Skips++
	} else {
		st.Plays++
	}
	if err := setJSON(ctx, h.kv, statsKey(st.Title, st.Artist), st); err != nil {
		return err
	}

	if ev.Skipped {
		var skips []models.PlayedTrack
		if _, err := getJSON(ctx, h.kv, skipsKey, &skips); err != nil {
			return err
		}
		skips = append(skips, ev.Track)
		if len(skips) > maxRecentSkips {
			skips = skips[len(skips)-maxRecentSkips:]
		}
		if err := setJSON(ctx, h.kv, skipsKey, skips); err != nil {
			return err
		}
	}

	h.logger.Debug("play recorded", "track", display, "skipped", ev.Skipped, "context", ev.Context)
	return nil
}

func (h *History) stats(ctx context.Context, title, artist string) (trackStats, error) {
	st := trackStats{Title: title, Artist: artist}
	if _, err := getJSON(ctx, h.kv, statsKey(title, artist), &st); err != nil {
		return st, err
	}
	return st, nil
}

// PlayedToday returns the "title - artist" keys and external ids played since midnight.
func (h *History) PlayedToday(ctx context.Context) (keys []string, ids []string, err error) {
	var day playedDay
	if _, err := getJSON(ctx, h.kv, dayKey(h.now()), &day); err != nil {
		return nil, nil, err
	}
	return day.Keys, day.IDs, nil
}

// SessionHistory returns external ids played by this process, oldest first.
func (h *History) SessionHistory() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.session)
}

// RecentSkips returns up to limit skipped tracks, most recent first.
func (h *History) RecentSkips(ctx context.Context, limit int) ([]models.PlayedTrack, error) {
	var skips []models.PlayedTrack
	if _, err := getJSON(ctx, h.kv, skipsKey, &skips); err != nil {
		return nil, err
	}
	slices.Reverse(skips)
	if limit > 0 && len(skips) > limit {
		skips = skips[:limit]
	}
	return skips, nil
}

// Favorites ranks tracks by full plays, liked tracks first. Disliked tracks and tracks with no full play and no like are left out.
func (h *History) Favorites(ctx context.Context, limit int) ([]models.FavoriteTrack, error) {
	keys, err := h.kv.Keys(ctx, statsKeyPrefix)
	if err != nil {
		return nil, err
	}

	var favorites []models.FavoriteTrack
	for _, key := range keys {
		var st trackStats
		if _, err := getJSON(ctx, h.kv, key, &st); err != nil {
			h.logger.Warn("skipping unreadable track stats", "key", key, "error", err)
			continue
		}
		liked := st.Feedback == FeedbackLike
		if st.Feedback == FeedbackDislike || (st.Plays == 0 && !liked) {
			continue
		}
		favorites = append(favorites, models.FavoriteTrack{
			Title:      st.Title,
			Artist:     st.Artist,
			ExternalID: st.ExternalID,
			PlayCount:  st.Plays,
			Liked:      liked,
		})
	}

	slices.SortStableFunc(favorites, func(a, b models.FavoriteTrack) int {
		if a.Liked != b.Liked {
			if a.Liked {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.PlayCount, a.PlayCount)
	})
	if limit > 0 && len(favorites) > limit {
		favorites = favorites[:limit]
	}
	return favorites, nil
}

// SubmitFeedback records feedback for a "title - artist" track name. A dislike also excludes the track permanently.
func (h *History) SubmitFeedback(ctx context.Context, trackName, feedback string) error {
	feedback = strings.ToLower(strings.TrimSpace(feedback))
	if feedback != FeedbackLike && feedback != FeedbackDislike {
		return fmt.Errorf("%w: feedback must be %q or %q, got %q", shared.ErrInvalidArgument, FeedbackLike, FeedbackDislike, feedback)
	}
	trackName = strings.TrimSpace(trackName)
	if trackName == "" {
		return fmt.Errorf("%w: track name", shared.ErrMissingArgument)
	}

	title, artist, _ := strings.Cut(trackName, " - ")

	h.mu.Lock()
	defer h.mu.Unlock()

	st, err := h.stats(ctx, title, artist)
	if err != nil {
		return err
	}
	st.Feedback = feedback
	if err := setJSON(ctx, h.kv, statsKey(title, artist), st); err != nil {
		return err
	}

	if feedback == FeedbackDislike {
		var excluded []string
		if _, err := getJSON(ctx, h.kv, exclusionsKey, &excluded); err != nil {
			return err
		}
		if !slices.Contains(excluded, trackName) {
			excluded = append(excluded, trackName)
		}
		if err := setJSON(ctx, h.kv, exclusionsKey, excluded); err != nil {
			return err
		}
	}

	h.logger.Info("feedback recorded", "track", trackName, "feedback", feedback)
	return nil
}

// PermanentExclusions returns disliked "title - artist" names.
func (h *History) PermanentExclusions(ctx context.Context) ([]string, error) {
	var excluded []string
	if _, err := getJSON(ctx, h.kv, exclusionsKey, &excluded); err != nil {
		return nil, err
	}
	return excluded, nil
}

// Preference returns a stored preference value.
func (h *History) Preference(ctx context.Context, key string) (string, bool, error) {
	var v string
	found, err := getJSON(ctx, h.kv, prefKeyPrefix+key, &v)
	return v, found, err
}

// SetPreference stores a preference value.
func (h *History) SetPreference(ctx context.Context, key, value string) error {
	return setJSON(ctx, h.kv, prefKeyPrefix+key, value)
}
