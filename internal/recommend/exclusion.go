package recommend

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vibes/internal/shared"
)

// DefaultExclusionTTL is how long a computed exclusion set is reused.
const DefaultExclusionTTL = 30 * time.Second

// ExclusionSource supplies the persisted and in-session play history.
type ExclusionSource interface {
	PlayedToday(ctx context.Context) (keys []string, ids []string, err error)
	SessionHistory() []string
	PermanentExclusions(ctx context.Context) ([]string, error)
}

// ExclusionSet is a snapshot of everything that must not be suggested again.
type ExclusionSet struct {
	played   []string
	disliked []string
	ids      []string

	keySet map[string]struct{}
	idSet  map[string]struct{}
}

func newExclusionSet() *ExclusionSet {
	return &ExclusionSet{keySet: make(map[string]struct{}), idSet: make(map[string]struct{})}
}

func (e *ExclusionSet) addPlayed(label string) {
	if e.addKey(label) {
		e.played = append(e.played, label)
	}
}

func (e *ExclusionSet) addDisliked(label string) {
	if e.addKey(label) {
		e.disliked = append(e.disliked, label)
	}
}

func (e *ExclusionSet) addKey(label string) bool {
	if label == "" {
		return false
	}
	key := shared.DisplayKeyToTrackKey(label)
	if _, ok := e.keySet[key]; ok {
		return false
	}
	e.keySet[key] = struct{}{}
	return true
}

func (e *ExclusionSet) addID(id string) {
	if id == "" {
		return
	}
	if _, ok := e.idSet[id]; ok {
		return
	}
	e.idSet[id] = struct{}{}
	e.ids = append(e.ids, id)
}

// Played returns "title - artist" keys played today, oldest first.
func (e *ExclusionSet) Played() []string { return slices.Clone(e.played) }

// Disliked returns "title - artist" keys excluded by feedback.
func (e *ExclusionSet) Disliked() []string { return slices.Clone(e.disliked) }

// Labels returns every excluded "title - artist" key.
func (e *ExclusionSet) Labels() []string {
	return append(e.Played(), e.disliked...)
}

// IDs returns every excluded external id.
func (e *ExclusionSet) IDs() []string { return slices.Clone(e.ids) }

// Excludes reports whether a track matches by external id or by normalized title and artist.
func (e *ExclusionSet) Excludes(externalID, title, artist string) bool {
	if externalID != "" {
		if _, ok := e.idSet[externalID]; ok {
			return true
		}
	}
	_, ok := e.keySet[shared.NormalizeTrackKey(title, artist)]
	return ok
}

func (e *ExclusionSet) clone() *ExclusionSet {
	c := &ExclusionSet{
		played:   slices.Clone(e.played),
		disliked: slices.Clone(e.disliked),
		ids:      slices.Clone(e.ids),
		keySet:   make(map[string]struct{}, len(e.keySet)),
		idSet:    make(map[string]struct{}, len(e.idSet)),
	}
	for k := range e.keySet {
		c.keySet[k] = struct{}{}
	}
	for k := range e.idSet {
		c.idSet[k] = struct{}{}
	}
	return c
}

// ExclusionCache unions "played today", session plays and disliked tracks, recomputing when
// older than its TTL or after [ExclusionCache.Invalidate].
//
// The mutex makes it safe within one process. It is not coherent across processes writing the
// same history store.
type ExclusionCache struct {
	source ExclusionSource
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger

	mu       sync.Mutex
	current  *ExclusionSet
	loadedAt time.Time
}

// NewExclusionCache creates a cache over source. A non-positive ttl means [DefaultExclusionTTL].
func NewExclusionCache(source ExclusionSource, ttl time.Duration, logger *log.Logger) *ExclusionCache {
	if ttl <= 0 {
		ttl = DefaultExclusionTTL
	}
	if logger == nil {
		logger = shared.NewDiscardLogger()
	}
	return &ExclusionCache{source: source, ttl: ttl, now: time.Now, logger: logger}
}

// Get returns the current exclusion set, recomputing it when stale.
// Source errors are logged and leave the affected part empty.
func (c *ExclusionCache) Get(ctx context.Context) *ExclusionSet {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.now().Sub(c.loadedAt) < c.ttl {
		return c.current.clone()
	}

	set := newExclusionSet()
	keys, ids, err := c.source.PlayedToday(ctx)
	if err != nil {
		c.logger.Warn("failed to read played today", "error", err)
	}
	for _, k := range keys {
		set.addPlayed(k)
	}
	for _, id := range ids {
		set.addID(id)
	}
	for _, id := range c.source.SessionHistory() {
		set.addID(id)
	}

	disliked, err := c.source.PermanentExclusions(ctx)
	if err != nil {
		c.logger.Warn("failed to read exclusions", "error", err)
	}
	for _, l := range disliked {
		set.addDisliked(l)
	}

	c.current = set
	c.loadedAt = c.now()
	c.logger.Debug("exclusions refreshed", "labels", len(set.keySet), "ids", len(set.idSet))
	return set.clone()
}

// Invalidate forces the next [ExclusionCache.Get] to recompute.
func (c *ExclusionCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}

// MarkPlayed adds a track to the cached set without waiting for a refresh.
func (c *ExclusionCache) MarkPlayed(externalID, title, artist string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return
	}
	c.current.addID(externalID)
	if title != "" {
		c.current.addPlayed(shared.DisplayKey(title, artist))
	}
}
