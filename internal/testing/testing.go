// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/vibes/internal/ai"
	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/services"
)

// MockSearcher is a test double for the track search provider.
//
// Candidates are looked up by exact query first, then by any key contained in the query.
// Search calls are counted per query and safe for concurrent use.
type MockSearcher struct {
	Results map[string][]models.Candidate
	Err     error

	// Recs is returned from Recommendations.
	Recs    []models.Candidate
	RecsErr error

	mu       sync.Mutex
	Queries  []string
	RecSeeds [][]string
}

func (m *MockSearcher) Search(ctx context.Context, query, kind string) ([]models.Candidate, error) {
	m.mu.Lock()
	m.Queries = append(m.Queries, query)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if c, ok := m.Results[query]; ok {
		return c, nil
	}
	for key, c := range m.Results {
		if strings.Contains(query, key) {
			return c, nil
		}
	}
	return nil, nil
}

func (m *MockSearcher) Recommendations(ctx context.Context, seedIDs, seedGenres []string, count int) ([]models.Candidate, error) {
	m.mu.Lock()
	m.RecSeeds = append(m.RecSeeds, append(append([]string{}, seedIDs...), seedGenres...))
	m.mu.Unlock()

	if m.RecsErr != nil {
		return nil, m.RecsErr
	}
	if count > 0 && len(m.Recs) > count {
		return m.Recs[:count], nil
	}
	return m.Recs, nil
}

// SearchCount returns how many searches were issued.
func (m *MockSearcher) SearchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Queries)
}

// MockBackfill returns the next canned response on each call; the last one repeats.
type MockBackfill struct {
	Responses []string
	Err       error

	Prompts []string
}

func (m *MockBackfill) Backfill(ctx context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", nil
	}
	i := min(len(m.Prompts)-1, len(m.Responses)-1)
	return m.Responses[i], nil
}

// Calls returns how many backfill requests were made.
func (m *MockBackfill) Calls() int { return len(m.Prompts) }

// MockSuggester is a test double for [ai.Suggester].
type MockSuggester struct {
	Options    []models.VibeOption
	Rescue     *models.Suggestions
	Expansion  *models.Suggestions
	Err        error
	BackfillFn func(prompt string) (string, error)

	VibeRequests   []ai.VibeOptionsRequest
	RescueRequests []ai.RescueRequest
	ExpandRequests []ai.ExpandRequest
}

func (m *MockSuggester) GenerateVibeOptions(ctx context.Context, req ai.VibeOptionsRequest) ([]models.VibeOption, error) {
	m.VibeRequests = append(m.VibeRequests, req)
	return m.Options, m.Err
}

func (m *MockSuggester) GenerateRescueVibe(ctx context.Context, req ai.RescueRequest) (*models.Suggestions, error) {
	m.RescueRequests = append(m.RescueRequests, req)
	return m.Rescue, m.Err
}

func (m *MockSuggester) ExpandVibe(ctx context.Context, req ai.ExpandRequest) (*models.Suggestions, error) {
	m.ExpandRequests = append(m.ExpandRequests, req)
	return m.Expansion, m.Err
}

func (m *MockSuggester) Backfill(ctx context.Context, prompt string) (string, error) {
	if m.BackfillFn == nil {
		return "", nil
	}
	return m.BackfillFn(prompt)
}

// MockService is a test double for [services.Service] and [services.Enricher]
type MockService struct {
	Playlists []services.Playlist
	Exports   map[string]*services.PlaylistExport
	Features  map[string]*models.AudioFeatures
	Genres    map[string][]string
	Err       error

	mu       sync.Mutex
	Exported []string
}

func (m *MockService) Authenticate(ctx context.Context, credentials map[string]string) error {
	return m.Err
}

func (m *MockService) GetPlaylists(ctx context.Context) ([]services.Playlist, error) {
	return m.Playlists, m.Err
}

func (m *MockService) GetPlaylist(ctx context.Context, playlistID string) (*services.Playlist, error) {
	for _, p := range m.Playlists {
		if p.ID == playlistID {
			return &p, nil
		}
	}
	return nil, m.Err
}

func (m *MockService) ExportPlaylist(ctx context.Context, playlistID string) (*services.PlaylistExport, error) {
	m.mu.Lock()
	m.Exported = append(m.Exported, playlistID)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	export, ok := m.Exports[playlistID]
	if !ok {
		return nil, errors.New("playlist not found")
	}
	return export, nil
}

func (m *MockService) Search(ctx context.Context, query, kind string) ([]models.Candidate, error) {
	return nil, m.Err
}

func (m *MockService) Recommendations(ctx context.Context, seedIDs, seedGenres []string, count int) ([]models.Candidate, error) {
	return nil, m.Err
}

func (m *MockService) AudioFeatures(ctx context.Context, ids []string) (map[string]*models.AudioFeatures, error) {
	out := make(map[string]*models.AudioFeatures)
	for _, id := range ids {
		if f, ok := m.Features[id]; ok {
			out[id] = f
		}
	}
	return out, nil
}

func (m *MockService) ArtistGenres(ctx context.Context, artistIDs []string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, id := range artistIDs {
		if g, ok := m.Genres[id]; ok {
			out[id] = g
		}
	}
	return out, nil
}

func (m *MockService) Name() string { return "mock" }

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
