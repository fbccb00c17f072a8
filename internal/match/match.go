// package match implements fuzzy scoring of search candidates against loosely specified track suggestions
package match

import (
	"regexp"
	"strings"

	"github.com/desertthunder/vibes/internal/models"
)

// AcceptThreshold is the minimum score, inclusive, for a candidate to be accepted.
const AcceptThreshold = 65

var (
	nonWord    = regexp.MustCompile(`[^\w\s]`)
	whitespace = regexp.MustCompile(`\s+`)
	// parenthesized or bracketed qualifiers and " - Live at ..." style suffixes
	qualifier = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|\s-\s.*$`)
)

// alternateKeywords mark a recording as something other than the original studio version.
var alternateKeywords = []string{
	"remix",
	"live",
	"acoustic",
	"remaster",
	"remastered",
	"demo",
	"karaoke",
	"instrumental",
	"cover",
	"tribute",
	"radio edit",
	"extended",
	"club mix",
	"dub mix",
	"sped up",
	"slowed",
}

// NormalizeTitle lowercases s, strips everything that is not a word character or whitespace, collapses whitespace and trims.
func NormalizeTitle(s string) string {
	s = strings.ToLower(s)
	s = nonWord.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// baseTitle drops version qualifiers before normalizing, so "Creep (Live)" compares close to "Creep".
func baseTitle(s string) string {
	stripped := qualifier.ReplaceAllString(s, "")
	if strings.TrimSpace(stripped) == "" {
		return NormalizeTitle(s)
	}
	return NormalizeTitle(stripped)
}

// Similarity is the bigram Dice coefficient of the normalized strings, in [0,1].
//
// Identical normalized strings score 1. Strings shorter than two characters score 0.
func Similarity(a, b string) float64 {
	a, b = NormalizeTitle(a), NormalizeTitle(b)
	if a == b && a != "" {
		return 1
	}
	if len([]rune(a)) < 2 || len([]rune(b)) < 2 {
		return 0
	}

	left, right := bigrams(a), bigrams(b)
	shared := 0
	for g := range left {
		if _, ok := right[g]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(left)+len(right))
}

func bigrams(s string) map[string]struct{} {
	r := []rune(s)
	out := make(map[string]struct{}, len(r))
	for i := 0; i < len(r)-1; i++ {
		out[string(r[i:i+2])] = struct{}{}
	}
	return out
}

// IsAlternateVersion reports whether title names a remix, live take, cover or similar variant.
func IsAlternateVersion(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range alternateKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Score is the outcome of [ScoreCandidate].
type Score struct {
	Value   int
	Reasons []string
}

// Accepted reports whether the score meets [AcceptThreshold].
func (s Score) Accepted() bool {
	return s.Value >= AcceptThreshold
}

// ScoreCandidate scores a search candidate against the suggested title and artist.
func ScoreCandidate(c models.Candidate, title, artist string) Score {
	var s Score
	add := func(points int, reason string) {
		s.Value += points
		s.Reasons = append(s.Reasons, reason)
	}

	ct, tt := NormalizeTitle(c.Title), NormalizeTitle(title)
	switch {
	case ct == tt:
		add(50, "exact title")
	case Similarity(baseTitle(c.Title), baseTitle(title)) > 0.8:
		add(40, "similar title")
	case contains(ct, tt):
		add(30, "title containment")
	case Similarity(ct, tt) > 0.5:
		add(20, "partial title")
	}

	ca, ta := NormalizeTitle(c.Artist), NormalizeTitle(artist)
	switch {
	case ca == ta:
		add(40, "exact artist")
	case Similarity(ca, ta) > 0.7:
		add(30, "similar artist")
	case contains(ca, ta):
		add(25, "artist containment")
	}

	if IsAlternateVersion(c.Title) && !IsAlternateVersion(title) {
		add(-15, "alternate version")
	}

	switch {
	case c.Popularity > 70:
		add(10, "popular")
	case c.Popularity >= 40:
		add(5, "known")
	}
	return s
}

func contains(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// FindBestMatch returns the highest scoring candidate, or nil when none reaches [AcceptThreshold].
// Ties keep the earliest candidate.
func FindBestMatch(candidates []models.Candidate, title, artist string) (*models.Candidate, Score) {
	if len(candidates) == 0 {
		return nil, Score{}
	}

	best, bestScore := 0, ScoreCandidate(candidates[0], title, artist)
	for i := 1; i < len(candidates); i++ {
		sc := ScoreCandidate(candidates[i], title, artist)
		if sc.Value > bestScore.Value {
			best, bestScore = i, sc
		}
	}
	if !bestScore.Accepted() {
		return nil, bestScore
	}
	c := candidates[best]
	return &c, bestScore
}
