package ai

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/shared"
)

var fencePattern = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")

// StripFences removes markdown code fence lines.
func StripFences(text string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))
}

type span struct{ start, end int }

// ExtractObjects returns every maximal, balanced JSON object in text, in order.
//
// A complete top-level object comes back whole. When the outer object is cut off (a response that hit
// the token limit), its completed children are returned instead, so a truncated list still yields the
// entries that arrived intact. Braces inside strings are ignored.
func ExtractObjects(text string) []json.RawMessage {
	text = StripFences(text)

	var (
		stack    []int
		closed   []span
		inString bool
		escaped  bool
	)
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, i)
		case '}':
			if len(stack) == 0 {
				continue
			}
			start := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for len(closed) > 0 && closed[len(closed)-1].start > start {
				closed = closed[:len(closed)-1]
			}
			closed = append(closed, span{start, i + 1})
		}
	}

	objects := make([]json.RawMessage, 0, len(closed))
	for _, s := range closed {
		raw := []byte(text[s.start:s.end])
		if json.Valid(raw) {
			objects = append(objects, raw)
		}
	}
	return objects
}

// rawTrack accepts the field names models tend to use for a track.
type rawTrack struct {
	Title  string `json:"title"`
	Name   string `json:"name"`
	Song   string `json:"song"`
	Artist string `json:"artist"`
	Query  string `json:"query"`
	Reason string `json:"reason"`
}

func (r rawTrack) suggestion() (models.RawSuggestion, bool) {
	title := strings.TrimSpace(firstNonEmpty(r.Title, r.Song, r.Name))
	artist := strings.TrimSpace(r.Artist)
	if title == "" || artist == "" {
		return models.RawSuggestion{}, false
	}
	return models.RawSuggestion{Title: title, Artist: artist, Query: r.Query, Reason: r.Reason}, true
}

type suggestionEnvelope struct {
	Vibe        string     `json:"vibe"`
	Mood        string     `json:"mood"`
	Reasoning   string     `json:"reasoning"`
	Tracks      []rawTrack `json:"tracks"`
	Suggestions []rawTrack `json:"suggestions"`
	Items       []rawTrack `json:"items"`
	Songs       []rawTrack `json:"songs"`
}

func (e suggestionEnvelope) tracks() []rawTrack {
	var all []rawTrack
	all = append(all, e.Tracks...)
	all = append(all, e.Suggestions...)
	all = append(all, e.Items...)
	all = append(all, e.Songs...)
	return all
}

// ParseSuggestions extracts track suggestions from a model response.
// Accepts an envelope object with a track list, a bare array of tracks or a truncated form of either.
// Returns [shared.ErrMalformedResponse] when no usable suggestion is found.
func ParseSuggestions(text string) (*models.Suggestions, error) {
	out := &models.Suggestions{}
	for _, raw := range ExtractObjects(text) {
		var env suggestionEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}

		if list := env.tracks(); len(list) > 0 {
			out.Vibe = firstNonEmpty(out.Vibe, env.Vibe)
			out.Mood = firstNonEmpty(out.Mood, env.Mood)
			out.Reasoning = firstNonEmpty(out.Reasoning, env.Reasoning)
			for _, t := range list {
				if s, ok := t.suggestion(); ok {
					out.Items = append(out.Items, s)
				}
			}
			continue
		}

		var t rawTrack
		if err := json.Unmarshal(raw, &t); err == nil {
			if s, ok := t.suggestion(); ok {
				out.Items = append(out.Items, s)
			}
		}
	}

	if len(out.Items) == 0 {
		return nil, fmt.Errorf("%w: no track suggestions in %q", shared.ErrMalformedResponse, shared.Truncate(text, 80))
	}

	cleaned := StripFences(text)
	out.Vibe = firstNonEmpty(out.Vibe, stringField(cleaned, "vibe"))
	out.Mood = firstNonEmpty(out.Mood, stringField(cleaned, "mood"))
	out.Reasoning = firstNonEmpty(out.Reasoning, stringField(cleaned, "reasoning"))
	return out, nil
}

type rawOption struct {
	Title       string    `json:"title"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Reason      string    `json:"reason"`
	Track       *rawTrack `json:"track"`
	Seed        *rawTrack `json:"seed"`
}

type optionEnvelope struct {
	Options []rawOption `json:"options"`
	Vibes   []rawOption `json:"vibes"`
}

func (o rawOption) option() (models.VibeOption, bool) {
	track := o.Track
	if track == nil {
		track = o.Seed
	}
	if track == nil {
		return models.VibeOption{}, false
	}
	seed, ok := track.suggestion()
	title := strings.TrimSpace(firstNonEmpty(o.Title, o.Name))
	if !ok || title == "" {
		return models.VibeOption{}, false
	}
	return models.VibeOption{
		Title:       title,
		Description: strings.TrimSpace(o.Description),
		Track:       seed,
		Reason:      firstNonEmpty(o.Reason, seed.Reason),
	}, true
}

// ParseVibeOptions extracts vibe options (title, description, seed track) from a model response.
// Options without a complete seed track are dropped.
func ParseVibeOptions(text string) ([]models.VibeOption, error) {
	var options []models.VibeOption
	for _, raw := range ExtractObjects(text) {
		var env optionEnvelope
		if err := json.Unmarshal(raw, &env); err == nil && len(env.Options)+len(env.Vibes) > 0 {
			for _, o := range append(env.Options, env.Vibes...) {
				if opt, ok := o.option(); ok {
					options = append(options, opt)
				}
			}
			continue
		}

		var o rawOption
		if err := json.Unmarshal(raw, &o); err == nil {
			if opt, ok := o.option(); ok {
				options = append(options, opt)
			}
		}
	}

	if len(options) == 0 {
		return nil, fmt.Errorf("%w: no vibe options in %q", shared.ErrMalformedResponse, shared.Truncate(text, 80))
	}
	for i := range options {
		options[i].ID = fmt.Sprintf("vibe-%d", i+1)
	}
	return options, nil
}

// stringField reads a top-level string field from possibly truncated JSON text.
func stringField(text, key string) string {
	pattern := regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	var v string
	if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &v); err != nil {
		return m[1]
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
