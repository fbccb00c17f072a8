// package shared defines shared helpers
package shared

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

var whitespace = regexp.MustCompile(`\s+`)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// NewDiscardLogger returns a [log.Logger] that drops everything. Used as the default for library types constructed without a logger.
func NewDiscardLogger() *log.Logger {
	return log.New(io.Discard)
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// NormalizeTrackKey builds a case and whitespace insensitive "title|artist" key.
func NormalizeTrackKey(title, artist string) string {
	t := whitespace.ReplaceAllString(strings.TrimSpace(strings.ToLower(title)), " ")
	a := whitespace.ReplaceAllString(strings.TrimSpace(strings.ToLower(artist)), " ")
	return t + "|" + a
}

// DisplayKey formats a track as "title - artist", the format used for played-today keys.
func DisplayKey(title, artist string) string {
	return fmt.Sprintf("%s - %s", title, artist)
}

// DisplayKeyToTrackKey converts a "title - artist" display key into a [NormalizeTrackKey] key.
// Keys without the separator are treated as a bare title.
func DisplayKeyToTrackKey(key string) string {
	title, artist, found := strings.Cut(key, " - ")
	if !found {
		return NormalizeTrackKey(key, "")
	}
	return NormalizeTrackKey(title, artist)
}

// StartOfDay returns midnight of the day containing t, in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// MarshalJSON marshals v, indenting when pretty is set.
func MarshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
