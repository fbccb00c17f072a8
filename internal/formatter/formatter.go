// package formatter renders vibe options and vibe results as plain text, Markdown, CSV or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/shared"
)

// Format is an output format name.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
)

// Extension returns the file extension for the format.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatCSV:
		return ".csv"
	case FormatJSON:
		return ".json"
	default:
		return ".txt"
	}
}

// ParseFormat accepts a format name or a common alias ("txt", "md").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// VibeOptionsToCSV converts vibe options to CSV with columns: ID, Title, Description, Seed Title, Seed Artist, External ID
func VibeOptionsToCSV(options []models.VibeOption) ([]byte, error) {
	rows := make([][]string, 0, len(options))
	for _, opt := range options {
		title, artist, id := opt.Track.Title, opt.Track.Artist, ""
		if opt.Seed != nil {
			title, artist, id = opt.Seed.Title, opt.Seed.Artist, opt.Seed.ExternalID
		}
		rows = append(rows, []string{opt.ID, opt.Title, opt.Description, title, artist, id})
	}
	return writeCSV([]string{"ID", "Title", "Description", "Seed Title", "Seed Artist", "External ID"}, rows)
}

// VibeResultToCSV converts a vibe result to CSV with columns: Position, Title, Artist, External ID, Reason
func VibeResultToCSV(res *models.VibeResult) ([]byte, error) {
	rows := make([][]string, 0, len(res.Items))
	for i, t := range res.Items {
		rows = append(rows, []string{strconv.Itoa(i + 1), t.Title, t.Artist, t.ExternalID, t.Reason})
	}
	return writeCSV([]string{"Position", "Title", "Artist", "External ID", "Reason"}, rows)
}

func writeCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, record := range rows {
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// VibeOptionsToMarkdown converts vibe options to a Markdown list
func VibeOptionsToMarkdown(options []models.VibeOption) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Vibe Options\n\n")
	if len(options) == 0 {
		buf.WriteString("_No vibes available._\n")
		return buf.Bytes(), nil
	}

	for i, opt := range options {
		fmt.Fprintf(&buf, "## %d. %s\n\n", i+1, opt.Title)
		if opt.Description != "" {
			fmt.Fprintf(&buf, "%s\n\n", opt.Description)
		}
		if opt.Seed != nil {
			fmt.Fprintf(&buf, "**Starts with**: %s - %s\n\n", opt.Seed.Title, opt.Seed.Artist)
		}
	}
	return buf.Bytes(), nil
}

// VibeResultToMarkdown converts a vibe result to Markdown with an optional cover image
func VibeResultToMarkdown(res *models.VibeResult, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", res.Vibe)
	if imageFilename != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", imageFilename)
	}
	if res.Reasoning != "" {
		fmt.Fprintf(&buf, "**Why**: %s\n\n", res.Reasoning)
	}
	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(res.Items))
	fmt.Fprintf(&buf, "**Source**: %s\n\n", res.Source)
	if res.Message != "" {
		fmt.Fprintf(&buf, "> %s\n\n", res.Message)
	}

	buf.WriteString("## Tracks\n\n")
	for i, t := range res.Items {
		reason := ""
		if t.Reason != "" {
			reason = fmt.Sprintf(" (%s)", t.Reason)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s\n", i+1, t.Artist, t.Title, reason)
	}
	return buf.Bytes(), nil
}

// VibeOptionsToText converts vibe options to plain text
func VibeOptionsToText(options []models.VibeOption) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Vibes: %d\n\n", len(options))
	for i, opt := range options {
		fmt.Fprintf(&buf, "%d. %s\n", i+1, opt.Title)
		if opt.Description != "" {
			fmt.Fprintf(&buf, "   %s\n", shared.Truncate(opt.Description, 80))
		}
		if opt.Seed != nil {
			fmt.Fprintf(&buf, "   > %s - %s\n", opt.Seed.Artist, opt.Seed.Title)
		}
	}
	return buf.Bytes(), nil
}

// VibeResultToText converts a vibe result to plain text
func VibeResultToText(res *models.VibeResult) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Vibe: %s\n", res.Vibe)
	if res.Reasoning != "" {
		fmt.Fprintf(&buf, "Why: %s\n", res.Reasoning)
	}
	fmt.Fprintf(&buf, "Source: %s\n", res.Source)
	fmt.Fprintf(&buf, "Tracks: %d\n", len(res.Items))
	if res.Message != "" {
		fmt.Fprintf(&buf, "Note: %s\n", res.Message)
	}
	buf.WriteString("\n")

	for i, t := range res.Items {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, t.Artist, t.Title)
	}
	return buf.Bytes(), nil
}

// Encode renders v in the given format. v must be a []models.VibeOption or a *models.VibeResult;
// anything else is only accepted as JSON.
func Encode(f Format, v any) ([]byte, error) {
	if f == FormatJSON {
		return shared.MarshalJSON(v, true)
	}

	switch v := v.(type) {
	case []models.VibeOption:
		switch f {
		case FormatCSV:
			return VibeOptionsToCSV(v)
		case FormatMarkdown:
			return VibeOptionsToMarkdown(v)
		default:
			return VibeOptionsToText(v)
		}
	case *models.VibeResult:
		if v == nil {
			return nil, fmt.Errorf("%w: no result to format", shared.ErrInvalidInput)
		}
		switch f {
		case FormatCSV:
			return VibeResultToCSV(v)
		case FormatMarkdown:
			return VibeResultToMarkdown(v, "")
		default:
			return VibeResultToText(v)
		}
	default:
		return nil, fmt.Errorf("%w: %T cannot be rendered as %s", shared.ErrInvalidInput, v, f)
	}
}

// Render encodes v and writes it to w.
func Render(w io.Writer, f Format, v any) error {
	data, err := Encode(f, v)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// WriteExport encodes v to a file.
//
// Defaults to vibe_{epoch}{ext} in the working directory when path is empty.
func WriteExport(v any, f Format, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("vibe_%d%s", time.Now().Unix(), f.Extension())
	}

	data, err := Encode(f, v)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", f, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", f, err)
	}
	return path, nil
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return imageData, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
}

// WriteMarkdownExport writes a vibe result to {dir}/README.md.
//
// The artwork of the first track that has one is downloaded to {dir}/cover.jpg. A failed download
// is returned as a warning and the export continues without a cover.
func WriteMarkdownExport(res *models.VibeResult, outputDir string) (*MarkdownExportResult, []error, error) {
	if res == nil {
		return nil, nil, fmt.Errorf("%w: no result to export", shared.ErrInvalidInput)
	}
	if outputDir == "" {
		outputDir = slug(res.Vibe)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{Directory: outputDir, Files: []string{}}
	var warnings []error

	var coverFilename string
	if url := coverURL(res); url != "" {
		if imageData, err := DownloadImage(url); err != nil {
			warnings = append(warnings, err)
		} else {
			coverPath := filepath.Join(outputDir, "cover.jpg")
			if err := os.WriteFile(coverPath, imageData, 0644); err != nil {
				warnings = append(warnings, fmt.Errorf("failed to save cover image: %w", err))
			} else {
				coverFilename = "cover.jpg"
				result.CoverImage = coverPath
				result.Files = append(result.Files, coverPath)
			}
		}
	}

	mdData, err := VibeResultToMarkdown(res, coverFilename)
	if err != nil {
		return nil, warnings, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, warnings, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	result.Files = append(result.Files, mdFile)
	return result, warnings, nil
}

func coverURL(res *models.VibeResult) string {
	for _, t := range res.Items {
		if t.ArtworkURL != "" {
			return t.ArtworkURL
		}
	}
	return ""
}

// slug lowercases s and keeps letters and digits, joining words with underscores.
func slug(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	if len(fields) == 0 {
		return "vibe"
	}
	return strings.Join(fields, "_")
}
