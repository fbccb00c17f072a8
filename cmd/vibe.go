package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/vibes/internal/formatter"
	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/recommend"
	"github.com/desertthunder/vibes/internal/shared"
	"github.com/urfave/cli/v3"
)

// VibeOptions generates a set of vibes to start listening from.
func (r *Runner) VibeOptions(ctx context.Context, cmd *cli.Command) error {
	orch, err := r.recommender()
	if err != nil {
		return err
	}

	instruction := cmd.String("instruction")
	r.logger.Info("generating vibe options", "instruction", instruction)

	options := orch.VibeOptions(ctx, instruction)
	if len(options) == 0 {
		r.logger.Warn("no vibe options could be validated")
	}
	return r.render(cmd, options)
}

// VibeRescue replaces the current vibe after a run of skips. The skips come from the recorded history.
func (r *Runner) VibeRescue(ctx context.Context, cmd *cli.Command) error {
	orch, err := r.recommender()
	if err != nil {
		return err
	}

	r.logger.Info("rescuing vibe")
	return r.renderResult(cmd, orch.RescueVibe(ctx, nil))
}

// VibeExpand extends the vibe around a seed track.
func (r *Runner) VibeExpand(ctx context.Context, cmd *cli.Command) error {
	orch, err := r.recommender()
	if err != nil {
		return err
	}

	seed := models.PlayedTrack{
		Title:      cmd.String("title"),
		Artist:     cmd.String("artist"),
		ExternalID: cmd.String("id"),
	}
	if seed.Title == "" && seed.ExternalID == "" {
		return fmt.Errorf("%w: --title or --id is required", shared.ErrMissingArgument)
	}

	queue := make([]models.PlayedTrack, 0, len(cmd.StringSlice("queue")))
	for _, q := range cmd.StringSlice("queue") {
		queue = append(queue, parseTrackName(q))
	}

	r.logger.Info("expanding vibe", "seed", shared.DisplayKey(seed.Title, seed.Artist), "queue", len(queue))
	res := orch.ExpandVibe(ctx, seed, recommend.ExpandContext{Queue: queue, Mood: cmd.String("mood")})
	return r.renderResult(cmd, res)
}

// VibeChange records the active vibe.
func (r *Runner) VibeChange(ctx context.Context, cmd *cli.Command) error {
	orch, err := r.tracker()
	if err != nil {
		return err
	}

	name := strings.TrimSpace(cmd.StringArg("name"))
	if name == "" {
		return fmt.Errorf("%w: vibe name", shared.ErrMissingArgument)
	}

	orch.ChangeVibe(ctx, name)
	r.writePlain("✓ Vibe set to %s\n", name)
	return nil
}

func (r *Runner) renderResult(cmd *cli.Command, res *models.VibeResult) error {
	if res == nil || len(res.Items) == 0 {
		r.writePlain("No tracks could be found for this vibe. Try again later or ingest more playlists.\n")
		return nil
	}

	if dir := cmd.String("bundle"); dir != "" {
		export, warnings, err := formatter.WriteMarkdownExport(res, dir)
		if err != nil {
			return err
		}
		for _, w := range warnings {
			r.logger.Warn("export warning", "error", w)
		}
		r.writePlain("✓ Exported %d files to %s\n", len(export.Files), export.Directory)
		return nil
	}
	return r.render(cmd, res)
}

// render writes v in the --format format, to --output when set and to stdout otherwise.
func (r *Runner) render(cmd *cli.Command, v any) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteExport(v, format, path)
		if err != nil {
			return err
		}
		r.writePlain("✓ Saved to %s\n", written)
		return nil
	}
	return formatter.Render(r.output, format, v)
}

// parseTrackName splits a "title - artist" display name. A name without the separator is a bare title.
func parseTrackName(name string) models.PlayedTrack {
	title, artist, _ := strings.Cut(strings.TrimSpace(name), " - ")
	return models.PlayedTrack{Title: strings.TrimSpace(title), Artist: strings.TrimSpace(artist)}
}

func vibeCommand(r *Runner) *cli.Command {
	formatFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format (text, markdown, csv, json)",
				Value:   string(formatter.FormatText),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write output to a file instead of stdout",
			},
		}
	}

	return &cli.Command{
		Name:  "vibe",
		Usage: "Generate, rescue and expand vibes",
		Commands: []*cli.Command{
			{
				Name:  "options",
				Usage: "Suggest vibes to start a session with",
				Flags: append(formatFlags(),
					&cli.StringFlag{
						Name:    "instruction",
						Aliases: []string{"i"},
						Usage:   "Free-form direction for the suggestions",
					},
				),
				Action: r.VibeOptions,
			},
			{
				Name:  "rescue",
				Usage: "Replace the current vibe after repeated skips",
				Flags: append(formatFlags(),
					&cli.StringFlag{
						Name:  "bundle",
						Usage: "Export a Markdown bundle with cover art to this directory",
					},
				),
				Action: r.VibeRescue,
			},
			{
				Name:  "expand",
				Usage: "Find more tracks like a seed track",
				Flags: append(formatFlags(),
					&cli.StringFlag{
						Name:  "title",
						Usage: "Seed track title",
					},
					&cli.StringFlag{
						Name:  "artist",
						Usage: "Seed track artist",
					},
					&cli.StringFlag{
						Name:  "id",
						Usage: "Seed track ID or URI",
					},
					&cli.StringFlag{
						Name:  "mood",
						Usage: "Mood to steer the expansion",
					},
					&cli.StringSliceFlag{
						Name:  "queue",
						Usage: "Queued track as \"title - artist\" (repeatable)",
					},
					&cli.StringFlag{
						Name:  "bundle",
						Usage: "Export a Markdown bundle with cover art to this directory",
					},
				),
				Action: r.VibeExpand,
			},
			{
				Name:      "change",
				Usage:     "Set the active vibe",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Action:    r.VibeChange,
			},
		},
	}
}
