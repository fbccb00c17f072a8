package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/persistence"
	"github.com/desertthunder/vibes/internal/shared"
	"github.com/urfave/cli/v3"
)

// Play records a playback event reported by the player.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	orch, err := r.tracker()
	if err != nil {
		return err
	}

	track := models.PlayedTrack{
		Title:      cmd.String("title"),
		Artist:     cmd.String("artist"),
		ExternalID: cmd.String("id"),
	}
	skipped := cmd.Bool("skipped")

	if err := orch.RecordPlay(ctx, track, skipped, cmd.String("context")); err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}

	verb := "Played"
	if skipped {
		verb = "Skipped"
	}
	r.writePlain("✓ %s: %s\n", verb, shared.DisplayKey(track.Title, track.Artist))
	return nil
}

// Feedback records a like or dislike for a "title - artist" track name.
func (r *Runner) Feedback(ctx context.Context, cmd *cli.Command) error {
	orch, err := r.tracker()
	if err != nil {
		return err
	}

	track := cmd.StringArg("track")
	value := cmd.StringArg("value")
	if track == "" || value == "" {
		return fmt.Errorf("%w: usage: vibes feedback \"title - artist\" like|dislike", shared.ErrMissingArgument)
	}

	if err := orch.SubmitFeedback(ctx, track, value); err != nil {
		return err
	}

	if strings.EqualFold(strings.TrimSpace(value), persistence.FeedbackDislike) {
		r.writePlain("✓ %s will no longer be suggested\n", track)
	} else {
		r.writePlain("✓ Liked %s\n", track)
	}
	return nil
}

// HistoryFavorites lists favorite tracks.
func (r *Runner) HistoryFavorites(ctx context.Context, cmd *cli.Command) error {
	favorites, err := r.history.Favorites(ctx, cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to load favorites: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(favorites, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Favorites (%d)", len(favorites)))
	for i, f := range favorites {
		liked := ""
		if f.Liked {
			liked = " ♥"
		}
		r.writePlain("%d. %s - %s (%d plays)%s\n", i+1, f.Artist, f.Title, f.PlayCount, liked)
	}
	return nil
}

// HistorySkips lists recently skipped tracks.
func (r *Runner) HistorySkips(ctx context.Context, cmd *cli.Command) error {
	skips, err := r.history.RecentSkips(ctx, cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to load skips: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(skips, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Recent skips (%d)", len(skips)))
	for i, s := range skips {
		r.writePlain("%d. %s - %s\n", i+1, s.Artist, s.Title)
	}
	return nil
}

// HistoryToday lists tracks played since midnight, plus the permanent exclusions.
func (r *Runner) HistoryToday(ctx context.Context, cmd *cli.Command) error {
	played, _, err := r.history.PlayedToday(ctx)
	if err != nil {
		return fmt.Errorf("failed to load today's plays: %w", err)
	}
	excluded, err := r.history.PermanentExclusions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load exclusions: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string][]string{"played_today": played, "excluded": excluded}, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Played today (%d)", len(played)))
	for _, p := range played {
		r.writePlain("  %s\n", p)
	}
	if len(excluded) > 0 {
		r.writePlainln("Never suggested (%d):", len(excluded))
		for _, e := range excluded {
			r.writePlain("  %s\n", e)
		}
	}
	return nil
}

func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "play",
		Usage: "Record a played or skipped track",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "title",
				Usage:    "Track title",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "artist",
				Usage:    "Track artist",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "id",
				Usage: "Track ID or URI",
			},
			&cli.BoolFlag{
				Name:  "skipped",
				Usage: "The track was skipped",
			},
			&cli.StringFlag{
				Name:  "context",
				Usage: "Where the play came from (vibe name, playlist)",
			},
		},
		Action: r.Play,
	}
}

func feedbackCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "feedback",
		Usage: "Like or dislike a track",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "track", UsageText: "\"title - artist\""},
			&cli.StringArg{Name: "value", UsageText: "like or dislike"},
		},
		Action: r.Feedback,
	}
}

func historyCommand(r *Runner) *cli.Command {
	listFlags := func(limit int) []cli.Flag {
		return []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of tracks to return",
				Value: limit,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
			},
		}
	}

	return &cli.Command{
		Name:  "history",
		Usage: "Listening history",
		Commands: []*cli.Command{
			{
				Name:   "favorites",
				Usage:  "List favorite tracks",
				Flags:  listFlags(20),
				Action: r.HistoryFavorites,
			},
			{
				Name:   "skips",
				Usage:  "List recently skipped tracks",
				Flags:  listFlags(10),
				Action: r.HistorySkips,
			},
			{
				Name:  "today",
				Usage: "List tracks played today and excluded tracks",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
					&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output"},
				},
				Action: r.HistoryToday,
			},
		},
	}
}
