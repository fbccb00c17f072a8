package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/vibes/internal/models"
	tu "github.com/desertthunder/vibes/internal/testing"
)

func candidate(title, artist, id string) models.Candidate {
	return models.Candidate{Title: title, Artist: artist, ExternalID: id, Popularity: 50}
}

func suggestion(title, artist string) models.RawSuggestion {
	return models.RawSuggestion{Title: title, Artist: artist}
}

func TestQueries(t *testing.T) {
	if got := StrictQuery(`Say "Hi"`, "Band"); got != `track:"Say Hi" artist:"Band"` {
		t.Errorf("unexpected strict query %q", got)
	}
	if got := LooseQuery(models.RawSuggestion{Title: "A", Artist: "B"}); got != "A B" {
		t.Errorf("unexpected loose query %q", got)
	}
	if got := LooseQuery(models.RawSuggestion{Title: "A", Artist: "B", Query: "a b live"}); got != "a b live" {
		t.Errorf("suggestion query should win, got %q", got)
	}
}

func TestValidateTrack(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back to loose query", func(t *testing.T) {
		searcher := &tu.MockSearcher{Results: map[string][]models.Candidate{
			"Creep Radiohead": {candidate("Creep", "Radiohead", "spotify:track:creep")},
		}}
		p := New(searcher, nil, nil)

		got := p.ValidateTrack(ctx, models.RawSuggestion{Title: "Creep", Artist: "Radiohead", Reason: "classic"}, NewSeen())
		if got == nil {
			t.Fatal("expected a validated track")
		}
		if got.ExternalID != "spotify:track:creep" || got.Reason != "classic" || got.OriginalSuggestion != "Creep - Radiohead" {
			t.Errorf("unexpected track %+v", got)
		}
		if len(searcher.Queries) != 2 || searcher.Queries[0] != `track:"Creep" artist:"Radiohead"` {
			t.Errorf("expected strict then loose query, got %v", searcher.Queries)
		}
	})

	t.Run("strict hit skips loose query", func(t *testing.T) {
		searcher := &tu.MockSearcher{Results: map[string][]models.Candidate{
			`track:"Creep" artist:"Radiohead"`: {candidate("Creep", "Radiohead", "spotify:track:creep")},
		}}
		p := New(searcher, nil, nil)

		if got := p.ValidateTrack(ctx, suggestion("Creep", "Radiohead"), NewSeen()); got == nil {
			t.Fatal("expected a validated track")
		}
		if searcher.SearchCount() != 1 {
			t.Errorf("expected one search, got %v", searcher.Queries)
		}
	})

	t.Run("rejects below threshold", func(t *testing.T) {
		searcher := &tu.MockSearcher{Results: map[string][]models.Candidate{
			"Creep Radiohead": {candidate("Something Else", "Another Band", "x")},
		}}
		p := New(searcher, nil, nil)

		if got := p.ValidateTrack(ctx, suggestion("Creep", "Radiohead"), NewSeen()); got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("rejects seen external id", func(t *testing.T) {
		searcher := &tu.MockSearcher{Results: map[string][]models.Candidate{
			"Creep Radiohead": {candidate("Creep", "Radiohead", "spotify:track:creep")},
		}}
		p := New(searcher, nil, nil)
		seen := NewSeen()
		seen.ExcludeIDs("spotify:track:creep")

		if got := p.ValidateTrack(ctx, suggestion("Creep", "Radiohead"), seen); got != nil {
			t.Errorf("expected duplicate to be rejected, got %+v", got)
		}
	})

	t.Run("search errors degrade to no match", func(t *testing.T) {
		searcher := &tu.MockSearcher{Err: errors.New("boom")}
		p := New(searcher, nil, nil)

		if got := p.ValidateTrack(ctx, suggestion("Creep", "Radiohead"), NewSeen()); got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
		if searcher.SearchCount() != 2 {
			t.Errorf("expected both queries to be tried, got %d", searcher.SearchCount())
		}
	})
}

func TestValidateBatch(t *testing.T) {
	ctx := context.Background()
	searcher := &tu.MockSearcher{Results: map[string][]models.Candidate{
		"Creep Radiohead":        {candidate("Creep", "Radiohead", "id:creep")},
		"Karma Police Radiohead": {candidate("Karma Police", "Radiohead", "id:karma")},
		"Nightcall Kavinsky":     {candidate("Nightcall", "Kavinsky", "id:night")},
	}}
	p := New(searcher, nil, nil)

	t.Run("dedups in input order", func(t *testing.T) {
		batch := []models.RawSuggestion{
			suggestion("Creep", "Radiohead"),
			suggestion("Karma Police", "Radiohead"),
			{Title: "Creep", Artist: "Radiohead", Reason: "again"},
			suggestion("Unknown", "Nobody"),
			suggestion("Nightcall", "Kavinsky"),
		}

		got := p.ValidateBatch(ctx, batch, NewSeen())
		if len(got.Validated) != 3 {
			t.Fatalf("expected 3 validated, got %+v", got.Validated)
		}
		if got.Validated[0].ExternalID != "id:creep" || got.Validated[1].ExternalID != "id:karma" || got.Validated[2].ExternalID != "id:night" {
			t.Errorf("expected input order to be preserved, got %+v", got.Validated)
		}
		if len(got.Failed) != 2 || got.Failed[0].Reason != "again" || got.Failed[1].Title != "Unknown" {
			t.Errorf("unexpected failures %+v", got.Failed)
		}
	})

	t.Run("respects excluded labels", func(t *testing.T) {
		seen := NewSeen()
		seen.ExcludeLabels("Creep - Radiohead")

		got := p.ValidateBatch(ctx, []models.RawSuggestion{suggestion("Creep", "Radiohead")}, seen)
		if len(got.Validated) != 0 || len(got.Failed) != 1 {
			t.Errorf("expected excluded track to fail, got %+v", got)
		}
	})
}

func TestPerformBackfill(t *testing.T) {
	ctx := context.Background()
	searcher := &tu.MockSearcher{Results: map[string][]models.Candidate{
		"Creep Radiohead":        {candidate("Creep", "Radiohead", "id:creep")},
		"Karma Police Radiohead": {candidate("Karma Police", "Radiohead", "id:karma")},
		"Nightcall Kavinsky":     {candidate("Nightcall", "Kavinsky", "id:night")},
	}}
	initial := []models.RawSuggestion{suggestion("Creep", "Radiohead"), suggestion("Missing", "Ghost")}

	t.Run("bounded to two rounds", func(t *testing.T) {
		backfill := &tu.MockBackfill{Responses: []string{`{"tracks":[{"title":"Also Missing","artist":"Ghost"}]}`}}
		p := New(searcher, backfill, nil)

		got := p.Validate(ctx, Request{Suggestions: initial, Target: 5})
		if backfill.Calls() != MaxBackfillRounds {
			t.Errorf("expected exactly %d backfill calls, got %d", MaxBackfillRounds, backfill.Calls())
		}
		if got.Rounds != MaxBackfillRounds {
			t.Errorf("expected %d rounds, got %d", MaxBackfillRounds, got.Rounds)
		}
		if len(got.Validated) != 1 {
			t.Errorf("expected 1 validated, got %+v", got.Validated)
		}
		if got.Message != "found only 1 of 5 requested" {
			t.Errorf("unexpected message %q", got.Message)
		}
	})

	t.Run("stops early on empty provider answer", func(t *testing.T) {
		backfill := &tu.MockBackfill{Responses: []string{"I have no more ideas"}}
		p := New(searcher, backfill, nil)

		got := p.Validate(ctx, Request{Suggestions: initial, Target: 3})
		if backfill.Calls() != 1 {
			t.Errorf("expected one backfill call, got %d", backfill.Calls())
		}
		if got.Message != "found only 1 of 3 requested" {
			t.Errorf("unexpected message %q", got.Message)
		}
	})

	t.Run("provider errors count as empty", func(t *testing.T) {
		backfill := &tu.MockBackfill{Err: errors.New("provider down")}
		p := New(searcher, backfill, nil)

		got := p.Validate(ctx, Request{Suggestions: initial, Target: 3})
		if backfill.Calls() != 1 || len(got.Validated) != 1 {
			t.Errorf("expected a single failed round, got calls=%d validated=%d", backfill.Calls(), len(got.Validated))
		}
	})

	t.Run("fills shortfall", func(t *testing.T) {
		backfill := &tu.MockBackfill{Responses: []string{
			`{"tracks":[{"title":"Karma Police","artist":"Radiohead"},{"title":"Creep","artist":"Radiohead"},{"title":"Nightcall","artist":"Kavinsky"}]}`,
		}}
		p := New(searcher, backfill, nil)

		got := p.Validate(ctx, Request{Suggestions: initial, Target: 3})
		if backfill.Calls() != 1 {
			t.Errorf("expected one backfill call, got %d", backfill.Calls())
		}
		if len(got.Validated) != 3 || got.Message != "" {
			t.Errorf("expected target to be reached, got %+v (%q)", got.Validated, got.Message)
		}
		if got.Validated[1].ExternalID != "id:karma" {
			t.Errorf("backfilled tracks should follow the initial batch, got %+v", got.Validated)
		}
	})

	t.Run("no backfill when target met", func(t *testing.T) {
		backfill := &tu.MockBackfill{}
		p := New(searcher, backfill, nil)

		got := p.Validate(ctx, Request{Suggestions: initial, Target: 1})
		if backfill.Calls() != 0 || got.Rounds != 0 || got.Message != "" {
			t.Errorf("expected no backfill, got calls=%d result=%+v", backfill.Calls(), got)
		}
	})

	t.Run("excluded ids never validate", func(t *testing.T) {
		p := New(searcher, nil, nil)

		got := p.Validate(ctx, Request{Suggestions: initial, Target: 1, ExcludeIDs: []string{"id:creep"}})
		if len(got.Validated) != 0 {
			t.Errorf("expected excluded id to be filtered, got %+v", got.Validated)
		}
	})
}
