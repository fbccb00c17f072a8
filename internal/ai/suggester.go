package ai

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/shared"
)

// MaxVibeOptions caps the number of options requested per call.
const MaxVibeOptions = 16

// Completer is the chat completion port; [Client] implements it.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Suggester turns listening context into track suggestions.
type Suggester struct {
	completer Completer
	logger    *log.Logger
}

// NewSuggester creates a Suggester that sends prompts through completer.
func NewSuggester(completer Completer, logger *log.Logger) *Suggester {
	if logger == nil {
		logger = shared.NewDiscardLogger()
	}
	return &Suggester{completer: completer, logger: logger}
}

// GenerateVibeOptions requests up to [MaxVibeOptions] vibe options.
func (s *Suggester) GenerateVibeOptions(ctx context.Context, req VibeOptionsRequest) ([]models.VibeOption, error) {
	if req.Count <= 0 || req.Count > MaxVibeOptions {
		req.Count = MaxVibeOptions
	}

	content, err := s.completer.Complete(ctx, systemPrompt, VibeOptionsPrompt(req))
	if err != nil {
		return nil, err
	}

	options, err := ParseVibeOptions(content)
	if err != nil {
		s.logger.Warn("unusable vibe options response", "error", err)
		return nil, err
	}
	if len(options) > req.Count {
		options = options[:req.Count]
	}
	return options, nil
}

// GenerateRescueVibe requests a new direction after recent skips.
func (s *Suggester) GenerateRescueVibe(ctx context.Context, req RescueRequest) (*models.Suggestions, error) {
	if req.Count <= 0 {
		req.Count = 10
	}
	return s.suggest(ctx, RescuePrompt(req))
}

// ExpandVibe requests discoveries that extend a seed track.
func (s *Suggester) ExpandVibe(ctx context.Context, req ExpandRequest) (*models.Suggestions, error) {
	if req.Count <= 0 {
		req.Count = 10
	}
	return s.suggest(ctx, ExpandPrompt(req))
}

// Backfill sends a replacement prompt and returns the raw response text.
func (s *Suggester) Backfill(ctx context.Context, prompt string) (string, error) {
	return s.completer.Complete(ctx, systemPrompt, prompt)
}

func (s *Suggester) suggest(ctx context.Context, prompt string) (*models.Suggestions, error) {
	content, err := s.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	suggestions, err := ParseSuggestions(content)
	if err != nil {
		s.logger.Warn("unusable suggestion response", "error", err)
		return nil, err
	}
	return suggestions, nil
}
