package enrich

import (
	"context"
	"errors"
	"strings"

	"github.com/docutag/enricher/llm"
)

// Rating call parameters
const (
	RatingMethodClaude = "claude"
	RatingModel        = "claude-3-haiku-20240307"
	RatingMaxTokens    = 300
	RatingSystemPrompt = "Rate the following content out of 100 based on how much you would recommend it to a user. " +
		"Consider factors such as clarity, informativeness, and engagement. " +
		"Provide your reasoning, and then at the end of your response, include the total numerical rating between two hash symbols, like this: #90#"
)

var (
	// ErrUnsupportedRatingMethod is a configuration error raised before any item is touched
	ErrUnsupportedRatingMethod = errors.New("unsupported rating method")
	// ErrMissingField is returned when no target field was named
	ErrMissingField = errors.New("content field is required")
)

// RateOptions are the inputs of one rating pass
type RateOptions struct {
	APIKey string
	Field  string // Item key whose value is rated; the result goes to <Field>-rating
	Method string
}

// RateResult is the outcome of a rating pass
type RateResult struct {
	Messages   []string `json:"messages"`
	TotalRated int      `json:"total_rated"`
}

// Rate scores opts.Field of every item. Failures are logged per item and do
// not stop the pass. The document is saved only when at least one item was rated.
func (r *Runner) Rate(ctx context.Context, ownerID string, modelID int64, opts RateOptions) (*RateResult, error) {
	empty := &RateResult{Messages: []string{}}
	if opts.Method != RatingMethodClaude {
		return empty, ErrUnsupportedRatingMethod
	}
	if opts.APIKey == "" {
		return empty, ErrMissingAPIKey
	}
	if opts.Field == "" {
		return empty, ErrMissingField
	}

	m, err := r.load(ctx, ownerID, modelID)
	if err != nil {
		return nil, err
	}

	logger := r.logger.With("model_id", modelID, "stage", "rate", "field", opts.Field)
	msgs := newMessageLog(logger)
	total := 0

	for i := range m.Data.Items {
		item := &m.Data.Items[i]
		content, ok := item.Field(opts.Field)
		if !ok {
			msgs.warn("Skipped rating for URL %s: No %s found", item.URL, opts.Field)
			r.metrics.IncStageItem("rate", "skipped")
			continue
		}
		if strings.TrimSpace(content) == "" {
			msgs.warn("Skipped rating for URL %s: Empty %s", item.URL, opts.Field)
			r.metrics.IncStageItem("rate", "skipped")
			continue
		}

		rating, err := r.rate(ctx, opts.APIKey, content)
		if err != nil {
			msgs.fail("Error rating %s for URL %s: %v", opts.Field, item.URL, err)
			r.metrics.IncStageItem("rate", "failed")
			continue
		}

		item.SetRating(opts.Field, rating)
		total++
		r.metrics.IncStageItem("rate", "ok")
		msgs.info("Rated %s for URL %s: %d/100", opts.Field, item.URL, rating)
	}

	if total > 0 {
		if err := r.save(ctx, ownerID, m); err != nil {
			return nil, err
		}
		logger.Info("rating completed", "total_rated", total)
	} else {
		logger.Warn("no content found to rate")
	}

	return &RateResult{Messages: msgs.messages, TotalRated: total}, nil
}

func (r *Runner) rate(ctx context.Context, apiKey, content string) (int, error) {
	resp, err := r.completer.Complete(ctx, llm.Request{
		APIKey:    apiKey,
		Model:     RatingModel,
		System:    RatingSystemPrompt,
		Prompt:    content,
		MaxTokens: RatingMaxTokens,
	})
	if err != nil {
		return 0, err
	}
	return ExtractRating(strings.TrimSpace(resp.Text))
}
