package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docutag/enricher/llm"
	"github.com/docutag/enricher/models"
)

// Generate stage defaults
const (
	DefaultGenerationModel = "claude-3-sonnet-20240229"
	DefaultMaxTokens       = 8000
	DefaultRateLimit       = 10
	DefaultGenerateDelay   = time.Second
)

// ErrMissingAPIKey is returned when a stage that calls the model has no key
var ErrMissingAPIKey = errors.New("API key is required")

// GenerateOptions are the inputs of one generation pass
type GenerateOptions struct {
	APIKey    string
	Prompt    string
	Model     string
	MaxTokens int
	RateLimit int           // Maximum number of items sent to the model
	Delay     time.Duration // Pause after every successful generation
}

// DefaultGenerateOptions returns the stage defaults. APIKey and Prompt are left empty.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Model:     DefaultGenerationModel,
		MaxTokens: DefaultMaxTokens,
		RateLimit: DefaultRateLimit,
		Delay:     DefaultGenerateDelay,
	}
}

// GenerateResult is the outcome of a generation pass
type GenerateResult struct {
	Messages             []string `json:"messages"`
	TotalTokensGenerated int      `json:"total_tokens_generated"`
	Processed            int      `json:"processed"`
	Aborted              bool     `json:"aborted"` // Set when a fatal model error stopped the pass
}

// Generate writes a new alt-content slot for each item that has text content,
// until RateLimit items have been generated. A fatal model failure (auth,
// timeout, rate limit, provider) stops the pass; items already generated in
// this call are still persisted.
func (r *Runner) Generate(ctx context.Context, ownerID string, modelID int64, opts GenerateOptions) (*GenerateResult, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if opts.Model == "" {
		opts.Model = DefaultGenerationModel
	}

	m, err := r.load(ctx, ownerID, modelID)
	if err != nil {
		return nil, err
	}

	logger := r.logger.With("model_id", modelID, "stage", "generate", "llm_model", opts.Model)
	msgs := newMessageLog(logger)
	result := &GenerateResult{}

	for i := range m.Data.Items {
		if result.Processed >= opts.RateLimit {
			logger.Info("rate limit reached", "processed", result.Processed)
			break
		}
		item := &m.Data.Items[i]
		if item.TextContent == nil {
			msgs.warn("Skipped item: No text content available for URL %s", item.URL)
			r.metrics.IncStageItem("generate", "skipped")
			continue
		}

		resp, err := r.completer.Complete(ctx, llm.Request{
			APIKey:    opts.APIKey,
			Model:     opts.Model,
			Prompt:    fmt.Sprintf("%s\n\nContent: %s", opts.Prompt, *item.TextContent),
			MaxTokens: opts.MaxTokens,
		})
		if err != nil {
			if llm.IsFatal(err) {
				msgs.fail("Anthropic API error for URL %s: %v", item.URL, err)
				r.metrics.IncStageItem("generate", "aborted")
				result.Aborted = true
				break
			}
			msgs.fail("Error generating alt content for URL %s: %v", item.URL, err)
			r.metrics.IncStageItem("generate", "failed")
			continue
		}

		slot := NextSlot(item, models.AltContentPrefix)
		item.AppendGeneration(models.GenerationAttempt{
			ID:        r.newID(),
			Slot:      slot,
			Model:     opts.Model,
			Prompt:    opts.Prompt,
			Text:      resp.Text,
			Tokens:    resp.OutputTokens,
			CreatedAt: r.now().UTC(),
		})
		result.TotalTokensGenerated += resp.OutputTokens
		result.Processed++
		r.metrics.IncStageItem("generate", "ok")
		r.metrics.AddTokens(resp.OutputTokens)
		msgs.info("Generated %s for URL: %s. Tokens: %d", models.AltContentKey(slot), item.URL, resp.OutputTokens)

		r.pause(opts.Delay)
	}

	if err := r.save(ctx, ownerID, m); err != nil {
		return nil, err
	}

	result.Messages = msgs.messages
	logger.Info("alt content generation completed", "total_tokens_generated", result.TotalTokensGenerated, "aborted", result.Aborted)
	return result, nil
}
