// Package enrich runs the batch enrichment stages over a Model's items.
//
// Each stage loads the whole document, walks the items in order mutating
// them in place, and persists the document once at the end. Stages are
// sequential and synchronous; the only throttle is the fixed delay between
// items. Concurrent stage calls against the same model are not coordinated
// and the last save wins.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docutag/enricher/llm"
	"github.com/docutag/enricher/metrics"
	"github.com/docutag/enricher/models"
)

// Store loads and saves model documents on behalf of an owner
type Store interface {
	GetModel(ctx context.Context, ownerID string, modelID int64) (*models.Model, error)
	SaveModel(ctx context.Context, ownerID string, m *models.Model) error
}

// PageScraper scrapes one item URL, trying alternate forms of it
type PageScraper interface {
	Scrape(ctx context.Context, rawURL, baseURL string) (*models.Page, error)
}

// Completer is the language-model client
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Runner executes enrichment stages
type Runner struct {
	store     Store
	scraper   PageScraper
	completer Completer
	logger    *slog.Logger
	metrics   *metrics.Metrics
	sleep     func(time.Duration)
	now       func() time.Time
	newID     func() string
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the runner's logger
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithMetrics records per-item stage outcomes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithSleep replaces the inter-item delay function
func WithSleep(sleep func(time.Duration)) Option {
	return func(r *Runner) {
		r.sleep = sleep
	}
}

// WithClock overrides the time source for generation timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a Runner
func NewRunner(store Store, scraper PageScraper, completer Completer, opts ...Option) *Runner {
	r := &Runner{
		store:     store,
		scraper:   scraper,
		completer: completer,
		logger:    slog.Default(),
		sleep:     time.Sleep,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) load(ctx context.Context, ownerID string, modelID int64) (*models.Model, error) {
	m, err := r.store.GetModel(ctx, ownerID, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %d: %w", modelID, err)
	}
	return m, nil
}

func (r *Runner) save(ctx context.Context, ownerID string, m *models.Model) error {
	if err := r.store.SaveModel(ctx, ownerID, m); err != nil {
		return fmt.Errorf("failed to save model %d: %w", m.ID, err)
	}
	return nil
}

func (r *Runner) pause(d time.Duration) {
	if d > 0 {
		r.sleep(d)
	}
}

// messageLog collects the human-readable outcome lines of a stage and
// mirrors each one to the structured log.
type messageLog struct {
	logger   *slog.Logger
	messages []string
}

func newMessageLog(logger *slog.Logger) *messageLog {
	return &messageLog{logger: logger, messages: []string{}}
}

func (l *messageLog) info(format string, args ...any) {
	l.add(slog.LevelInfo, fmt.Sprintf(format, args...))
}

func (l *messageLog) warn(format string, args ...any) {
	l.add(slog.LevelWarn, fmt.Sprintf(format, args...))
}

func (l *messageLog) fail(format string, args ...any) {
	l.add(slog.LevelError, fmt.Sprintf(format, args...))
}

func (l *messageLog) add(level slog.Level, msg string) {
	l.logger.Log(context.Background(), level, msg)
	l.messages = append(l.messages, msg)
}
