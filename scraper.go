package enricher

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/docutag/enricher/metrics"
	"github.com/docutag/enricher/models"
)

// Config contains scraper configuration
type Config struct {
	Timeout      time.Duration `yaml:"timeout"`        // Per-candidate fetch timeout
	UserAgent    string        `yaml:"user_agent"`     // User-Agent header sent with every fetch
	MaxBodyBytes int64         `yaml:"max_body_bytes"` // Response bodies are truncated beyond this size
	MaxRedirects int           `yaml:"max_redirects"`
}

// DefaultConfig returns default scraper configuration
func DefaultConfig() Config {
	return Config{
		Timeout:      10 * time.Second,
		UserAgent:    "Mozilla/5.0 (compatible; Enricher/1.0)",
		MaxBodyBytes: 10 * 1024 * 1024, // 10MB
		MaxRedirects: 10,
	}
}

// Scraper resolves a raw URL into candidates and scrapes the first one that fetches.
type Scraper struct {
	config  Config
	fetcher Fetcher
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Scraper
type Option func(*Scraper)

// WithFetcher replaces the default HTTP fetcher
func WithFetcher(f Fetcher) Option {
	return func(s *Scraper) {
		s.fetcher = f
	}
}

// WithLogger sets the logger used for per-candidate diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(s *Scraper) {
		s.logger = l
	}
}

// WithMetrics records fetch outcomes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scraper) {
		s.metrics = m
	}
}

// WithClock overrides the time source used for scraped_at
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) {
		s.now = now
	}
}

// New creates a new Scraper instance
func New(config Config, opts ...Option) *Scraper {
	s := &Scraper{
		config: config,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fetcher == nil {
		s.fetcher = NewHTTPFetcher(config)
	}
	return s
}

// Scrape tries each candidate URL for rawURL in priority order. The first
// candidate that fetches with a 2xx status is extracted and returned, even
// if extraction only finds placeholders. When all candidates fail the
// returned error is an *ErrScrapeFailed.
func (s *Scraper) Scrape(ctx context.Context, rawURL, baseURL string) (*models.Page, error) {
	log := s.logger.With("url", rawURL)
	candidates := Candidates(rawURL, baseURL)

	attempts := make([]error, 0, len(candidates))
	for _, candidate := range candidates {
		resp, err := s.fetch(ctx, candidate)
		if err != nil {
			log.Debug("candidate failed", "candidate", candidate, "error", err)
			s.metrics.IncFetch("failed")
			s.metrics.IncFetchError(ErrorTypeLabel(err))
			attempts = append(attempts, err)
			continue
		}
		s.metrics.IncFetch("ok")

		extracted, err := ExtractString(resp.Body)
		if err != nil {
			// goquery only fails on reader errors, which cannot happen on a string
			return nil, err
		}

		log.Info("scraped", "candidate", candidate)
		return &models.Page{
			ResolvedURL:     candidate,
			Title:           extracted.Title,
			H1:              extracted.H1,
			MetaDescription: extracted.MetaDescription,
			TextContent:     extracted.TextContent,
			ScrapedAt:       s.now().UTC(),
		}, nil
	}

	err := &ErrScrapeFailed{URL: rawURL, Attempts: attempts}
	log.Warn("all candidates failed", "candidates", len(candidates))
	return nil, err
}

// fetch performs one bounded fetch and treats non-2xx statuses as failures
func (s *Scraper) fetch(ctx context.Context, candidate string) (*Response, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	resp, err := s.fetcher.Fetch(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ErrStatus{Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}
	return resp, nil
}
