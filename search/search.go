// Package search runs test queries against a results source and reports
// where a highlighted url ranks.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docutag/enricher/models"
)

// Supported test methods
const (
	MethodGoogle = "google"
	MethodGPT    = "gpt"
)

// Request defaults
const (
	DefaultMaxReturn          = 5
	DefaultMaxHighlightSearch = 50
)

// HighlightedTitle is the title of the trailing entry reporting the highlighted url
const HighlightedTitle = "Highlighted URL"

// ErrUnsupportedMethod is returned for test methods other than google and gpt
var ErrUnsupportedMethod = errors.New("unsupported test method")

// Request is one test query
type Request struct {
	Query              string
	MaxReturn          int
	MaxHighlightSearch int
	HighlightedURL     string
}

// Config contains search configuration
type Config struct {
	GoogleBaseURL string        `yaml:"google_base_url"`
	UserAgent     string        `yaml:"user_agent"`
	Timeout       time.Duration `yaml:"timeout"`
}

// DefaultConfig returns default search settings
func DefaultConfig() Config {
	return Config{
		GoogleBaseURL: "https://www.google.com/search",
		UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		Timeout:       15 * time.Second,
	}
}

// Service dispatches test queries by method
type Service struct {
	config    Config
	transport http.RoundTripper
	logger    *slog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithTransport sets the round tripper used for result page requests
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Service) {
		s.transport = rt
	}
}

// WithLogger sets the service logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// New creates a Service
func New(config Config, opts ...Option) *Service {
	s := &Service{
		config:    config,
		transport: http.DefaultTransport,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search runs req with the named method
func (s *Service) Search(ctx context.Context, method string, req Request) ([]models.SearchResult, error) {
	switch method {
	case MethodGoogle:
		return s.google(ctx, req)
	case MethodGPT:
		return placeholderResults(req.MaxReturn), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
}

func (s *Service) google(ctx context.Context, req Request) ([]models.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	collector := colly.NewCollector(
		colly.UserAgent(s.config.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.WithTransport(otelhttp.NewTransport(s.transport))
	if s.config.Timeout > 0 {
		collector.SetRequestTimeout(s.config.Timeout)
	}

	results := []models.SearchResult{}
	seen := 0
	stopped := false

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	collector.OnHTML("div.yuRUbf", func(e *colly.HTMLElement) {
		if stopped {
			return
		}
		href := e.ChildAttr("a", "href")
		if seen >= req.MaxReturn && href != req.HighlightedURL {
			stopped = true
			return
		}
		seen++

		title := "No title"
		if e.DOM.Find("h3").Length() > 0 {
			title = e.ChildText("h3")
		}
		results = append(results, models.SearchResult{Title: title, URL: href})
	})

	target := s.config.GoogleBaseURL + "?q=" + url.QueryEscape(req.Query) + "&num=" + strconv.Itoa(req.MaxHighlightSearch)
	if err := collector.Visit(target); err != nil {
		return nil, fmt.Errorf("failed to fetch search results: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.Info("search results collected", "query", req.Query, "results", len(results))
	return appendHighlighted(results, req), nil
}

// appendHighlighted adds the trailing highlighted-url entry when that url is
// not already among results. By construction its rank is never known.
func appendHighlighted(results []models.SearchResult, req Request) []models.SearchResult {
	if req.HighlightedURL == "" {
		return results
	}
	for _, r := range results {
		if r.URL == req.HighlightedURL {
			return results
		}
	}
	return append(results, models.SearchResult{
		Title: HighlightedTitle,
		URL:   req.HighlightedURL,
		Rank:  "Not found in top " + strconv.Itoa(req.MaxHighlightSearch),
	})
}

func placeholderResults(n int) []models.SearchResult {
	results := make([]models.SearchResult, 0, max(n, 0))
	for i := 1; i <= n; i++ {
		results = append(results, models.SearchResult{
			Title: "GPT Result " + strconv.Itoa(i),
			URL:   "https://example.com/gpt-result-" + strconv.Itoa(i),
		})
	}
	return results
}
