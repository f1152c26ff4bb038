package enricher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html/charset"
)

// Response is a fetched document
type Response struct {
	URL         string
	StatusCode  int
	Status      string
	ContentType string
	Body        string
}

// Fetcher performs the network GET for one URL. Transport failures are
// returned as errors; any HTTP status is returned as a Response.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// HTTPFetcher is the net/http implementation of Fetcher
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
}

// FetcherOption configures an HTTPFetcher
type FetcherOption func(*httpFetcherOptions)

type httpFetcherOptions struct {
	transport http.RoundTripper
}

// WithTransport replaces the underlying round tripper. It is still wrapped for tracing.
func WithTransport(rt http.RoundTripper) FetcherOption {
	return func(o *httpFetcherOptions) {
		o.transport = rt
	}
}

// NewHTTPFetcher creates a fetcher from config
func NewHTTPFetcher(config Config, opts ...FetcherOption) *HTTPFetcher {
	o := httpFetcherOptions{transport: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}

	maxRedirects := config.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = DefaultConfig().MaxRedirects
	}
	return &HTTPFetcher{
		client: &http.Client{
			Transport: otelhttp.NewTransport(o.transport),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent:    config.UserAgent,
		maxBodyBytes: config.MaxBodyBytes,
	}
}

// Fetch issues a GET for targetURL and decodes the body to UTF-8
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL string) (*Response, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return nil, ErrTransport{Err: fmt.Errorf("invalid URL: %w", err)}
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, ErrTransport{Err: fmt.Errorf("URL must be absolute http or https: %q", targetURL)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, ErrTransport{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyFetchError(err)
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if f.maxBodyBytes > 0 {
		body = io.LimitReader(body, f.maxBodyBytes)
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, classifyFetchError(fmt.Errorf("failed to read body: %w", err))
	}

	contentType := resp.Header.Get("Content-Type")
	text, err := decodeBody(raw, contentType)
	if err != nil {
		return nil, ErrTransport{Err: fmt.Errorf("failed to decode body: %w", err)}
	}

	return &Response{
		URL:         targetURL,
		StatusCode:  resp.StatusCode,
		Status:      resp.Status,
		ContentType: contentType,
		Body:        text,
	}, nil
}

// decodeBody converts raw to UTF-8 using the declared or sniffed charset.
// An empty body decodes to "".
func decodeBody(raw []byte, contentType string) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	decoded, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(decoded)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
