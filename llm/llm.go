package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Kind classifies a completion failure
type Kind string

const (
	KindAuth      Kind = "auth"
	KindTimeout   Kind = "timeout"
	KindRateLimit Kind = "rate_limit"
	KindProvider  Kind = "provider"
	KindOther     Kind = "other"
)

// Fatal reports whether the failure is likely to recur for every further
// request made with the same credentials.
func (k Kind) Fatal() bool {
	switch k {
	case KindAuth, KindTimeout, KindRateLimit, KindProvider:
		return true
	}
	return false
}

// Error is a classified completion failure
type Error struct {
	Kind       Kind
	StatusCode int // Zero when no HTTP response was received
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error is generation-fatal
func (e *Error) Fatal() bool {
	return e.Kind.Fatal()
}

// IsFatal reports whether err is a classified, fatal completion error
func IsFatal(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Fatal()
}

// KindOf returns the classification of err, or KindOther
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

// Request is a single-turn completion request
type Request struct {
	APIKey      string
	Model       string
	System      string // Optional system prompt
	Prompt      string // User message
	MaxTokens   int
	Temperature float64
}

// Response is the generated text and the number of output tokens it used
type Response struct {
	Text         string
	OutputTokens int
}

// Config contains client configuration
type Config struct {
	BaseURL string `yaml:"base_url"` // Empty uses the provider default
}

// Client sends completion requests to the Anthropic Messages API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a new Client
func New(config Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    config.BaseURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:     logger,
	}
}

// Complete sends req and returns the first text block of the reply.
// The API key is supplied per request.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(req.APIKey),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
	}
	if c.baseURL != "" {
		opts = append(opts, option.WithBaseURL(c.baseURL))
	}
	client := anthropic.NewClient(opts...)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	c.logger.Debug("sending completion request", "model", req.Model, "max_tokens", req.MaxTokens)
	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			c.logger.Debug("received completion", "model", req.Model, "output_tokens", msg.Usage.OutputTokens)
			return &Response{Text: block.Text, OutputTokens: int(msg.Usage.OutputTokens)}, nil
		}
	}
	return nil, &Error{Kind: KindOther, Err: errors.New("response contained no text content")}
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		kind := KindProvider
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			kind = KindAuth
		case apiErr.StatusCode == http.StatusTooManyRequests:
			kind = KindRateLimit
		case apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode == http.StatusGatewayTimeout:
			kind = KindTimeout
		}
		return &Error{Kind: kind, StatusCode: apiErr.StatusCode, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	// Connection failures are provider-level
	return &Error{Kind: KindProvider, Err: err}
}
