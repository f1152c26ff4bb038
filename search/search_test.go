package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docutag/enricher/models"
)

const googleURL = "https://www.google.com/search"

func serpPage(hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><div id=\"search\">")
	for i, href := range hrefs {
		if href == "" {
			fmt.Fprintf(&b, `<div class="g"><div class="yuRUbf"><a href="https://untitled.example/%d"></a></div></div>`, i)
			continue
		}
		fmt.Fprintf(&b, `<div class="g"><div class="yuRUbf"><a href="%s"><h3>Result %d</h3></a></div></div>`, href, i+1)
	}
	b.WriteString("</div></body></html>")
	return b.String()
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func newTestService(transport *httpmock.MockTransport) *Service {
	return New(DefaultConfig(),
		WithTransport(transport),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func urls(results []models.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.URL
	}
	return out
}

func TestGoogleSearch(t *testing.T) {
	page := serpPage("https://a.example", "https://b.example", "https://c.example", "https://d.example")

	tests := []struct {
		name        string
		req         Request
		wantURLs    []string
		wantLastRow *models.SearchResult
	}{
		{
			name:     "stops at max return",
			req:      Request{Query: "go", MaxReturn: 2, MaxHighlightSearch: 50},
			wantURLs: []string{"https://a.example", "https://b.example"},
		},
		{
			name:     "highlighted result right after the cut is kept",
			req:      Request{Query: "go", MaxReturn: 2, MaxHighlightSearch: 50, HighlightedURL: "https://c.example"},
			wantURLs: []string{"https://a.example", "https://b.example", "https://c.example"},
		},
		{
			name:     "highlighted result inside the window adds nothing",
			req:      Request{Query: "go", MaxReturn: 3, MaxHighlightSearch: 50, HighlightedURL: "https://b.example"},
			wantURLs: []string{"https://a.example", "https://b.example", "https://c.example"},
		},
		{
			name:     "missing highlighted url is appended",
			req:      Request{Query: "go", MaxReturn: 1, MaxHighlightSearch: 20, HighlightedURL: "https://d.example"},
			wantURLs: []string{"https://a.example", "https://d.example"},
			wantLastRow: &models.SearchResult{
				Title: HighlightedTitle,
				URL:   "https://d.example",
				Rank:  "Not found in top 20",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", googleURL, htmlResponder(page))

			results, err := newTestService(transport).Search(context.Background(), MethodGoogle, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantURLs, urls(results))
			if tt.wantLastRow != nil {
				assert.Equal(t, *tt.wantLastRow, results[len(results)-1])
			}
			assert.Equal(t, 1, transport.GetTotalCallCount())
		})
	}
}

func TestGoogleSearchRequestShape(t *testing.T) {
	transport := httpmock.NewMockTransport()
	var gotQuery, gotAgent string
	transport.RegisterResponder("GET", googleURL, func(req *http.Request) (*http.Response, error) {
		gotQuery = req.URL.RawQuery
		gotAgent = req.Header.Get("User-Agent")
		return htmlResponder(serpPage(""))(req)
	})

	results, err := newTestService(transport).Search(context.Background(), MethodGoogle,
		Request{Query: "best go books", MaxReturn: 5, MaxHighlightSearch: 30})
	require.NoError(t, err)

	assert.Equal(t, "q=best+go+books&num=30", gotQuery)
	assert.Equal(t, DefaultConfig().UserAgent, gotAgent)
	require.Len(t, results, 1)
	assert.Equal(t, "No title", results[0].Title)
}

func TestGoogleSearchHTTPError(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", googleURL, httpmock.NewStringResponder(429, "slow down"))

	_, err := newTestService(transport).Search(context.Background(), MethodGoogle, Request{Query: "go", MaxReturn: 5})
	assert.ErrorContains(t, err, "failed to fetch search results")
}

func TestGoogleSearchCancelledContext(t *testing.T) {
	transport := httpmock.NewMockTransport()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestService(transport).Search(ctx, MethodGoogle, Request{Query: "go", MaxReturn: 5})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestPlaceholderSearch(t *testing.T) {
	results, err := newTestService(httpmock.NewMockTransport()).Search(context.Background(), MethodGPT, Request{Query: "x", MaxReturn: 3})
	require.NoError(t, err)
	assert.Equal(t, []models.SearchResult{
		{Title: "GPT Result 1", URL: "https://example.com/gpt-result-1"},
		{Title: "GPT Result 2", URL: "https://example.com/gpt-result-2"},
		{Title: "GPT Result 3", URL: "https://example.com/gpt-result-3"},
	}, results)
}

func TestUnsupportedMethod(t *testing.T) {
	_, err := newTestService(httpmock.NewMockTransport()).Search(context.Background(), "bing", Request{Query: "x"})
	assert.ErrorIs(t, err, ErrUnsupportedMethod)
}
