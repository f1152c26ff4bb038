package models

import "time"

// User is an authenticated caller. Users are created on their first authenticated request.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Model is a user-owned, named collection of Items sharing a base URL
type Model struct {
	ID            int64     `json:"id"`
	OwnerID       string    `json:"-"`
	Name          string    `json:"name"`
	BaseURL       string    `json:"base_url"`
	URLColumn     string    `json:"url_column"` // Column that supplied the URL (provenance only)
	CreatedAt     time.Time `json:"created_at"`
	LastScrapedID int       `json:"last_scraped_id"` // Index of the last item visited by the latest scrape pass
	Data          Document  `json:"data"`
}

// ModelSummary is the listing view of a Model
type ModelSummary struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CSVFile describes an uploaded spreadsheet. The raw bytes live in blob storage.
type CSVFile struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"-"`
	Filename   string    `json:"filename"`
	StorageKey string    `json:"-"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// GenerationAttempt is one language-model rewrite of an item's text content
type GenerationAttempt struct {
	ID        string    `json:"id,omitempty"`
	Slot      int       `json:"slot"` // n in alt-content-<n>
	Model     string    `json:"model,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	Text      string    `json:"text"`
	Tokens    int       `json:"tokens"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Query is a saved test lookup with the results it produced
type Query struct {
	Query     string         `json:"query"`
	Method    string         `json:"method,omitempty"`
	Results   []SearchResult `json:"results"`
	CreatedAt *time.Time     `json:"created_at,omitempty"`
}

// SearchResult is a single entry returned by a test lookup
type SearchResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Rank  string `json:"rank,omitempty"` // Only set on the trailing highlighted-url entry
}

// Page is the outcome of a successful scrape of one URL
type Page struct {
	ResolvedURL     string    `json:"resolved_url"`
	Title           string    `json:"title"`
	H1              string    `json:"h1"`
	MetaDescription string    `json:"meta_description"`
	TextContent     string    `json:"text_content"`
	ScrapedAt       time.Time `json:"scraped_at"`
}
