package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docutag/enricher/db"
	"github.com/docutag/enricher/enrich"
	"github.com/docutag/enricher/ingest"
	"github.com/docutag/enricher/models"
	"github.com/docutag/enricher/search"
	"github.com/docutag/enricher/storage"
)

const (
	msgMissingFields  = "Missing required fields"
	msgModelNotFound  = "Model not found or unauthorized"
	msgCSVNotFound    = "CSV not found or unauthorized"
	msgInvalidBody    = "invalid request body"
	msgInvalidModelID = "invalid model id"
)

// decodeBody decodes an optional JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// seconds converts a request delay in seconds, falling back to def when unset
func seconds(v *float64, def time.Duration) (time.Duration, error) {
	if v == nil {
		return def, nil
	}
	if *v < 0 {
		return 0, errors.New("delay must not be negative")
	}
	return time.Duration(*v * float64(time.Second)), nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// modelID parses the {id} path parameter
func modelID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// stageError maps runner and store errors to responses
func (s *Server) stageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		respondError(w, http.StatusNotFound, msgModelNotFound)
	case errors.Is(err, enrich.ErrMissingAPIKey):
		respondError(w, http.StatusBadRequest, "API key is required")
	case errors.Is(err, enrich.ErrMissingField):
		respondError(w, http.StatusBadRequest, msgMissingFields)
	case errors.Is(err, enrich.ErrUnsupportedRatingMethod):
		respondError(w, http.StatusBadRequest, "Unsupported rating method")
	default:
		s.logger.Error("stage failed", "error", err, "path", r.URL.Path)
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "An unexpected error occurred",
			"details": err.Error(),
		})
	}
}

// handleListCSVs lists the caller's uploaded CSV files
func (s *Server) handleListCSVs(w http.ResponseWriter, r *http.Request) {
	files, err := s.db.ListCSVs(r.Context(), userFrom(r).ID)
	if err != nil {
		s.internalError(w, r, "failed to list csv files", err)
		return
	}

	type csvListing struct {
		ID         string    `json:"id"`
		Filename   string    `json:"filename"`
		UploadedAt time.Time `json:"uploaded_at"`
	}
	out := make([]csvListing, 0, len(files))
	for _, f := range files {
		out = append(out, csvListing{ID: f.ID, Filename: f.Filename, UploadedAt: f.UploadedAt})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleUploadCSV stores a multipart "file" upload and records its metadata
func (s *Server) handleUploadCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			respondError(w, http.StatusBadRequest, "No file part")
			return
		}
		respondError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	defer file.Close()

	filename := filepath.Base(strings.TrimSpace(header.Filename))
	if filename == "" || filename == "." {
		respondError(w, http.StatusBadRequest, "No selected file")
		return
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		respondError(w, http.StatusBadRequest, "Invalid file type")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	user := userFrom(r)
	id := uuid.NewString()
	key := storage.CSVKey(user.ID, id, filename)
	if err := s.blobs.Put(r.Context(), key, data, "text/csv"); err != nil {
		s.internalError(w, r, "failed to store csv file", err)
		return
	}

	record := &models.CSVFile{
		ID:         id,
		OwnerID:    user.ID,
		Filename:   filename,
		StorageKey: key,
		SizeBytes:  int64(len(data)),
	}
	if err := s.db.SaveCSV(r.Context(), record); err != nil {
		if delErr := s.blobs.Delete(r.Context(), key); delErr != nil {
			s.logger.Warn("failed to remove orphaned csv blob", "key", key, "error", delErr)
		}
		s.internalError(w, r, "failed to save csv file", err)
		return
	}

	s.logger.Info("csv uploaded", "owner_id", user.ID, "csv_id", id, "size_bytes", record.SizeBytes)
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "CSV uploaded successfully",
		"id":      id,
	})
}

// handleListModels lists the caller's models
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	list, err := s.db.ListModels(r.Context(), userFrom(r).ID)
	if err != nil {
		s.internalError(w, r, "failed to list models", err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// CreateModelRequest creates a model from a single URL or from an uploaded CSV
type CreateModelRequest struct {
	ModelName string `json:"model_name"`
	URL       string `json:"url"`
	CSVID     string `json:"csv_id"`
	URLColumn string `json:"url_column"`
	BaseURL   string `json:"base_url"`
}

// handleCreateModel creates a model
func (s *Server) handleCreateModel(w http.ResponseWriter, r *http.Request) {
	var req CreateModelRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	req.ModelName = strings.TrimSpace(req.ModelName)
	req.URL = strings.TrimSpace(req.URL)
	if req.ModelName == "" || (req.URL == "" && req.CSVID == "") {
		respondError(w, http.StatusBadRequest, msgMissingFields)
		return
	}

	user := userFrom(r)
	m := &models.Model{Name: req.ModelName}

	if req.CSVID == "" {
		m.URLColumn = ingest.DefaultURLColumn
		m.Data.Items = []models.Item{models.NewItem(req.URL, nil)}
	} else {
		if req.URLColumn == "" {
			req.URLColumn = ingest.DefaultURLColumn
		}
		items, status, msg, err := s.itemsFromCSV(r, user.ID, req)
		if err != nil {
			if status == http.StatusInternalServerError {
				s.internalError(w, r, msg, err)
				return
			}
			respondError(w, status, msg)
			return
		}
		m.URLColumn = req.URLColumn
		m.BaseURL = req.BaseURL
		m.Data.Items = items
	}

	if err := s.db.CreateModel(r.Context(), user.ID, m); err != nil {
		s.internalError(w, r, "failed to create model", err)
		return
	}

	s.logger.Info("model created", "owner_id", user.ID, "model_id", m.ID, "items", len(m.Data.Items))
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Model created successfully",
		"id":      m.ID,
	})
}

// itemsFromCSV loads the owner's CSV and turns its rows into items. On
// failure it returns the status and message to respond with.
func (s *Server) itemsFromCSV(r *http.Request, ownerID string, req CreateModelRequest) ([]models.Item, int, string, error) {
	record, err := s.db.GetCSV(r.Context(), ownerID, req.CSVID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, http.StatusNotFound, msgCSVNotFound, err
	}
	if err != nil {
		return nil, http.StatusInternalServerError, "failed to load csv file", err
	}

	data, err := s.blobs.Get(r.Context(), record.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, http.StatusNotFound, msgCSVNotFound, err
	}
	if err != nil {
		return nil, http.StatusInternalServerError, "failed to read csv file", err
	}

	items, err := ingest.ParseCSV(bytes.NewReader(data), ingest.Options{
		URLColumn: req.URLColumn,
		BaseURL:   req.BaseURL,
	})
	switch {
	case errors.Is(err, ingest.ErrColumnNotFound):
		return nil, http.StatusBadRequest, fmt.Sprintf("Column '%s' not found in CSV", req.URLColumn), err
	case err != nil:
		return nil, http.StatusBadRequest, fmt.Sprintf("Invalid CSV file: %v", err), err
	}
	return items, 0, "", nil
}

// loadModel resolves the {id} parameter to one of the caller's models,
// responding on failure
func (s *Server) loadModel(w http.ResponseWriter, r *http.Request) (*models.Model, bool) {
	id, ok := modelID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, msgInvalidModelID)
		return nil, false
	}
	m, err := s.db.GetModel(r.Context(), userFrom(r).ID, id)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, msgModelNotFound)
		return nil, false
	}
	if err != nil {
		s.internalError(w, r, "failed to load model", err)
		return nil, false
	}
	return m, true
}

// handleGetModel returns a model with its full document
func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	m, ok := s.loadModel(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// handleDeleteModel deletes a model
func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	id, ok := modelID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, msgInvalidModelID)
		return
	}
	err := s.db.DeleteModel(r.Context(), userFrom(r).ID, id)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, msgModelNotFound)
		return
	}
	if err != nil {
		s.internalError(w, r, "failed to delete model", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Model deleted successfully"})
}

// ScrapeRequest represents a scrape request
type ScrapeRequest struct {
	Rescrape bool     `json:"rescrape"`
	Limit    *int     `json:"limit"`
	Delay    *float64 `json:"delay"` // Seconds
}

// handleScrape runs the scrape stage
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	id, ok := modelID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, msgInvalidModelID)
		return
	}

	var req ScrapeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	delay, err := seconds(req.Delay, s.config.ScrapeDelay)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := intOr(req.Limit, s.config.ScrapeLimit)
	if limit < 0 {
		respondError(w, http.StatusBadRequest, "limit must not be negative")
		return
	}

	// Stage passes outlive a dropped client so partial work is still saved
	result, err := s.runner.Scrape(context.WithoutCancel(r.Context()), userFrom(r).ID, id, enrich.ScrapeOptions{
		Limit: limit,
		Force: req.Rescrape,
		Delay: delay,
	})
	if err != nil {
		s.stageError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":         "Scraping completed",
		"messages":        result.Messages,
		"last_scraped_id": result.LastScrapedID,
	})
}

// GenerateRequest represents an alt-content generation request
type GenerateRequest struct {
	APIKey    string   `json:"apiKey"`
	Prompt    string   `json:"prompt"`
	Model     string   `json:"model"`
	Delay     *float64 `json:"delay"` // Seconds
	RateLimit *int     `json:"rateLimit"`
	MaxTokens *int     `json:"maxTokens"`
}

// handleGenerate runs the generate stage
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id, ok := modelID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, msgInvalidModelID)
		return
	}

	var req GenerateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if req.APIKey == "" {
		respondError(w, http.StatusBadRequest, "API key is required")
		return
	}
	delay, err := seconds(req.Delay, s.config.GenerateDelay)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := enrich.GenerateOptions{
		APIKey:    req.APIKey,
		Prompt:    req.Prompt,
		Model:     req.Model,
		MaxTokens: intOr(req.MaxTokens, s.config.MaxTokens),
		RateLimit: intOr(req.RateLimit, s.config.GenerateRateLimit),
		Delay:     delay,
	}
	if opts.Model == "" {
		opts.Model = s.config.DefaultModel
	}

	result, err := s.runner.Generate(context.WithoutCancel(r.Context()), userFrom(r).ID, id, opts)
	if err != nil {
		s.stageError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":                "Alt content generation completed",
		"messages":               result.Messages,
		"total_tokens_generated": result.TotalTokensGenerated,
		"processed":              result.Processed,
		"aborted":                result.Aborted,
	})
}

// RateRequest represents a content rating request
type RateRequest struct {
	APIKey       string `json:"apiKey"`
	ContentType  string `json:"contentType"`
	RatingMethod string `json:"ratingMethod"`
}

// handleRate runs the rate stage
func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	id, ok := modelID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, msgInvalidModelID)
		return
	}

	var req RateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if req.APIKey == "" || req.ContentType == "" || req.RatingMethod == "" {
		respondError(w, http.StatusBadRequest, msgMissingFields)
		return
	}

	result, err := s.runner.Rate(context.WithoutCancel(r.Context()), userFrom(r).ID, id, enrich.RateOptions{
		APIKey: req.APIKey,
		Field:  req.ContentType,
		Method: req.RatingMethod,
	})
	if err != nil {
		s.stageError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// TestRequest represents a test query against a search method
type TestRequest struct {
	Query              string `json:"query"`
	TestMethod         string `json:"testMethod"`
	MaxReturn          *int   `json:"maxReturn"`
	MaxHighlightSearch *int   `json:"maxHighlightSearch"`
	HighlightedURL     string `json:"highlightedUrl"`
}

// handleTest runs a test query and saves it with its results on the model
func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	var req TestRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if strings.TrimSpace(req.Query) == "" || req.TestMethod == "" {
		respondError(w, http.StatusBadRequest, msgMissingFields)
		return
	}

	m, ok := s.loadModel(w, r)
	if !ok {
		return
	}

	results, err := s.search.Search(r.Context(), req.TestMethod, search.Request{
		Query:              req.Query,
		MaxReturn:          intOr(req.MaxReturn, search.DefaultMaxReturn),
		MaxHighlightSearch: intOr(req.MaxHighlightSearch, search.DefaultMaxHighlightSearch),
		HighlightedURL:     req.HighlightedURL,
	})
	if errors.Is(err, search.ErrUnsupportedMethod) {
		respondError(w, http.StatusBadRequest, "Unsupported test method")
		return
	}
	if err != nil {
		s.logger.Warn("test query failed", "model_id", m.ID, "method", req.TestMethod, "error", err)
		respondError(w, http.StatusBadGateway, fmt.Sprintf("search failed: %v", err))
		return
	}

	now := time.Now().UTC()
	m.Data.AddQuery(models.Query{
		Query:     req.Query,
		Method:    req.TestMethod,
		Results:   results,
		CreatedAt: &now,
	})
	if err := s.db.SaveModel(r.Context(), userFrom(r).ID, m); err != nil {
		s.stageError(w, r, err)
		return
	}

	if results == nil {
		results = []models.SearchResult{}
	}
	respondJSON(w, http.StatusOK, results)
}

// AddURLRequest represents a request to append a url to a model
type AddURLRequest struct {
	URL string `json:"url"`
}

// handleAddURL appends a new item to the model
func (s *Server) handleAddURL(w http.ResponseWriter, r *http.Request) {
	var req AddURLRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "URL is required")
		return
	}

	m, ok := s.loadModel(w, r)
	if !ok {
		return
	}

	m.Data.AddURL(req.URL)
	if err := s.db.SaveModel(r.Context(), userFrom(r).ID, m); err != nil {
		s.stageError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "URL added successfully"})
}
