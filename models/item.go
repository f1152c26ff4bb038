package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Wire keys of an Item document
const (
	KeyURL             = "url"
	KeyAdditionalData  = "additional_data"
	KeyScrapedAt       = "scraped_at"
	KeyResolvedURL     = "resolved_url"
	KeyTitle           = "title"
	KeyH1              = "h1"
	KeyMetaDescription = "meta_description"
	KeyTextContent     = "text_content"
	KeyError           = "error"
	KeyGenerations     = "generations"

	AltContentPrefix = "alt-content-"
	RatingSuffix     = "-rating"
)

// NotFound is the placeholder written when a page field could not be located
const NotFound = "Not found"

// Item is one URL-centric record inside a Model.
//
// On the wire an Item is a flat JSON object. Generation attempts are
// additionally exposed as alt-content-<n> keys and ratings as <field>-rating
// keys. Unknown keys are preserved in Extra.
type Item struct {
	URL             string
	AdditionalData  map[string]string
	ScrapedAt       *time.Time
	ResolvedURL     string
	Title           *string
	H1              *string
	MetaDescription *string
	TextContent     *string
	Error           string
	Generations     []GenerationAttempt
	Ratings         map[string]int
	Extra           map[string]json.RawMessage
}

// NewItem returns an item for url with the given passthrough fields
func NewItem(url string, additional map[string]string) Item {
	if additional == nil {
		additional = map[string]string{}
	}
	return Item{URL: url, AdditionalData: additional}
}

// AltContentKey returns the wire key for generation slot n
func AltContentKey(n int) string {
	return AltContentPrefix + strconv.Itoa(n)
}

// RatingKey returns the wire key holding the rating of field
func RatingKey(field string) string {
	return field + RatingSuffix
}

// ApplyPage merges a successful scrape into the item. url is left untouched.
func (it *Item) ApplyPage(p *Page) {
	scrapedAt := p.ScrapedAt
	it.ScrapedAt = &scrapedAt
	it.ResolvedURL = p.ResolvedURL
	it.Title = stringPtr(p.Title)
	it.H1 = stringPtr(p.H1)
	it.MetaDescription = stringPtr(p.MetaDescription)
	it.TextContent = stringPtr(p.TextContent)
	it.Error = ""
}

// AppendGeneration records a new generation attempt. Existing attempts are never replaced.
func (it *Item) AppendGeneration(g GenerationAttempt) {
	it.Generations = append(it.Generations, g)
}

// SetRating stores the rating for field, replacing any previous value
func (it *Item) SetRating(field string, rating int) {
	if it.Ratings == nil {
		it.Ratings = make(map[string]int)
	}
	it.Ratings[field] = rating
}

// Generation returns the attempt written to slot n
func (it *Item) Generation(n int) (GenerationAttempt, bool) {
	for _, g := range it.Generations {
		if g.Slot == n {
			return g, true
		}
	}
	return GenerationAttempt{}, false
}

// Has reports whether key is present in the item's wire form
func (it *Item) Has(key string) bool {
	switch key {
	case KeyURL, KeyAdditionalData:
		return true
	case KeyScrapedAt:
		return it.ScrapedAt != nil
	case KeyResolvedURL:
		return it.ResolvedURL != ""
	case KeyTitle:
		return it.Title != nil
	case KeyH1:
		return it.H1 != nil
	case KeyMetaDescription:
		return it.MetaDescription != nil
	case KeyTextContent:
		return it.TextContent != nil
	case KeyError:
		return it.Error != ""
	case KeyGenerations:
		return len(it.Generations) > 0
	}
	if n, ok := parseAltContentKey(key); ok {
		_, found := it.Generation(n)
		return found
	}
	if field, ok := strings.CutSuffix(key, RatingSuffix); ok {
		if _, found := it.Ratings[field]; found {
			return true
		}
	}
	_, ok := it.Extra[key]
	return ok
}

// Field returns the string value stored under key. ok is false when the key
// is absent or does not hold a string.
func (it *Item) Field(key string) (value string, ok bool) {
	switch key {
	case KeyURL:
		return it.URL, true
	case KeyResolvedURL:
		return it.ResolvedURL, it.ResolvedURL != ""
	case KeyTitle:
		return deref(it.Title)
	case KeyH1:
		return deref(it.H1)
	case KeyMetaDescription:
		return deref(it.MetaDescription)
	case KeyTextContent:
		return deref(it.TextContent)
	case KeyError:
		return it.Error, it.Error != ""
	}
	if n, ok := parseAltContentKey(key); ok {
		g, found := it.Generation(n)
		return g.Text, found
	}
	raw, found := it.Extra[key]
	if !found {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// MarshalJSON encodes the item as a flat object
func (it Item) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(it.Extra)+8)
	for k, v := range it.Extra {
		out[k] = v
	}

	out[KeyURL] = it.URL
	if it.AdditionalData == nil {
		out[KeyAdditionalData] = map[string]string{}
	} else {
		out[KeyAdditionalData] = it.AdditionalData
	}
	if it.ScrapedAt != nil {
		out[KeyScrapedAt] = it.ScrapedAt.UTC().Format(time.RFC3339Nano)
	}
	if it.ResolvedURL != "" {
		out[KeyResolvedURL] = it.ResolvedURL
	}
	putString(out, KeyTitle, it.Title)
	putString(out, KeyH1, it.H1)
	putString(out, KeyMetaDescription, it.MetaDescription)
	putString(out, KeyTextContent, it.TextContent)
	if it.Error != "" {
		out[KeyError] = it.Error
	}
	if len(it.Generations) > 0 {
		out[KeyGenerations] = it.Generations
		for _, g := range it.Generations {
			out[AltContentKey(g.Slot)] = g.Text
		}
	}
	for field, rating := range it.Ratings {
		out[RatingKey(field)] = rating
	}

	return json.Marshal(out)
}

// UnmarshalJSON decodes both the current shape and legacy documents that only
// carry alt-content-<n> keys.
func (it *Item) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode item: %w", err)
	}

	var decoded Item
	if v, ok := raw[KeyURL]; ok {
		if err := json.Unmarshal(v, &decoded.URL); err != nil {
			return fmt.Errorf("failed to decode url: %w", err)
		}
		delete(raw, KeyURL)
	}

	decoded.AdditionalData = map[string]string{}
	if v, ok := raw[KeyAdditionalData]; ok {
		additional, err := decodeStringMap(v)
		if err != nil {
			return fmt.Errorf("failed to decode additional_data: %w", err)
		}
		decoded.AdditionalData = additional
		delete(raw, KeyAdditionalData)
	}

	if v, ok := raw[KeyScrapedAt]; ok && !isNull(v) {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("failed to decode scraped_at: %w", err)
		}
		ts, err := ParseTimestamp(s)
		if err != nil {
			return err
		}
		decoded.ScrapedAt = &ts
		delete(raw, KeyScrapedAt)
	}

	for key, dst := range map[string]**string{
		KeyTitle:           &decoded.Title,
		KeyH1:              &decoded.H1,
		KeyMetaDescription: &decoded.MetaDescription,
		KeyTextContent:     &decoded.TextContent,
	} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			// Non-string values are kept verbatim
			continue
		}
		*dst = &s
		delete(raw, key)
	}

	for key, dst := range map[string]*string{
		KeyResolvedURL: &decoded.ResolvedURL,
		KeyError:       &decoded.Error,
	} {
		if v, ok := raw[key]; ok {
			if err := json.Unmarshal(v, dst); err == nil {
				delete(raw, key)
			}
		}
	}

	if v, ok := raw[KeyGenerations]; ok {
		if err := json.Unmarshal(v, &decoded.Generations); err != nil {
			return fmt.Errorf("failed to decode generations: %w", err)
		}
		delete(raw, KeyGenerations)
	}

	for key, v := range raw {
		if n, ok := parseAltContentKey(key); ok {
			var text string
			if err := json.Unmarshal(v, &text); err != nil {
				continue
			}
			if _, exists := decoded.Generation(n); !exists {
				decoded.Generations = append(decoded.Generations, GenerationAttempt{Slot: n, Text: text})
			}
			delete(raw, key)
			continue
		}
		if field, ok := strings.CutSuffix(key, RatingSuffix); ok && field != "" {
			var rating float64
			if err := json.Unmarshal(v, &rating); err != nil {
				continue
			}
			if decoded.Ratings == nil {
				decoded.Ratings = make(map[string]int)
			}
			decoded.Ratings[field] = int(rating)
			delete(raw, key)
		}
	}
	sort.SliceStable(decoded.Generations, func(i, j int) bool {
		return decoded.Generations[i].Slot < decoded.Generations[j].Slot
	})

	if len(raw) > 0 {
		decoded.Extra = raw
	}

	*it = decoded
	return nil
}

// ParseTimestamp accepts RFC 3339 timestamps and the zone-less ISO 8601 form
// written by older exports.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp: %q", s)
}

func parseAltContentKey(key string) (int, bool) {
	digits, ok := strings.CutPrefix(key, AltContentPrefix)
	if !ok || digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

func decodeStringMap(data []byte) (map[string]string, error) {
	if isNull(data) {
		return map[string]string{}, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		switch {
		case isNull(v):
		case json.Unmarshal(v, &s) == nil:
		default:
			s = string(v)
		}
		out[k] = s
	}
	return out, nil
}

func isNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

func putString(out map[string]any, key string, v *string) {
	if v != nil {
		out[key] = *v
	}
}

func deref(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}

func stringPtr(s string) *string {
	return &s
}
