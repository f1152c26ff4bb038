package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is the persisted state of a Model: its items and saved test queries
type Document struct {
	Items   []Item  `json:"items"`
	Queries []Query `json:"queries"`
}

// ParseDocument decodes a stored document. Legacy shapes are migrated:
// a bare list of items, and a {"data": [...], "queries": [...]} object.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if len(bytes.TrimSpace(data)) == 0 {
		return doc.normalized(), nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// UnmarshalJSON implements the legacy-shape migration
func (d *Document) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []Item
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("failed to decode legacy item list: %w", err)
		}
		*d = Document{Items: items}.normalized()
		return nil
	}

	var wire struct {
		Items   []Item  `json:"items"`
		Data    []Item  `json:"data"`
		Queries []Query `json:"queries"`
	}
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}

	items := wire.Items
	if items == nil {
		items = wire.Data
	}
	*d = Document{Items: items, Queries: wire.Queries}.normalized()
	return nil
}

// MarshalJSON always writes the current shape with non-null lists
func (d Document) MarshalJSON() ([]byte, error) {
	type document Document
	return json.Marshal(document(d.normalized()))
}

// AddURL appends a new item with empty additional data
func (d *Document) AddURL(url string) {
	d.Items = append(d.Items, NewItem(url, nil))
}

// AddQuery appends a saved test query
func (d *Document) AddQuery(q Query) {
	if q.Results == nil {
		q.Results = []SearchResult{}
	}
	d.Queries = append(d.Queries, q)
}

func (d Document) normalized() Document {
	if d.Items == nil {
		d.Items = []Item{}
	}
	if d.Queries == nil {
		d.Queries = []Query{}
	}
	return d
}
