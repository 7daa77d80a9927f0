// Package registry loads the curated catalogue of reference links that
// answers are allowed to cite.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/mascot/internal/helpers"
)

// Entry is one vetted reference link.
type Entry struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	URL      string   `json:"url"`
	Domain   string   `json:"domain"`
	Category []string `json:"category"`
	Keywords []string `json:"keywords"`
}

// Parse decodes a registry document. Both a bare array and an object with a
// "links" array are accepted. Entries are trimmed, a missing domain is
// derived from the URL, and repeated ids are dropped keeping the first.
func Parse(data []byte) ([]Entry, error) {
	data = bytes.TrimSpace(data)
	var raw []Entry
	if len(data) > 0 && data[0] == '{' {
		var doc struct {
			Links []Entry `json:"links"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode registry: %w", err)
		}
		raw = doc.Links
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]Entry, 0, len(raw))
	for _, e := range raw {
		e = e.normalized()
		if e.ID != "" {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			seen[e.ID] = struct{}{}
		}
		out = append(out, e)
	}
	return out, nil
}

func (e Entry) normalized() Entry {
	e.ID = strings.TrimSpace(e.ID)
	e.Title = strings.TrimSpace(e.Title)
	e.URL = strings.TrimSpace(e.URL)
	e.Domain = strings.TrimSpace(e.Domain)
	if e.Domain == "" && e.URL != "" {
		e.Domain = helpers.NormalizedDomain(e.URL)
	}
	e.Category = trimAll(e.Category)
	e.Keywords = trimAll(e.Keywords)
	return e
}

func trimAll(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
