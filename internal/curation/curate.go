package curation

import (
	"sort"

	"github.com/mohammad-safakhou/mascot/internal/helpers"
	"github.com/mohammad-safakhou/mascot/internal/registry"
)

const maxPreferredFallback = 3

// Source is a link or file citation returned to the client.
type Source struct {
	ID     string `json:"id,omitempty"`
	Title  string `json:"title"`
	URL    string `json:"url,omitempty"`
	Domain string `json:"domain,omitempty"`
	FileID string `json:"file_id,omitempty"`
}

type Curator struct {
	max          int
	preferredIDs []string
}

// NewCurator returns a curator capped at max sources. preferredIDs, in
// order, stand in when every curated link turns out to be unavailable.
func NewCurator(max int, preferredIDs []string) *Curator {
	if max <= 0 {
		max = 4
	}
	return &Curator{max: max, preferredIDs: append([]string(nil), preferredIDs...)}
}

// Max is the configured source cap.
func (c *Curator) Max() int { return c.max }

// Curate selects at most max entries relevant to the prompt, never two from
// the same domain. A non-positive max uses the configured cap.
func (c *Curator) Curate(entries []registry.Entry, category, prompt string, max int) []Source {
	if max <= 0 {
		max = c.max
	}

	scored := make([]Scored, 0, len(entries))
	bestCategory := 0
	anyKeyword := false
	for _, e := range entries {
		if linkDomain(e) == "" {
			continue
		}
		s := Score(e, prompt, category)
		scored = append(scored, s)
		if s.CategoryScore > bestCategory {
			bestCategory = s.CategoryScore
		}
		if s.KeywordHits > 0 {
			anyKeyword = true
		}
	}

	filtered := scored[:0:0]
	for _, s := range scored {
		switch {
		case bestCategory >= weightPartialCategory:
			if s.CategoryScore >= weightPartialCategory {
				filtered = append(filtered, s)
			}
		case anyKeyword:
			if s.KeywordHits > 0 {
				filtered = append(filtered, s)
			}
		default:
			filtered = append(filtered, s)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Score > filtered[j].Score })

	out := make([]Source, 0, max)
	seen := make(map[string]struct{})
	for _, s := range filtered {
		if len(out) == max {
			break
		}
		out = appendUniqueDomain(out, seen, s.Entry)
	}
	return out
}

// Preferred returns up to three of the configured preferred entries, in
// configured order and with unique domains. A non-positive max uses the
// configured cap.
func (c *Curator) Preferred(entries []registry.Entry, max int) []Source {
	if max <= 0 {
		max = c.max
	}
	return c.preferred(entries, max, make(map[string]struct{}))
}

// Linked keeps the sources that still carry a URL.
func Linked(sources []Source) []Source {
	var out []Source
	for _, s := range sources {
		if s.URL != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Curator) preferred(entries []registry.Entry, max int, seen map[string]struct{}) []Source {
	limit := maxPreferredFallback
	if max < limit {
		limit = max
	}
	byID := make(map[string]registry.Entry, len(entries))
	for _, e := range entries {
		if _, ok := byID[e.ID]; !ok && e.ID != "" {
			byID[e.ID] = e
		}
	}
	var out []Source
	for _, id := range c.preferredIDs {
		if len(out) == limit {
			break
		}
		if e, ok := byID[id]; ok && linkDomain(e) != "" {
			out = appendUniqueDomain(out, seen, e)
		}
	}
	return out
}

func appendUniqueDomain(out []Source, seen map[string]struct{}, e registry.Entry) []Source {
	domain := linkDomain(e)
	if _, dup := seen[domain]; dup {
		return out
	}
	seen[domain] = struct{}{}
	display := e.Domain
	if display == "" {
		display = domain
	}
	return append(out, Source{ID: e.ID, Title: e.Title, URL: e.URL, Domain: display})
}

// linkDomain is the normalised host an entry points at, or "" when its URL
// cannot be resolved.
func linkDomain(e registry.Entry) string {
	if e.URL == "" {
		return ""
	}
	if _, err := helpers.CanonicalURL(e.URL); err != nil {
		return ""
	}
	return helpers.NormalizedDomain(e.URL)
}
