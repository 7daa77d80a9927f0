package curation

import (
	"strings"

	"github.com/mohammad-safakhou/mascot/internal/registry"
)

const (
	weightExactCategory   = 6
	weightPartialCategory = 4
	weightKeyword         = 4
	weightSynonym         = 2
	weightTitle           = 1
	weightDomain          = 1
)

// Scored is a registry entry with its relevance to one prompt.
type Scored struct {
	Entry         registry.Entry
	Score         int
	CategoryScore int
	KeywordHits   int
}

// Score rates an entry against the prompt and category. All comparisons
// are case-insensitive substring checks, deliberately overinclusive.
func Score(e registry.Entry, prompt, category string) Scored {
	p := strings.ToLower(prompt)
	c := strings.ToLower(strings.TrimSpace(category))
	s := Scored{Entry: e}

	if c != "" {
		exact, partial := false, false
		for _, tag := range e.Category {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag == "" {
				continue
			}
			if tag == c {
				exact = true
				break
			}
			if strings.Contains(c, tag) || strings.Contains(tag, c) {
				partial = true
			}
		}
		switch {
		case exact:
			s.Score += weightExactCategory
			s.CategoryScore = weightExactCategory
		case partial:
			s.Score += weightPartialCategory
			s.CategoryScore = weightPartialCategory
		}
	}

	for _, k := range e.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(p, k) {
			s.Score += weightKeyword
			s.KeywordHits++
		}
	}
	for _, w := range synonymsOf(c) {
		if strings.Contains(p, w) {
			s.Score += weightSynonym
		}
	}
	if title := strings.ToLower(strings.TrimSpace(e.Title)); title != "" && strings.Contains(p, title) {
		s.Score += weightTitle
	}
	if domain := strings.ToLower(strings.TrimSpace(e.Domain)); domain != "" && strings.Contains(p, domain) {
		s.Score += weightDomain
	}
	return s
}
