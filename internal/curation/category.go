// Package curation picks the registry links shown next to an answer and
// checks that they still resolve.
package curation

import (
	"regexp"
	"strings"
)

// Category is a topical bucket and the words that suggest it.
type Category struct {
	Name     string
	Synonyms []string
}

// Categories in evaluation order. Order is the tie-break: when two
// categories match the same number of synonyms the earlier one wins.
var Categories = []Category{
	{Name: "physical", Synonyms: []string{"injury", "rehab", "rehabilitation", "fitness", "exercise", "pain", "knee", "shoulder", "hip", "ankle", "physio", "physiotherapy", "mobility", "strength"}},
	{Name: "psychological", Synonyms: []string{"mental", "mood", "anxiety", "depression", "stress", "relationship", "support"}},
	{Name: "brain-health", Synonyms: []string{"concussion", "cte", "head knock", "post-concussion", "headache", "light sensitivity", "memory", "thinking", "cognition"}},
	{Name: "career", Synonyms: []string{"work", "job", "resume", "cv", "learning", "course", "study", "scholarship", "networking", "mentoring"}},
	{Name: "family", Synonyms: []string{"partner", "carer", "caregiver", "family", "community", "alumni", "regional"}},
	{Name: "cultural", Synonyms: []string{"indigenous", "aboriginal", "torres strait", "culturally", "spiritual", "faith"}},
	{Name: "identity", Synonyms: []string{"identity", "foreclosure", "retirement", "lgbtqi", "gender", "sexuality", "inclusion"}},
	{Name: "financial", Synonyms: []string{"money", "budget", "grant", "superannuation", "financial", "cost"}},
	{Name: "environmental", Synonyms: []string{"alcohol", "drugs", "gambling", "dependency", "addiction"}},
	{Name: "female", Synonyms: []string{"women", "female", "motherhood", "menstrual", "pregnancy", "aflw"}},
}

var physicalFastPath = regexp.MustCompile(`\b(knee|shoulder|ankle|hip|physio|physiotherapy|rehab|exercise|pain)\b`)

// InferCategory maps free text to a category name, or "" when nothing
// matches. Common injury words short-circuit to "physical"; otherwise the
// category with the most synonym substrings wins.
func InferCategory(text string) string {
	t := strings.ToLower(text)
	if physicalFastPath.MatchString(t) {
		return "physical"
	}
	best, bestHits := "", 0
	for _, c := range Categories {
		hits := 0
		for _, w := range c.Synonyms {
			if strings.Contains(t, w) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = c.Name, hits
		}
	}
	return best
}

// ResolveCategory prefers a caller-supplied label over inference.
func ResolveCategory(label, text string) string {
	if label = strings.ToLower(strings.TrimSpace(label)); label != "" {
		return label
	}
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return InferCategory(text)
}

func synonymsOf(category string) []string {
	for _, c := range Categories {
		if c.Name == category {
			return c.Synonyms
		}
	}
	return nil
}
