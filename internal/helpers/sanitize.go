package helpers

import (
	"html"
	"regexp"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy

	htmlTag = regexp.MustCompile(`<[a-zA-Z!/][^>]*>`)
)

const maxStripPasses = 4

// StrictHTMLPolicy returns a singleton bluemonday policy that strips every HTML
// element and attribute, dropping script and style bodies entirely.
func StrictHTMLPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// StripHTML removes HTML elements from markdown text and keeps the text
// between them. Entities escaped by the policy are decoded again so markdown
// punctuation such as '>' quotes and '&' survives, and the pass repeats while
// decoding exposes new tags. Text without anything tag-like is returned
// unchanged.
func StripHTML(s string) string {
	for i := 0; i < maxStripPasses && htmlTag.MatchString(s); i++ {
		s = html.UnescapeString(StrictHTMLPolicy().Sanitize(s))
	}
	if htmlTag.MatchString(s) {
		return StrictHTMLPolicy().Sanitize(s)
	}
	return s
}
