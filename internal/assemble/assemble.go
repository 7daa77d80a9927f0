// Package assemble turns raw assistant text into the answer shown to the
// user: the model's own reference list is dropped and every link that is not
// one of the curated sources is neutralised.
package assemble

import (
	"regexp"
	"strings"

	"github.com/mohammad-safakhou/mascot/internal/curation"
	"github.com/mohammad-safakhou/mascot/internal/helpers"
)

// Unavailable is appended after link text whose target is not allowed.
const Unavailable = "(link unavailable)"

var (
	// A heading line naming a reference list, optionally markdown-levelled
	// or bold, optionally followed by a colon. Everything from it to the end
	// of the text is removed.
	sourcesHeading = regexp.MustCompile(`(?im)^[ \t]*(?:#{1,6}[ \t]*)?(?:\*\*)?(?:sources|references|further reading|citations)(?:\*\*)?[ \t]*:?[ \t]*$`)

	// [text](url "title") with one level of nested brackets in the text and
	// one level of balanced parentheses in the url.
	inlineLink = regexp.MustCompile(`!?\[((?:[^\[\]]|\[[^\[\]]*\])*)\]\(\s*<?([^\s()<>]*(?:\([^\s()]*\)[^\s()<>]*)*)>?(?:\s+"[^"]*")?\s*\)`)

	bareURL = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>()\[\]"'` + "`" + `]+`)

	// A link reference definition "[label]: url "title"" on its own line.
	refDefinition = regexp.MustCompile(`(?m)^ {0,3}\[([^\[\]\n]+)\]:[ \t]*<?([^\s<>]+)>?(?:[ \t]+(?:"[^"\n]*"|'[^'\n]*'|\([^()\n]*\)))?[ \t]*(?:\n|$)`)

	// [text][label] and [text][] references.
	refUse = regexp.MustCompile(`\[((?:[^\[\]]|\[[^\[\]]*\])*)\]\[([^\[\]\n]*)\]`)

	placeholder = regexp.MustCompile(`(?i)\[\s*(?:insert\s+)?(?:link|url)(?:\s+here)?\s*\]|\(\s*insert\s+(?:link|url)(?:\s+here)?\s*\)`)
)

const trailingPunct = ".,;:!?*_"

// Result is the assembled answer.
type Result struct {
	Text string
	// Neutralized counts links and URLs that were marked unavailable.
	Neutralized int
}

// Assemble rewrites raw against the curated sources. Raw HTML is reduced to
// its text first. An empty source list is valid and neutralises every link.
func Assemble(raw string, sources []curation.Source) Result {
	a := &assembler{allowed: make(map[string]struct{})}
	for _, s := range sources {
		if s.URL == "" {
			continue
		}
		a.allowed[key(s.URL)] = struct{}{}
		if a.hint == "" {
			a.hint = helpers.NormalizedDomain(s.Domain)
			if a.hint == "" {
				a.hint = helpers.NormalizedDomain(s.URL)
			}
		}
	}

	text := helpers.StripHTML(strings.ReplaceAll(raw, "\r\n", "\n"))
	text = StripSourcesSection(text)
	text = a.replacePlaceholders(text)
	text = a.rewriteReferences(text)
	text = a.rewriteLinks(text)
	return Result{Text: strings.TrimRight(text, " \t\n"), Neutralized: a.neutralized}
}

// StripSourcesSection removes a model-authored reference list and
// everything after it.
func StripSourcesSection(text string) string {
	if loc := sourcesHeading.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	return strings.TrimRight(text, " \t\r\n")
}

// StripMarkers removes citation markers such as "【4:0†source】" that the
// remote service embeds in text.
func StripMarkers(text string, markers []string) string {
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			text = strings.ReplaceAll(text, m, "")
		}
	}
	return text
}

type assembler struct {
	allowed     map[string]struct{}
	hint        string
	neutralized int
}

func key(u string) string {
	if c, err := helpers.CanonicalURL(u); err == nil {
		return c
	}
	return strings.TrimSpace(u)
}

func (a *assembler) isAllowed(u string) bool {
	_, ok := a.allowed[key(u)]
	return ok
}

func (a *assembler) replacePlaceholders(text string) string {
	replacement := Unavailable
	if a.hint != "" {
		replacement = "see " + a.hint
	}
	var b strings.Builder
	last := 0
	for _, loc := range placeholder.FindAllStringIndex(text, -1) {
		// "[link](...)" is a real link whose text happens to be "link".
		if text[loc[0]] == '[' && loc[1] < len(text) && text[loc[1]] == '(' {
			continue
		}
		b.WriteString(text[last:loc[0]])
		b.WriteString(replacement)
		last = loc[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

// rewriteReferences drops reference definitions whose URL is not allowed
// and turns the references that used them into plain text.
func (a *assembler) rewriteReferences(text string) string {
	dropped := make(map[string]struct{})
	text = refDefinition.ReplaceAllStringFunc(text, func(def string) string {
		m := refDefinition.FindStringSubmatch(def)
		if a.isAllowed(m[2]) {
			return def
		}
		a.neutralized++
		dropped[refLabel(m[1])] = struct{}{}
		return ""
	})
	if len(dropped) == 0 {
		return text
	}
	return refUse.ReplaceAllStringFunc(text, func(use string) string {
		m := refUse.FindStringSubmatch(use)
		label := m[2]
		if strings.TrimSpace(label) == "" {
			label = m[1]
		}
		if _, ok := dropped[refLabel(label)]; !ok {
			return use
		}
		if t := strings.TrimSpace(m[1]); t != "" {
			return t + " " + Unavailable
		}
		return Unavailable
	})
}

func refLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}

// rewriteLinks handles markdown links and the plain text between them.
func (a *assembler) rewriteLinks(text string) string {
	var b strings.Builder
	last := 0
	for _, m := range inlineLink.FindAllStringSubmatchIndex(text, -1) {
		b.WriteString(a.rewriteBare(text[last:m[0]]))
		bang := text[m[0] : m[2]-1]
		label := a.rewriteBare(text[m[2]:m[3]])
		target := text[m[4]:m[5]]
		if target != "" && a.isAllowed(target) {
			b.WriteString(bang + "[" + label + "](" + target + ")")
		} else {
			a.neutralized++
			label = strings.TrimSpace(label)
			switch {
			case label == "":
				b.WriteString(Unavailable)
			case strings.HasSuffix(label, Unavailable):
				b.WriteString(label)
			default:
				b.WriteString(label + " " + Unavailable)
			}
		}
		last = m[1]
	}
	b.WriteString(a.rewriteBare(text[last:]))
	return b.String()
}

// rewriteBare marks plain URLs that are not allowed. A URL that already
// carries the marker is left alone.
func (a *assembler) rewriteBare(text string) string {
	var b strings.Builder
	last := 0
	for _, loc := range bareURL.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		for end > start && strings.ContainsRune(trailingPunct, rune(text[end-1])) {
			end--
		}
		u := text[start:end]
		if a.isAllowed(u) || strings.HasPrefix(text[end:], " "+Unavailable) {
			continue
		}
		a.neutralized++
		b.WriteString(text[last:end])
		b.WriteString(" " + Unavailable)
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}
