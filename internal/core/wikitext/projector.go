// Package wikitext derives a readable plain-text rendering from MediaWiki
// markup. The projection is best effort: it never fails and makes no
// structural guarantees beyond being a pure function of its input.
package wikitext

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Pre-compiled regular expressions, applied in order by Project.
var (
	commentRe     = regexp.MustCompile(`(?s)<!--.*?(-->|$)`)
	refBlockRe    = regexp.MustCompile(`(?is)<ref(\s[^>]*[^/>])?>.*?</ref\s*>`)
	refSelfRe     = regexp.MustCompile(`(?i)<ref(\s[^>]*)?/>`)
	mediaPrefixRe = regexp.MustCompile(`(?i)^\[\[\s*(file|image|category)\s*:`)
	pipedLinkRe   = regexp.MustCompile(`\[\[([^\[\]|]*)\|([^\[\]]*)\]\]`)
	plainLinkRe   = regexp.MustCompile(`\[\[([^\[\]|]*)\]\]`)
	labeledURLRe  = regexp.MustCompile(`\[(?:https?:)?//[^\s\]]+\s+([^\]]*)\]`)
	bareURLRe     = regexp.MustCompile(`\[(?:https?:)?//[^\s\]]+\]`)
	emphasisRe    = regexp.MustCompile(`'{2,}`)
	headingRe     = regexp.MustCompile(`(?m)^=+[ \t]*(.*?)[ \t]*=+[ \t]*$`)
	listMarkerRe  = regexp.MustCompile(`(?m)^[*#:;]+[ \t]*`)
	ruleRe        = regexp.MustCompile(`(?m)^-{4,}[ \t]*$`)
	behaviorRe    = regexp.MustCompile(`__[A-Z]+__`)
	multiSpaces   = regexp.MustCompile(`[ \t]+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// Projector renders wikitext as plain text.
type Projector struct{}

func NewProjector() *Projector {
	return &Projector{}
}

// Project strips markup from raw and returns the remaining readable text.
func (p *Projector) Project(raw string) string {
	if raw == "" {
		return ""
	}

	s := commentRe.ReplaceAllString(raw, "")
	s = refSelfRe.ReplaceAllString(s, "")
	s = refBlockRe.ReplaceAllString(s, "")

	// Templates may nest; tables are removed after templates so that "|}"
	// inside template arguments does not close a table.
	s = stripNested(s, "{{", "}}")
	s = stripNested(s, "{|", "|}")
	s = stripMediaLinks(s)

	s = pipedLinkRe.ReplaceAllString(s, "${2}")
	s = plainLinkRe.ReplaceAllString(s, "${1}")
	s = labeledURLRe.ReplaceAllString(s, "${1}")
	s = bareURLRe.ReplaceAllString(s, "")

	s = emphasisRe.ReplaceAllString(s, "")
	s = headingRe.ReplaceAllString(s, "${1}")
	s = listMarkerRe.ReplaceAllString(s, "")
	s = ruleRe.ReplaceAllString(s, "")
	s = behaviorRe.ReplaceAllString(s, "")

	s = stripHTML(s)

	return tidy(s)
}

// stripNested drops every span delimited by open/close, honouring nesting.
// An unterminated span runs to the end of the input.
func stripNested(s, open, close string) string {
	if !strings.Contains(s, open) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	depth := 0
	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], open):
			depth++
			i += len(open)
		case depth > 0 && strings.HasPrefix(s[i:], close):
			depth--
			i += len(close)
		default:
			if depth == 0 {
				b.WriteByte(s[i])
			}
			i++
		}
	}
	return b.String()
}

// stripMediaLinks removes [[File:..]], [[Image:..]] and [[Category:..]]
// links, including captions that contain nested links.
func stripMediaLinks(s string) string {
	if !strings.Contains(s, "[[") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], "[[") && mediaPrefixRe.MatchString(s[i:]) {
			i = skipLink(s, i)
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// skipLink returns the index just past the balanced link starting at i.
func skipLink(s string, i int) int {
	depth := 0
	for i < len(s) {
		switch {
		case strings.HasPrefix(s[i:], "[["):
			depth++
			i += 2
		case strings.HasPrefix(s[i:], "]]"):
			depth--
			i += 2
			if depth == 0 {
				return i
			}
		default:
			i++
		}
	}
	return i
}

// stripHTML keeps only the text tokens of s, decoding entities and turning
// line-breaking tags into newlines.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "br", "p", "div", "li", "tr", "blockquote":
				b.WriteByte('\n')
			}
		}
	}
}

func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(multiSpaces.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = multiNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
