package taxonomy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	disallowed = regexp.MustCompile(`[^a-z0-9\s.]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Normalizer turns a raw description into the canonical text used for
// embedding, clustering and naming.
type Normalizer struct {
	expansions []expansion
}

type expansion struct {
	re  *regexp.Regexp
	out string
}

// NewNormalizer compiles the taxonomy's abbreviation list.
func NewNormalizer(t *Taxonomy) *Normalizer {
	n := &Normalizer{}
	for _, a := range t.Abbreviations {
		n.expansions = append(n.expansions, expansion{
			re:  regexp.MustCompile(`\b` + regexp.QuoteMeta(a.Abbr) + `\b`),
			out: a.Expansion,
		})
	}
	return n
}

// Normalize lowercases, folds accents, replaces every character outside
// [a-z0-9], whitespace and '.' with a space, expands whole-word
// abbreviations and collapses whitespace.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}
	s := foldAccents(strings.ToLower(text))
	s = disallowed.ReplaceAllString(s, " ")
	for _, e := range n.expansions {
		s = e.re.ReplaceAllLiteralString(s, e.out)
	}
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeAll normalizes a batch, preserving order.
func (n *Normalizer) NormalizeAll(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = n.Normalize(t)
	}
	return out
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}
