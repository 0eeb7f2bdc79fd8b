// Package relevance implements dictionary-based topical scoring:
// tokenization, language-keyed stemming and the weighted title/body score.
package relevance

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lower-cases a string and strips diacritics, so "Éléphant"
// becomes "elephant".
func Fold(s string) string {
	out, _, err := transform.String(deaccent, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Tokenize splits text on Unicode word boundaries after folding.
// Tokens are runs of letters or digits; everything else separates.
func Tokenize(text string) []string {
	return strings.FieldsFunc(Fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
