package relevance

import (
	"strings"

	"github.com/kljensen/snowball/english"
	"github.com/kljensen/snowball/french"
)

// Stemmer reduces a folded token to its lemma.
type Stemmer interface {
	Stem(token string) string
}

type stemFunc func(string) string

func (f stemFunc) Stem(token string) string { return f(token) }

// StemmerFor selects a stemmer by language code. French and English use
// snowball; any other language falls back to identity stemming, so the
// dictionary still matches exact surface forms.
func StemmerFor(lang string) Stemmer {
	switch primarySubtag(lang) {
	case "fr":
		return stemFunc(func(t string) string { return french.Stem(t, false) })
	case "en":
		return stemFunc(func(t string) string { return english.Stem(t, false) })
	default:
		return stemFunc(func(t string) string { return t })
	}
}

func primarySubtag(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	for i, r := range lang {
		if r == '-' || r == '_' {
			return lang[:i]
		}
	}
	return lang
}

// LangMatches reports whether a detected page language is compatible
// with a land language, by case-insensitive prefix on the primary
// subtag. "fr-FR" matches "fr". An empty value on either side matches.
func LangMatches(pageLang, landLang string) bool {
	p, l := primarySubtag(pageLang), primarySubtag(landLang)
	if p == "" || l == "" {
		return true
	}
	return strings.HasPrefix(p, l) || strings.HasPrefix(l, p)
}
