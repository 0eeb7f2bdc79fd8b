package relevance

import "strings"

const (
	titleWeight = 10
	bodyWeight  = 1
)

// Scorer computes the integer relevance of an expression against a
// land's stemmed dictionary. It is immutable and safe for concurrent
// use, so one instance serves an entire crawl run.
type Scorer struct {
	lemmas   [][]string
	stemmer  Stemmer
	landLang string
}

// NewScorer builds a scorer from a land's distinct lemmas. The lemmas
// must already be stemmed with the same language's stemmer; multi-word
// lemmas match as phrases over the stemmed token stream.
func NewScorer(lemmas []string, landLang string) *Scorer {
	s := &Scorer{stemmer: StemmerFor(landLang), landLang: landLang}
	for _, l := range lemmas {
		if parts := strings.Fields(l); len(parts) > 0 {
			s.lemmas = append(s.lemmas, parts)
		}
	}
	return s
}

// Lemmas returns the dictionary lemmas the scorer matches against, in
// construction order.
func (s *Scorer) Lemmas() []string {
	out := make([]string, len(s.lemmas))
	for i, l := range s.lemmas {
		out[i] = strings.Join(l, " ")
	}
	return out
}

// StemTerm folds and stems a single dictionary term the way the scorer
// stems page tokens. Multi-word terms stem word by word.
func (s *Scorer) StemTerm(term string) string {
	tokens := Tokenize(term)
	stems := make([]string, len(tokens))
	for i, t := range tokens {
		stems[i] = s.stemmer.Stem(t)
	}
	return strings.Join(stems, " ")
}

func (s *Scorer) countHits(text string) int {
	if text == "" || len(s.lemmas) == 0 {
		return 0
	}
	tokens := Tokenize(text)
	stems := make([]string, len(tokens))
	for i, t := range tokens {
		stems[i] = s.stemmer.Stem(t)
	}

	hits := 0
	for _, lemma := range s.lemmas {
		for i := 0; i+len(lemma) <= len(stems); i++ {
			match := true
			for j, part := range lemma {
				if stems[i+j] != part {
					match = false
					break
				}
			}
			if match {
				hits++
			}
		}
	}
	return hits
}

// Score computes 10 per title hit plus 1 per body hit. A detected page
// language incompatible with the land language forces the score to 0.
func (s *Scorer) Score(title, body, pageLang string) int {
	if !LangMatches(pageLang, s.landLang) {
		return 0
	}
	return titleWeight*s.countHits(title) + bodyWeight*s.countHits(body)
}
