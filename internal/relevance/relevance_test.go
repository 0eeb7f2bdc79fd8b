package relevance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeFoldsAndStripsDiacritics(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		[]string{"l", "asthme", "severe", "touche", "3", "millions"},
		Tokenize("L'Asthme SÉVÈRE touche 3 millions."))
}

func TestStemmerForFrench(t *testing.T) {
	t.Parallel()

	fr := StemmerFor("fr")
	assert.Equal(t, fr.Stem("asthme"), fr.Stem("asthmes"))
}

func TestStemmerForUnknownIsIdentity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "worter", StemmerFor("de").Stem("worter"))
}

func TestLangMatches(t *testing.T) {
	t.Parallel()

	assert.True(t, LangMatches("fr-FR", "fr"))
	assert.True(t, LangMatches("FR", "fr"))
	assert.True(t, LangMatches("", "fr"))
	assert.False(t, LangMatches("en", "fr"))
	assert.False(t, LangMatches("en-US", "fr"))
}

func TestScoreWeightsTitleTenToOne(t *testing.T) {
	t.Parallel()

	s := NewScorer(nil, "fr")
	lemma := s.StemTerm("asthme")
	require.NotEmpty(t, lemma)
	s = NewScorer([]string{lemma}, "fr")

	// One title hit, two body hits: 10 + 2.
	got := s.Score("L'asthme en ville",
		"L'asthme est une maladie. Les asthmes sévères sont rares.", "fr")
	assert.Equal(t, 12, got)
}

func TestScoreLanguageMismatchIsZero(t *testing.T) {
	t.Parallel()

	s := NewScorer(nil, "en")
	s = NewScorer([]string{s.StemTerm("asthma")}, "en")
	assert.Equal(t, 0, s.Score("asthma everywhere", "asthma", "fr"))
	assert.NotZero(t, s.Score("asthma everywhere", "asthma", "en"))
}

func TestScoreEmptyDictionaryIsZero(t *testing.T) {
	t.Parallel()

	s := NewScorer(nil, "fr")
	assert.Equal(t, 0, s.Score("asthme", "asthme", "fr"))
}

func TestScoreMultiWordLemmaMatchesPhrase(t *testing.T) {
	t.Parallel()

	s := NewScorer(nil, "en")
	lemma := s.StemTerm("air quality")
	s = NewScorer([]string{lemma}, "en")

	assert.Equal(t, 1, s.Score("", "urban air quality is degrading", "en"))
	assert.Equal(t, 0, s.Score("", "the air was fresh and the quality high", "en"))
}

func TestScoreDeterministic(t *testing.T) {
	t.Parallel()

	base := NewScorer(nil, "fr")
	s := NewScorer([]string{base.StemTerm("asthme"), base.StemTerm("pollution")}, "fr")
	title, body := "Asthme et pollution", "La pollution aggrave l'asthme."
	first := s.Score(title, body, "fr")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, s.Score(title, body, "fr"))
	}
}
