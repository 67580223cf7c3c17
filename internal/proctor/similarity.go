package proctor

import (
	"regexp"
	"strings"

	"github.com/adrg/strutil"
	strmetrics "github.com/adrg/strutil/metrics"
)

const maxKeyTerms = 20

// NeutralSimilarity is returned when either text has no key terms.
const NeutralSimilarity = 0.5

var nonWord = regexp.MustCompile(`[^\w\s]`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "of": true, "with": true, "by": true, "i": true, "you": true,
	"he": true, "she": true, "it": true, "we": true, "they": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "have": true, "has": true, "had": true, "do": true,
	"does": true, "did": true, "will": true, "would": true, "could": true, "should": true,
}

// KeyTerms returns up to 20 distinct lowercase words longer than three
// characters that are not stop words, in order of first appearance.
func KeyTerms(text string) []string {
	words := strings.Fields(nonWord.ReplaceAllString(strings.ToLower(text), " "))
	seen := make(map[string]bool, len(words))
	var terms []string
	for _, w := range words {
		if len(w) <= 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
		if len(terms) == maxKeyTerms {
			break
		}
	}
	return terms
}

// Similarity compares the key terms of two texts with the Sorensen-Dice
// coefficient over character bigrams, ignoring whitespace.
func Similarity(a, b string) float64 {
	ta, tb := KeyTerms(a), KeyTerms(b)
	if len(ta) == 0 || len(tb) == 0 {
		return NeutralSimilarity
	}
	dice := strmetrics.NewSorensenDice()
	dice.NgramSize = 2
	return strutil.Similarity(strings.Join(ta, ""), strings.Join(tb, ""), dice)
}
