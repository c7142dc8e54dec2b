package intent

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kailas-cloud/stylesearch/internal/domain/query"
)

// maxRankedPhrases caps the number of statistically ranked phrases kept.
const maxRankedPhrases = 5

// stopwords delimit candidate phrases during keyword ranking.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"i": {}, "in": {}, "is": {}, "it": {}, "like": {}, "me": {}, "my": {},
	"no": {}, "not": {}, "of": {}, "on": {}, "or": {}, "show": {}, "some": {},
	"that": {}, "the": {}, "this": {}, "to": {}, "want": {}, "with": {},
	"would": {}, "you": {},
}

// Keywords extracts up to five top-ranked phrases from the raw text using
// degree/frequency co-occurrence scoring, then unions them with every matched
// item and descriptor word. The result is used for logging and explanation
// only, never for filtering.
func Keywords(text string, q query.SemanticQuery) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(kw string) {
		if kw == "" {
			return
		}
		if _, ok := seen[kw]; ok {
			return
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}

	for _, phrase := range rankPhrases(text) {
		add(phrase)
	}
	q.Items.Each(func(_ query.ItemCategory, word string) {
		add(word)
	})
	for _, word := range q.Wanted.All() {
		add(word)
	}

	return out
}

// rankPhrases splits the text into stopword-delimited candidate phrases and
// scores each as the sum of its words' degree/frequency ratios. Ties keep
// the earlier phrase first so output is deterministic.
func rankPhrases(text string) []string {
	phrases := candidatePhrases(text)
	if len(phrases) == 0 {
		return nil
	}

	freq := make(map[string]int)
	degree := make(map[string]int)
	for _, phrase := range phrases {
		words := strings.Fields(phrase)
		for _, w := range words {
			freq[w]++
			degree[w] += len(words) - 1
		}
	}

	type scored struct {
		phrase string
		score  float64
		order  int
	}
	uniq := make(map[string]int) // phrase -> first occurrence
	for i, p := range phrases {
		if _, ok := uniq[p]; !ok {
			uniq[p] = i
		}
	}

	ranked := make([]scored, 0, len(uniq))
	for phrase, order := range uniq {
		var s float64
		for _, w := range strings.Fields(phrase) {
			s += float64(degree[w]+freq[w]) / float64(freq[w])
		}
		ranked = append(ranked, scored{phrase: phrase, score: s, order: order})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].order < ranked[j].order
	})

	n := len(ranked)
	if n > maxRankedPhrases {
		n = maxRankedPhrases
	}
	out := make([]string, n)
	for i := range out {
		out[i] = ranked[i].phrase
	}
	return out
}

// candidatePhrases lower-cases the text and splits it into runs of
// non-stopword words. Both stopwords and sentence punctuation end a phrase.
func candidatePhrases(text string) []string {
	fragments := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return strings.ContainsRune(",.;:!?()", r)
	})

	var phrases []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			phrases = append(phrases, strings.Join(current, " "))
			current = nil
		}
	}
	for _, fragment := range fragments {
		tokens := strings.FieldsFunc(fragment, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\'' && r != '-'
		})
		for _, tok := range tokens {
			if _, stop := stopwords[tok]; stop {
				flush()
				continue
			}
			current = append(current, tok)
		}
		flush()
	}
	return phrases
}
