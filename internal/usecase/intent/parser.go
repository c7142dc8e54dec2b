// Package intent turns free-text queries into structured semantic intent.
package intent

import (
	"strings"

	"github.com/kailas-cloud/stylesearch/internal/domain/query"
)

// itemSynonyms maps each item category to its synonym list. Order matters:
// the first synonym found in the text wins and later synonyms for the same
// category are not checked.
var itemSynonyms = []struct {
	cat   query.ItemCategory
	words []string
}{
	{query.Dress, []string{"dress", "gown", "frock"}},
	{query.Jacket, []string{"jacket", "coat", "blazer"}},
	{query.Shirt, []string{"shirt", "top", "tee", "t-shirt", "tshirt", "blouse"}},
	{query.Pants, []string{"pant", "trouser", "jeans", "leggings", "shorts"}},
	{query.Shoes, []string{"shoe", "sneaker", "boot", "heel", "footwear"}},
	{query.Accessories, []string{"watch", "bag", "purse", "handbag", "backpack", "wallet"}},
}

// descriptorWords holds the configured vocabulary per descriptor class.
var descriptorWords = struct {
	colors    []string
	patterns  []string
	materials []string
	styles    []string
}{
	colors:    []string{"red", "blue", "green", "yellow", "black", "white", "pink", "purple", "brown", "orange", "beige"},
	patterns:  []string{"floral", "striped", "plaid", "checkered", "dotted", "printed"},
	materials: []string{"denim", "leather", "cotton", "silk", "wool", "polyester", "linen"},
	styles:    []string{"casual", "formal", "elegant", "vintage", "modern", "sporty", "classic"},
}

// negated reports whether word appears under one of the literal negation
// templates anywhere in the text.
func negated(text, word string) bool {
	for _, tpl := range []string{"not ", "no ", "except ", "but not "} {
		if strings.Contains(text, tpl+word) {
			return true
		}
	}
	return false
}

// Parse extracts structured intent from a free-text query. An empty or
// unrecognized query yields a zero SemanticQuery, which the pipeline treats
// as "no structured intent".
func Parse(text string) query.SemanticQuery {
	if text == "" {
		return query.SemanticQuery{}
	}

	lower := strings.ToLower(text)
	var q query.SemanticQuery

	for _, entry := range itemSynonyms {
		for _, word := range entry.words {
			if strings.Contains(lower, word) {
				q.Items.Set(entry.cat, word)
				break
			}
		}
	}

	// The negation check runs first and short-circuits inclusion, so a word
	// can never land in both Wanted and Excluded for the same class.
	q.Wanted.Colors, q.Excluded.Colors = splitDescriptors(lower, descriptorWords.colors)
	q.Wanted.Patterns, q.Excluded.Patterns = splitDescriptors(lower, descriptorWords.patterns)
	q.Wanted.Materials, q.Excluded.Materials = splitDescriptors(lower, descriptorWords.materials)
	q.Wanted.Styles, q.Excluded.Styles = splitDescriptors(lower, descriptorWords.styles)

	q.MinRating = MinRating(lower)

	return q
}

// splitDescriptors partitions the configured words into wanted and excluded
// sets based on the text.
func splitDescriptors(text string, words []string) (wanted, excluded []string) {
	for _, word := range words {
		if negated(text, word) {
			excluded = append(excluded, word)
			continue
		}
		if strings.Contains(text, word) {
			wanted = append(wanted, word)
		}
	}
	return wanted, excluded
}
