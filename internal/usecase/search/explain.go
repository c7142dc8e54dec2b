package search

import (
	"strings"

	"github.com/kailas-cloud/stylesearch/internal/domain/product"
	"github.com/kailas-cloud/stylesearch/internal/domain/query"
)

// explain produces the human-readable match reason shown next to a result.
// With structured intent it names the item and descriptor words the product
// actually satisfies; without, it falls back to the product's own color and
// article type. The bold markers are part of the storefront contract.
func explain(p product.Product, q query.SemanticQuery, hasText bool) string {
	if !hasText {
		return "Matched based on your search criteria"
	}

	name := strings.ToLower(p.DisplayName)
	articleType := strings.ToLower(p.ArticleType)
	baseColor := strings.ToLower(p.BaseColor)

	var reasons []string
	seen := make(map[string]struct{})
	add := func(word string) {
		if _, ok := seen[word]; ok {
			return
		}
		seen[word] = struct{}{}
		reasons = append(reasons, word)
	}

	q.Items.Each(func(_ query.ItemCategory, word string) {
		if strings.Contains(articleType, word) || strings.Contains(name, word) {
			add(word)
		}
	})
	for _, word := range q.Wanted.All() {
		if word == baseColor || strings.Contains(name, word) {
			add(word)
		}
	}

	if len(reasons) > 0 {
		return "Matched: **" + strings.Join(reasons, " ") + " " + articleType + "**"
	}
	return "Matched: **" + baseColor + " " + articleType + "** similar to your query"
}
