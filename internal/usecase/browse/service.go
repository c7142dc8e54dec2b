// Package browse serves catalog navigation: listing article types and
// fetching products by category without a search query.
package browse

import (
	"sort"
	"strings"

	"github.com/kailas-cloud/stylesearch/internal/domain"
	"github.com/kailas-cloud/stylesearch/internal/domain/product"
)

// Catalog is the read view browse operates on.
type Catalog interface {
	All() []product.Product
}

// storefront categories that do not map one-to-one onto a catalog article
// type and need taxonomy-level matching instead.
var categoryMapping = map[string]struct {
	master string
	subs   []string
}{
	"sneakers": {master: "Footwear", subs: []string{"Sports Shoes", "Casual Shoes", "Sneakers"}},
	"tshirts":  {master: "Apparel", subs: []string{"Tshirts", "T-Shirts", "Tops"}},
	"bags":     {master: "Accessories", subs: []string{"Bags", "Handbags", "Backpacks"}},
	"pants":    {master: "Apparel", subs: []string{"Pants", "Trousers", "Jeans"}},
	"dresses":  {master: "Apparel", subs: []string{"Dresses"}},
	"shirts":   {master: "Apparel", subs: []string{"Shirts"}},
	"jackets":  {master: "Apparel", subs: []string{"Jackets"}},
}

// Service answers catalog browse requests from the in-memory snapshot.
type Service struct {
	catalog Catalog
}

// New creates a browse service.
func New(catalog Catalog) *Service {
	return &Service{catalog: catalog}
}

// Categories returns the distinct article types in the catalog, sorted.
func (s *Service) Categories() []string {
	seen := make(map[string]struct{})
	for _, p := range s.catalog.All() {
		if p.ArticleType != "" {
			seen[p.ArticleType] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ByCategory returns the products under a storefront category. Mapped
// categories match on taxonomy; anything else matches the article type
// directly after normalization. Unknown categories yield an empty list.
func (s *Service) ByCategory(category string) []domain.SearchResult {
	norm := normalizeCategory(category)

	var matched []product.Product
	if mapping, ok := categoryMapping[norm]; ok {
		for _, p := range s.catalog.All() {
			if p.MasterCategory != mapping.master {
				continue
			}
			articleType := normalizeCategory(p.ArticleType)
			for _, sub := range mapping.subs {
				if strings.Contains(articleType, normalizeCategory(sub)) {
					matched = append(matched, p)
					break
				}
			}
		}
	}

	if len(matched) == 0 {
		for _, p := range s.catalog.All() {
			if normalizeCategory(p.ArticleType) == norm {
				matched = append(matched, p)
			}
		}
	}

	results := make([]domain.SearchResult, len(matched))
	for i, p := range matched {
		results[i] = domain.SearchResult{
			ID:         p.ID,
			Rank:       i + 1,
			Name:       p.DisplayName,
			Image:      p.ImageRef,
			Rating:     p.Rating,
			NumReviews: p.NumReviews,
			Price:      p.Price,
			Discount:   p.DiscountPercent,
		}
	}
	return results
}

// normalizeCategory canonicalizes a category string for comparison:
// lower-cased with spaces, dashes and underscores removed.
func normalizeCategory(category string) string {
	lower := strings.ToLower(strings.TrimSpace(category))
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(lower)
}
