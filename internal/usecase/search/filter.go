package search

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/stylesearch/internal/domain/product"
	"github.com/kailas-cloud/stylesearch/internal/domain/query"
	"github.com/kailas-cloud/stylesearch/internal/logger"
	"github.com/kailas-cloud/stylesearch/internal/metrics"
)

// categoryTargets maps each item category to the catalog taxonomy it should
// narrow results to.
var categoryTargets = map[query.ItemCategory]struct {
	master string
	subs   []string
}{
	query.Dress:       {master: "Apparel", subs: []string{"Dresses"}},
	query.Jacket:      {master: "Apparel", subs: []string{"Jackets", "Blazers", "Coats"}},
	query.Shirt:       {master: "Apparel", subs: []string{"Shirts", "Tops", "T-shirts"}},
	query.Pants:       {master: "Apparel", subs: []string{"Trousers", "Jeans", "Pants"}},
	query.Shoes:       {master: "Footwear", subs: []string{"Shoes", "Sneakers", "Boots"}},
	query.Accessories: {master: "Accessories"},
}

// filter narrows candidates through four soft stages: category, wanted
// descriptors, excluded descriptors, minimum rating. Every stage is advisory:
// a stage that would empty the set is skipped so the caller always ranks
// something when candidates were non-empty.
func (s *Service) filter(ctx context.Context, candidates []product.Product, q query.SemanticQuery) []product.Product {
	out := candidates

	out = softStage(ctx, out, "category", categoryPredicate(q.Items))
	out = softStage(ctx, out, "inclusion", inclusionPredicate(q.Wanted))
	out = softStage(ctx, out, "exclusion", exclusionPredicate(q.Excluded))
	out = softStage(ctx, out, "rating", ratingPredicate(q.MinRating))

	return out
}

// softStage applies pred and keeps the result only when it is non-empty.
// A nil pred means the stage has nothing to filter on and is skipped silently.
func softStage(ctx context.Context, in []product.Product, stage string, pred func(product.Product) bool) []product.Product {
	if pred == nil || len(in) == 0 {
		return in
	}

	kept := make([]product.Product, 0, len(in))
	for _, p := range in {
		if pred(p) {
			kept = append(kept, p)
		}
	}

	if len(kept) == 0 {
		metrics.FilterStageTotal.WithLabelValues(stage, "skipped").Inc()
		logger.FromContext(ctx).Debug("Filter stage would empty the result set, skipping",
			zap.String("stage", stage), zap.Int("candidates", len(in)))
		return in
	}

	metrics.FilterStageTotal.WithLabelValues(stage, "applied").Inc()
	logger.FromContext(ctx).Debug("Filter stage applied",
		zap.String("stage", stage), zap.Int("before", len(in)), zap.Int("after", len(kept)))
	return kept
}

// categoryPredicate matches products in the taxonomy targeted by the matched
// items. It requires both a master category and at least one subcategory
// target, so an accessories-only query does not narrow by category.
func categoryPredicate(items query.Items) func(product.Product) bool {
	masters := make(map[string]struct{})
	var subs []string
	items.Each(func(cat query.ItemCategory, _ string) {
		target := categoryTargets[cat]
		masters[target.master] = struct{}{}
		subs = append(subs, target.subs...)
	})
	if len(masters) == 0 || len(subs) == 0 {
		return nil
	}

	return func(p product.Product) bool {
		if _, ok := masters[p.MasterCategory]; !ok {
			return false
		}
		articleType := strings.ToLower(p.ArticleType)
		for _, sub := range subs {
			if p.SubCategory == sub || strings.Contains(articleType, strings.ToLower(sub)) {
				return true
			}
		}
		return false
	}
}

// inclusionPredicate matches products whose name mentions a wanted material,
// pattern or color, or whose base color equals a wanted word. Styles are too
// subjective to filter on and stay ranking-only.
func inclusionPredicate(wanted query.Descriptors) func(product.Product) bool {
	words := make([]string, 0, len(wanted.Materials)+len(wanted.Patterns)+len(wanted.Colors))
	words = append(words, wanted.Materials...)
	words = append(words, wanted.Patterns...)
	words = append(words, wanted.Colors...)
	if len(words) == 0 {
		return nil
	}

	return func(p product.Product) bool {
		name := strings.ToLower(p.DisplayName)
		color := strings.ToLower(p.BaseColor)
		for _, w := range words {
			if strings.Contains(name, w) || w == color {
				return true
			}
		}
		return false
	}
}

// exclusionPredicate rejects products mentioning an excluded color or
// material in their name, or carrying an excluded base color.
func exclusionPredicate(excluded query.Descriptors) func(product.Product) bool {
	words := make([]string, 0, len(excluded.Colors)+len(excluded.Materials))
	words = append(words, excluded.Colors...)
	words = append(words, excluded.Materials...)
	if len(words) == 0 {
		return nil
	}

	return func(p product.Product) bool {
		name := strings.ToLower(p.DisplayName)
		color := strings.ToLower(p.BaseColor)
		for _, w := range words {
			if strings.Contains(name, w) || w == color {
				return false
			}
		}
		return true
	}
}

// ratingPredicate keeps products at or above the requested minimum rating.
func ratingPredicate(minRating float64) func(product.Product) bool {
	if minRating <= 0 {
		return nil
	}
	return func(p product.Product) bool {
		return p.Rating >= minRating
	}
}
