package search

import (
	"context"
	"testing"

	"github.com/kailas-cloud/stylesearch/internal/domain/product"
	"github.com/kailas-cloud/stylesearch/internal/domain/query"
)

func TestCategoryPredicate(t *testing.T) {
	shoes := product.Product{MasterCategory: "Footwear", SubCategory: "Shoes", ArticleType: "Casual Shoes"}
	sneakers := product.Product{MasterCategory: "Footwear", SubCategory: "Sports", ArticleType: "Running Sneakers"}
	shirt := product.Product{MasterCategory: "Apparel", SubCategory: "Topwear", ArticleType: "Shirts"}

	t.Run("matches subcategory exactly", func(t *testing.T) {
		pred := categoryPredicate(query.Items{Shoes: "shoe"})
		if !pred(shoes) {
			t.Error("expected exact subcategory match")
		}
	})

	t.Run("matches subcategory within article type", func(t *testing.T) {
		// SubCategory does not match but "Sneakers" appears in the article type.
		pred := categoryPredicate(query.Items{Shoes: "sneaker"})
		if !pred(sneakers) {
			t.Error("expected article-type substring match")
		}
	})

	t.Run("rejects wrong master category", func(t *testing.T) {
		pred := categoryPredicate(query.Items{Shoes: "shoe"})
		if pred(shirt) {
			t.Error("apparel product matched a footwear query")
		}
	})

	t.Run("accessories alone yields no predicate", func(t *testing.T) {
		// Accessories has no subcategory targets, so the stage does not run.
		if pred := categoryPredicate(query.Items{Accessories: "watch"}); pred != nil {
			t.Error("expected nil predicate for accessories-only items")
		}
	})

	t.Run("no items yields no predicate", func(t *testing.T) {
		if pred := categoryPredicate(query.Items{}); pred != nil {
			t.Error("expected nil predicate without items")
		}
	})
}

func TestRatingStage(t *testing.T) {
	low := product.Product{ID: 1, DisplayName: "Basic Tee", Rating: 3.1}
	high := product.Product{ID: 2, DisplayName: "Premium Tee", Rating: 4.6}

	t.Run("keeps products at or above threshold", func(t *testing.T) {
		out := softStage(context.Background(), []product.Product{low, high}, "rating", ratingPredicate(4.0))
		if len(out) != 1 || out[0].ID != 2 {
			t.Errorf("got %+v, want only the high-rated product", out)
		}
	})

	t.Run("skipped when it would empty the set", func(t *testing.T) {
		out := softStage(context.Background(), []product.Product{low}, "rating", ratingPredicate(4.0))
		if len(out) != 1 {
			t.Errorf("stage emptied the set: %+v", out)
		}
	})

	t.Run("no threshold yields no predicate", func(t *testing.T) {
		if pred := ratingPredicate(0); pred != nil {
			t.Error("expected nil predicate for zero threshold")
		}
	})
}

func TestExclusionPredicate_BaseColorExactMatchOnly(t *testing.T) {
	// "red" must reject a Red product but not a "Coral Red Print" name match
	// confusion: substring applies to the name, equality to the base color.
	pred := exclusionPredicate(query.Descriptors{Colors: []string{"red"}})

	if pred(product.Product{DisplayName: "Plain Jacket", BaseColor: "Red"}) {
		t.Error("excluded base color survived")
	}
	if pred(product.Product{DisplayName: "Red Trim Jacket", BaseColor: "Blue"}) {
		t.Error("excluded word in name survived")
	}
	if !pred(product.Product{DisplayName: "Plain Jacket", BaseColor: "Blue"}) {
		t.Error("clean product was rejected")
	}
}

func TestExplain(t *testing.T) {
	p := product.Product{
		DisplayName: "Levis Men Red Denim Jacket",
		ArticleType: "Jackets",
		BaseColor:   "Red",
	}

	t.Run("names matched criteria", func(t *testing.T) {
		q := query.SemanticQuery{
			Items:  query.Items{Jacket: "jacket"},
			Wanted: query.Descriptors{Colors: []string{"red"}, Materials: []string{"denim"}},
		}
		got := explain(p, q, true)
		want := "Matched: **jacket red denim jackets**"
		if got != want {
			t.Errorf("explain = %q, want %q", got, want)
		}
	})

	t.Run("falls back to product attributes", func(t *testing.T) {
		got := explain(p, query.SemanticQuery{}, true)
		want := "Matched: **red jackets** similar to your query"
		if got != want {
			t.Errorf("explain = %q, want %q", got, want)
		}
	})

	t.Run("image only search", func(t *testing.T) {
		got := explain(p, query.SemanticQuery{}, false)
		if got != "Matched based on your search criteria" {
			t.Errorf("explain = %q", got)
		}
	})
}
