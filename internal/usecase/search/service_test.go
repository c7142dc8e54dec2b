package search

import (
	"context"
	"errors"
	"image"
	"math"
	"strings"
	"testing"

	"github.com/kailas-cloud/stylesearch/internal/domain"
	"github.com/kailas-cloud/stylesearch/internal/domain/product"
	"github.com/kailas-cloud/stylesearch/internal/domain/query"
	"github.com/kailas-cloud/stylesearch/internal/index"
	"github.com/kailas-cloud/stylesearch/internal/usecase/patch"
)

// --- Mocks ---

type mockTexts struct {
	vec []float32
	err error
}

func (m *mockTexts) EmbedText(_ context.Context, _ string) ([]float32, error) {
	return m.vec, m.err
}

type mockIndex struct {
	hits  []index.Hit
	ids   []int64
	lastN int
}

func (m *mockIndex) Search(_ []float32, n int) []index.Hit {
	m.lastN = n
	if len(m.hits) > n {
		return m.hits[:n]
	}
	return m.hits
}

func (m *mockIndex) IDAt(pos int) (int64, bool) {
	if pos < 0 || pos >= len(m.ids) {
		return 0, false
	}
	return m.ids[pos], true
}

type mockCatalog map[int64]product.Product

func (m mockCatalog) Get(id int64) (product.Product, bool) {
	p, ok := m[id]
	return p, ok
}

type mockLocalizer struct {
	loc patch.Localization
}

func (m *mockLocalizer) Locate(_ context.Context, img image.Image, _ []float32, _ query.SemanticQuery) patch.Localization {
	if m.loc.Patch == nil {
		m.loc.Patch = img
	}
	return m.loc
}

func testConfig() Config {
	return Config{
		DefaultLimit:     9,
		RetrievalFactor:  8,
		RetrievalCap:     500,
		TextWeightIntent: 0.65,
		TextWeightPlain:  0.55,
	}
}

func jacket(id int64, name, color string) product.Product {
	return product.Product{
		ID:             id,
		DisplayName:    name,
		MasterCategory: "Apparel",
		SubCategory:    "Jackets",
		ArticleType:    "Jackets",
		BaseColor:      color,
		Rating:         4.2,
	}
}

// --- Tests ---

func TestSearch_EmptyInputYieldsEmptyList(t *testing.T) {
	idx := &mockIndex{}
	svc := New(&mockTexts{}, idx, mockCatalog{}, &mockLocalizer{}, testConfig())

	results, err := svc.Search(context.Background(), Request{Text: "   "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results, got %d", len(results))
	}
	if idx.lastN != 0 {
		t.Errorf("index was queried for an empty request")
	}
}

func TestSearch_RanksAndExplains(t *testing.T) {
	catalog := mockCatalog{
		1: jacket(1, "Levis Men Red Denim Jacket", "Red"),
		2: jacket(2, "Roadster Women Blue Jacket", "Blue"),
		3: jacket(3, "Puma Men Green Jacket", "Green"),
	}
	idx := &mockIndex{
		hits: []index.Hit{{Pos: 0, Score: 0.9}, {Pos: 1, Score: 0.8}, {Pos: 2, Score: 0.7}},
		ids:  []int64{1, 2, 3},
	}
	svc := New(&mockTexts{vec: []float32{1, 0}}, idx, catalog, &mockLocalizer{}, testConfig())

	results, err := svc.Search(context.Background(), Request{Text: "red jacket", Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result after color filter, got %d", len(results))
	}

	r := results[0]
	if r.ID != 1 || r.Rank != 1 {
		t.Errorf("got id=%d rank=%d, want id=1 rank=1", r.ID, r.Rank)
	}
	if !strings.Contains(r.Why, "red") || !strings.Contains(r.Why, "jacket") {
		t.Errorf("explanation %q does not mention the matched words", r.Why)
	}
	if r.Patch != nil {
		t.Errorf("text-only search produced a patch preview")
	}
}

func TestSearch_ExclusionRemovesColor(t *testing.T) {
	catalog := mockCatalog{
		1: jacket(1, "Levis Men Red Denim Jacket", "Red"),
		2: jacket(2, "Roadster Blue Denim Jacket", "Blue"),
	}
	idx := &mockIndex{
		hits: []index.Hit{{Pos: 0, Score: 0.9}, {Pos: 1, Score: 0.8}},
		ids:  []int64{1, 2},
	}
	svc := New(&mockTexts{vec: []float32{1, 0}}, idx, catalog, &mockLocalizer{}, testConfig())

	results, err := svc.Search(context.Background(), Request{Text: "denim jacket but not red"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range results {
		if strings.Contains(strings.ToLower(r.Name), "red") {
			t.Errorf("excluded color survived: %q", r.Name)
		}
	}
	if len(results) != 1 || results[0].ID != 2 {
		t.Errorf("expected only the blue jacket, got %+v", results)
	}
}

// A filter stage that would wipe out every candidate must be skipped, never
// applied: a search always returns something when retrieval found candidates.
func TestSearch_FilterNeverEmptiesResults(t *testing.T) {
	catalog := mockCatalog{
		1: jacket(1, "Levis Men Red Denim Jacket", "Red"),
		2: jacket(2, "Roadster Blue Denim Jacket", "Blue"),
	}
	idx := &mockIndex{
		hits: []index.Hit{{Pos: 0, Score: 0.9}, {Pos: 1, Score: 0.8}},
		ids:  []int64{1, 2},
	}
	svc := New(&mockTexts{vec: []float32{1, 0}}, idx, catalog, &mockLocalizer{}, testConfig())

	// No candidate is yellow, so the inclusion stage is skipped.
	results, err := svc.Search(context.Background(), Request{Text: "yellow jacket"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected both candidates to survive, got %d", len(results))
	}
}

func TestSearch_TextEmbeddingFailureDegradesToEmpty(t *testing.T) {
	idx := &mockIndex{hits: []index.Hit{{Pos: 0, Score: 0.9}}, ids: []int64{1}}
	svc := New(&mockTexts{err: errors.New("provider down")}, idx, mockCatalog{}, &mockLocalizer{}, testConfig())

	results, err := svc.Search(context.Background(), Request{Text: "red jacket"})
	if err != nil {
		t.Fatalf("degradation must not surface an error, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results without a query vector, got %d", len(results))
	}
}

func TestSearch_DropsUnresolvablePositions(t *testing.T) {
	catalog := mockCatalog{1: jacket(1, "Levis Men Red Denim Jacket", "Red")}
	idx := &mockIndex{
		// Pos 5 is out of range, pos 1 resolves to an id missing from the catalog.
		hits: []index.Hit{{Pos: 0, Score: 0.9}, {Pos: 5, Score: 0.8}, {Pos: 1, Score: 0.7}},
		ids:  []int64{1, 42},
	}
	svc := New(&mockTexts{vec: []float32{1, 0}}, idx, catalog, &mockLocalizer{}, testConfig())

	results, err := svc.Search(context.Background(), Request{Text: "jacket"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ID != 1 {
		t.Errorf("expected only the resolvable product, got %+v", results)
	}
}

func TestSearch_RetrievalSizing(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		wantN int
	}{
		{"default limit times factor", 0, 72},
		{"explicit limit times factor", 10, 80},
		{"capped", 100, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &mockIndex{}
			svc := New(&mockTexts{vec: []float32{1, 0}}, idx, mockCatalog{}, &mockLocalizer{}, testConfig())

			_, err := svc.Search(context.Background(), Request{Text: "jacket", Limit: tt.limit})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if idx.lastN != tt.wantN {
				t.Errorf("requested %d neighbors, want %d", idx.lastN, tt.wantN)
			}
		})
	}
}

func TestFuse(t *testing.T) {
	cfg := testConfig()
	svc := New(&mockTexts{}, &mockIndex{}, mockCatalog{}, &mockLocalizer{}, cfg)

	textVec := []float32{1, 0}
	imageVec := []float32{0, 1}

	t.Run("both nil reports no input", func(t *testing.T) {
		got, err := svc.fuse(nil, nil, false)
		if !errors.Is(err, domain.ErrNoSearchInput) {
			t.Errorf("fuse(nil, nil) error = %v, want ErrNoSearchInput", err)
		}
		if got != nil {
			t.Errorf("fuse(nil, nil) = %v, want nil", got)
		}
	})

	t.Run("text only renormalized", func(t *testing.T) {
		got, err := svc.fuse([]float32{3, 4}, nil, false)
		if err != nil {
			t.Fatalf("fuse: %v", err)
		}
		if math.Abs(float64(got[0])-0.6) > 1e-6 || math.Abs(float64(got[1])-0.8) > 1e-6 {
			t.Errorf("fuse text-only = %v, want [0.6 0.8]", got)
		}
	})

	t.Run("intent weighting", func(t *testing.T) {
		got, err := svc.fuse(textVec, imageVec, true)
		if err != nil {
			t.Fatalf("fuse: %v", err)
		}
		wantRatio := cfg.TextWeightIntent / (1 - cfg.TextWeightIntent)
		gotRatio := float64(got[0]) / float64(got[1])
		if math.Abs(gotRatio-wantRatio) > 1e-6 {
			t.Errorf("intent fusion ratio = %g, want %g", gotRatio, wantRatio)
		}
	})

	t.Run("plain weighting", func(t *testing.T) {
		got, err := svc.fuse(textVec, imageVec, false)
		if err != nil {
			t.Fatalf("fuse: %v", err)
		}
		wantRatio := cfg.TextWeightPlain / (1 - cfg.TextWeightPlain)
		gotRatio := float64(got[0]) / float64(got[1])
		if math.Abs(gotRatio-wantRatio) > 1e-6 {
			t.Errorf("plain fusion ratio = %g, want %g", gotRatio, wantRatio)
		}
	})

	t.Run("fused vector is unit norm", func(t *testing.T) {
		got, err := svc.fuse(textVec, imageVec, true)
		if err != nil {
			t.Fatalf("fuse: %v", err)
		}
		var norm float64
		for _, x := range got {
			norm += float64(x) * float64(x)
		}
		if math.Abs(norm-1) > 1e-6 {
			t.Errorf("fused norm^2 = %g, want 1", norm)
		}
	})
}
