package patch

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/stylesearch/internal/domain/query"
)

// --- Mocks ---

type mockTextEmbedder struct {
	vecs   map[string][]float32
	failOn map[string]bool
	err    error
}

func (m *mockTextEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.failOn[text] {
		return nil, errors.New("embedding unavailable")
	}
	if vec, ok := m.vecs[text]; ok {
		return vec, nil
	}
	return []float32{0, 1}, nil
}

// mockImageEmbedder returns marked when the crop contains a marker pixel,
// plain otherwise.
type mockImageEmbedder struct {
	marked []float32
	plain  []float32
}

func (m *mockImageEmbedder) EmbedImage(_ context.Context, img image.Image) ([]float32, error) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			if r > 0x8000 {
				return m.marked, nil
			}
		}
	}
	return m.plain, nil
}

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	return img
}

// markPixel paints a bright red marker the mock embedder reacts to.
func markPixel(img *image.RGBA, x, y int) {
	img.Set(x, y, color.RGBA{R: 255, A: 255})
}

func testPatchConfig() Config {
	return Config{
		GridSize:          5,
		FineGridSize:      6,
		MinCellPx:         40,
		MinStandardCellPx: 50,
		MinCropPx:         30,
		LowConfidence:     0.15,
		ItemBoostCutoff:   0.2,
		ItemBoost:         0.1,
		MaterialWeight:    0.7,
		ZoomFactor:        1.2,
		Workers:           2,
	}
}

func newTestService(t *testing.T, texts *mockTextEmbedder, images *mockImageEmbedder) *Service {
	t.Helper()
	svc, err := New(texts, images, testPatchConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(svc.Release)
	return svc
}

// --- Tests ---

func TestLocate_ImageOnlyUsesCenterZoom(t *testing.T) {
	svc := newTestService(t,
		&mockTextEmbedder{},
		&mockImageEmbedder{marked: []float32{1, 0}, plain: []float32{0, 1}})

	img := testImage(120, 120)
	loc := svc.Locate(context.Background(), img, nil, query.SemanticQuery{})

	b := loc.Patch.Bounds()
	if b.Dx() != 120 || b.Dy() != 120 {
		t.Errorf("zoomed patch is %dx%d, want 120x120", b.Dx(), b.Dy())
	}
	if loc.Embedding == nil {
		t.Error("expected best-effort embedding of the zoomed patch")
	}
}

func TestStandardGrid_SelectsCellContainingTarget(t *testing.T) {
	svc := newTestService(t,
		&mockTextEmbedder{},
		&mockImageEmbedder{marked: []float32{1, 0}, plain: []float32{0, 1}})

	img := testImage(400, 300)
	markPixel(img, 10, 10) // inside the top-left cell only

	loc := svc.Locate(context.Background(), img, []float32{1, 0}, query.SemanticQuery{})

	if len(loc.Embedding) != 2 || loc.Embedding[0] != 1 {
		t.Fatalf("best cell embedding = %v, want the marked vector", loc.Embedding)
	}
	b := loc.Patch.Bounds()
	// Top-left cell expanded by a quarter cell: 120x90.
	if b.Dx() != 120 || b.Dy() != 90 {
		t.Errorf("selected patch is %dx%d, want 120x90", b.Dx(), b.Dy())
	}
}

// When no cell clears the confidence threshold the localizer falls back to
// the centered square crop with side min(width, height).
func TestStandardGrid_LowConfidenceFallsBackToCenterSquare(t *testing.T) {
	svc := newTestService(t,
		&mockTextEmbedder{},
		&mockImageEmbedder{marked: []float32{1, 0}, plain: []float32{0, 1}})

	img := testImage(400, 300) // uniform gray, every cell scores 0
	loc := svc.Locate(context.Background(), img, []float32{1, 0}, query.SemanticQuery{})

	b := loc.Patch.Bounds()
	if b.Dx() != 300 || b.Dy() != 300 {
		t.Errorf("fallback patch is %dx%d, want 300x300", b.Dx(), b.Dy())
	}
}

func TestStandardGrid_SmallImageKeepsFullFrame(t *testing.T) {
	svc := newTestService(t,
		&mockTextEmbedder{},
		&mockImageEmbedder{marked: []float32{1, 0}, plain: []float32{0, 1}})

	img := testImage(100, 100) // 20px cells, below the standard minimum
	loc := svc.Locate(context.Background(), img, []float32{1, 0}, query.SemanticQuery{})

	b := loc.Patch.Bounds()
	if b.Dx() != 100 || b.Dy() != 100 {
		t.Errorf("patch is %dx%d, want the full 100x100 frame", b.Dx(), b.Dy())
	}
}

func TestFineGrid_SelectsCellContainingTarget(t *testing.T) {
	svc := newTestService(t,
		&mockTextEmbedder{vecs: map[string][]float32{"shoe": {1, 0}}},
		&mockImageEmbedder{marked: []float32{1, 0}, plain: []float32{0, 1}})

	img := testImage(360, 360) // 60px fine cells
	markPixel(img, 10, 10)

	q := query.SemanticQuery{Items: query.Items{Shoes: "shoe"}}
	loc := svc.Locate(context.Background(), img, []float32{1, 0}, q)

	if len(loc.Embedding) != 2 || loc.Embedding[0] != 1 {
		t.Fatalf("best cell embedding = %v, want the marked vector", loc.Embedding)
	}
	b := loc.Patch.Bounds()
	if b.Dx() != 60 || b.Dy() != 60 {
		t.Errorf("selected patch is %dx%d, want a 60x60 fine cell", b.Dx(), b.Dy())
	}
}

func TestFineGrid_SmallImageKeepsFullFrame(t *testing.T) {
	svc := newTestService(t,
		&mockTextEmbedder{},
		&mockImageEmbedder{marked: []float32{1, 0}, plain: []float32{0, 1}})

	img := testImage(100, 100) // fine cells would be 16px, below the minimum
	q := query.SemanticQuery{Items: query.Items{Shoes: "shoe"}}
	loc := svc.Locate(context.Background(), img, []float32{1, 0}, q)

	b := loc.Patch.Bounds()
	if b.Dx() != 100 || b.Dy() != 100 {
		t.Errorf("patch is %dx%d, want the full 100x100 frame", b.Dx(), b.Dy())
	}
}

func TestTags_TopThreeByProximity(t *testing.T) {
	vecs := map[string][]float32{
		"shoe":    {1, 0},
		"sneaker": {0.9, 0.1},
		"boot":    {0.5, 0.5},
		"dress":   {0, 1},
	}
	texts := &mockTextEmbedder{vecs: vecs}
	svc := newTestService(t, texts, &mockImageEmbedder{plain: []float32{0, 1}})
	svc.vocab = nil

	for _, label := range []string{"shoe", "sneaker", "boot", "dress"} {
		svc.vocab = append(svc.vocab, tagEntry{label: label, embedding: vecs[label]})
	}

	got := svc.tags([]float32{1, 0})
	if len(got) != 3 {
		t.Fatalf("got %d tags, want 3", len(got))
	}
	want := []string{"shoe", "sneaker", "boot"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tags = %v, want %v", got, want)
			break
		}
	}
}

func TestLoadTagVocabulary_SkipsFailedLabels(t *testing.T) {
	texts := &mockTextEmbedder{failOn: map[string]bool{"watch": true, "plain": true}}
	svc := newTestService(t, texts, &mockImageEmbedder{plain: []float32{0, 1}})

	if err := svc.LoadTagVocabulary(context.Background()); err != nil {
		t.Fatalf("LoadTagVocabulary: %v", err)
	}
	if len(svc.vocab) != len(tagVocabulary)-2 {
		t.Errorf("vocab size = %d, want %d", len(svc.vocab), len(tagVocabulary)-2)
	}
	for _, entry := range svc.vocab {
		if entry.label == "watch" || entry.label == "plain" {
			t.Errorf("failed label %q kept in vocabulary", entry.label)
		}
	}
}

func TestPreviewDataURI(t *testing.T) {
	uri, err := PreviewDataURI(testImage(10, 10))
	if err != nil {
		t.Fatalf("PreviewDataURI: %v", err)
	}
	if !strings.HasPrefix(uri, "data:image/jpeg;base64,") {
		t.Errorf("unexpected prefix: %.40s", uri)
	}
}
