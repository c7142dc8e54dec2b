package patch

import (
	"context"
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/stylesearch/internal/domain"
	"github.com/kailas-cloud/stylesearch/internal/domain/query"
	"github.com/kailas-cloud/stylesearch/internal/logger"
	"github.com/kailas-cloud/stylesearch/internal/metrics"
)

// cellResult carries one evaluated grid cell. Cells whose embedding failed
// stay !ok and are ignored by the reduction.
type cellResult struct {
	ok        bool
	score     float64
	embedding []float32
}

// evalCells embeds every cell concurrently through the worker pool and
// scores it. Results are returned in the cells' raster order so the
// max reduction stays deterministic regardless of completion order.
func (s *Service) evalCells(
	ctx context.Context, img image.Image,
	cells []image.Rectangle, score func(emb []float32) float64,
) []cellResult {
	results := make([]cellResult, len(cells))
	var wg sync.WaitGroup

	for i, rect := range cells {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			emb, err := s.images.EmbedImage(ctx, crop(img, rect))
			if err != nil {
				logger.FromContext(ctx).Debug("Grid cell embedding failed",
					zap.Stringer("cell", rect), zap.Error(err))
				return
			}
			results[i] = cellResult{ok: true, score: score(emb), embedding: emb}
		}
		if err := s.pool.Submit(task); err != nil {
			// Pool rejected the task (released or overloaded): run inline.
			task()
		}
	}
	wg.Wait()

	return results
}

// bestCell picks the maximum-scoring cell. The first cell reaching the
// maximum wins, scanned in raster order.
func bestCell(results []cellResult) (int, bool) {
	best, found := -1, false
	for i, r := range results {
		if !r.ok {
			continue
		}
		if !found || r.score > results[best].score {
			best, found = i, true
		}
	}
	return best, found
}

// standardGrid partitions the image into an overlapping grid and keeps the
// cell most similar to the text embedding. When every cell scores below the
// low-confidence threshold the result is discarded in favor of a centered
// square crop.
func (s *Service) standardGrid(ctx context.Context, img image.Image, textVec []float32) (Localization, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pw, ph := w/s.cfg.GridSize, h/s.cfg.GridSize

	if pw < s.cfg.MinStandardCellPx || ph < s.cfg.MinStandardCellPx {
		metrics.PatchFallbacksTotal.WithLabelValues("small_image").Inc()
		return Localization{Patch: img}, nil
	}

	cells := make([]image.Rectangle, 0, s.cfg.GridSize*s.cfg.GridSize)
	for gy := 0; gy < s.cfg.GridSize; gy++ {
		for gx := 0; gx < s.cfg.GridSize; gx++ {
			// Each cell is expanded by a quarter cell on each side for overlap.
			x1 := max(0, gx*pw-pw/4)
			y1 := max(0, gy*ph-ph/4)
			x2 := min(w, x1+pw+pw/2)
			y2 := min(h, y1+ph+ph/2)
			cells = append(cells, image.Rect(b.Min.X+x1, b.Min.Y+y1, b.Min.X+x2, b.Min.Y+y2))
		}
	}

	results := s.evalCells(ctx, img, cells, func(emb []float32) float64 {
		return domain.Cosine(emb, textVec)
	})

	best, found := bestCell(results)
	if !found {
		return Localization{}, fmt.Errorf("no grid cell could be embedded")
	}

	if results[best].score < s.cfg.LowConfidence {
		metrics.PatchFallbacksTotal.WithLabelValues("low_confidence").Inc()
		logger.FromContext(ctx).Debug("Low patch confidence, using center crop",
			zap.Float64("best_score", results[best].score))
		return Localization{Patch: centerSquare(img)}, nil
	}

	return Localization{
		Patch:     crop(img, cells[best]),
		Embedding: results[best].embedding,
	}, nil
}

// fineGrid runs the intent-driven search: a denser grid evaluated at
// half-cell stride, scored against a material-weighted target and boosted
// per matching item embedding. No low-confidence fallback applies here.
func (s *Service) fineGrid(ctx context.Context, img image.Image, textVec []float32, q query.SemanticQuery) (Localization, error) {
	log := logger.FromContext(ctx)

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pw, ph := w/s.cfg.FineGridSize, h/s.cfg.FineGridSize

	if pw < s.cfg.MinCellPx || ph < s.cfg.MinCellPx {
		metrics.PatchFallbacksTotal.WithLabelValues("small_image").Inc()
		return Localization{Patch: img}, nil
	}

	// One focused embedding per matched item word; failures degrade the
	// boost, not the search.
	var itemVecs [][]float32
	q.Items.Each(func(_ query.ItemCategory, word string) {
		vec, err := s.texts.EmbedText(ctx, word)
		if err != nil {
			log.Warn("Item embedding failed", zap.String("item", word), zap.Error(err))
			return
		}
		itemVecs = append(itemVecs, vec)
	})

	target := textVec
	if len(q.Wanted.Materials) > 0 {
		matVec, err := s.texts.EmbedText(ctx, q.Wanted.Materials[0])
		if err != nil {
			log.Warn("Material embedding failed",
				zap.String("material", q.Wanted.Materials[0]), zap.Error(err))
		} else {
			target = domain.Blend(matVec, s.cfg.MaterialWeight, textVec, 1-s.cfg.MaterialWeight)
		}
	}

	steps := 2*s.cfg.FineGridSize - 1
	cells := make([]image.Rectangle, 0, steps*steps)
	for gy := 0; gy < steps; gy++ {
		for gx := 0; gx < steps; gx++ {
			x1 := gx * pw / 2
			y1 := gy * ph / 2
			x2 := min(w, x1+pw)
			y2 := min(h, y1+ph)
			if x2-x1 < s.cfg.MinCropPx || y2-y1 < s.cfg.MinCropPx {
				continue
			}
			cells = append(cells, image.Rect(b.Min.X+x1, b.Min.Y+y1, b.Min.X+x2, b.Min.Y+y2))
		}
	}

	results := s.evalCells(ctx, img, cells, func(emb []float32) float64 {
		sim := domain.Cosine(emb, target)
		// Additive boost per matching item, deliberately uncapped: boosted
		// scores may exceed the cosine range.
		for _, itemVec := range itemVecs {
			if domain.Cosine(emb, itemVec) > s.cfg.ItemBoostCutoff {
				sim += s.cfg.ItemBoost
			}
		}
		return sim
	})

	best, found := bestCell(results)
	if !found {
		return Localization{}, fmt.Errorf("no fine-grid cell could be embedded")
	}

	log.Debug("Fine grid selected patch",
		zap.Int("cell", best), zap.Float64("score", results[best].score))

	return Localization{
		Patch:     crop(img, cells[best]),
		Embedding: results[best].embedding,
	}, nil
}
