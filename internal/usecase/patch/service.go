// Package patch localizes the sub-region of an uploaded image that best
// matches the query intent.
package patch

import (
	"context"
	"fmt"
	"image"
	"runtime"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/stylesearch/internal/domain"
	"github.com/kailas-cloud/stylesearch/internal/domain/query"
	"github.com/kailas-cloud/stylesearch/internal/logger"
	"github.com/kailas-cloud/stylesearch/internal/metrics"
)

// Config holds the localization policy. Every threshold here is a tuned
// product decision, surfaced in configuration rather than buried in code.
type Config struct {
	GridSize          int     // standard grid cells per side
	FineGridSize      int     // intent-driven grid cells per side
	MinCellPx         int     // minimum fine-grid cell dimension
	MinStandardCellPx int     // minimum standard-grid cell dimension
	MinCropPx         int     // clipped fine cells below this are skipped
	LowConfidence     float64 // standard-path fallback threshold
	ItemBoostCutoff   float64 // item similarity needed to earn a boost
	ItemBoost         float64 // additive boost per matching item, uncapped
	MaterialWeight    float64 // material share of the blended search target
	ZoomFactor        float64 // center-zoom for image-only queries
	Workers           int     // grid evaluation pool size, 0 = NumCPU
}

// Localization is the outcome of patch selection. Embedding may be nil when
// even the fallback embedding failed; fusion then degrades to text-only.
type Localization struct {
	Patch     image.Image
	Embedding []float32
	Tags      []string
}

// Service selects the best-matching image patch via grid search.
type Service struct {
	texts  domain.TextEmbedder
	images domain.ImageEmbedder
	cfg    Config
	pool   *ants.Pool
	vocab  []tagEntry
	logger *zap.Logger
}

// New creates a patch localization service with its grid-evaluation pool.
func New(texts domain.TextEmbedder, images domain.ImageEmbedder, cfg Config, log *zap.Logger) (*Service, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create grid pool: %w", err)
	}
	return &Service{texts: texts, images: images, cfg: cfg, pool: pool, logger: log}, nil
}

// Release frees the worker pool. The service must not be used afterwards.
func (s *Service) Release() {
	s.pool.Release()
}

// Locate finds the best-matching sub-region of img for the query. It never
// fails: any internal error falls back to the unmodified input image with no
// tags, embedding it on a best-effort basis.
func (s *Service) Locate(ctx context.Context, img image.Image, textVec []float32, q query.SemanticQuery) Localization {
	log := logger.FromContext(ctx)

	loc, err := s.locate(ctx, img, textVec, q)
	if err != nil {
		log.Warn("Patch localization failed, using full image", zap.Error(err))
		metrics.PatchFallbacksTotal.WithLabelValues("error").Inc()
		loc = Localization{Patch: img}
	}

	if loc.Embedding == nil {
		vec, err := s.images.EmbedImage(ctx, loc.Patch)
		if err != nil {
			log.Warn("Fallback patch embedding failed", zap.Error(err))
			return loc
		}
		loc.Embedding = vec
	}

	if loc.Tags == nil {
		loc.Tags = s.tags(loc.Embedding)
	}
	return loc
}

func (s *Service) locate(ctx context.Context, img image.Image, textVec []float32, q query.SemanticQuery) (Localization, error) {
	switch {
	case !q.Items.Empty():
		return s.fineGrid(ctx, img, textVec, q)
	case textVec != nil:
		return s.standardGrid(ctx, img, textVec)
	default:
		// Image-only query: no target to score cells against, so a light
		// center zoom focuses on the subject.
		patch := zoomCrop(img, s.cfg.ZoomFactor)
		return Localization{Patch: patch}, nil
	}
}
