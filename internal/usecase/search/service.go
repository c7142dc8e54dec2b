// Package search implements the multimodal product search pipeline: intent
// parsing, embedding fusion, candidate retrieval, semantic filtering and
// result assembly.
package search

import (
	"context"
	"image"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/stylesearch/internal/domain"
	"github.com/kailas-cloud/stylesearch/internal/domain/product"
	"github.com/kailas-cloud/stylesearch/internal/logger"
	"github.com/kailas-cloud/stylesearch/internal/metrics"
	"github.com/kailas-cloud/stylesearch/internal/usecase/intent"
	"github.com/kailas-cloud/stylesearch/internal/usecase/patch"
)

// Config holds retrieval and ranking policy.
type Config struct {
	DefaultLimit     int     // results returned when the caller does not ask for a count
	RetrievalFactor  int     // neighbors requested = limit * factor
	RetrievalCap     int     // hard cap on neighbors requested
	TextWeightIntent float64 // text share of fusion when structured intent present
	TextWeightPlain  float64 // text share of fusion otherwise
}

// Request is one search invocation. Text and Image are each optional; a
// request with neither yields an empty result list.
type Request struct {
	Text  string
	Image image.Image
	Limit int // <= 0 means the configured default
}

// Service runs the search pipeline. The pipeline is fail-soft end to end:
// a stage that errors logs the problem and degrades to its safe default, and
// the only empty-handed outcome is a request that produced no query vector
// at all.
type Service struct {
	texts     domain.TextEmbedder
	index     VectorIndex
	catalog   Catalog
	localizer Localizer
	cfg       Config
}

// New creates the search service.
func New(texts domain.TextEmbedder, idx VectorIndex, cat Catalog, loc Localizer, cfg Config) *Service {
	return &Service{texts: texts, index: idx, catalog: cat, localizer: loc, cfg: cfg}
}

// Search executes one multimodal query and returns ranked results.
func (s *Service) Search(ctx context.Context, req Request) ([]domain.SearchResult, error) {
	log := logger.FromContext(ctx)

	text := strings.TrimSpace(req.Text)
	hasText, hasImage := text != "", req.Image != nil
	metrics.SearchRequestsTotal.WithLabelValues(requestKind(hasText, hasImage)).Inc()

	if !hasText && !hasImage {
		return []domain.SearchResult{}, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	q := intent.Parse(text)
	if hasText {
		log.Debug("Query parsed",
			zap.Bool("has_intent", q.HasIntent()),
			zap.Float64("min_rating", q.MinRating),
			zap.Strings("keywords", intent.Keywords(text, q)))
	}

	var textVec []float32
	if hasText {
		vec, err := s.texts.EmbedText(ctx, text)
		if err != nil {
			log.Warn("Text embedding failed, continuing without text vector", zap.Error(err))
		} else {
			textVec = vec
		}
	}

	var imageVec []float32
	var patchPreview *string
	if hasImage {
		loc := s.localizer.Locate(ctx, req.Image, textVec, q)
		imageVec = loc.Embedding
		if len(loc.Tags) > 0 {
			log.Debug("Patch tagged", zap.Strings("tags", loc.Tags))
		}
		if uri, err := patch.PreviewDataURI(loc.Patch); err != nil {
			log.Warn("Patch preview encoding failed", zap.Error(err))
		} else {
			patchPreview = &uri
		}
	}

	fused, err := s.fuse(textVec, imageVec, q.HasIntent())
	if err != nil {
		log.Warn("No usable query vector, returning empty results", zap.Error(err))
		return []domain.SearchResult{}, nil
	}

	candidates := s.retrieve(ctx, fused, limit)
	filtered := s.filter(ctx, candidates, q)
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	results := make([]domain.SearchResult, 0, len(filtered))
	for _, p := range filtered {
		results = append(results, domain.SearchResult{
			ID:         p.ID,
			Rank:       len(results) + 1,
			Name:       p.DisplayName,
			Image:      p.ImageRef,
			Rating:     p.Rating,
			NumReviews: p.NumReviews,
			Price:      p.Price,
			Discount:   p.DiscountPercent,
			Why:        explain(p, q, hasText),
			Patch:      patchPreview,
		})
	}

	log.Info("Search completed",
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)))
	return results, nil
}

// retrieve fetches an over-sized neighbor set for the query vector and
// resolves hits to catalog products. Positions without a valid identifier or
// catalog record are dropped.
func (s *Service) retrieve(ctx context.Context, vec []float32, limit int) []product.Product {
	n := min(limit*s.cfg.RetrievalFactor, s.cfg.RetrievalCap)
	hits := s.index.Search(vec, n)

	out := make([]product.Product, 0, len(hits))
	for _, hit := range hits {
		id, ok := s.index.IDAt(hit.Pos)
		if !ok {
			continue
		}
		p, ok := s.catalog.Get(id)
		if !ok {
			logger.FromContext(ctx).Debug("Indexed product missing from catalog",
				zap.Int64("id", id), zap.Error(domain.ErrProductNotFound))
			continue
		}
		out = append(out, p)
	}
	return out
}

func requestKind(hasText, hasImage bool) string {
	switch {
	case hasText && hasImage:
		return "multimodal"
	case hasText:
		return "text"
	case hasImage:
		return "image"
	}
	return "empty"
}
