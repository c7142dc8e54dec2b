package search

import (
	"context"
	"image"

	"github.com/kailas-cloud/stylesearch/internal/domain/product"
	"github.com/kailas-cloud/stylesearch/internal/domain/query"
	"github.com/kailas-cloud/stylesearch/internal/index"
	"github.com/kailas-cloud/stylesearch/internal/usecase/patch"
)

// VectorIndex is the nearest-neighbor store the pipeline retrieves from.
type VectorIndex interface {
	Search(q []float32, n int) []index.Hit
	IDAt(pos int) (int64, bool)
}

// Catalog resolves retrieved identifiers to product records.
type Catalog interface {
	Get(id int64) (product.Product, bool)
}

// Localizer selects the query-relevant region of an uploaded image.
type Localizer interface {
	Locate(ctx context.Context, img image.Image, textVec []float32, q query.SemanticQuery) patch.Localization
}
