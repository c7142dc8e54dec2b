package catalog

import (
	"fmt"
	"strconv"

	"github.com/kailas-cloud/stylesearch/internal/domain/product"
)

// Hash field names follow the source dataset schema so the store stays
// readable next to the original JSONL dumps.
const (
	fieldID              = "id"
	fieldDisplayName     = "productDisplayName"
	fieldMasterCategory  = "masterCategory"
	fieldSubCategory     = "subCategory"
	fieldArticleType     = "articleType"
	fieldBaseColor       = "baseColour"
	fieldRating          = "rating"
	fieldNumReviews      = "numReviews"
	fieldPrice           = "price"
	fieldDiscountPercent = "discountPercent"
	fieldImage           = "image"
)

// fromFields builds a Product from hash fields. Missing numeric fields
// default to zero; missing price/discount stay nil.
func fromFields(fields map[string]string) (product.Product, error) {
	rawID, ok := fields[fieldID]
	if !ok {
		return product.Product{}, fmt.Errorf("product hash has no id field")
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return product.Product{}, fmt.Errorf("parse product id %q: %w", rawID, err)
	}

	p := product.Product{
		ID:             id,
		DisplayName:    fields[fieldDisplayName],
		MasterCategory: fields[fieldMasterCategory],
		SubCategory:    fields[fieldSubCategory],
		ArticleType:    fields[fieldArticleType],
		BaseColor:      fields[fieldBaseColor],
		ImageRef:       fields[fieldImage],
	}

	if v, err := strconv.ParseFloat(fields[fieldRating], 64); err == nil {
		p.Rating = v
	}
	if v, err := strconv.Atoi(fields[fieldNumReviews]); err == nil {
		p.NumReviews = v
	}
	if raw, ok := fields[fieldPrice]; ok && raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			p.Price = &v
		}
	}
	if raw, ok := fields[fieldDiscountPercent]; ok && raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			p.DiscountPercent = &v
		}
	}

	return p, nil
}

// ToFields serializes a Product for HSET; used by the offline indexer.
func ToFields(p product.Product) map[string]string {
	fields := map[string]string{
		fieldID:             strconv.FormatInt(p.ID, 10),
		fieldDisplayName:    p.DisplayName,
		fieldMasterCategory: p.MasterCategory,
		fieldSubCategory:    p.SubCategory,
		fieldArticleType:    p.ArticleType,
		fieldBaseColor:      p.BaseColor,
		fieldRating:         strconv.FormatFloat(p.Rating, 'f', -1, 64),
		fieldNumReviews:     strconv.Itoa(p.NumReviews),
		fieldImage:          p.ImageRef,
	}
	if p.Price != nil {
		fields[fieldPrice] = strconv.FormatFloat(*p.Price, 'f', -1, 64)
	}
	if p.DiscountPercent != nil {
		fields[fieldDiscountPercent] = strconv.FormatFloat(*p.DiscountPercent, 'f', -1, 64)
	}
	return fields
}
