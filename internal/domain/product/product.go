// Package product defines the immutable catalog product record.
package product

// Product is a catalog entry. Records are loaded once at startup and are
// immutable for the process lifetime.
type Product struct {
	ID              int64
	DisplayName     string
	MasterCategory  string
	SubCategory     string
	ArticleType     string
	BaseColor       string
	Rating          float64
	NumReviews      int
	Price           *float64
	DiscountPercent *float64
	ImageRef        string
}
