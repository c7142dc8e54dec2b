package domain

// SearchResult is a single ranked hit returned to the API caller.
// JSON field names match the storefront contract.
type SearchResult struct {
	ID         int64    `json:"id"`
	Rank       int      `json:"rank"`
	Name       string   `json:"name"`
	Image      string   `json:"image"`
	Rating     float64  `json:"rating"`
	NumReviews int      `json:"numReviews"`
	Price      *float64 `json:"price"`
	Discount   *float64 `json:"discount"`
	Why        string   `json:"why"`
	Patch      *string  `json:"patch"` // base64 data URI preview, image queries only
}
