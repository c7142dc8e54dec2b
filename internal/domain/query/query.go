// Package query holds the structured intent parsed from free-text search input.
package query

// ItemCategory identifies one of the fixed item slots the parser recognizes.
type ItemCategory string

// Known item categories.
const (
	Dress       ItemCategory = "dress"
	Jacket      ItemCategory = "jacket"
	Shirt       ItemCategory = "shirt"
	Pants       ItemCategory = "pants"
	Shoes       ItemCategory = "shoes"
	Accessories ItemCategory = "accessories"
)

// Items records, per item category, the literal synonym that matched the text.
// An empty string means the category was not mentioned. Fixed fields (rather
// than a string-keyed map) so that category handling downstream is checked at
// compile time.
type Items struct {
	Dress       string
	Jacket      string
	Shirt       string
	Pants       string
	Shoes       string
	Accessories string
}

// Empty reports whether no item category matched.
func (it Items) Empty() bool {
	return it == Items{}
}

// Each invokes fn for every matched category in declaration order.
func (it Items) Each(fn func(cat ItemCategory, word string)) {
	for _, e := range []struct {
		cat  ItemCategory
		word string
	}{
		{Dress, it.Dress},
		{Jacket, it.Jacket},
		{Shirt, it.Shirt},
		{Pants, it.Pants},
		{Shoes, it.Shoes},
		{Accessories, it.Accessories},
	} {
		if e.word != "" {
			fn(e.cat, e.word)
		}
	}
}

// Set stores the matched word for a category. Unknown categories are ignored.
func (it *Items) Set(cat ItemCategory, word string) {
	switch cat {
	case Dress:
		it.Dress = word
	case Jacket:
		it.Jacket = word
	case Shirt:
		it.Shirt = word
	case Pants:
		it.Pants = word
	case Shoes:
		it.Shoes = word
	case Accessories:
		it.Accessories = word
	}
}

// Get returns the matched word for a category, or "".
func (it Items) Get(cat ItemCategory) string {
	switch cat {
	case Dress:
		return it.Dress
	case Jacket:
		return it.Jacket
	case Shirt:
		return it.Shirt
	case Pants:
		return it.Pants
	case Shoes:
		return it.Shoes
	case Accessories:
		return it.Accessories
	}
	return ""
}

// Descriptors records matched descriptor words per descriptor class,
// in the order they were configured (not the order they appear in the text).
type Descriptors struct {
	Colors    []string
	Patterns  []string
	Materials []string
	Styles    []string
}

// Empty reports whether no descriptor matched.
func (d Descriptors) Empty() bool {
	return len(d.Colors) == 0 && len(d.Patterns) == 0 &&
		len(d.Materials) == 0 && len(d.Styles) == 0
}

// All returns every descriptor word across classes, colors first.
func (d Descriptors) All() []string {
	out := make([]string, 0, len(d.Colors)+len(d.Patterns)+len(d.Materials)+len(d.Styles))
	out = append(out, d.Colors...)
	out = append(out, d.Patterns...)
	out = append(out, d.Materials...)
	out = append(out, d.Styles...)
	return out
}

// SemanticQuery is the structured intent extracted from a free-text query.
// Invariant (maintained by the parser): a word never appears in both Wanted
// and Excluded for the same class, since the negation test runs first and
// short-circuits inclusion.
type SemanticQuery struct {
	Items     Items
	Wanted    Descriptors
	Excluded  Descriptors
	MinRating float64 // minimum rating intent, 0 when absent
}

// HasIntent reports whether any structured component was detected.
// An all-empty query means "no structured intent" and the pipeline treats
// the request as a plain similarity search.
func (q SemanticQuery) HasIntent() bool {
	return !q.Items.Empty() || !q.Wanted.Empty() || !q.Excluded.Empty()
}
