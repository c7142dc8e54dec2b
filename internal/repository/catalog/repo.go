// Package catalog loads the immutable product catalog from the store.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/stylesearch/internal/db"
	"github.com/kailas-cloud/stylesearch/internal/domain"
	"github.com/kailas-cloud/stylesearch/internal/domain/product"
)

const keyPrefix = domain.KeyPrefix + "product:"

// store is the consumer interface for catalog operations (ISP).
type store interface {
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo reads and seeds product hashes.
type Repo struct {
	store  store
	logger *zap.Logger
}

// New creates a catalog repository.
func New(s store, logger *zap.Logger) *Repo {
	return &Repo{store: s, logger: logger}
}

// Key returns the hash key for a product id.
func Key(id int64) string {
	return keyPrefix + strconv.FormatInt(id, 10)
}

// LoadAll scans every product hash into an immutable in-memory snapshot.
// Malformed records are logged and skipped; an empty catalog is an error
// since the service cannot rank anything without it.
func (r *Repo) LoadAll(ctx context.Context) (*Snapshot, error) {
	keys, err := r.store.Scan(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}

	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}

	byID := make(map[int64]product.Product, len(rows))
	for i, fields := range rows {
		p, err := fromFields(fields)
		if err != nil {
			r.logger.Warn("Skipping malformed product record",
				zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		byID[p.ID] = p
	}

	if len(byID) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}
	return newSnapshot(byID), nil
}

// Seed writes products in a single pipelined round-trip; used by the indexer.
func (r *Repo) Seed(ctx context.Context, products []product.Product) error {
	items := make([]db.HashSetItem, len(products))
	for i, p := range products {
		items[i] = db.HashSetItem{Key: Key(p.ID), Fields: ToFields(p)}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("seed products: %w", err)
	}
	return nil
}

// Snapshot is a read-only view of the catalog, shared across requests.
type Snapshot struct {
	byID    map[int64]product.Product
	ordered []product.Product // ascending by id, for deterministic browse
}

func newSnapshot(byID map[int64]product.Product) *Snapshot {
	ordered := make([]product.Product, 0, len(byID))
	for _, p := range byID {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	return &Snapshot{byID: byID, ordered: ordered}
}

// NewSnapshot builds a snapshot directly from products.
func NewSnapshot(products []product.Product) *Snapshot {
	byID := make(map[int64]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return newSnapshot(byID)
}

// Get looks up a product by id.
func (s *Snapshot) Get(id int64) (product.Product, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// All returns every product in ascending id order. Callers must not mutate
// the returned slice.
func (s *Snapshot) All() []product.Product {
	return s.ordered
}

// Len returns the catalog size.
func (s *Snapshot) Len() int {
	return len(s.byID)
}
