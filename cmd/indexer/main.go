// Command indexer builds the vector index and seeds the catalog store from a
// product metadata file. It embeds each product's text and image through the
// CLIP service, fuses the two unit vectors and writes a flat index the API
// server loads at startup.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/stylesearch/internal/config"
	dbRedis "github.com/kailas-cloud/stylesearch/internal/db/redis"
	"github.com/kailas-cloud/stylesearch/internal/domain"
	"github.com/kailas-cloud/stylesearch/internal/domain/product"
	"github.com/kailas-cloud/stylesearch/internal/index"
	logpkg "github.com/kailas-cloud/stylesearch/internal/logger"
	"github.com/kailas-cloud/stylesearch/internal/repository/catalog"
	"github.com/kailas-cloud/stylesearch/internal/transport/clip"
	"github.com/kailas-cloud/stylesearch/internal/usecase/patch"
)

// record is one line of the product metadata JSONL file.
type record struct {
	ID              int64    `json:"id"`
	DisplayName     string   `json:"productDisplayName"`
	MasterCategory  string   `json:"masterCategory"`
	SubCategory     string   `json:"subCategory"`
	ArticleType     string   `json:"articleType"`
	BaseColor       string   `json:"baseColour"`
	Rating          *float64 `json:"rating"`
	NumReviews      int      `json:"numReviews"`
	Price           *float64 `json:"price"`
	DiscountPercent *float64 `json:"discountPercent"`
	ImageURL        string   `json:"image_url"`
	ImageFilename   string   `json:"image_filename"`
	AllText         string   `json:"all_text"`
	Reviews         []string `json:"reviews"`
}

func main() {
	input := flag.String("input", "products_with_reviews.jsonl", "product metadata JSONL file")
	imagesDir := flag.String("images", "images", "directory containing product image files")
	workers := flag.Int("workers", runtime.NumCPU(), "concurrent embedding requests")
	skipSeed := flag.Bool("skip-seed", false, "build the index without seeding the catalog store")
	flag.Parse()

	env := config.GetEnv()
	cfg := config.MustLoad(env)

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting indexer",
		zap.String("input", *input),
		zap.String("images_dir", *imagesDir),
		zap.String("index_path", cfg.Index.Path),
		zap.Int("workers", *workers),
	)

	records, err := readRecords(*input)
	if err != nil {
		logger.Fatal("Failed to read product metadata", zap.Error(err))
	}
	logger.Info("Product metadata loaded", zap.Int("records", len(records)))

	embedder := clip.NewEmbedder(&clip.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})

	ctx := context.Background()
	vectors := embedAll(ctx, logger, embedder, records, *imagesDir, *workers)

	idx, err := index.New(cfg.Embedding.Dimensions)
	if err != nil {
		logger.Fatal("Failed to create index", zap.Error(err))
	}

	products := make([]product.Product, 0, len(records))
	for i, rec := range records {
		if vectors[i] == nil {
			continue
		}
		if err := idx.Add(rec.ID, vectors[i]); err != nil {
			logger.Fatal("Failed to add vector", zap.Int64("id", rec.ID), zap.Error(err))
		}
		products = append(products, toProduct(rec))
	}
	if idx.Len() == 0 {
		logger.Fatal("No product could be embedded, refusing to write an empty index")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Index.Path), 0o755); err != nil {
		logger.Fatal("Failed to create index directory", zap.Error(err))
	}
	if err := idx.Save(cfg.Index.Path); err != nil {
		logger.Fatal("Failed to save index", zap.Error(err))
	}
	logger.Info("Index written",
		zap.String("path", cfg.Index.Path),
		zap.Int("vectors", idx.Len()),
		zap.Int("skipped", len(records)-idx.Len()),
	)

	if *skipSeed {
		return
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}

	if err := catalog.New(store, logger).Seed(ctx, products); err != nil {
		logger.Fatal("Failed to seed catalog", zap.Error(err))
	}
	logger.Info("Catalog seeded", zap.Int("products", len(products)))
}

// readRecords parses the JSONL metadata file. Malformed lines are counted
// and skipped rather than aborting the run.
func readRecords(path string) ([]record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata file: %w", err)
	}
	defer file.Close()

	var records []record
	bad := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			bad++
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read metadata file: %w", err)
	}
	if bad > 0 {
		fmt.Fprintf(os.Stderr, "skipped %d malformed lines\n", bad)
	}
	return records, nil
}

// embedAll produces one fused vector per record, in record order. A record
// whose text embedding fails gets a nil vector and is dropped by the caller;
// a missing or unreadable image degrades that record to text-only.
func embedAll(
	ctx context.Context, logger *zap.Logger, embedder *clip.Embedder,
	records []record, imagesDir string, workers int,
) [][]float32 {
	vectors := make([][]float32, len(records))

	pool, err := ants.NewPool(workers)
	if err != nil {
		logger.Fatal("Failed to create embedding pool", zap.Error(err))
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, rec := range records {
		wg.Add(1)
		task := func() {
			defer wg.Done()

			textVec, err := embedder.EmbedText(ctx, textBlob(rec))
			if err != nil {
				logger.Warn("Text embedding failed, dropping product",
					zap.Int64("id", rec.ID), zap.Error(err))
				return
			}
			textVec = domain.Normalize(textVec)

			imageVec := embedImageFile(ctx, logger, embedder, imagesDir, rec)
			if imageVec == nil {
				vectors[i] = textVec
				return
			}
			vectors[i] = domain.Blend(textVec, 0.5, domain.Normalize(imageVec), 0.5)
		}
		if err := pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	return vectors
}

func embedImageFile(
	ctx context.Context, logger *zap.Logger, embedder *clip.Embedder,
	imagesDir string, rec record,
) []float32 {
	if rec.ImageFilename == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(imagesDir, rec.ImageFilename))
	if err != nil {
		logger.Warn("Image unreadable, using text only",
			zap.Int64("id", rec.ID), zap.Error(err))
		return nil
	}
	img, err := patch.Decode(data)
	if err != nil {
		logger.Warn("Image undecodable, using text only",
			zap.Int64("id", rec.ID), zap.Error(err))
		return nil
	}
	vec, err := embedder.EmbedImage(ctx, img)
	if err != nil {
		logger.Warn("Image embedding failed, using text only",
			zap.Int64("id", rec.ID), zap.Error(err))
		return nil
	}
	return vec
}

// textBlob builds the indexable text: product description, reviews, and the
// numeric rating spelled out so rating phrases in queries land nearby.
func textBlob(rec record) string {
	parts := make([]string, 0, len(rec.Reviews)+2)
	parts = append(parts, rec.AllText)
	parts = append(parts, rec.Reviews...)
	if rec.Rating != nil {
		parts = append(parts, fmt.Sprintf("%.1f stars", *rec.Rating))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func toProduct(rec record) product.Product {
	imageRef := rec.ImageURL
	if imageRef == "" {
		imageRef = rec.ImageFilename
	}
	rating := 0.0
	if rec.Rating != nil {
		rating = *rec.Rating
	}
	return product.Product{
		ID:              rec.ID,
		DisplayName:     rec.DisplayName,
		MasterCategory:  rec.MasterCategory,
		SubCategory:     rec.SubCategory,
		ArticleType:     rec.ArticleType,
		BaseColor:       rec.BaseColor,
		Rating:          rating,
		NumReviews:      rec.NumReviews,
		Price:           rec.Price,
		DiscountPercent: rec.DiscountPercent,
		ImageRef:        imageRef,
	}
}
