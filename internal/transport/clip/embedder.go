// Package clip is the transport client for the CLIP inference service.
// Text embeddings go through the service's OpenAI-compatible /v1/embeddings
// endpoint; image embeddings use the sibling multipart endpoint.
package clip

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/stylesearch/internal/domain"
	"github.com/kailas-cloud/stylesearch/internal/metrics"
)

const imageEmbeddingPath = "/v1/images/embeddings"

// Embedder talks to a CLIP inference server producing 512-dimension
// unit-norm vectors for text and images.
type Embedder struct {
	client     *openai.Client
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      openai.EmbeddingModel
	dimensions int
	logger     *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Logger     *zap.Logger
}

// NewEmbedder creates a CLIP service client.
func NewEmbedder(cfg *Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL + "/v1"

	dims := cfg.Dimensions
	if dims <= 0 {
		dims = domain.EmbeddingDim
	}

	return &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: dims,
		logger:     cfg.Logger,
	}
}

// EmbedText implements domain.TextEmbedder.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("text", "error").Inc()
		return nil, parseAPIError(err)
	}
	if len(resp.Data) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues("text", "error").Inc()
		return nil, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues("text", "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues("text").Observe(duration.Seconds())

	return e.checkVector(resp.Data[0].Embedding)
}

// EmbedImage implements domain.ImageEmbedder. The image is JPEG-encoded and
// posted as a multipart upload.
func (e *Embedder) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "patch.jpg")
	if err != nil {
		return nil, fmt.Errorf("create multipart: %w", err)
	}
	if err := jpeg.Encode(part, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+imageEmbeddingPath, body)
	if err != nil {
		return nil, fmt.Errorf("build image embedding request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("image", "error").Inc()
		return nil, fmt.Errorf("image embedding request: %w: %w", err, domain.ErrEmbeddingProviderError)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.EmbeddingRequestsTotal.WithLabelValues("image", "error").Inc()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("image embedding API error %d: %s: %w",
			resp.StatusCode, string(detail), domain.ErrEmbeddingProviderError)
	}

	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("image", "error").Inc()
		return nil, fmt.Errorf("decode image embedding: %w: %w", err, domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues("image", "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues("image").Observe(duration.Seconds())

	return e.checkVector(parsed.Embedding)
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// checkVector validates the dimension and renormalizes. The service promises
// unit vectors, but float transport rounding can drift the norm.
func (e *Embedder) checkVector(vec []float32) ([]float32, error) {
	if len(vec) != e.dimensions {
		return nil, fmt.Errorf("embedding dimension %d, want %d: %w",
			len(vec), e.dimensions, domain.ErrEmbeddingProviderError)
	}
	return domain.Normalize(vec), nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrEmbeddingProviderError.
func parseAPIError(err error) error {
	wrap := domain.ErrEmbeddingProviderError

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("embedding request failed: %w: %w", err, wrap)
}
