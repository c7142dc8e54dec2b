// Package chi exposes the search, browse and health use cases over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/stylesearch/internal/domain"
	"github.com/kailas-cloud/stylesearch/internal/logger"
	browseuc "github.com/kailas-cloud/stylesearch/internal/usecase/browse"
	healthuc "github.com/kailas-cloud/stylesearch/internal/usecase/health"
	"github.com/kailas-cloud/stylesearch/internal/usecase/patch"
	searchuc "github.com/kailas-cloud/stylesearch/internal/usecase/search"
)

// errorResponse is the uniform error body for all endpoints.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error response codes.
const (
	codeBadRequest    = "bad_request"
	codeBadImage      = "bad_image"
	codeUnauthorized  = "unauthorized"
	codeInternalError = "internal_error"
)

// Server holds the HTTP handlers for the storefront API.
type Server struct {
	search         *searchuc.Service
	browse         *browseuc.Service
	health         *healthuc.Service
	logger         *zap.Logger
	maxUploadBytes int64
}

// NewServer creates an HTTP API server.
func NewServer(
	search *searchuc.Service,
	browse *browseuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
	maxUploadMB int,
) *Server {
	return &Server{
		search:         search,
		browse:         browse,
		health:         health,
		logger:         logger,
		maxUploadBytes: int64(maxUploadMB) << 20,
	}
}

// Routes registers every endpoint on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/api/search", s.handleSearch)
	r.Get("/api/categories", s.handleCategories)
	r.Get("/api/products_by_category", s.handleProductsByCategory)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
}

// handleSearch serves POST /api/search: a multipart form with optional
// "text", optional "file" image upload and optional "limit". The response is
// the bare JSON array of ranked results; an empty query yields [].
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	limit := 0
	if raw := r.FormValue("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	img, err := s.uploadedImage(r)
	if err != nil {
		if errors.Is(err, domain.ErrBadImage) {
			writeError(w, http.StatusBadRequest, codeBadImage, "uploaded file is not a decodable image")
			return
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, "could not read uploaded file")
		return
	}

	results, err := s.search.Search(r.Context(), searchuc.Request{
		Text:  r.FormValue("text"),
		Image: img,
		Limit: limit,
	})
	if err != nil {
		logger.FromContext(r.Context()).Error("Search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, results)
}

// uploadedImage extracts and decodes the optional "file" form part.
// A missing part returns (nil, nil).
func (s *Server) uploadedImage(r *http.Request) (image.Image, error) {
	file, _, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return patch.Decode(data)
}

// handleCategories serves GET /api/categories: sorted distinct article types.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.browse.Categories())
}

// handleProductsByCategory serves GET /api/products_by_category?category=...
func (s *Server) handleProductsByCategory(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "category query parameter is required")
		return
	}
	writeJSON(w, http.StatusOK, s.browse.ByCategory(category))
}

// handleHealth serves GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// handleMetrics serves GET /metrics in Prometheus exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
