package domain

import "errors"

var (
	// ErrNoSearchInput signals a request with neither text nor image input.
	ErrNoSearchInput = errors.New("no searchable input")
	// ErrProductNotFound signals a catalog miss for a retrieved identifier.
	ErrProductNotFound = errors.New("product not found")
	// ErrIndexNotLoaded signals that the vector index is unavailable.
	ErrIndexNotLoaded = errors.New("vector index not loaded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrBadImage signals image bytes that could not be decoded.
	ErrBadImage = errors.New("image could not be decoded")
)
