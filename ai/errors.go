package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrLimiterRequired is returned when a provider is constructed without a rate limiter.
	ErrLimiterRequired = errors.New("rate limiter is required")

	// ErrEmptyEmbedding is returned when the service answers with a zero-length vector.
	ErrEmptyEmbedding = errors.New("embedding service returned an empty vector")

	// ErrDimensionMismatch is returned when a vector has the wrong number of components.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrMalformedResponse is returned when the response does not pair up with the request.
	ErrMalformedResponse = errors.New("malformed embedding response")
)

// CheckVector rejects empty vectors and, when dimensions is positive,
// vectors whose length differs from it.
func CheckVector(v []float32, dimensions int) error {
	if len(v) == 0 {
		return ErrEmptyEmbedding
	}
	if dimensions > 0 && len(v) != dimensions {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dimensions, len(v))
	}
	return nil
}
