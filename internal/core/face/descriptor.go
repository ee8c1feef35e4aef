package face

import (
	"errors"
	"fmt"
	"math"

	"checkin.engine/internal/core/model"
)

// ErrModelMismatch is returned when two descriptors cannot be compared because
// they come from different models (different length or version).
var ErrModelMismatch = errors.New("descriptors come from different extraction models")

// CosineDistance computes the cosine distance between two vectors.
// Returns a value between 0 (identical) and 2 (opposite).
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 2.0
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	similarity = math.Max(-1, math.Min(1, similarity))

	return 1 - similarity
}

// Similarity maps two descriptors onto the [0,1] score scale shared by the
// live preview and the authoritative decision:
//
//	score = clamp(1 - cosineDistance, 0, 1)
//
// i.e. the cosine similarity with anti-correlated vectors floored at 0.
// The mapping is monotonic in cosine similarity.
func Similarity(a, b model.FaceDescriptor) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("%w: lengths %d and %d", ErrModelMismatch, len(a), len(b))
	}
	score := 1 - CosineDistance(a, b)
	return math.Max(0, math.Min(1, score)), nil
}

// Normalize returns v scaled to unit L2 norm. A zero vector is returned as-is.
func Normalize(v []float32) model.FaceDescriptor {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make(model.FaceDescriptor, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
