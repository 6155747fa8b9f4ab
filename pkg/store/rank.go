package store

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xhad/commons/internal/models"
	"github.com/xhad/commons/internal/types"
)

// Scores are compared at this resolution; equal buckets are ordered by recency.
const scoreTolerance = 1e-6

// CosineSimilarity returns the cosine of the angle between a and b.
// A zero vector has similarity 0 with everything.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: vector dimension %d does not match %d", types.ErrInvalidRecord, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

func scoreBucket(score float64) float64 {
	return math.Round(score / scoreTolerance)
}

// rankHits orders hits by score bucket descending, newest record first within
// a bucket.
func rankHits(hits []models.SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := scoreBucket(hits[i].Score), scoreBucket(hits[j].Score)
		if a != b {
			return a > b
		}
		return hits[i].CreatedAt.After(hits[j].CreatedAt)
	})
}

// selectHits drops hits below the threshold, ranks the rest and caps them at limit.
func selectHits(hits []models.SearchHit, threshold float64, limit int) []models.SearchHit {
	if limit <= 0 {
		return []models.SearchHit{}
	}

	kept := make([]models.SearchHit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= threshold {
			kept = append(kept, h)
		}
	}

	rankHits(kept)

	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

func validateVector(vector []float32, dim int) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: missing embedding", types.ErrInvalidRecord)
	}
	if dim > 0 && len(vector) != dim {
		return fmt.Errorf("%w: embedding has dimension %d, want %d", types.ErrInvalidRecord, len(vector), dim)
	}
	for i, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: embedding value %d is not finite", types.ErrInvalidRecord, i)
		}
	}
	return nil
}

func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty text", types.ErrInvalidRecord)
	}
	return nil
}

func sanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
