package store

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/commons/internal/models"
	"github.com/xhad/commons/internal/types"
)

func permutations(n int) [][]int {
	if n == 1 {
		return [][]int{{0}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			next := append(append(append([]int{}, p[:i]...), n-1), p[i:]...)
			out = append(out, next)
		}
	}
	return out
}

func TestRankHitsIsOrderIndependent(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		hits []models.SearchHit
		want []string
	}{
		{
			name: "scores a few buckets apart",
			hits: []models.SearchHit{
				{ID: "a", Score: 0.5000016, CreatedAt: base},
				{ID: "b", Score: 0.5000008, CreatedAt: base.Add(time.Second)},
				{ID: "c", Score: 0.5, CreatedAt: base.Add(2 * time.Second)},
			},
			want: []string{"a", "b", "c"},
		},
		{
			name: "same bucket goes to newest",
			hits: []models.SearchHit{
				{ID: "old", Score: 0.7000001, CreatedAt: base},
				{ID: "new", Score: 0.7, CreatedAt: base.Add(time.Hour)},
				{ID: "top", Score: 0.9, CreatedAt: base},
			},
			want: []string{"top", "new", "old"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, perm := range permutations(len(tt.hits)) {
				hits := make([]models.SearchHit, 0, len(perm))
				for _, i := range perm {
					hits = append(hits, tt.hits[i])
				}

				rankHits(hits)

				ids := make([]string, 0, len(hits))
				for _, h := range hits {
					ids = append(ids, h.ID)
				}
				assert.Equal(t, tt.want, ids, "input order %v", perm)
			}
		})
	}
}

func TestValidateVectorRejectsNonFinite(t *testing.T) {
	require.NoError(t, validateVector([]float32{0.1, 0.2}, 2))

	for _, v := range []float32{float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1))} {
		err := validateVector([]float32{0.1, v}, 2)
		assert.ErrorIs(t, err, types.ErrInvalidRecord)
	}
}
