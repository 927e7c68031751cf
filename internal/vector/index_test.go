package vector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	t.Run("identical vectors", func(t *testing.T) {
		v := []float64{0.5, 1.2, -0.3}
		assert.InDelta(t, 1.0, Cosine(v, v), 1e-9)
	})

	t.Run("opposite vectors", func(t *testing.T) {
		assert.InDelta(t, -1.0, Cosine([]float64{1, 2}, []float64{-1, -2}), 1e-9)
	})

	t.Run("orthogonal vectors", func(t *testing.T) {
		assert.InDelta(t, 0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	})

	t.Run("known angle", func(t *testing.T) {
		// 45 degrees between (1,0) and (1,1)
		got := Cosine([]float64{1, 0}, []float64{1, 1})
		assert.InDelta(t, math.Sqrt2/2, got, 1e-9)
	})

	t.Run("mismatched lengths score zero", func(t *testing.T) {
		assert.Zero(t, Cosine([]float64{1, 2}, []float64{1, 2, 3}))
	})

	t.Run("zero vector scores zero", func(t *testing.T) {
		assert.Zero(t, Cosine([]float64{0, 0}, []float64{1, 2}))
	})

	t.Run("empty vectors score zero", func(t *testing.T) {
		assert.Zero(t, Cosine(nil, nil))
	})
}
