package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScorersAreMonotone(t *testing.T) {
	scorers := map[string]Scorer{
		"linear":  LinearScorer{LoadWeight: 2, KeyWeight: 1},
		"product": ProductScorer{LoadExponent: 1, KeyExponent: 2},
	}
	for name, sc := range scorers {
		t.Run(name, func(t *testing.T) {
			for load := 0.0; load <= 1.0; load += 0.1 {
				for key := 0.0; key <= 1.0; key += 0.1 {
					v := sc.Score(load, key)
					require.GreaterOrEqual(t, v, 0.0)
					require.LessOrEqual(t, v, 1.0)

					require.LessOrEqual(t, sc.Score(load+0.1, key), v+1e-12)
					require.LessOrEqual(t, sc.Score(load, key-0.1), v+1e-12)
				}
			}
		})
	}
}

func TestLinearScorer(t *testing.T) {
	sc := LinearScorer{LoadWeight: 1, KeyWeight: 1}
	assert.InDelta(t, 1.0, sc.Score(0, 1), 1e-9)
	assert.InDelta(t, 0.0, sc.Score(1, 0), 1e-9)
	assert.InDelta(t, 0.8, sc.Score(0.3, 0.9), 1e-9)
	assert.Zero(t, LinearScorer{}.Score(0, 1))
}

func TestNewScorer(t *testing.T) {
	sc, err := NewScorer(ProductScorerKind, 1, 1)
	require.NoError(t, err)
	assert.IsType(t, ProductScorer{}, sc)

	sc, err = NewScorer("", 1, 1)
	require.NoError(t, err)
	assert.IsType(t, LinearScorer{}, sc)

	_, err = NewScorer("quadratic", 1, 1)
	require.Error(t, err)

	_, err = NewScorer(LinearScorerKind, -1, 1)
	require.Error(t, err)
}
