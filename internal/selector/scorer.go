package selector

import (
	"fmt"
	"math"
)

// Scorer maps telemetry into [0,1]. Higher load or lower key availability
// must never increase the score.
type Scorer interface {
	Score(load, keyAvailability float64) float64
}

type ScorerKind string

const (
	LinearScorerKind  ScorerKind = "linear"
	ProductScorerKind ScorerKind = "product"
)

// LinearScorer is lw*(1-load) + kw*keyAvailability normalized by lw+kw.
type LinearScorer struct {
	LoadWeight float64
	KeyWeight  float64
}

func (s LinearScorer) Score(load, keyAvailability float64) float64 {
	total := s.LoadWeight + s.KeyWeight
	if total <= 0 {
		return 0
	}
	score := s.LoadWeight*(1-clamp01(load)) + s.KeyWeight*clamp01(keyAvailability)
	return clamp01(score / total)
}

// ProductScorer is (1-load)^a * keyAvailability^b.
type ProductScorer struct {
	LoadExponent float64
	KeyExponent  float64
}

func (s ProductScorer) Score(load, keyAvailability float64) float64 {
	return clamp01(
		math.Pow(1-clamp01(load), s.LoadExponent) * math.Pow(clamp01(keyAvailability), s.KeyExponent),
	)
}

// NewScorer builds scorer from policy parameters. For linear scorer params are
// weights, for product scorer they are exponents.
func NewScorer(kind ScorerKind, loadParam, keyParam float64) (Scorer, error) {
	if loadParam < 0 || keyParam < 0 {
		return nil, fmt.Errorf("scorer parameters must be non-negative, got load=%v key=%v", loadParam, keyParam)
	}
	switch kind {
	case LinearScorerKind, "":
		return LinearScorer{LoadWeight: loadParam, KeyWeight: keyParam}, nil
	case ProductScorerKind:
		return ProductScorer{LoadExponent: loadParam, KeyExponent: keyParam}, nil
	}
	return nil, fmt.Errorf("unknown scorer kind %q", kind)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
