package selector

import (
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
)

// Source yields uniform values in [0,1). *rand.Rand from math/rand/v2 fits.
type Source interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 {
	return rand.Float64()
}

type ScoredPlatform struct {
	Platform models.Platform
	Score    float64
}

type Selector struct {
	constraints Constraints
	scorer      Scorer

	// sources are not goroutine safe in general
	mu  sync.Mutex
	rnd Source
}

func New(constraints Constraints, scorer Scorer, rnd Source) *Selector {
	if rnd == nil {
		rnd = globalSource{}
	}
	if scorer == nil {
		scorer = LinearScorer{LoadWeight: 1, KeyWeight: 1}
	}
	return &Selector{
		constraints: constraints,
		scorer:      scorer,
		rnd:         rnd,
	}
}

func (s *Selector) Constraints() Constraints {
	return s.constraints
}

// Candidates returns platforms that pass filtering, ordered by id.
func (s *Selector) Candidates(
	snapshot models.TelemetrySnapshot,
	excluding map[models.PlatformID]struct{},
) []models.Platform {
	candidates := make([]models.Platform, 0, len(snapshot.Platforms))
	for id, p := range snapshot.Platforms {
		if _, excluded := excluding[id]; excluded {
			continue
		}
		if !s.constraints.admits(p) {
			continue
		}
		candidates = append(candidates, p)
	}
	slices.SortFunc(candidates, func(a, b models.Platform) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return candidates
}

func (s *Selector) Score(candidates []models.Platform) []ScoredPlatform {
	scored := make([]ScoredPlatform, 0, len(candidates))
	for _, p := range candidates {
		scored = append(scored, ScoredPlatform{
			Platform: p,
			Score:    s.scorer.Score(p.Load, p.KeyAvailability),
		})
	}
	return scored
}

// Select runs filter, score and weighted random pick over snapshot.
func (s *Selector) Select(
	snapshot models.TelemetrySnapshot,
	excluding map[models.PlatformID]struct{},
) (models.Platform, error) {
	candidates := s.Candidates(snapshot, excluding)
	if len(candidates) == 0 {
		return models.Platform{}, models.ErrNoCandidatePlatform
	}
	return s.pick(s.Score(candidates)), nil
}

func (s *Selector) pick(scored []ScoredPlatform) models.Platform {
	total := 0.0
	for _, sp := range scored {
		total += sp.Score
	}

	s.mu.Lock()
	draw := s.rnd.Float64()
	s.mu.Unlock()

	if total <= 0 {
		idx := int(draw * float64(len(scored)))
		if idx >= len(scored) {
			idx = len(scored) - 1
		}
		return scored[idx].Platform
	}

	target := draw * total
	cumulative := 0.0
	for _, sp := range scored {
		cumulative += sp.Score
		if cumulative > target {
			return sp.Platform
		}
	}
	// float rounding on the last bucket
	for i := len(scored) - 1; i >= 0; i-- {
		if scored[i].Score > 0 {
			return scored[i].Platform
		}
	}
	return scored[len(scored)-1].Platform
}
