package optimizer

import (
	"fmt"
	"math"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
	"github.com/Sh00ty/mec-orchestrator/internal/selector"
)

type VictimPolicy string

const (
	// one context per violating platform per pass
	VictimOne VictimPolicy = "one"
	// every context of violating platform
	VictimAll VictimPolicy = "all"
	// contexts until projected load fits, load is assumed evenly shared
	VictimUntilClear VictimPolicy = "until-clear"
)

func ParseVictimPolicy(s string) (VictimPolicy, error) {
	switch p := VictimPolicy(s); p {
	case VictimOne, VictimAll, VictimUntilClear:
		return p, nil
	case "":
		return VictimOne, nil
	}
	return "", fmt.Errorf("unknown victim policy %q", s)
}

// victims picks contexts to move off platform. Contexts must be ordered
// oldest first.
func victims(
	policy VictimPolicy,
	constraints selector.Constraints,
	platform models.Platform,
	contexts []models.AppContext,
) []models.AppContext {
	if len(contexts) == 0 {
		return nil
	}
	switch policy {
	case VictimAll:
		return contexts
	case VictimUntilClear:
		return contexts[:untilClearCount(constraints, platform, len(contexts))]
	}
	return contexts[:1]
}

func untilClearCount(constraints selector.Constraints, platform models.Platform, n int) int {
	// key availability doesn't depend on how many contexts stay
	if platform.KeyAvailability < constraints.MinKeyAvailability {
		return n
	}
	if platform.Load <= constraints.MaxLoad || platform.Load <= 0 {
		return 0
	}
	// load*(n-k)/n <= maxLoad
	k := int(math.Ceil(float64(n) * (1 - constraints.MaxLoad/platform.Load)))
	return min(max(k, 1), n)
}
