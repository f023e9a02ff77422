package selector

import (
	"math"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
)

type Constraints struct {
	MaxLoad            float64
	MinKeyAvailability float64

	Blacklist map[models.PlatformID]struct{}
	Whitelist map[models.PlatformID]struct{}
	// if set only whitelisted platforms are eligible
	WhitelistMode bool
}

// Violates reports whether platform telemetry is outside of thresholds.
// Lists are not taken into account. Malformed telemetry is never admitted
// but doesn't count as violation either.
func (c Constraints) Violates(p models.Platform) bool {
	return p.Load > c.MaxLoad || p.KeyAvailability < c.MinKeyAvailability
}

func (c Constraints) admits(p models.Platform) bool {
	if _, black := c.Blacklist[p.ID]; black || p.Blacklisted {
		return false
	}
	if c.WhitelistMode {
		_, white := c.Whitelist[p.ID]
		if !white && !p.Whitelisted {
			return false
		}
	}
	return ValidTelemetry(p) && !c.Violates(p)
}

// ValidTelemetry reports whether load and key availability are numbers in [0,1].
func ValidTelemetry(p models.Platform) bool {
	return unit(p.Load) && unit(p.KeyAvailability)
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func IDSet(ids ...models.PlatformID) map[models.PlatformID]struct{} {
	set := make(map[models.PlatformID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
