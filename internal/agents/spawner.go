// Package agents builds the simulated agent population.
package agents

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"token-arena/internal/domain"
)

// paramRange bounds a behavioral parameter for one personality class.
type paramRange struct {
	lo, hi float64
}

func (r paramRange) sample(rng *rand.Rand) float64 {
	return r.lo + (r.hi-r.lo)*rng.Float64()
}

// profile is the behavioral parameter template of a personality class.
type profile struct {
	risk      paramRange
	frequency paramRange
	position  paramRange // max single-trade size, base units
}

var profiles = map[domain.Personality]profile{
	domain.PersonalityConservative: {
		risk:      paramRange{0.05, 0.25},
		frequency: paramRange{0.1, 0.3},
		position:  paramRange{0.5, 2},
	},
	domain.PersonalityModerate: {
		risk:      paramRange{0.2, 0.5},
		frequency: paramRange{0.3, 0.6},
		position:  paramRange{1, 5},
	},
	domain.PersonalityAggressive: {
		risk:      paramRange{0.5, 0.95},
		frequency: paramRange{0.6, 0.95},
		position:  paramRange{3, 10},
	},
	domain.PersonalityTrendFollower: {
		risk:      paramRange{0.3, 0.7},
		frequency: paramRange{0.4, 0.8},
		position:  paramRange{2, 6},
	},
	domain.PersonalityContrarian: {
		risk:      paramRange{0.3, 0.7},
		frequency: paramRange{0.3, 0.7},
		position:  paramRange{2, 6},
	},
}

// Spawn builds count agents apportioned across the normalized personality
// mix using largest remainders, so every class with non-zero weight is
// represented and the total is exact. Deterministic for a fixed seed.
func Spawn(count int, mix map[domain.Personality]float64, seed int64) ([]*domain.AgentRef, error) {
	if count <= 0 {
		return nil, fmt.Errorf("agent count must be positive: %d", count)
	}

	counts := apportion(count, mix)
	rng := rand.New(rand.NewSource(seed))

	out := make([]*domain.AgentRef, 0, count)
	n := 0
	for _, personality := range domain.Personalities {
		p := profiles[personality]
		for i := 0; i < counts[personality]; i++ {
			n++
			out = append(out, &domain.AgentRef{
				ID:              uuid.NewString(),
				Name:            fmt.Sprintf("agent-%03d", n),
				Personality:     personality,
				RiskTolerance:   p.risk.sample(rng),
				TradeFrequency:  p.frequency.sample(rng),
				MaxPositionSize: p.position.sample(rng),
			})
		}
	}
	return out, nil
}

// apportion splits count across the mix by largest remainder, iterating
// personalities in their fixed order for determinism.
func apportion(count int, mix map[domain.Personality]float64) map[domain.Personality]int {
	counts := make(map[domain.Personality]int, len(mix))
	type rem struct {
		personality domain.Personality
		frac        float64
	}
	var rems []rem

	assigned := 0
	for _, personality := range domain.Personalities {
		w := mix[personality]
		exact := w * float64(count)
		whole := int(exact)
		counts[personality] = whole
		assigned += whole
		rems = append(rems, rem{personality, exact - float64(whole)})
	}

	// Distribute the remainder to the largest fractional parts.
	for assigned < count {
		best := 0
		for i := 1; i < len(rems); i++ {
			if rems[i].frac > rems[best].frac {
				best = i
			}
		}
		counts[rems[best].personality]++
		rems[best].frac = -1
		assigned++
	}
	return counts
}
