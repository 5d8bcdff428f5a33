package auction

import (
	"fmt"
	"math/big"
	"time"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// Accrue derives the leader's reward accrual at now. The model also counts
// the anticipated remaining decay window once, capped by elapsed time so a
// freshly taken lead does not overstate it:
//
//	total = rate * (elapsed + min(elapsed, expectedDecay))
//
// The checkpoint projections in Metrics subtract the same window; the two
// formulas share the caller's expectedDecay and must stay in lockstep.
// A now before leadStart is a caller error.
func Accrue(rate *big.Int, leadStart, now time.Time, expectedDecay time.Duration) (domain.RewardAccrual, error) {
	if now.Before(leadStart) {
		return domain.RewardAccrual{}, fmt.Errorf("auction: accrue: now before lead start: %w", domain.ErrMalformedContext)
	}
	elapsed := int64(now.Sub(leadStart) / time.Second)
	window := int64(expectedDecay / time.Second)
	if elapsed < window {
		window = elapsed
	}

	total := new(big.Int).Mul(rate, big.NewInt(elapsed+window))
	return domain.RewardAccrual{
		RatePerSecond: new(big.Int).Set(rate),
		Total:         total,
		Elapsed:       domain.Seconds(elapsed),
	}, nil
}
