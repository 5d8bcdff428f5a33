// Package auction contains the pure pricing and profitability math: price
// reconstruction between authoritative refreshes, reward accrual, and
// profit projections. Everything here is side-effect free and safe to call
// on every tick.
package auction

import (
	"math/big"
	"time"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// Price reconstructs the auction price at now from the curve alone, without
// a network round-trip. Before decay starts it returns Start; after the
// full duration it returns Floor; in between it interpolates linearly. The
// result is clamped to [Floor, Start] so clock skew or malformed inputs
// can never produce an out-of-range price.
func Price(c domain.Curve, now time.Time) *big.Int {
	if !now.After(c.DecayStart) {
		return new(big.Int).Set(c.Start)
	}
	durSec := int64(c.Duration / time.Second)
	if durSec <= 0 {
		return new(big.Int).Set(c.Floor)
	}
	elapsedSec := int64(now.Sub(c.DecayStart) / time.Second)
	if elapsedSec >= durSec {
		return new(big.Int).Set(c.Floor)
	}

	// current = start - (start - floor) * elapsed / duration
	drop := new(big.Int).Sub(c.Start, c.Floor)
	drop.Mul(drop, big.NewInt(elapsedSec))
	drop.Div(drop, big.NewInt(durSec))
	cur := new(big.Int).Sub(c.Start, drop)

	return clamp(cur, c.Floor, c.Start)
}

// TimeUntilPrice inverts Price: it returns how long from now until the
// curve reaches target. Targets at or above the current price return 0;
// targets below Floor never occur and also return 0 once the curve has
// fully decayed. The inversion agrees with Price to within one second for
// any target in [Floor, Start].
func TimeUntilPrice(c domain.Curve, target *big.Int, now time.Time) time.Duration {
	t := new(big.Int).Set(target)
	t = clamp(t, c.Floor, c.Start)

	drop := new(big.Int).Sub(c.Start, c.Floor)
	if drop.Sign() == 0 || c.Duration <= 0 {
		return 0
	}

	// elapsedAtTarget = duration * (start - target) / (start - floor)
	num := new(big.Int).Sub(c.Start, t)
	num.Mul(num, big.NewInt(int64(c.Duration/time.Second)))
	num.Div(num, drop)

	at := c.DecayStart.Add(time.Duration(num.Int64()) * time.Second)
	if remaining := at.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

func clamp(v, lo, hi *big.Int) *big.Int {
	if v.Cmp(lo) < 0 {
		return new(big.Int).Set(lo)
	}
	if v.Cmp(hi) > 0 {
		return new(big.Int).Set(hi)
	}
	return v
}
