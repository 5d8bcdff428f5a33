package auction

import (
	"math/big"
	"time"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

var bpsScale = big.NewInt(10000)

// Metrics projects the current leader's profitability from the price they
// paid and the accrual snapshot. Percentages are basis points computed in
// integer arithmetic. A zero paid price is a defined edge case: every
// percentage reports 0 and break-even is immediate.
//
// Each checkpoint's time-remaining subtracts the expected decay window
// because Accrue already counts that window's accrual once the decay phase
// ends; subtracting it anywhere else would double-count.
func Metrics(paid *big.Int, acc domain.RewardAccrual, expectedDecay time.Duration, checkpointsBps []int64) domain.ProfitMetrics {
	m := domain.ProfitMetrics{
		NetProfit:   new(big.Int).Sub(acc.Total, paid),
		Checkpoints: make(map[int64]domain.Seconds, len(checkpointsBps)),
	}

	if paid.Sign() <= 0 {
		m.BreakEven = 0
		for _, cp := range checkpointsBps {
			m.Checkpoints[cp] = 0
		}
		return m
	}

	m.ReturnBps = scaleBps(acc.Total, paid)
	m.ProfitBps = scaleBps(m.NetProfit, paid)

	rate := acc.RatePerSecond
	if rate.Sign() <= 0 {
		m.BreakEven = domain.Unbounded
		for _, cp := range checkpointsBps {
			m.Checkpoints[cp] = domain.Unbounded
		}
		return m
	}

	m.BreakEven = divSeconds(paid, rate)

	windowSec := int64(expectedDecay / time.Second)
	for _, cp := range checkpointsBps {
		// requiredAccrual = paid * (10000 + cp) / 10000
		req := new(big.Int).Mul(paid, big.NewInt(10000+cp))
		req.Div(req, bpsScale)

		secs := divSeconds(req, rate)
		if secs.IsUnbounded() {
			m.Checkpoints[cp] = domain.Unbounded
			continue
		}
		// The decay window is subtracted exactly once here; Accrue counts
		// its accrual on the other side of the same equation.
		remaining := int64(secs) - windowSec - int64(acc.Elapsed)
		if remaining < 0 {
			remaining = 0
		}
		m.Checkpoints[cp] = domain.Seconds(remaining)
	}
	return m
}

// scaleBps returns num/den in basis points, truncated toward zero.
func scaleBps(num, den *big.Int) int64 {
	v := new(big.Int).Mul(num, bpsScale)
	v.Quo(v, den)
	if !v.IsInt64() {
		if v.Sign() > 0 {
			return int64(domain.Unbounded)
		}
		return -int64(domain.Unbounded)
	}
	return v.Int64()
}

// divSeconds returns num/den as whole seconds, Unbounded on overflow.
func divSeconds(num, den *big.Int) domain.Seconds {
	v := new(big.Int).Div(num, den)
	if !v.IsInt64() {
		return domain.Unbounded
	}
	return domain.Seconds(v.Int64())
}
