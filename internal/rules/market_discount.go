package rules

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// MarketDiscount is a value heuristic on the last settled price: when the
// current decay price has fallen a configured discount below what the
// previous round cleared at, the entry itself is cheap relative to the
// market's demonstrated willingness to pay.
type MarketDiscount struct {
	discountBps int64
}

// NewMarketDiscount creates the rule. discountBps is how far below the
// last settled price the current price must fall; it is required and must
// be positive.
func NewMarketDiscount(discountBps int64) (*MarketDiscount, error) {
	if discountBps <= 0 {
		return nil, fmt.Errorf("market_discount: discount must be positive: %w", domain.ErrMissingParam)
	}
	return &MarketDiscount{discountBps: discountBps}, nil
}

func (r *MarketDiscount) Name() string  { return "market_discount" }
func (r *MarketDiscount) Priority() int { return PriorityMarketDiscount }

func (r *MarketDiscount) Evaluate(ec domain.EvalContext) domain.RuleTrace {
	last := ec.State.LastSettled
	if last == nil || last.Sign() <= 0 {
		return domain.RuleTrace{
			Rule: r.Name(),
			Thoughts: domain.Thoughts{
				Reasoning: "no settled round yet, no reference price",
			},
		}
	}

	price := ec.State.Price
	target := new(big.Int).Mul(last, big.NewInt(10000-r.discountBps))
	target.Div(target, big.NewInt(10000))

	thoughts := domain.Thoughts{
		Current: price.String(),
		Target:  target.String(),
		Meta: map[string]string{
			domain.MetaLastSettled: last.String(),
		},
	}

	// Progress: how much of the drop from last settled to the target has
	// happened.
	span := new(big.Int).Sub(last, target)
	if span.Sign() > 0 {
		done := new(big.Int).Sub(last, price)
		done.Mul(done, big.NewInt(100))
		done.Div(done, span)
		if v := done.Int64(); v >= 0 && v <= 100 {
			thoughts.Progress = float64(v)
		} else if v > 100 {
			thoughts.Progress = 100
		}
	}

	if price.Cmp(target) > 0 {
		thoughts.Reasoning = fmt.Sprintf("price %s above discount target %s (%s below last settled %s)",
			price, target, pct(r.discountBps), last)
		return domain.RuleTrace{Rule: r.Name(), Thoughts: thoughts}
	}

	thoughts.Progress = 100
	thoughts.Reasoning = fmt.Sprintf("price %s at least %s below last settled %s",
		price, pct(r.discountBps), last)
	return domain.RuleTrace{
		Rule:     r.Name(),
		Thoughts: thoughts,
		Decision: &domain.Decision{
			Act:      true,
			Reason:   thoughts.Reasoning,
			Priority: r.Priority(),
			Rule:     r.Name(),
			Meta:     thoughts.Meta,
		},
	}
}
