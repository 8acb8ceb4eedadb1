// Package valuation prices option positions from chain snapshots. It is pure:
// no I/O, no clocks, no locks. Callers fetch market data first and hand it in.
package valuation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"paperledger/internal/models"
)

var contractMultiplier = decimal.NewFromInt(models.SharesPerContract)

// Value returns the mark-to-market liquidation value of a set of legs priced
// against the given chain. Each leg is marked at its bid/ask midpoint times
// quantity times the contract multiplier; short legs (negative quantity)
// subtract. A leg with no two-sided market degrades to intrinsic value from
// the chain's underlying price; without that price, or when the contract is
// missing from the chain entirely, the whole valuation fails.
func Value(legs []models.Leg, chain *models.ChainSnapshot) (decimal.Decimal, models.Greeks, error) {
	total := decimal.Zero
	var greeks models.Greeks

	for i, leg := range legs {
		contract, ok := chain.FindContract(leg.Strike, leg.Expiration, leg.OptionType)
		if !ok {
			return decimal.Zero, models.Greeks{}, fmt.Errorf(
				"leg %d: no %s %s @ %s in chain for %s",
				i, leg.Expiration.Format("2006-01-02"), leg.OptionType, leg.Strike, chain.Symbol)
		}

		var mark decimal.Decimal
		switch {
		case contract.HasMarket():
			mark = contract.MidPrice()
		case chain.UnderlyingPrice.IsPositive():
			mark = intrinsic(leg, chain.UnderlyingPrice)
		default:
			return decimal.Zero, models.Greeks{}, fmt.Errorf(
				"leg %d: contract %s has no two-sided quote (bid=%s ask=%s) and no underlying price to fall back on",
				i, contract.Symbol, contract.Bid, contract.Ask)
		}

		qty := decimal.NewFromInt(int64(leg.Quantity))
		total = total.Add(mark.Mul(qty).Mul(contractMultiplier))

		// Greeks are best-effort; a chain without them still prices.
		if contract.Greeks != nil {
			fq := float64(leg.Quantity)
			greeks.Delta += contract.Greeks.Delta * fq
			greeks.Gamma += contract.Greeks.Gamma * fq
			greeks.Theta += contract.Greeks.Theta * fq
			greeks.Vega += contract.Greeks.Vega * fq
		}
	}

	return total, greeks, nil
}

// intrinsic prices one contract from the underlying alone: what exercising it
// would be worth right now, floored at zero.
func intrinsic(leg models.Leg, underlying decimal.Decimal) decimal.Decimal {
	var value decimal.Decimal
	if leg.OptionType == models.OptionTypeCall {
		value = underlying.Sub(leg.Strike)
	} else {
		value = leg.Strike.Sub(underlying)
	}
	if value.IsNegative() {
		return decimal.Zero
	}
	return value
}
