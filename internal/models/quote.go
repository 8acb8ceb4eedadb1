package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time price for an underlying symbol.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Last      decimal.Decimal `json:"last"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Timestamp time.Time       `json:"timestamp"`
}

// Contract is one option contract from a chain.
type Contract struct {
	Symbol            string          `json:"symbol"`
	Underlying        string          `json:"underlying"`
	Strike            decimal.Decimal `json:"strike"`
	Expiration        time.Time       `json:"expiration"`
	OptionType        OptionType      `json:"option_type"`
	Bid               decimal.Decimal `json:"bid"`
	Ask               decimal.Decimal `json:"ask"`
	Last              decimal.Decimal `json:"last"`
	Volume            int64           `json:"volume"`
	OpenInterest      int64           `json:"open_interest"`
	ImpliedVolatility float64         `json:"implied_volatility,omitempty"`
	Greeks            *Greeks         `json:"greeks,omitempty"`
}

// HasMarket reports whether the contract has a two-sided quote. Contracts
// without one cannot be used for valuation.
func (c *Contract) HasMarket() bool {
	return c.Bid.IsPositive() && c.Ask.IsPositive()
}

// MidPrice returns the bid/ask midpoint.
func (c *Contract) MidPrice() decimal.Decimal {
	return c.Bid.Add(c.Ask).Div(decimal.NewFromInt(2))
}

// ChainSnapshot holds the option contracts fetched for a symbol at a moment
// in time, possibly spanning several expirations.
type ChainSnapshot struct {
	Symbol          string          `json:"symbol"`
	UnderlyingPrice decimal.Decimal `json:"underlying_price"`
	Contracts       []Contract      `json:"contracts"`
	AsOf            time.Time       `json:"as_of"`
}

// FindContract locates the contract matching a leg's strike, expiration, and
// type. The second return is false when the chain has no such contract.
func (s *ChainSnapshot) FindContract(strike decimal.Decimal, expiration time.Time, ot OptionType) (*Contract, bool) {
	day := expiration.UTC().Truncate(24 * time.Hour)
	for i := range s.Contracts {
		c := &s.Contracts[i]
		if c.OptionType == ot && c.Strike.Equal(strike) &&
			c.Expiration.UTC().Truncate(24*time.Hour).Equal(day) {
			return c, true
		}
	}
	return nil, false
}
