package valuation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperledger/internal/models"
)

func chainFixture(exp time.Time) *models.ChainSnapshot {
	return &models.ChainSnapshot{
		Symbol:          "AAPL",
		UnderlyingPrice: decimal.NewFromInt(182),
		AsOf:            time.Now().UTC(),
		Contracts: []models.Contract{
			{
				Symbol:     "AAPL240119C00180000",
				Strike:     decimal.NewFromInt(180),
				Expiration: exp,
				OptionType: models.OptionTypeCall,
				Bid:        decimal.NewFromFloat(27.00),
				Ask:        decimal.NewFromFloat(27.64),
				Greeks:     &models.Greeks{Delta: 0.62, Theta: -0.08},
			},
			{
				Symbol:     "AAPL240119C00190000",
				Strike:     decimal.NewFromInt(190),
				Expiration: exp,
				OptionType: models.OptionTypeCall,
				Bid:        decimal.NewFromFloat(12.10),
				Ask:        decimal.NewFromFloat(12.50),
				Greeks:     &models.Greeks{Delta: 0.41, Theta: -0.06},
			},
			{
				Symbol:     "AAPL240119P00170000",
				Strike:     decimal.NewFromInt(170),
				Expiration: exp,
				OptionType: models.OptionTypePut,
				Bid:        decimal.Zero,
				Ask:        decimal.NewFromFloat(4.20),
			},
		},
	}
}

func TestValueSingleLeg(t *testing.T) {
	exp := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	chain := chainFixture(exp)

	legs := []models.Leg{
		{Strike: decimal.NewFromInt(180), Expiration: exp, OptionType: models.OptionTypeCall, Quantity: 1},
	}

	val, greeks, err := Value(legs, chain)
	require.NoError(t, err)
	// mid 27.32 * 1 contract * 100 shares
	assert.True(t, val.Equal(decimal.NewFromInt(2732)), "got %s", val)
	assert.InDelta(t, 0.62, greeks.Delta, 1e-9)
}

func TestValueSpreadNetsShortLeg(t *testing.T) {
	exp := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	chain := chainFixture(exp)

	legs := []models.Leg{
		{Strike: decimal.NewFromInt(180), Expiration: exp, OptionType: models.OptionTypeCall, Quantity: 1},
		{Strike: decimal.NewFromInt(190), Expiration: exp, OptionType: models.OptionTypeCall, Quantity: -1},
	}

	val, greeks, err := Value(legs, chain)
	require.NoError(t, err)
	// long mid 27.32 minus short mid 12.30, times 100
	assert.True(t, val.Equal(decimal.NewFromFloat(1502)), "got %s", val)
	assert.InDelta(t, 0.21, greeks.Delta, 1e-9)
}

func TestValueMissingContract(t *testing.T) {
	exp := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	chain := chainFixture(exp)

	legs := []models.Leg{
		{Strike: decimal.NewFromInt(200), Expiration: exp, OptionType: models.OptionTypeCall, Quantity: 1},
	}

	_, _, err := Value(legs, chain)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no")
}

func TestValueQuotelessLegFallsBackToIntrinsic(t *testing.T) {
	exp := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	chain := chainFixture(exp)

	// The 170 put has no bid; out of the money with the underlying at 182,
	// its intrinsic value is zero.
	legs := []models.Leg{
		{Strike: decimal.NewFromInt(170), Expiration: exp, OptionType: models.OptionTypePut, Quantity: 1},
	}

	val, _, err := Value(legs, chain)
	require.NoError(t, err)
	assert.True(t, val.IsZero(), "got %s", val)

	// An in-the-money call with no quote marks at underlying minus strike.
	chain.Contracts = append(chain.Contracts, models.Contract{
		Symbol:     "AAPL240119C00160000",
		Strike:     decimal.NewFromInt(160),
		Expiration: exp,
		OptionType: models.OptionTypeCall,
	})
	legs = []models.Leg{
		{Strike: decimal.NewFromInt(160), Expiration: exp, OptionType: models.OptionTypeCall, Quantity: 1},
	}

	val, _, err = Value(legs, chain)
	require.NoError(t, err)
	// (182 - 160) * 1 contract * 100 shares
	assert.True(t, val.Equal(decimal.NewFromInt(2200)), "got %s", val)
}

func TestValueOneSidedQuoteWithoutUnderlyingFails(t *testing.T) {
	exp := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	chain := chainFixture(exp)
	chain.UnderlyingPrice = decimal.Zero

	legs := []models.Leg{
		{Strike: decimal.NewFromInt(170), Expiration: exp, OptionType: models.OptionTypePut, Quantity: 1},
	}

	_, _, err := Value(legs, chain)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no two-sided quote")
}

func TestValueToleratesMissingGreeks(t *testing.T) {
	exp := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	chain := chainFixture(exp)
	chain.Contracts[0].Greeks = nil

	legs := []models.Leg{
		{Strike: decimal.NewFromInt(180), Expiration: exp, OptionType: models.OptionTypeCall, Quantity: 1},
	}

	val, greeks, err := Value(legs, chain)
	require.NoError(t, err)
	assert.True(t, val.Equal(decimal.NewFromInt(2732)))
	assert.Zero(t, greeks.Delta)
}
