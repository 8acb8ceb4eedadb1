package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLegs() []Leg {
	return []Leg{
		{
			Strike:     decimal.NewFromInt(180),
			Expiration: time.Now().UTC().AddDate(0, 0, 30),
			OptionType: OptionTypeCall,
			Quantity:   1,
		},
	}
}

func testPosition() *Position {
	return &Position{
		ID:         "pos-1",
		Symbol:     "AAPL",
		Strategy:   StrategyLongCall,
		Legs:       testLegs(),
		EntryCost:  decimal.NewFromInt(2750),
		Status:     StatusOpen,
		Confidence: 0.7,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestStrategyTypeValid(t *testing.T) {
	valid := []StrategyType{
		StrategyLongCall, StrategyLongPut, StrategyCallSpread,
		StrategyPutSpread, StrategyIronCondor,
	}
	for _, s := range valid {
		assert.True(t, s.Valid(), "expected %s to be valid", s)
	}
	assert.False(t, StrategyType("covered_call").Valid())
	assert.False(t, StrategyType("").Valid())
}

func TestPositionStatusTerminal(t *testing.T) {
	assert.False(t, StatusOpen.Terminal())
	assert.True(t, StatusClosed.Terminal())
	assert.True(t, StatusReset.Terminal())
}

func TestLegValidate(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name    string
		leg     Leg
		wantErr string
	}{
		{
			name: "valid long call leg",
			leg:  Leg{Strike: decimal.NewFromInt(100), Expiration: now.AddDate(0, 1, 0), OptionType: OptionTypeCall, Quantity: 1},
		},
		{
			name: "valid short put leg",
			leg:  Leg{Strike: decimal.NewFromInt(95), Expiration: now.AddDate(0, 1, 0), OptionType: OptionTypePut, Quantity: -1},
		},
		{
			name:    "zero strike",
			leg:     Leg{Strike: decimal.Zero, Expiration: now.AddDate(0, 1, 0), OptionType: OptionTypeCall, Quantity: 1},
			wantErr: "strike must be positive",
		},
		{
			name:    "expired leg",
			leg:     Leg{Strike: decimal.NewFromInt(100), Expiration: now.AddDate(0, 0, -7), OptionType: OptionTypeCall, Quantity: 1},
			wantErr: "is before",
		},
		{
			name:    "bad option type",
			leg:     Leg{Strike: decimal.NewFromInt(100), Expiration: now.AddDate(0, 1, 0), OptionType: "warrant", Quantity: 1},
			wantErr: "not call or put",
		},
		{
			name:    "zero quantity",
			leg:     Leg{Strike: decimal.NewFromInt(100), Expiration: now.AddDate(0, 1, 0), OptionType: OptionTypeCall, Quantity: 0},
			wantErr: "quantity must be nonzero",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.leg.Validate(now)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateState(t *testing.T) {
	t.Run("open position is valid", func(t *testing.T) {
		assert.NoError(t, testPosition().ValidateState())
	})

	t.Run("open position with realized pnl is invalid", func(t *testing.T) {
		p := testPosition()
		p.RealizedPnL = decimal.NewNullDecimal(decimal.NewFromInt(10))
		err := p.ValidateState()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "RealizedPnL must be unset")
	})

	t.Run("closed position requires pnl and timestamp", func(t *testing.T) {
		p := testPosition()
		p.Status = StatusClosed
		err := p.ValidateState()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ClosedAt must be set")

		p.ClosedAt = p.CreatedAt.Add(time.Hour)
		err = p.ValidateState()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "RealizedPnL must be set")

		p.RealizedPnL = decimal.NewNullDecimal(decimal.NewFromInt(-18))
		assert.NoError(t, p.ValidateState())
	})

	t.Run("closed before created is invalid", func(t *testing.T) {
		p := testPosition()
		p.Status = StatusClosed
		p.ClosedAt = p.CreatedAt.Add(-time.Hour)
		p.RealizedPnL = decimal.NewNullDecimal(decimal.Zero)
		err := p.ValidateState()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "precedes CreatedAt")
	})

	t.Run("reset position carries no pnl", func(t *testing.T) {
		p := testPosition()
		p.Status = StatusReset
		assert.NoError(t, p.ValidateState())

		p.RealizedPnL = decimal.NewNullDecimal(decimal.Zero)
		err := p.ValidateState()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "RealizedPnL must be unset")
	})

	t.Run("no legs is invalid", func(t *testing.T) {
		p := testPosition()
		p.Legs = nil
		err := p.ValidateState()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no legs")
	})
}

func TestCloneIsDeep(t *testing.T) {
	p := testPosition()
	p.AppendDecision(Decision{ID: "d-1", PositionID: p.ID, Action: ActionHold, Confidence: 0.5, Reasoning: "wait", CreatedAt: time.Now().UTC()})

	cp := p.Clone()
	require.NotSame(t, p, cp)
	assert.Equal(t, p.ID, cp.ID)

	cp.Legs[0].Quantity = 99
	cp.Decisions[0].Reasoning = "changed"
	assert.Equal(t, 1, p.Legs[0].Quantity)
	assert.Equal(t, "wait", p.Decisions[0].Reasoning)
}

func TestUnrealizedPnL(t *testing.T) {
	p := testPosition()
	p.CurrentValue = decimal.NewFromInt(2732)
	assert.True(t, p.UnrealizedPnL().Equal(decimal.NewFromInt(-18)))

	p.Status = StatusClosed
	assert.True(t, p.UnrealizedPnL().IsZero())
}

func TestEarliestExpirationAndDTE(t *testing.T) {
	near := time.Now().UTC().AddDate(0, 0, 10)
	far := time.Now().UTC().AddDate(0, 0, 45)
	p := testPosition()
	p.Legs = []Leg{
		{Strike: decimal.NewFromInt(100), Expiration: far, OptionType: OptionTypeCall, Quantity: 1},
		{Strike: decimal.NewFromInt(105), Expiration: near, OptionType: OptionTypeCall, Quantity: -1},
	}

	assert.Equal(t, near, p.EarliestExpiration())
	dte := p.DTE()
	assert.GreaterOrEqual(t, dte, 9)
	assert.LessOrEqual(t, dte, 10)
	assert.Len(t, p.Expirations(), 2)
}
