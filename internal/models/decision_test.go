package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		input   string
		want    DecisionAction
		wantErr bool
	}{
		{input: "HOLD", want: ActionHold},
		{input: "close", want: ActionClose},
		{input: "  Adjust_Stop ", want: ActionAdjustStop},
		{input: "adjust_target", want: ActionAdjustTarget},
		{input: "ROLL", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAction(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "action", verr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecisionValidate(t *testing.T) {
	base := func() Decision {
		return Decision{
			ID:         "d-1",
			PositionID: "pos-1",
			Action:     ActionHold,
			Confidence: 0.8,
			Reasoning:  "thesis intact",
		}
	}

	t.Run("valid hold", func(t *testing.T) {
		d := base()
		assert.NoError(t, d.Validate())
	})

	t.Run("confidence out of range", func(t *testing.T) {
		d := base()
		d.Confidence = 1.2
		err := d.Validate()
		require.Error(t, err)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "confidence", verr.Field)
	})

	t.Run("empty reasoning", func(t *testing.T) {
		d := base()
		d.Reasoning = "   "
		err := d.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reasoning")
	})

	t.Run("adjust stop requires stop loss", func(t *testing.T) {
		d := base()
		d.Action = ActionAdjustStop
		err := d.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stop_loss")

		d.StopLoss = decimal.NewNullDecimal(decimal.NewFromInt(2000))
		assert.NoError(t, d.Validate())
	})

	t.Run("adjust target requires target price", func(t *testing.T) {
		d := base()
		d.Action = ActionAdjustTarget
		err := d.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "target_price")

		d.TargetPrice = decimal.NewNullDecimal(decimal.NewFromInt(3500))
		assert.NoError(t, d.Validate())
	})
}
