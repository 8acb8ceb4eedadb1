package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DecisionAction is a management action applied to an open position. The set
// is closed: anything else arriving from an external advisor is rejected
// before it can touch a position.
type DecisionAction string

const (
	// ActionHold records the decision without mutating the position.
	ActionHold DecisionAction = "HOLD"
	// ActionClose exits the position at its current value.
	ActionClose DecisionAction = "CLOSE"
	// ActionAdjustStop replaces the position's stop loss.
	ActionAdjustStop DecisionAction = "ADJUST_STOP"
	// ActionAdjustTarget replaces the position's profit target.
	ActionAdjustTarget DecisionAction = "ADJUST_TARGET"
)

// Valid returns true if the DecisionAction is one of the defined constants.
func (a DecisionAction) Valid() bool {
	switch a {
	case ActionHold, ActionClose, ActionAdjustStop, ActionAdjustTarget:
		return true
	default:
		return false
	}
}

// ParseAction maps an external action string to a DecisionAction,
// case-insensitively. Unknown actions are an error; they must never be
// coerced to HOLD or silently dropped.
func ParseAction(s string) (DecisionAction, error) {
	a := DecisionAction(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", &ValidationError{Field: "action", Reason: fmt.Sprintf("unrecognized action %q", s)}
	}
	return a, nil
}

// Decision is one entry in a position's append-only audit history. A decision
// is recorded before its effect is applied, so the history always explains
// every mutation even if a later step fails.
type Decision struct {
	ID              string              `json:"id"`
	PositionID      string              `json:"position_id"`
	Action          DecisionAction      `json:"action"`
	Confidence      float64             `json:"confidence"`
	Reasoning       string              `json:"reasoning"`
	TargetPrice     decimal.NullDecimal `json:"target_price"`
	StopLoss        decimal.NullDecimal `json:"stop_loss"`
	TimeHorizonDays int                 `json:"time_horizon_days,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// Validate checks the decision's required fields.
func (d *Decision) Validate() error {
	if !d.Action.Valid() {
		return &ValidationError{Field: "action", Reason: fmt.Sprintf("unrecognized action %q", d.Action)}
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("must be in [0, 1] (got %g)", d.Confidence)}
	}
	if strings.TrimSpace(d.Reasoning) == "" {
		return &ValidationError{Field: "reasoning", Reason: "must not be empty"}
	}
	switch d.Action {
	case ActionAdjustStop:
		if !d.StopLoss.Valid {
			return &ValidationError{Field: "stop_loss", Reason: "required for ADJUST_STOP"}
		}
	case ActionAdjustTarget:
		if !d.TargetPrice.Valid {
			return &ValidationError{Field: "target_price", Reason: "required for ADJUST_TARGET"}
		}
	}
	return nil
}
