package models

import "fmt"

// ValidationError reports a rejected candidate field by name so callers can
// log exactly which input was bad. Candidates are rejected loudly, never
// silently repaired, except where a documented default applies.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CapacityError is returned when opening a position would exceed the
// configured concurrent-position limit.
type CapacityError struct {
	Max int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("portfolio at capacity (%d open positions)", e.Max)
}

// InsufficientCashError is returned when a position's entry cost exceeds the
// available cash balance.
type InsufficientCashError struct {
	Required  string
	Available string
}

func (e *InsufficientCashError) Error() string {
	return fmt.Sprintf("insufficient cash: need %s, have %s", e.Required, e.Available)
}

// DecisionError reports why a decision could not be applied to a position.
type DecisionError struct {
	PositionID    string
	Action        DecisionAction
	Reason        string
	AlreadyClosed bool
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("cannot apply %s to position %s: %s", e.Action, e.PositionID, e.Reason)
}

// PricingError reports a position that could not be revalued, typically
// because a leg's contract had no usable market quote. One position failing
// never blocks the rest of a batch.
type PricingError struct {
	PositionID string
	Symbol     string
	Reason     string
}

func (e *PricingError) Error() string {
	return fmt.Sprintf("cannot price position %s (%s): %s", e.PositionID, e.Symbol, e.Reason)
}
