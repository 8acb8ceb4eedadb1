package models

import "github.com/shopspring/decimal"

// RawOpportunity is a loosely-typed candidate as produced by an external
// advisor. Field names, types, and presence are all untrusted; normalization
// turns one of these into an Opportunity or a ValidationError.
type RawOpportunity map[string]any

// Opportunity is a fully validated candidate for a new position. Every field
// has been checked; optional advisory fields absent from the raw input carry
// their documented defaults.
type Opportunity struct {
	Symbol          string
	Strategy        StrategyType
	Legs            []Leg
	EntryCost       decimal.Decimal
	Confidence      float64
	Rationale       string
	TargetReturn    decimal.NullDecimal
	MaxRisk         decimal.NullDecimal
	TimeHorizonDays int
}
