// Package models provides data structures and lifecycle validation for paper
// trading positions.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SharesPerContract is the standard option contract multiplier.
const SharesPerContract = 100

// OptionType represents the type of option contract.
type OptionType string

const (
	// OptionTypeCall represents a call option contract
	OptionTypeCall OptionType = "call"
	// OptionTypePut represents a put option contract
	OptionTypePut OptionType = "put"
)

// Valid returns true if the OptionType is one of the defined constants.
func (t OptionType) Valid() bool {
	return t == OptionTypeCall || t == OptionTypePut
}

// StrategyType identifies the options strategy a position implements.
// The set is closed; extending it means adding a constant here, never
// accepting a free-form string.
type StrategyType string

const (
	StrategyLongCall   StrategyType = "long_call"
	StrategyLongPut    StrategyType = "long_put"
	StrategyCallSpread StrategyType = "call_spread"
	StrategyPutSpread  StrategyType = "put_spread"
	StrategyIronCondor StrategyType = "iron_condor"
)

// Valid returns true if the StrategyType is one of the defined constants.
func (s StrategyType) Valid() bool {
	switch s {
	case StrategyLongCall, StrategyLongPut, StrategyCallSpread, StrategyPutSpread, StrategyIronCondor:
		return true
	default:
		return false
	}
}

// PositionStatus represents the lifecycle state of a position.
type PositionStatus string

const (
	// StatusOpen marks an active position being tracked and revalued.
	StatusOpen PositionStatus = "OPEN"
	// StatusClosed marks a position exited with realized P&L. Terminal.
	StatusClosed PositionStatus = "CLOSED"
	// StatusReset marks a position discarded by a portfolio reset. Terminal,
	// retained for audit, excluded from active accounting. Distinct from
	// CLOSED: no realized P&L is attributed to it.
	StatusReset PositionStatus = "RESET"
)

// Valid returns true if the PositionStatus is one of the defined constants.
func (s PositionStatus) Valid() bool {
	return s == StatusOpen || s == StatusClosed || s == StatusReset
}

// Terminal returns true for statuses that permit no further transitions.
func (s PositionStatus) Terminal() bool {
	return s == StatusClosed || s == StatusReset
}

// Leg is one option contract within a (possibly multi-leg) strategy.
// A negative quantity denotes a written/short leg.
type Leg struct {
	Strike     decimal.Decimal `json:"strike"`
	Expiration time.Time       `json:"expiration"`
	OptionType OptionType      `json:"option_type"`
	Quantity   int             `json:"quantity"`
}

// Validate checks a single leg against the reference date (normally the
// position's creation date).
func (l Leg) Validate(asOf time.Time) error {
	if !l.Strike.IsPositive() {
		return fmt.Errorf("strike must be positive (got %s)", l.Strike)
	}
	if l.Expiration.Before(asOf.UTC().Truncate(24 * time.Hour)) {
		return fmt.Errorf("expiration %s is before %s",
			l.Expiration.Format("2006-01-02"), asOf.Format("2006-01-02"))
	}
	if !l.OptionType.Valid() {
		return fmt.Errorf("option_type %q is not call or put", l.OptionType)
	}
	if l.Quantity == 0 {
		return fmt.Errorf("quantity must be nonzero")
	}
	return nil
}

// Greeks holds aggregated option sensitivities for a position.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// Position is a synthetic (paper) options position. Legs and EntryCost are
// immutable after creation; CurrentValue is mutated only through revaluation,
// targets only through an authorized decision, and Decisions is append-only.
type Position struct {
	ID              string              `json:"id"`
	Symbol          string              `json:"symbol"`
	Strategy        StrategyType        `json:"strategy"`
	Legs            []Leg               `json:"legs"`
	EntryCost       decimal.Decimal     `json:"entry_cost"`
	CurrentValue    decimal.Decimal     `json:"current_value"`
	ProfitTarget    decimal.NullDecimal `json:"profit_target"`
	StopLoss        decimal.NullDecimal `json:"stop_loss"`
	RealizedPnL     decimal.NullDecimal `json:"realized_pnl"`
	Status          PositionStatus      `json:"status"`
	Rationale       string              `json:"rationale,omitempty"`
	Confidence      float64             `json:"confidence"`
	TimeHorizonDays int                 `json:"time_horizon_days,omitempty"`
	Greeks          Greeks              `json:"greeks"`
	CreatedAt       time.Time           `json:"created_at"`
	ClosedAt        time.Time           `json:"closed_at,omitempty"`
	Decisions       []Decision          `json:"decisions"`
}

// IsOpen reports whether the position is still active.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// UnrealizedPnL returns current value minus entry cost for an OPEN position,
// and zero otherwise.
func (p *Position) UnrealizedPnL() decimal.Decimal {
	if !p.IsOpen() {
		return decimal.Zero
	}
	return p.CurrentValue.Sub(p.EntryCost)
}

// AppendDecision records a decision in the position's audit history. History
// is append-only; entries are never mutated or reordered after this call.
func (p *Position) AppendDecision(d Decision) {
	p.Decisions = append(p.Decisions, d)
}

// EarliestExpiration returns the soonest leg expiration, or the zero time for
// a position with no legs.
func (p *Position) EarliestExpiration() time.Time {
	var earliest time.Time
	for _, leg := range p.Legs {
		if earliest.IsZero() || leg.Expiration.Before(earliest) {
			earliest = leg.Expiration
		}
	}
	return earliest
}

// DTE returns days until the earliest leg expiration, clamped at zero.
func (p *Position) DTE() int {
	exp := p.EarliestExpiration()
	if exp.IsZero() {
		return 0
	}
	now := time.Now().UTC().Truncate(24 * time.Hour)
	days := int(exp.UTC().Truncate(24*time.Hour).Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Expirations returns the distinct leg expirations in leg order.
func (p *Position) Expirations() []time.Time {
	seen := make(map[time.Time]bool, len(p.Legs))
	var out []time.Time
	for _, leg := range p.Legs {
		day := leg.Expiration.UTC().Truncate(24 * time.Hour)
		if !seen[day] {
			seen[day] = true
			out = append(out, day)
		}
	}
	return out
}

// Clone returns a deep copy. Snapshots hand out clones so readers can never
// alias ledger-owned state.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Legs = make([]Leg, len(p.Legs))
	copy(cp.Legs, p.Legs)
	cp.Decisions = make([]Decision, len(p.Decisions))
	copy(cp.Decisions, p.Decisions)
	return &cp
}

// ValidateState ensures the position's data is consistent with its status.
func (p *Position) ValidateState() error {
	if p.ID == "" {
		return fmt.Errorf("position has no id")
	}
	if p.Symbol == "" {
		return fmt.Errorf("position %s has no symbol", p.ID)
	}
	if !p.Strategy.Valid() {
		return fmt.Errorf("position %s has unrecognized strategy %q", p.ID, p.Strategy)
	}
	if len(p.Legs) == 0 {
		return fmt.Errorf("position %s has no legs", p.ID)
	}
	for i, leg := range p.Legs {
		if leg.Quantity == 0 {
			return fmt.Errorf("position %s leg %d has zero quantity", p.ID, i)
		}
		if !leg.Strike.IsPositive() {
			return fmt.Errorf("position %s leg %d has non-positive strike %s", p.ID, i, leg.Strike)
		}
	}
	if p.CreatedAt.IsZero() {
		return fmt.Errorf("position %s has no creation timestamp", p.ID)
	}

	switch p.Status {
	case StatusOpen:
		if !p.ClosedAt.IsZero() {
			return fmt.Errorf("position %s in state %s: ClosedAt must be zero (current: %v)",
				p.ID, p.Status, p.ClosedAt)
		}
		if p.RealizedPnL.Valid {
			return fmt.Errorf("position %s in state %s: RealizedPnL must be unset",
				p.ID, p.Status)
		}
	case StatusClosed:
		if p.ClosedAt.IsZero() {
			return fmt.Errorf("position %s in state %s: ClosedAt must be set", p.ID, p.Status)
		}
		if p.ClosedAt.Before(p.CreatedAt) {
			return fmt.Errorf("position %s in state %s: ClosedAt (%v) precedes CreatedAt (%v)",
				p.ID, p.Status, p.ClosedAt, p.CreatedAt)
		}
		if !p.RealizedPnL.Valid {
			return fmt.Errorf("position %s in state %s: RealizedPnL must be set", p.ID, p.Status)
		}
	case StatusReset:
		if !p.ClosedAt.IsZero() {
			return fmt.Errorf("position %s in state %s: ClosedAt must be zero (current: %v)",
				p.ID, p.Status, p.ClosedAt)
		}
		if p.RealizedPnL.Valid {
			return fmt.Errorf("position %s in state %s: RealizedPnL must be unset",
				p.ID, p.Status)
		}
	default:
		return fmt.Errorf("position %s has unrecognized status %q", p.ID, p.Status)
	}

	return nil
}
