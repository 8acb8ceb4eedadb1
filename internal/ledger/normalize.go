package ledger

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paperledger/internal/models"
)

// Advisors are loose with field names. Each canonical field accepts a short
// list of known aliases, checked in order; unknown extra fields are ignored.
var (
	symbolAliases    = []string{"symbol", "ticker", "underlying"}
	strategyAliases  = []string{"strategy", "strategy_type"}
	legAliases       = []string{"legs", "contracts"}
	rationaleAliases = []string{"rationale", "reasoning"}
	costAliases      = []string{"entry_cost", "cost", "net_debit"}
	targetAliases    = []string{"target_return", "profit_target", "target_profit"}
	riskAliases      = []string{"max_risk", "max_loss"}
	horizonAliases   = []string{"time_horizon", "time_horizon_days"}

	strikeAliases     = []string{"strike", "strike_price"}
	expirationAliases = []string{"expiration", "expiry", "expiration_date"}
	optionTypeAliases = []string{"option_type", "type"}
	quantityAliases   = []string{"quantity", "qty"}
)

// Missing target_return defaults to 1.5x the entry cost, and missing max_risk
// to the entry cost itself (a long position cannot lose more than it paid).
var defaultTargetMultiple = decimal.NewFromFloat(1.5)

const defaultTimeHorizonDays = 21

// normalizeOpportunity turns an untrusted advisor candidate into a validated
// Opportunity. Required fields missing or malformed produce a ValidationError
// naming the offending field; the documented optional fields are defaulted.
func normalizeOpportunity(raw models.RawOpportunity, now time.Time) (*models.Opportunity, error) {
	opp := &models.Opportunity{}

	symbol, ok := lookupString(raw, symbolAliases)
	if !ok || strings.TrimSpace(symbol) == "" {
		return nil, &models.ValidationError{Field: "symbol", Reason: "missing or empty"}
	}
	opp.Symbol = strings.ToUpper(strings.TrimSpace(symbol))

	strategyRaw, ok := lookupString(raw, strategyAliases)
	if !ok {
		return nil, &models.ValidationError{Field: "strategy", Reason: "missing"}
	}
	strategy := models.StrategyType(strings.ToLower(strings.TrimSpace(strategyRaw)))
	if !strategy.Valid() {
		return nil, &models.ValidationError{Field: "strategy", Reason: fmt.Sprintf("unrecognized strategy %q", strategyRaw)}
	}
	opp.Strategy = strategy

	legsRaw, ok := lookup(raw, legAliases)
	if !ok {
		return nil, &models.ValidationError{Field: "legs", Reason: "missing"}
	}
	legs, err := normalizeLegs(legsRaw, now)
	if err != nil {
		return nil, err
	}
	opp.Legs = legs

	conf, ok := lookupFloat(raw, []string{"confidence"})
	if !ok {
		return nil, &models.ValidationError{Field: "confidence", Reason: "missing or not a number"}
	}
	if conf < 0 || conf > 1 {
		return nil, &models.ValidationError{Field: "confidence", Reason: fmt.Sprintf("must be in [0, 1] (got %g)", conf)}
	}
	opp.Confidence = conf

	cost, ok, err := lookupDecimal(raw, costAliases)
	if err != nil {
		return nil, &models.ValidationError{Field: "entry_cost", Reason: err.Error()}
	}
	if !ok {
		return nil, &models.ValidationError{Field: "entry_cost", Reason: "missing"}
	}
	// Negative entry cost is a net credit: premium received at creation.
	opp.EntryCost = cost

	if rationale, ok := lookupString(raw, rationaleAliases); ok {
		opp.Rationale = strings.TrimSpace(rationale)
	}

	target, ok, err := lookupDecimal(raw, targetAliases)
	if err != nil {
		return nil, &models.ValidationError{Field: "target_return", Reason: err.Error()}
	}
	if ok {
		opp.TargetReturn = decimal.NewNullDecimal(target)
	} else {
		opp.TargetReturn = decimal.NewNullDecimal(cost.Mul(defaultTargetMultiple))
	}

	risk, ok, err := lookupDecimal(raw, riskAliases)
	if err != nil {
		return nil, &models.ValidationError{Field: "max_risk", Reason: err.Error()}
	}
	if ok {
		opp.MaxRisk = decimal.NewNullDecimal(risk)
	} else {
		opp.MaxRisk = decimal.NewNullDecimal(cost)
	}

	if horizon, ok := lookupFloat(raw, horizonAliases); ok && horizon > 0 {
		opp.TimeHorizonDays = int(horizon)
	} else {
		opp.TimeHorizonDays = defaultTimeHorizonDays
	}

	return opp, nil
}

func normalizeLegs(raw any, now time.Time) ([]models.Leg, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, &models.ValidationError{Field: "legs", Reason: "must be an array"}
	}
	if len(list) == 0 {
		return nil, &models.ValidationError{Field: "legs", Reason: "must not be empty"}
	}

	legs := make([]models.Leg, 0, len(list))
	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, &models.ValidationError{Field: "legs", Reason: fmt.Sprintf("leg %d is not an object", i)}
		}
		leg, err := normalizeLeg(entry, i, now)
		if err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

func normalizeLeg(entry map[string]any, idx int, now time.Time) (models.Leg, error) {
	var leg models.Leg

	strike, ok, err := lookupDecimal(entry, strikeAliases)
	if err != nil || !ok {
		return leg, &models.ValidationError{Field: "strike", Reason: fmt.Sprintf("leg %d: missing or not a number", idx)}
	}
	leg.Strike = strike

	expRaw, ok := lookupString(entry, expirationAliases)
	if !ok {
		return leg, &models.ValidationError{Field: "expiration", Reason: fmt.Sprintf("leg %d: missing", idx)}
	}
	exp, err := parseExpiration(expRaw)
	if err != nil {
		return leg, &models.ValidationError{Field: "expiration", Reason: fmt.Sprintf("leg %d: %v", idx, err)}
	}
	leg.Expiration = exp

	otRaw, ok := lookupString(entry, optionTypeAliases)
	if !ok {
		return leg, &models.ValidationError{Field: "option_type", Reason: fmt.Sprintf("leg %d: missing", idx)}
	}
	leg.OptionType = models.OptionType(strings.ToLower(strings.TrimSpace(otRaw)))

	qty, ok := lookupFloat(entry, quantityAliases)
	if !ok {
		return leg, &models.ValidationError{Field: "quantity", Reason: fmt.Sprintf("leg %d: missing or not a number", idx)}
	}
	if qty != math.Trunc(qty) {
		return leg, &models.ValidationError{Field: "quantity", Reason: fmt.Sprintf("leg %d: must be a whole number of contracts (got %g)", idx, qty)}
	}
	leg.Quantity = int(qty)

	if err := leg.Validate(now); err != nil {
		return leg, &models.ValidationError{Field: "legs", Reason: fmt.Sprintf("leg %d: %v", idx, err)}
	}
	return leg, nil
}

// parseExpiration accepts plain dates and RFC 3339 timestamps.
func parseExpiration(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC().Truncate(24 * time.Hour), nil
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

func lookup(m map[string]any, aliases []string) (any, bool) {
	for _, key := range aliases {
		if v, ok := m[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func lookupString(m map[string]any, aliases []string) (string, bool) {
	v, ok := lookup(m, aliases)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// lookupFloat accepts both JSON numbers and integer values.
func lookupFloat(m map[string]any, aliases []string) (float64, bool) {
	v, ok := lookup(m, aliases)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// lookupDecimal accepts JSON numbers and numeric strings.
func lookupDecimal(m map[string]any, aliases []string) (decimal.Decimal, bool, error) {
	v, ok := lookup(m, aliases)
	if !ok {
		return decimal.Zero, false, nil
	}
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true, nil
	case int:
		return decimal.NewFromInt(int64(n)), true, nil
	case int64:
		return decimal.NewFromInt(n), true, nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("unparseable number %q", n)
		}
		return d, true, nil
	default:
		return decimal.Zero, false, fmt.Errorf("unexpected type %T", v)
	}
}
