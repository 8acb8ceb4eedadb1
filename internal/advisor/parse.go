package advisor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paperledger/internal/models"
)

// stripCodeFences removes a surrounding markdown code block if the model
// wrapped its JSON in one.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseOpportunities decodes a model response expected to contain a JSON
// array of candidates. The candidates stay raw; the ledger normalizes and
// validates each one individually.
func ParseOpportunities(response string) ([]models.RawOpportunity, error) {
	cleaned := stripCodeFences(response)

	var raw []models.RawOpportunity
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("response is not a JSON array of opportunities: %w", err)
	}
	return raw, nil
}

// decisionPayload is the JSON shape the model is instructed to produce.
type decisionPayload struct {
	Action      string   `json:"action"`
	Confidence  *float64 `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	TargetPrice *float64 `json:"target_price"`
	StopLoss    *float64 `json:"stop_loss"`
	TimeHorizon *int     `json:"time_horizon"`
}

// ParseDecision decodes a model response into a Decision for the given
// position. Action, confidence, and reasoning are required; an unrecognized
// action is a validation error, never coerced to HOLD.
func ParseDecision(response string, positionID string) (*models.Decision, error) {
	cleaned := stripCodeFences(response)

	var payload decisionPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("response is not a JSON decision object: %w", err)
	}

	action, err := models.ParseAction(payload.Action)
	if err != nil {
		return nil, err
	}
	if payload.Confidence == nil {
		return nil, &models.ValidationError{Field: "confidence", Reason: "missing"}
	}
	if strings.TrimSpace(payload.Reasoning) == "" {
		return nil, &models.ValidationError{Field: "reasoning", Reason: "missing or empty"}
	}

	d := &models.Decision{
		ID:         uuid.NewString(),
		PositionID: positionID,
		Action:     action,
		Confidence: *payload.Confidence,
		Reasoning:  strings.TrimSpace(payload.Reasoning),
		CreatedAt:  time.Now().UTC(),
	}
	if payload.TargetPrice != nil {
		d.TargetPrice = decimal.NewNullDecimal(decimal.NewFromFloat(*payload.TargetPrice))
	}
	if payload.StopLoss != nil {
		d.StopLoss = decimal.NewNullDecimal(decimal.NewFromFloat(*payload.StopLoss))
	}
	if payload.TimeHorizon != nil {
		d.TimeHorizonDays = *payload.TimeHorizon
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}
