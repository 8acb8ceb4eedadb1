package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ayush6624/go-chatgpt"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"paperledger/internal/models"
)

const systemPrompt = `You are an options analyst for a paper trading portfolio. ` +
	`You respond only with valid JSON and no commentary. Strategies are limited to: ` +
	`long_call, long_put, call_spread, put_spread, iron_condor. ` +
	`All prices are total position values in dollars, not per-share premiums.`

const opportunityInstructions = `Propose up to %d new option positions as a JSON array. Each entry must have:
- "symbol": underlying ticker
- "strategy": one of long_call, long_put, call_spread, put_spread, iron_condor
- "legs": array of {"strike", "expiration" (YYYY-MM-DD), "option_type" (call|put), "quantity" (negative for short legs)}
- "entry_cost": total net debit in dollars
- "confidence": 0.0 to 1.0
- "rationale": one or two sentences
Optional: "target_return", "max_risk", "time_horizon" (days).
Respond with [] if nothing is attractive.`

const decisionInstructions = `Decide what to do with this position. Respond with a single JSON object:
- "action": one of HOLD, CLOSE, ADJUST_STOP, ADJUST_TARGET
- "confidence": 0.0 to 1.0
- "reasoning": one or two sentences
Optional: "target_price" (required for ADJUST_TARGET), "stop_loss" (required for ADJUST_STOP), "time_horizon" (days).`

// ChatGPTAdvisor asks the OpenAI chat API for portfolio proposals.
type ChatGPTAdvisor struct {
	client *chatgpt.Client
	model  chatgpt.ChatGPTModel
	log    *logrus.Logger
}

var _ Provider = (*ChatGPTAdvisor)(nil)

// NewChatGPTAdvisor builds an advisor over the OpenAI API. An empty model
// defaults to GPT-4.
func NewChatGPTAdvisor(apiKey string, model string, log *logrus.Logger) (*ChatGPTAdvisor, error) {
	client, err := chatgpt.NewClient(apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to construct chatgpt client: %w", err)
	}
	m := chatgpt.GPT4
	if model != "" {
		m = chatgpt.ChatGPTModel(model)
	}
	if log == nil {
		log = logrus.New()
	}
	return &ChatGPTAdvisor{client: client, model: m, log: log}, nil
}

// ProposeOpportunities asks the model for new position candidates.
func (a *ChatGPTAdvisor) ProposeOpportunities(ctx context.Context, snap *models.PortfolioSnapshot, market *MarketContext, limit int) ([]models.RawOpportunity, error) {
	prompt, err := buildOpportunityPrompt(snap, market, limit)
	if err != nil {
		return nil, err
	}

	response, err := a.send(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to get opportunity proposals: %w", err)
	}

	raw, err := ParseOpportunities(response)
	if err != nil {
		a.log.WithError(err).Debug("Unparseable opportunity response")
		return nil, err
	}
	if len(raw) > limit {
		raw = raw[:limit]
	}
	return raw, nil
}

// ProposeDecision asks the model what to do with one open position.
func (a *ChatGPTAdvisor) ProposeDecision(ctx context.Context, position *models.Position, market *MarketContext) (*models.Decision, error) {
	prompt, err := buildDecisionPrompt(position, market)
	if err != nil {
		return nil, err
	}

	response, err := a.send(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to get decision for position %s: %w", position.ID, err)
	}
	return ParseDecision(response, position.ID)
}

func (a *ChatGPTAdvisor) send(ctx context.Context, userPrompt string) (string, error) {
	res, err := a.client.Send(ctx, &chatgpt.ChatCompletionRequest{
		Model: a.model,
		Messages: []chatgpt.ChatMessage{
			{Role: chatgpt.ChatGPTModelRoleSystem, Content: systemPrompt},
			{Role: chatgpt.ChatGPTModelRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return res.Choices[0].Message.Content, nil
}

func buildOpportunityPrompt(snap *models.PortfolioSnapshot, market *MarketContext, limit int) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "Portfolio: cash $%s, equity $%s, %d open positions.\n\n",
		snap.CashBalance.StringFixed(2), snap.Equity.StringFixed(2), snap.OpenPositions)

	if err := writeMarketSection(&b, market); err != nil {
		return "", err
	}

	fmt.Fprintf(&b, "\n%s", fmt.Sprintf(opportunityInstructions, limit))
	return b.String(), nil
}

func buildDecisionPrompt(position *models.Position, market *MarketContext) (string, error) {
	var b strings.Builder

	posJSON, err := json.MarshalIndent(struct {
		Symbol       string               `json:"symbol"`
		Strategy     models.StrategyType  `json:"strategy"`
		Legs         []models.Leg         `json:"legs"`
		EntryCost    string               `json:"entry_cost"`
		CurrentValue string               `json:"current_value"`
		ProfitTarget *string              `json:"profit_target,omitempty"`
		StopLoss     *string              `json:"stop_loss,omitempty"`
		DTE          int                  `json:"days_to_expiration"`
		Rationale    string               `json:"original_rationale"`
	}{
		Symbol:       position.Symbol,
		Strategy:     position.Strategy,
		Legs:         position.Legs,
		EntryCost:    position.EntryCost.StringFixed(2),
		CurrentValue: position.CurrentValue.StringFixed(2),
		ProfitTarget: nullDecimalString(position.ProfitTarget),
		StopLoss:     nullDecimalString(position.StopLoss),
		DTE:          position.DTE(),
		Rationale:    position.Rationale,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode position %s: %w", position.ID, err)
	}

	fmt.Fprintf(&b, "Position under review:\n%s\n\n", posJSON)
	if err := writeMarketSection(&b, market); err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "\n%s", decisionInstructions)
	return b.String(), nil
}

func writeMarketSection(b *strings.Builder, market *MarketContext) error {
	if market == nil || len(market.Quotes) == 0 {
		return nil
	}
	b.WriteString("Current quotes:\n")
	for sym, q := range market.Quotes {
		fmt.Fprintf(b, "- %s: last %s, bid %s, ask %s\n",
			sym, q.Last.StringFixed(2), q.Bid.StringFixed(2), q.Ask.StringFixed(2))
	}
	return nil
}

func nullDecimalString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.StringFixed(2)
	return &s
}
