package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"paperledger/internal/models"
)

const (
	tradierLiveURL    = "https://api.tradier.com/v1"
	tradierSandboxURL = "https://sandbox.tradier.com/v1"

	defaultHTTPTimeout = 30 * time.Second
)

// APIError represents an API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// TradierClient fetches market data from the Tradier API. Only the market
// data endpoints are used; no account or order endpoints are ever touched.
type TradierClient struct {
	client  *http.Client
	apiKey  string
	baseURL string
	log     *logrus.Logger
}

var _ Provider = (*TradierClient)(nil)

// NewTradierClient creates a market data client against the live or sandbox
// API.
func NewTradierClient(apiKey string, sandbox bool, log *logrus.Logger) *TradierClient {
	baseURL := tradierLiveURL
	if sandbox {
		baseURL = tradierSandboxURL
	}
	if log == nil {
		log = logrus.New()
	}
	return &TradierClient{
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		apiKey:  apiKey,
		baseURL: baseURL,
		log:     log,
	}
}

// WithBaseURL overrides the API endpoint, for tests.
func (t *TradierClient) WithBaseURL(baseURL string) *TradierClient {
	t.baseURL = baseURL
	return t
}

// Handle single-object vs array responses from Tradier.
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

type quotesResponse struct {
	Quotes struct {
		Quote singleOrArray[quoteItem] `json:"quote"`
	} `json:"quotes"`
}

type quoteItem struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	TradeDate int64   `json:"trade_date"`
}

type expirationsResponse struct {
	Expirations struct {
		Date singleOrArray[string] `json:"date"`
	} `json:"expirations"`
}

type chainResponse struct {
	Options struct {
		Option singleOrArray[chainOption] `json:"option"`
	} `json:"options"`
}

type chainOption struct {
	Greeks         *chainGreeks `json:"greeks,omitempty"`
	Symbol         string       `json:"symbol"`
	OptionType     string       `json:"option_type"`
	ExpirationDate string       `json:"expiration_date"`
	Underlying     string       `json:"underlying"`
	Bid            float64      `json:"bid"`
	Ask            float64      `json:"ask"`
	Last           float64      `json:"last"`
	Volume         int64        `json:"volume"`
	OpenInterest   int64        `json:"open_interest"`
	Strike         float64      `json:"strike"`
}

type chainGreeks struct {
	Delta  float64 `json:"delta"`
	Gamma  float64 `json:"gamma"`
	Theta  float64 `json:"theta"`
	Vega   float64 `json:"vega"`
	MidIV  float64 `json:"mid_iv"`
	SmvVol float64 `json:"smv_vol"`
}

// GetQuote retrieves the current quote for a symbol.
func (t *TradierClient) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	endpoint := fmt.Sprintf("%s/markets/quotes?symbols=%s", t.baseURL, url.QueryEscape(symbol))

	var response quotesResponse
	if err := t.makeRequestCtx(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	if len(response.Quotes.Quote) == 0 {
		return nil, fmt.Errorf("no quote returned for %s", symbol)
	}

	q := response.Quotes.Quote[0]
	ts := time.Now().UTC()
	if q.TradeDate > 0 {
		ts = time.UnixMilli(q.TradeDate).UTC()
	}
	return &models.Quote{
		Symbol:    q.Symbol,
		Last:      decimal.NewFromFloat(q.Last),
		Bid:       decimal.NewFromFloat(q.Bid),
		Ask:       decimal.NewFromFloat(q.Ask),
		Timestamp: ts,
	}, nil
}

// GetExpirations retrieves available option expiration dates for a symbol.
func (t *TradierClient) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	endpoint := fmt.Sprintf("%s/markets/options/expirations?symbol=%s&includeAllRoots=true",
		t.baseURL, url.QueryEscape(symbol))

	var response expirationsResponse
	if err := t.makeRequestCtx(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("failed to get expirations for %s: %w", symbol, err)
	}

	dates := make([]time.Time, 0, len(response.Expirations.Date))
	for _, d := range response.Expirations.Date {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, fmt.Errorf("failed to parse expiration %q for %s: %w", d, symbol, err)
		}
		dates = append(dates, parsed)
	}
	return dates, nil
}

// GetOptionChain retrieves the option chain for a symbol and expiration date,
// greeks included.
func (t *TradierClient) GetOptionChain(ctx context.Context, symbol string, expiration time.Time) ([]models.Contract, error) {
	endpoint := fmt.Sprintf("%s/markets/options/chains?symbol=%s&expiration=%s&greeks=true",
		t.baseURL, url.QueryEscape(symbol), expiration.Format("2006-01-02"))

	var response chainResponse
	if err := t.makeRequestCtx(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("failed to get option chain for %s %s: %w",
			symbol, expiration.Format("2006-01-02"), err)
	}

	contracts := make([]models.Contract, 0, len(response.Options.Option))
	for _, opt := range response.Options.Option {
		c, err := opt.toContract()
		if err != nil {
			t.log.WithError(err).WithField("contract", opt.Symbol).Warn("Skipping malformed contract")
			continue
		}
		contracts = append(contracts, c)
	}
	return contracts, nil
}

func (o chainOption) toContract() (models.Contract, error) {
	exp, err := time.Parse("2006-01-02", o.ExpirationDate)
	if err != nil {
		return models.Contract{}, fmt.Errorf("bad expiration_date %q: %w", o.ExpirationDate, err)
	}
	ot := models.OptionType(o.OptionType)
	if !ot.Valid() {
		return models.Contract{}, fmt.Errorf("bad option_type %q", o.OptionType)
	}

	c := models.Contract{
		Symbol:       o.Symbol,
		Underlying:   o.Underlying,
		Strike:       decimal.NewFromFloat(o.Strike),
		Expiration:   exp,
		OptionType:   ot,
		Bid:          decimal.NewFromFloat(o.Bid),
		Ask:          decimal.NewFromFloat(o.Ask),
		Last:         decimal.NewFromFloat(o.Last),
		Volume:       o.Volume,
		OpenInterest: o.OpenInterest,
	}
	if o.Greeks != nil {
		c.ImpliedVolatility = o.Greeks.MidIV
		c.Greeks = &models.Greeks{
			Delta: o.Greeks.Delta,
			Gamma: o.Greeks.Gamma,
			Theta: o.Greeks.Theta,
			Vega:  o.Greeks.Vega,
		}
	}
	return c, nil
}

func (t *TradierClient) makeRequestCtx(ctx context.Context, endpoint string, response any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "paperledger/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.log.WithError(err).Debug("Failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> failed to read error body", endpoint)}
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s (retry-after: %s)", endpoint, string(body), ra)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s", endpoint, string(body))}
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}
