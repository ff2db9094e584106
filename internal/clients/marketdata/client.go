// Package marketdata provides the outbound gateway to the quote, option
// chain, and ticker-list providers. All failures are recoverable; callers
// skip the datum and move on.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ErrNoData indicates the provider answered but had nothing for the symbol.
var ErrNoData = errors.New("marketdata: no data for symbol")

// Quote is a normalized equity quote.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Bid           float64 `json:"bid"`
	Ask           float64 `json:"ask"`
	Volume        int64   `json:"volume"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	High52        float64 `json:"high_52"`
	Low52         float64 `json:"low_52"`
	// RangePosition is where price sits in the 52-week range, 0..100.
	RangePosition float64 `json:"range_position"`
	Source        string  `json:"source"`
}

// OptionQuote is a normalized option premium snapshot.
type OptionQuote struct {
	Bid   float64  `json:"bid"`
	Ask   float64  `json:"ask"`
	Mid   float64  `json:"mid"`
	IV    *float64 `json:"iv,omitempty"`
	Delta *float64 `json:"delta,omitempty"`
}

// Provider is the abstract market-data backend. Implementations must be
// safe for concurrent use.
type Provider interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	GetOptionPremium(ctx context.Context, symbol string, strike float64, expiry, right string) (*OptionQuote, error)
	GetTrendingTickers(ctx context.Context) ([]string, error)
	GetMostActiveTickers(ctx context.Context) ([]string, error)
	GetDailyCloses(ctx context.Context, symbol string, days int) ([]float64, error)
}

// RESTProvider talks to a quote service over HTTP.
type RESTProvider struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewRESTProvider creates a provider against the given base URL.
func NewRESTProvider(baseURL string, timeout time.Duration, log zerolog.Logger) *RESTProvider {
	return &RESTProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("client", "marketdata").Logger(),
	}
}

func (p *RESTProvider) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := p.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNoData
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetQuote fetches the current quote for a symbol.
func (p *RESTProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	var quote Quote
	params := url.Values{"symbol": {symbol}}
	if err := p.getJSON(ctx, "/v1/quote", params, &quote); err != nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if quote.Price <= 0 {
		return nil, fmt.Errorf("quote %s: %w", symbol, ErrNoData)
	}

	quote.Symbol = symbol
	if quote.RangePosition == 0 && quote.High52 > quote.Low52 {
		quote.RangePosition = (quote.Price - quote.Low52) / (quote.High52 - quote.Low52) * 100
	}
	return &quote, nil
}

// GetOptionPremium fetches the premium for one option contract.
// right is "put" or "call".
func (p *RESTProvider) GetOptionPremium(ctx context.Context, symbol string, strike float64, expiry, right string) (*OptionQuote, error) {
	var oq OptionQuote
	params := url.Values{
		"symbol": {symbol},
		"strike": {fmt.Sprintf("%g", strike)},
		"expiry": {expiry},
		"right":  {right},
	}
	if err := p.getJSON(ctx, "/v1/option", params, &oq); err != nil {
		return nil, fmt.Errorf("option %s %g %s: %w", symbol, strike, expiry, err)
	}

	if oq.Mid == 0 && oq.Bid > 0 && oq.Ask > 0 {
		oq.Mid = (oq.Bid + oq.Ask) / 2
	}
	return &oq, nil
}

// GetTrendingTickers fetches the provider's trending ticker list.
func (p *RESTProvider) GetTrendingTickers(ctx context.Context) ([]string, error) {
	var result struct {
		Tickers []string `json:"tickers"`
	}
	if err := p.getJSON(ctx, "/v1/trending", nil, &result); err != nil {
		return nil, fmt.Errorf("trending tickers: %w", err)
	}
	return result.Tickers, nil
}

// GetMostActiveTickers fetches the provider's most-active ticker list.
func (p *RESTProvider) GetMostActiveTickers(ctx context.Context) ([]string, error) {
	var result struct {
		Tickers []string `json:"tickers"`
	}
	if err := p.getJSON(ctx, "/v1/most-active", nil, &result); err != nil {
		return nil, fmt.Errorf("most active tickers: %w", err)
	}
	return result.Tickers, nil
}

// GetDailyCloses fetches recent daily closing prices, oldest first.
func (p *RESTProvider) GetDailyCloses(ctx context.Context, symbol string, days int) ([]float64, error) {
	var result struct {
		Closes []float64 `json:"closes"`
	}
	params := url.Values{
		"symbol": {symbol},
		"days":   {fmt.Sprintf("%d", days)},
	}
	if err := p.getJSON(ctx, "/v1/history", params, &result); err != nil {
		return nil, fmt.Errorf("daily closes %s: %w", symbol, err)
	}
	return result.Closes, nil
}

// breakerSettings configures the circuit breaker guarding the provider.
// A dead provider fails fast instead of timing out on every candidate.
func breakerSettings(log zerolog.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "marketdata",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}
}

// Client wraps a Provider with a circuit breaker and bounded batch helpers.
type Client struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
	log      zerolog.Logger
}

// NewClient creates a gateway over the given provider.
func NewClient(provider Provider, log zerolog.Logger) *Client {
	log = log.With().Str("client", "marketdata").Logger()
	return &Client{
		provider: provider,
		breaker:  gobreaker.NewCircuitBreaker(breakerSettings(log)),
		log:      log,
	}
}

func execBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// GetQuote fetches a quote through the breaker.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	return execBreaker(c.breaker, func() (*Quote, error) {
		return c.provider.GetQuote(ctx, symbol)
	})
}

// GetOptionPremium fetches an option premium through the breaker.
func (c *Client) GetOptionPremium(ctx context.Context, symbol string, strike float64, expiry, right string) (*OptionQuote, error) {
	return execBreaker(c.breaker, func() (*OptionQuote, error) {
		return c.provider.GetOptionPremium(ctx, symbol, strike, expiry, right)
	})
}

// GetTrendingTickers fetches the trending list through the breaker.
func (c *Client) GetTrendingTickers(ctx context.Context) ([]string, error) {
	return execBreaker(c.breaker, func() ([]string, error) {
		return c.provider.GetTrendingTickers(ctx)
	})
}

// GetMostActiveTickers fetches the most-active list through the breaker.
func (c *Client) GetMostActiveTickers(ctx context.Context) ([]string, error) {
	return execBreaker(c.breaker, func() ([]string, error) {
		return c.provider.GetMostActiveTickers(ctx)
	})
}

// GetDailyCloses fetches daily closes through the breaker.
func (c *Client) GetDailyCloses(ctx context.Context, symbol string, days int) ([]float64, error) {
	return execBreaker(c.breaker, func() ([]float64, error) {
		return c.provider.GetDailyCloses(ctx, symbol, days)
	})
}
