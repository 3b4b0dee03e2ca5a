package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"optiondesk/internal/models"
)

// Client talks to the broker's market-data REST API. Every call carries the
// caller's context and the http.Client's timeout bounds the worst case.
type Client struct {
	host       string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market API error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host string) *Client {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	return &Client{
		host:       host,
		httpClient: httpClient,
	}
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (c *Client) Quote(ctx context.Context, symbol string) (Quote, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	body, err := c.doRequest(ctx, "/v1/quotes", q)
	if err != nil {
		return Quote{}, err
	}
	var out Quote
	if err := json.Unmarshal(body, &out); err != nil {
		return Quote{}, fmt.Errorf("decode quote: %w", err)
	}
	if out.Symbol == "" {
		out.Symbol = symbol
	}
	return out, nil
}

func (c *Client) FindOTMOption(ctx context.Context, underlying string, optType models.OptionType, steps int) (OptionContract, error) {
	q := url.Values{}
	q.Set("underlying", underlying)
	q.Set("type", string(optType))
	q.Set("steps", strconv.Itoa(steps))
	body, err := c.doRequest(ctx, "/v1/options/otm", q)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return OptionContract{}, ErrNoContract
		}
		return OptionContract{}, err
	}
	var out OptionContract
	if err := json.Unmarshal(body, &out); err != nil {
		return OptionContract{}, fmt.Errorf("decode contract: %w", err)
	}
	if strings.TrimSpace(out.InstrumentKey) == "" {
		return OptionContract{}, ErrNoContract
	}
	return out, nil
}

func (c *Client) OptionLTP(ctx context.Context, instrumentKey string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("instrument_key", instrumentKey)
	body, err := c.doRequest(ctx, "/v1/options/ltp", q)
	if err != nil {
		return decimal.Zero, err
	}
	var out struct {
		LTP decimal.Decimal `json:"ltp"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return decimal.Zero, fmt.Errorf("decode option ltp: %w", err)
	}
	return out.LTP, nil
}

func (c *Client) OptionCandles(ctx context.Context, instrumentKey string) (models.CandleSet, error) {
	q := url.Values{}
	q.Set("instrument_key", instrumentKey)
	q.Set("interval", "60m")
	body, err := c.doRequest(ctx, "/v1/options/candles", q)
	if err != nil {
		return models.CandleSet{}, err
	}
	var out models.CandleSet
	if err := json.Unmarshal(body, &out); err != nil {
		return models.CandleSet{}, fmt.Errorf("decode candles: %w", err)
	}
	return out, nil
}
