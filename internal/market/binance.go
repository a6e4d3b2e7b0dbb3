package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// binanceClient talks to the Binance spot REST API. It only knows transport
// concerns; catalog checks and caching live in Service.
type binanceClient struct {
	client *resty.Client
}

func newBinanceClient(baseURL string) *binanceClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp.StatusCode() == http.StatusTooManyRequests {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return seconds, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})
	return &binanceClient{client: client}
}

type ticker24h struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
}

func (c *binanceClient) ticker(ctx context.Context, symbol string) (*ticker24h, error) {
	var t ticker24h
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&t).
		Get("/api/v3/ticker/24hr")
	if err != nil {
		return nil, errors.Wrapf(err, "ticker %s", symbol)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ticker %s: binance status %d", symbol, resp.StatusCode())
	}
	return &t, nil
}

func (c *binanceClient) allTickers(ctx context.Context) ([]ticker24h, error) {
	var out []ticker24h
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/v3/ticker/24hr")
	if err != nil {
		return nil, errors.Wrap(err, "all tickers")
	}
	if resp.IsError() {
		return nil, fmt.Errorf("all tickers: binance status %d", resp.StatusCode())
	}
	return out, nil
}

type exchangeInfo struct {
	Symbols []exchangeSymbol `json:"symbols"`
}

type exchangeSymbol struct {
	Symbol     string           `json:"symbol"`
	BaseAsset  string           `json:"baseAsset"`
	QuoteAsset string           `json:"quoteAsset"`
	Status     string           `json:"status"`
	Filters    []exchangeFilter `json:"filters"`
}

type exchangeFilter struct {
	FilterType string `json:"filterType"`
	MinQty     string `json:"minQty"`
	StepSize   string `json:"stepSize"`
	TickSize   string `json:"tickSize"`
}

func (c *binanceClient) exchangeInfo(ctx context.Context) (*exchangeInfo, error) {
	var info exchangeInfo
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&info).
		Get("/api/v3/exchangeInfo")
	if err != nil {
		return nil, errors.Wrap(err, "exchange info")
	}
	if resp.IsError() {
		return nil, fmt.Errorf("exchange info: binance status %d", resp.StatusCode())
	}
	return &info, nil
}

// Kline is one candlestick as served by the REST klines endpoint.
type Kline struct {
	OpenTime  int64   `json:"open_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

func (c *binanceClient) klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(limit),
		}).
		Get("/api/v3/klines")
	if err != nil {
		return nil, errors.Wrapf(err, "klines %s %s", symbol, interval)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("klines %s: binance status %d", symbol, resp.StatusCode())
	}

	// Binance returns klines as an array of positional arrays.
	var raw [][]interface{}
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, errors.Wrap(err, "decode klines")
	}

	klines := make([]Kline, 0, len(raw))
	for _, r := range raw {
		if len(r) < 7 {
			continue
		}
		var k Kline
		if v, ok := r[0].(float64); ok {
			k.OpenTime = int64(v)
		}
		if v, ok := r[6].(float64); ok {
			k.CloseTime = int64(v)
		}
		k.Open = parseFloatField(r[1])
		k.High = parseFloatField(r[2])
		k.Low = parseFloatField(r[3])
		k.Close = parseFloatField(r[4])
		k.Volume = parseFloatField(r[5])
		klines = append(klines, k)
	}
	return klines, nil
}

func parseFloatField(v interface{}) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
