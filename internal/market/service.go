package market

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betfold/papertrade/internal/domain"
	"github.com/betfold/papertrade/pkg/cache"
	"github.com/betfold/papertrade/pkg/logger"
)

// defaultSymbols is the tradeable catalog. Everything is quoted in USDT.
var defaultSymbols = []string{
	"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "ADAUSDT",
	"XRPUSDT", "DOTUSDT", "MATICUSDT", "LINKUSDT",
}

// Price is the ticker snapshot exposed over the API.
type Price struct {
	Symbol             string `json:"symbol"`
	Price              string `json:"price"`
	PriceChange        string `json:"price_change"`
	PriceChangePercent string `json:"price_change_percent"`
	Volume             string `json:"volume"`
	HighPrice          string `json:"high_price"`
	LowPrice           string `json:"low_price"`
}

// SymbolInfo describes one catalog entry with its exchange trading rules.
type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"base_asset"`
	QuoteAsset string `json:"quote_asset"`
	Status     string `json:"status"`
	MinQty     string `json:"min_qty"`
	StepSize   string `json:"step_size"`
	TickSize   string `json:"tick_size"`
}

// Service is the PriceOracle implementation plus the read-only market data
// surface. The short-TTL price cache sits here, at the boundary, so the
// reconciliation sweep and portfolio valuation cannot hammer the feed.
type Service struct {
	client  *binanceClient
	prices  *cache.PriceCache
	symbols map[string]bool
}

func NewService(baseURL string, priceTTL time.Duration) *Service {
	symbols := make(map[string]bool, len(defaultSymbols))
	for _, s := range defaultSymbols {
		symbols[s] = true
	}
	return &Service{
		client:  newBinanceClient(baseURL),
		prices:  cache.NewPriceCache(priceTTL),
		symbols: symbols,
	}
}

func (s *Service) Supported(symbol string) bool {
	return s.symbols[strings.ToUpper(symbol)]
}

func (s *Service) SupportedSymbols() []string {
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// CurrentPrice implements PriceOracle.
func (s *Service) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(symbol)
	if !s.Supported(symbol) {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrSymbolUnsupported, symbol)
	}
	if p, ok := s.prices.Get(symbol); ok {
		return p, nil
	}

	t, err := s.client.ticker(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", domain.ErrPriceUnavailable, symbol, err)
	}
	price, err := decimal.NewFromString(t.LastPrice)
	if err != nil || price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s: bad last price %q", domain.ErrPriceUnavailable, symbol, t.LastPrice)
	}
	s.prices.Set(symbol, price)
	return price, nil
}

// Ticker returns the full 24h snapshot for one symbol.
func (s *Service) Ticker(ctx context.Context, symbol string) (*Price, error) {
	symbol = strings.ToUpper(symbol)
	if !s.Supported(symbol) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSymbolUnsupported, symbol)
	}
	t, err := s.client.ticker(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrPriceUnavailable, symbol, err)
	}
	if price, derr := decimal.NewFromString(t.LastPrice); derr == nil && price.Sign() > 0 {
		s.prices.Set(symbol, price)
	}
	return tickerToPrice(t), nil
}

// Prices returns snapshots for the whole catalog in one upstream call.
func (s *Service) Prices(ctx context.Context) ([]Price, error) {
	all, err := s.client.allTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPriceUnavailable, err)
	}
	out := make([]Price, 0, len(s.symbols))
	for i := range all {
		if !s.Supported(all[i].Symbol) {
			continue
		}
		out = append(out, *tickerToPrice(&all[i]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Symbols returns catalog entries that the exchange reports as TRADING.
func (s *Service) Symbols(ctx context.Context) ([]SymbolInfo, error) {
	info, err := s.client.exchangeInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPriceUnavailable, err)
	}
	var out []SymbolInfo
	for _, sym := range info.Symbols {
		if !s.Supported(sym.Symbol) || sym.Status != "TRADING" {
			continue
		}
		si := SymbolInfo{
			Symbol:     sym.Symbol,
			BaseAsset:  sym.BaseAsset,
			QuoteAsset: sym.QuoteAsset,
			Status:     sym.Status,
			MinQty:     "0",
			StepSize:   "0",
			TickSize:   "0",
		}
		for _, f := range sym.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				si.MinQty = f.MinQty
				si.StepSize = f.StepSize
			case "PRICE_FILTER":
				si.TickSize = f.TickSize
			}
		}
		out = append(out, si)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Klines returns recent candlesticks for a catalog symbol.
func (s *Service) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	symbol = strings.ToUpper(symbol)
	if !s.Supported(symbol) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSymbolUnsupported, symbol)
	}
	klines, err := s.client.klines(ctx, symbol, interval, limit)
	if err != nil {
		logger.Warnf("klines fetch failed: symbol=%s interval=%s err=%v", symbol, interval, err)
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrPriceUnavailable, symbol, err)
	}
	return klines, nil
}

func tickerToPrice(t *ticker24h) *Price {
	return &Price{
		Symbol:             t.Symbol,
		Price:              t.LastPrice,
		PriceChange:        t.PriceChange,
		PriceChangePercent: t.PriceChangePercent,
		Volume:             t.Volume,
		HighPrice:          t.HighPrice,
		LowPrice:           t.LowPrice,
	}
}
