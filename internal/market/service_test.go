package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/betfold/papertrade/internal/domain"
)

// fakeExchange is an httptest server speaking just enough of the spot REST
// API for the service under test.
type fakeExchange struct {
	srv         *httptest.Server
	tickerCalls int64
	lastPrice   atomic.Value // string
}

func newFakeExchange(t *testing.T) *fakeExchange {
	t.Helper()
	f := &fakeExchange{}
	f.lastPrice.Store("45000.00")

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		atomic.AddInt64(&f.tickerCalls, 1)
		price := f.lastPrice.Load().(string)
		one := map[string]string{
			"symbol": "BTCUSDT", "lastPrice": price,
			"priceChange": "100.0", "priceChangePercent": "0.22",
			"volume": "1000", "highPrice": "46000", "lowPrice": "44000",
		}
		if r.URL.Query().Get("symbol") != "" {
			one["symbol"] = r.URL.Query().Get("symbol")
			_ = json.NewEncoder(w).Encode(one)
			return
		}
		two := map[string]string{
			"symbol": "DOGEUSDT", "lastPrice": "0.1",
			"priceChange": "0", "priceChangePercent": "0",
			"volume": "1", "highPrice": "0.2", "lowPrice": "0.05",
		}
		_ = json.NewEncoder(w).Encode([]map[string]string{one, two})
	})
	mux.HandleFunc("/api/v3/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"symbols":[
			{"symbol":"BTCUSDT","baseAsset":"BTC","quoteAsset":"USDT","status":"TRADING",
			 "filters":[{"filterType":"LOT_SIZE","minQty":"0.00001","stepSize":"0.00001"},
			            {"filterType":"PRICE_FILTER","tickSize":"0.01"}]},
			{"symbol":"ETHUSDT","baseAsset":"ETH","quoteAsset":"USDT","status":"BREAK","filters":[]},
			{"symbol":"DOGEUSDT","baseAsset":"DOGE","quoteAsset":"USDT","status":"TRADING","filters":[]}
		]}`)
	})
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[[1700000000000,"45000","45100","44900","45050","12.5",1700000059999,"0",0,"0","0","0"]]`)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func TestCurrentPriceUsesCache(t *testing.T) {
	f := newFakeExchange(t)
	svc := NewService(f.srv.URL, 200*time.Millisecond)
	ctx := context.Background()

	p1, err := svc.CurrentPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.True(t, p1.Equal(decimal.RequireFromString("45000.00")))

	// Within the TTL the upstream price change is invisible.
	f.lastPrice.Store("50000.00")
	p2, err := svc.CurrentPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.True(t, p2.Equal(p1))
	require.Equal(t, int64(1), atomic.LoadInt64(&f.tickerCalls))

	time.Sleep(250 * time.Millisecond)
	p3, err := svc.CurrentPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.True(t, p3.Equal(decimal.RequireFromString("50000.00")))
}

func TestCurrentPriceUnsupportedSymbol(t *testing.T) {
	f := newFakeExchange(t)
	svc := NewService(f.srv.URL, time.Second)

	_, err := svc.CurrentPrice(context.Background(), "DOGEUSDT")
	require.ErrorIs(t, err, domain.ErrSymbolUnsupported)
	require.Equal(t, int64(0), atomic.LoadInt64(&f.tickerCalls), "catalog check must come before the fetch")
}

func TestCurrentPriceFeedDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	svc := NewService(srv.URL, time.Second)
	_, err := svc.CurrentPrice(context.Background(), "BTCUSDT")
	require.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestPricesFiltersCatalog(t *testing.T) {
	f := newFakeExchange(t)
	svc := NewService(f.srv.URL, time.Second)

	prices, err := svc.Prices(context.Background())
	require.NoError(t, err)
	require.Len(t, prices, 1, "DOGEUSDT is not in the catalog")
	require.Equal(t, "BTCUSDT", prices[0].Symbol)
}

func TestSymbolsFiltersNonTrading(t *testing.T) {
	f := newFakeExchange(t)
	svc := NewService(f.srv.URL, time.Second)

	symbols, err := svc.Symbols(context.Background())
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	require.Equal(t, "BTCUSDT", symbols[0].Symbol)
	require.Equal(t, "0.00001", symbols[0].MinQty)
	require.Equal(t, "0.01", symbols[0].TickSize)
}

func TestKlines(t *testing.T) {
	f := newFakeExchange(t)
	svc := NewService(f.srv.URL, time.Second)

	klines, err := svc.Klines(context.Background(), "BTCUSDT", "1m", 10)
	require.NoError(t, err)
	require.Len(t, klines, 1)
	require.Equal(t, int64(1700000000000), klines[0].OpenTime)
	require.Equal(t, 45050.0, klines[0].Close)

	_, err = svc.Klines(context.Background(), "DOGEUSDT", "1m", 10)
	require.ErrorIs(t, err, domain.ErrSymbolUnsupported)
}
