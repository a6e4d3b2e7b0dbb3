package portfolio

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/betfold/papertrade/internal/domain"
	"github.com/betfold/papertrade/internal/store"
)

type stubOracle struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func (o *stubOracle) set(symbol, price string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.prices == nil {
		o.prices = make(map[string]decimal.Decimal)
	}
	o.prices[symbol] = decimal.RequireFromString(price)
}

func (o *stubOracle) CurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrPriceUnavailable, symbol)
	}
	return p, nil
}

func setup(t *testing.T) (*Service, *store.Store, *stubOracle, string) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	oracle := &stubOracle{}
	svc := NewService(st, oracle)

	ctx := context.Background()
	accountID := "acct-1"
	require.NoError(t, store.InsertAccount(ctx, st.Q(), &domain.Account{
		ID: accountID, Email: "p@test.local", PasswordHash: "h", CreatedAt: time.Now(),
	}))
	require.NoError(t, store.UpsertBalance(ctx, st.Q(), &domain.Balance{
		AccountID: accountID, Currency: domain.QuoteCurrency, Amount: decimal.NewFromInt(5000),
	}))
	return svc, st, oracle, accountID
}

func addTrade(t *testing.T, st *store.Store, accountID, symbol string, side domain.OrderSide, qty, price string, at time.Time) {
	t.Helper()
	q := decimal.RequireFromString(qty)
	p := decimal.RequireFromString(price)
	total := q.Mul(p)
	require.NoError(t, store.InsertTrade(context.Background(), st.Q(), &domain.Trade{
		ID:         fmt.Sprintf("%s-%s-%d", symbol, side, at.UnixNano()),
		AccountID:  accountID,
		Symbol:     symbol,
		Side:       side,
		Quantity:   q,
		Price:      p,
		Total:      total,
		Fee:        total.Mul(domain.FeeRate),
		ExecutedAt: at,
	}))
}

func TestSummaryValuesHoldingsAtMarket(t *testing.T) {
	svc, st, oracle, accountID := setup(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertHolding(ctx, st.Q(), &domain.Holding{
		AccountID: accountID, Symbol: "BTC",
		Quantity: decimal.RequireFromString("0.1"), AvgPurchasePrice: decimal.NewFromInt(45000),
	}))
	oracle.set("BTCUSDT", "50000")

	sum, err := svc.Summary(ctx, accountID)
	require.NoError(t, err)

	require.Len(t, sum.Balances, 1)
	require.True(t, sum.Balances[0].USDValue.Equal(decimal.NewFromInt(5000)))

	require.Len(t, sum.Holdings, 1)
	h := sum.Holdings[0]
	require.True(t, h.CurrentValue.Equal(decimal.NewFromInt(5000)))
	require.True(t, h.TotalCost.Equal(decimal.NewFromInt(4500)))
	require.True(t, h.UnrealizedPnl.Equal(decimal.NewFromInt(500)))

	// 5000 cash + 5000 position
	require.True(t, sum.TotalPortfolioValue.Equal(decimal.NewFromInt(10000)))
	require.True(t, sum.TotalUnrealizedPnl.Equal(decimal.NewFromInt(500)))
}

func TestSummarySkipsUnpriceableHolding(t *testing.T) {
	svc, st, oracle, accountID := setup(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertHolding(ctx, st.Q(), &domain.Holding{
		AccountID: accountID, Symbol: "BTC",
		Quantity: decimal.NewFromInt(1), AvgPurchasePrice: decimal.NewFromInt(45000),
	}))
	require.NoError(t, store.UpsertHolding(ctx, st.Q(), &domain.Holding{
		AccountID: accountID, Symbol: "ETH",
		Quantity: decimal.NewFromInt(1), AvgPurchasePrice: decimal.NewFromInt(3000),
	}))
	oracle.set("ETHUSDT", "3100")
	// No BTC price available.

	sum, err := svc.Summary(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, sum.Holdings, 1)
	require.Equal(t, "ETH", sum.Holdings[0].Symbol)
}

func TestPerformanceRealizedAgainstMeanBuyPrice(t *testing.T) {
	svc, st, _, accountID := setup(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	// Two buys at 100 and 200; mean buy price at sell time is 150.
	addTrade(t, st, accountID, "ETHUSDT", domain.OrderSideBuy, "1", "100", base)
	addTrade(t, st, accountID, "ETHUSDT", domain.OrderSideBuy, "1", "200", base.Add(time.Minute))
	// Sell 1 at 180: realized 180 - 150 = 30, and 180 > 150 is a win.
	addTrade(t, st, accountID, "ETHUSDT", domain.OrderSideSell, "1", "180", base.Add(2*time.Minute))
	// Sell 1 at 120: realized 120 - 150 = -30, a loss.
	addTrade(t, st, accountID, "ETHUSDT", domain.OrderSideSell, "1", "120", base.Add(3*time.Minute))

	perf, err := svc.Performance(ctx, accountID)
	require.NoError(t, err)
	require.Equal(t, 4, perf.TotalTrades)
	require.Equal(t, 1, perf.WinningTrades)
	require.Equal(t, 1, perf.LosingTrades)
	require.True(t, perf.TotalRealizedPnl.Equal(decimal.Zero), "realized=%s", perf.TotalRealizedPnl)
	require.True(t, perf.WinRate.Equal(decimal.NewFromInt(50)), "win rate=%s", perf.WinRate)
}

func TestPerformanceEmptyHistory(t *testing.T) {
	svc, _, _, accountID := setup(t)

	perf, err := svc.Performance(context.Background(), accountID)
	require.NoError(t, err)
	require.Equal(t, 0, perf.TotalTrades)
	require.True(t, perf.WinRate.Equal(decimal.Zero))
	require.True(t, perf.TotalPnl.Equal(decimal.Zero))
}

func TestPerformanceIncludesUnrealized(t *testing.T) {
	svc, st, oracle, accountID := setup(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertHolding(ctx, st.Q(), &domain.Holding{
		AccountID: accountID, Symbol: "BTC",
		Quantity: decimal.NewFromInt(1), AvgPurchasePrice: decimal.NewFromInt(40000),
	}))
	oracle.set("BTCUSDT", "44000")

	perf, err := svc.Performance(ctx, accountID)
	require.NoError(t, err)
	require.True(t, perf.TotalUnrealizedPnl.Equal(decimal.NewFromInt(4000)))
	require.True(t, perf.TotalUnrealizedPnlPercent.Equal(decimal.NewFromInt(10)))
	require.True(t, perf.TotalPnl.Equal(decimal.NewFromInt(4000)))
}

func TestTradeHistoryNewestFirstWithDefaultLimit(t *testing.T) {
	svc, st, _, accountID := setup(t)
	base := time.Now().Add(-time.Hour)

	addTrade(t, st, accountID, "BTCUSDT", domain.OrderSideBuy, "1", "100", base)
	addTrade(t, st, accountID, "BTCUSDT", domain.OrderSideBuy, "1", "110", base.Add(time.Minute))

	trades, err := svc.TradeHistory(context.Background(), accountID, 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	require.True(t, trades[0].Price.Equal(decimal.NewFromInt(110)))
}

func TestUnknownAccount(t *testing.T) {
	svc, _, _, _ := setup(t)

	_, err := svc.Summary(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Performance(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.TradeHistory(context.Background(), "missing", 10)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
