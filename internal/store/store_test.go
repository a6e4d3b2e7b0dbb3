package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/betfold/papertrade/internal/domain"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func insertTestAccount(t *testing.T, st *Store, id, email string) {
	t.Helper()
	err := InsertAccount(context.Background(), st.Q(), &domain.Account{
		ID:           id,
		Email:        email,
		PasswordHash: "h",
		CreatedAt:    time.Now(),
	})
	require.NoError(t, err)
}

func TestAccountRoundTrip(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	insertTestAccount(t, st, "a1", "a1@test.local")

	got, err := GetAccount(ctx, st.Q(), "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "a1@test.local", got.Email)

	byEmail, err := GetAccountByEmail(ctx, st.Q(), "a1@test.local")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	require.Equal(t, "a1", byEmail.ID)

	missing, err := GetAccount(ctx, st.Q(), "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestDuplicateEmailRejected(t *testing.T) {
	st := openTest(t)
	insertTestAccount(t, st, "a1", "dup@test.local")
	err := InsertAccount(context.Background(), st.Q(), &domain.Account{
		ID: "a2", Email: "dup@test.local", PasswordHash: "h", CreatedAt: time.Now(),
	})
	require.Error(t, err)
}

func TestBalanceUpsert(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	insertTestAccount(t, st, "a1", "a1@test.local")

	err := UpsertBalance(ctx, st.Q(), &domain.Balance{
		AccountID: "a1", Currency: "USDT", Amount: decimal.NewFromInt(10000),
	})
	require.NoError(t, err)
	err = UpsertBalance(ctx, st.Q(), &domain.Balance{
		AccountID: "a1", Currency: "USDT", Amount: decimal.NewFromInt(5000),
	})
	require.NoError(t, err)

	b, err := GetBalance(ctx, st.Q(), "a1", "USDT")
	require.NoError(t, err)
	require.NotNil(t, b)
	require.True(t, b.Amount.Equal(decimal.NewFromInt(5000)))

	all, err := ListBalances(ctx, st.Q(), "a1")
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestHoldingLifecycle(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	insertTestAccount(t, st, "a1", "a1@test.local")

	err := UpsertHolding(ctx, st.Q(), &domain.Holding{
		AccountID: "a1", Symbol: "BTC",
		Quantity: decimal.NewFromFloat(0.5), AvgPurchasePrice: decimal.NewFromInt(45000),
	})
	require.NoError(t, err)

	h, err := GetHolding(ctx, st.Q(), "a1", "BTC")
	require.NoError(t, err)
	require.NotNil(t, h)
	require.True(t, h.Quantity.Equal(decimal.NewFromFloat(0.5)))

	require.NoError(t, DeleteHolding(ctx, st.Q(), "a1", "BTC"))
	h, err = GetHolding(ctx, st.Q(), "a1", "BTC")
	require.NoError(t, err)
	require.Nil(t, h)
}

func TestTransitionOrderIsSingleWinner(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	insertTestAccount(t, st, "a1", "a1@test.local")

	price := decimal.NewFromInt(100)
	err := InsertOrder(ctx, st.Q(), &domain.Order{
		ID: "o1", AccountID: "a1", Symbol: "ETHUSDT",
		Type: domain.OrderTypeLimit, Side: domain.OrderSideBuy,
		Quantity: decimal.NewFromInt(1), Price: &price,
		Status: domain.OrderStatusPending, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	now := time.Now()
	won, err := TransitionOrder(ctx, st.Q(), "o1", domain.OrderStatusFilled, &now)
	require.NoError(t, err)
	require.True(t, won)

	// The order is no longer pending, so every later transition loses.
	won, err = TransitionOrder(ctx, st.Q(), "o1", domain.OrderStatusCancelled, nil)
	require.NoError(t, err)
	require.False(t, won)

	got, err := GetOrder(ctx, st.Q(), "a1", "o1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusFilled, got.Status)
	require.NotNil(t, got.FilledAt)
}

func TestListPendingConditionalOrders(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	insertTestAccount(t, st, "a1", "a1@test.local")

	price := decimal.NewFromInt(100)
	mk := func(id string, typ domain.OrderType, status domain.OrderStatus, created time.Time) {
		var p *decimal.Decimal
		if typ.RequiresPrice() {
			p = &price
		}
		require.NoError(t, InsertOrder(ctx, st.Q(), &domain.Order{
			ID: id, AccountID: "a1", Symbol: "ETHUSDT",
			Type: typ, Side: domain.OrderSideBuy,
			Quantity: decimal.NewFromInt(1), Price: p,
			Status: status, CreatedAt: created,
		}))
	}

	base := time.Now()
	mk("o1", domain.OrderTypeLimit, domain.OrderStatusPending, base.Add(2*time.Second))
	mk("o2", domain.OrderTypeStopLoss, domain.OrderStatusPending, base.Add(1*time.Second))
	mk("o3", domain.OrderTypeLimit, domain.OrderStatusCancelled, base)
	mk("o4", domain.OrderTypeMarket, domain.OrderStatusPending, base)

	pending, err := ListPendingConditionalOrders(ctx, st.Q())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	// Oldest first.
	require.Equal(t, "o2", pending[0].ID)
	require.Equal(t, "o1", pending[1].ID)
}

func TestTradeListingOrder(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	insertTestAccount(t, st, "a1", "a1@test.local")

	base := time.Now()
	for i, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, InsertTrade(ctx, st.Q(), &domain.Trade{
			ID: id, AccountID: "a1", Symbol: "BTCUSDT", Side: domain.OrderSideBuy,
			Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
			Total: decimal.NewFromInt(100), Fee: decimal.NewFromFloat(0.1),
			ExecutedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	newest, err := ListTrades(ctx, st.Q(), "a1", 2)
	require.NoError(t, err)
	require.Len(t, newest, 2)
	require.Equal(t, "t3", newest[0].ID)

	asc, err := ListTradesAsc(ctx, st.Q(), "a1")
	require.NoError(t, err)
	require.Len(t, asc, 3)
	require.Equal(t, "t1", asc[0].ID)
	require.Equal(t, "t3", asc[2].ID)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	insertTestAccount(t, st, "a1", "a1@test.local")

	sentinel := errors.New("boom")
	err := st.WithTx(ctx, func(q Querier) error {
		if err := UpsertBalance(ctx, q, &domain.Balance{
			AccountID: "a1", Currency: "USDT", Amount: decimal.NewFromInt(42),
		}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	b, err := GetBalance(ctx, st.Q(), "a1", "USDT")
	require.NoError(t, err)
	require.Nil(t, b)
}
