package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/betfold/papertrade/internal/domain"
	"github.com/betfold/papertrade/internal/store"
)

// stubOracle serves fixed prices per symbol, or a global error.
type stubOracle struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	err    error
	calls  int
}

func newStubOracle() *stubOracle {
	return &stubOracle{prices: make(map[string]decimal.Decimal)}
}

func (o *stubOracle) set(symbol string, price string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[symbol] = decimal.RequireFromString(price)
}

func (o *stubOracle) fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *stubOracle) CurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return decimal.Zero, o.err
	}
	p, ok := o.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrPriceUnavailable, symbol)
	}
	return p, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// seedAccount creates an account with the standard starting balance and
// returns its id.
func seedAccount(t *testing.T, st *store.Store) string {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	err := store.InsertAccount(ctx, st.Q(), &domain.Account{
		ID:           id,
		Email:        id + "@test.local",
		PasswordHash: "x",
		CreatedAt:    time.Now(),
	})
	require.NoError(t, err)
	err = store.UpsertBalance(ctx, st.Q(), &domain.Balance{
		AccountID: id,
		Currency:  domain.QuoteCurrency,
		Amount:    domain.SeedBalance,
	})
	require.NoError(t, err)
	return id
}

func balanceOf(t *testing.T, st *store.Store, accountID string) decimal.Decimal {
	t.Helper()
	b, err := store.GetBalance(context.Background(), st.Q(), accountID, domain.QuoteCurrency)
	require.NoError(t, err)
	if b == nil {
		return decimal.Zero
	}
	return b.Amount
}

func holdingOf(t *testing.T, st *store.Store, accountID, symbol string) *domain.Holding {
	t.Helper()
	h, err := store.GetHolding(context.Background(), st.Q(), accountID, symbol)
	require.NoError(t, err)
	return h
}

func tradeCount(t *testing.T, st *store.Store, accountID string) int {
	t.Helper()
	trades, err := store.ListTrades(context.Background(), st.Q(), accountID, 1000)
	require.NoError(t, err)
	return len(trades)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
