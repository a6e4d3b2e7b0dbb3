package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betfold/papertrade/internal/domain"
	"github.com/betfold/papertrade/internal/market"
	"github.com/betfold/papertrade/internal/store"
	"github.com/betfold/papertrade/pkg/logger"
)

// ExecParams describes one execution request. Price nil means "execute at
// the current oracle price". OrderID links the resulting trade back to the
// order that triggered it; nil for instant buy/sell calls.
type ExecParams struct {
	AccountID string
	Symbol    string
	Side      domain.OrderSide
	Quantity  decimal.Decimal
	Price     *decimal.Decimal
	OrderID   *string
}

// TradingEngine executes buys and sells against the ledger. Every
// execution commits balance update, holding update and trade insert as one
// transaction, under the account's lock, reading fresh state inside the
// transaction. Nothing is cached between calls.
type TradingEngine struct {
	store   *store.Store
	oracle  market.PriceOracle
	feeRate decimal.Decimal
	locks   *accountLocks
	log     *logrus.Entry
}

func NewTradingEngine(st *store.Store, oracle market.PriceOracle) *TradingEngine {
	return &TradingEngine{
		store:   st,
		oracle:  oracle,
		feeRate: domain.FeeRate,
		locks:   newAccountLocks(),
		log:     logger.WithField("component", "trading"),
	}
}

func (e *TradingEngine) Execute(ctx context.Context, p ExecParams) (*domain.Trade, error) {
	if err := e.validate(p); err != nil {
		return nil, err
	}

	acct, err := store.GetAccount(ctx, e.store.Q(), p.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: load account: %v", domain.ErrStoreFailure, err)
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: account %s", domain.ErrNotFound, p.AccountID)
	}

	price, err := e.resolvePrice(ctx, p)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(p.AccountID)
	defer unlock()

	var trade *domain.Trade
	err = e.store.WithTx(ctx, func(q store.Querier) error {
		var txErr error
		trade, txErr = e.executeTx(ctx, q, p, price)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"account": p.AccountID,
		"symbol":  p.Symbol,
		"side":    p.Side,
	}).Infof("executed %s %s at %s", p.Quantity, p.Symbol, price)
	return trade, nil
}

func (e *TradingEngine) validate(p ExecParams) error {
	if !p.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q", domain.ErrValidation, p.Side)
	}
	if p.Quantity.Sign() <= 0 {
		return fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	}
	if p.Price != nil && p.Price.Sign() <= 0 {
		return fmt.Errorf("%w: price must be positive", domain.ErrValidation)
	}
	if p.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", domain.ErrValidation)
	}
	return nil
}

func (e *TradingEngine) resolvePrice(ctx context.Context, p ExecParams) (decimal.Decimal, error) {
	if p.Price != nil {
		return *p.Price, nil
	}
	return e.oracle.CurrentPrice(ctx, p.Symbol)
}

// executeTx applies the execution inside an open transaction. The order
// engine calls it directly so an order's fill claim and its trade commit
// together.
func (e *TradingEngine) executeTx(ctx context.Context, q store.Querier, p ExecParams, price decimal.Decimal) (*domain.Trade, error) {
	total := p.Quantity.Mul(price)
	fee := total.Mul(e.feeRate)

	switch p.Side {
	case domain.OrderSideBuy:
		if err := e.applyBuy(ctx, q, p, price, total, fee); err != nil {
			return nil, err
		}
	case domain.OrderSideSell:
		if err := e.applySell(ctx, q, p, total, fee); err != nil {
			return nil, err
		}
	}

	trade := &domain.Trade{
		ID:         uuid.NewString(),
		OrderID:    p.OrderID,
		AccountID:  p.AccountID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		Quantity:   p.Quantity,
		Price:      price,
		Total:      total,
		Fee:        fee,
		ExecutedAt: time.Now(),
	}
	if err := store.InsertTrade(ctx, q, trade); err != nil {
		return nil, fmt.Errorf("%w: insert trade: %v", domain.ErrStoreFailure, err)
	}
	return trade, nil
}

func (e *TradingEngine) applyBuy(ctx context.Context, q store.Querier, p ExecParams, price, total, fee decimal.Decimal) error {
	required := total.Add(fee)

	bal, err := store.GetBalance(ctx, q, p.AccountID, domain.QuoteCurrency)
	if err != nil {
		return fmt.Errorf("%w: read balance: %v", domain.ErrStoreFailure, err)
	}
	have := decimal.Zero
	if bal != nil {
		have = bal.Amount
	}
	if have.LessThan(required) {
		return fmt.Errorf("%w: need %s %s, have %s", domain.ErrInsufficientFunds, required, domain.QuoteCurrency, have)
	}

	if err := store.UpsertBalance(ctx, q, &domain.Balance{
		AccountID: p.AccountID,
		Currency:  domain.QuoteCurrency,
		Amount:    have.Sub(required),
	}); err != nil {
		return fmt.Errorf("%w: update balance: %v", domain.ErrStoreFailure, err)
	}

	base := domain.BaseAsset(p.Symbol)
	h, err := store.GetHolding(ctx, q, p.AccountID, base)
	if err != nil {
		return fmt.Errorf("%w: read holding: %v", domain.ErrStoreFailure, err)
	}

	newQty := p.Quantity
	newAvg := price
	if h != nil {
		// Weighted average: (old_qty*old_avg + buy_qty*price) / (old_qty+buy_qty)
		newQty = h.Quantity.Add(p.Quantity)
		totalCost := h.Quantity.Mul(h.AvgPurchasePrice).Add(p.Quantity.Mul(price))
		newAvg = totalCost.Div(newQty)
	}
	if err := store.UpsertHolding(ctx, q, &domain.Holding{
		AccountID:        p.AccountID,
		Symbol:           base,
		Quantity:         newQty,
		AvgPurchasePrice: newAvg,
	}); err != nil {
		return fmt.Errorf("%w: update holding: %v", domain.ErrStoreFailure, err)
	}
	return nil
}

func (e *TradingEngine) applySell(ctx context.Context, q store.Querier, p ExecParams, total, fee decimal.Decimal) error {
	base := domain.BaseAsset(p.Symbol)

	h, err := store.GetHolding(ctx, q, p.AccountID, base)
	if err != nil {
		return fmt.Errorf("%w: read holding: %v", domain.ErrStoreFailure, err)
	}
	if h == nil || h.Quantity.LessThan(p.Quantity) {
		return fmt.Errorf("%w: %s", domain.ErrInsufficientHoldings, base)
	}

	bal, err := store.GetBalance(ctx, q, p.AccountID, domain.QuoteCurrency)
	if err != nil {
		return fmt.Errorf("%w: read balance: %v", domain.ErrStoreFailure, err)
	}
	have := decimal.Zero
	if bal != nil {
		have = bal.Amount
	}
	if err := store.UpsertBalance(ctx, q, &domain.Balance{
		AccountID: p.AccountID,
		Currency:  domain.QuoteCurrency,
		Amount:    have.Add(total.Sub(fee)),
	}); err != nil {
		return fmt.Errorf("%w: update balance: %v", domain.ErrStoreFailure, err)
	}

	newQty := h.Quantity.Sub(p.Quantity)
	if newQty.Sign() <= 0 {
		if err := store.DeleteHolding(ctx, q, p.AccountID, base); err != nil {
			return fmt.Errorf("%w: delete holding: %v", domain.ErrStoreFailure, err)
		}
		return nil
	}
	// Average purchase price is untouched by sells.
	if err := store.UpsertHolding(ctx, q, &domain.Holding{
		AccountID:        p.AccountID,
		Symbol:           base,
		Quantity:         newQty,
		AvgPurchasePrice: h.AvgPurchasePrice,
	}); err != nil {
		return fmt.Errorf("%w: update holding: %v", domain.ErrStoreFailure, err)
	}
	return nil
}
