package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betfold/papertrade/internal/domain"
	"github.com/betfold/papertrade/internal/market"
	"github.com/betfold/papertrade/internal/store"
	"github.com/betfold/papertrade/pkg/logger"
)

const priceFetchTimeout = 5 * time.Second

type CreateOrderParams struct {
	Symbol   string
	Type     domain.OrderType
	Side     domain.OrderSide
	Quantity decimal.Decimal
	Price    *decimal.Decimal
}

// OrderEngine owns the order lifecycle: creation, cancellation and the
// periodic reconciliation sweep that fills pending conditional orders
// against live prices.
type OrderEngine struct {
	store    *store.Store
	trading  *TradingEngine
	oracle   market.PriceOracle
	interval time.Duration

	sweepGuard *inFlightLimiter
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	log        *logrus.Entry
}

func NewOrderEngine(st *store.Store, trading *TradingEngine, oracle market.PriceOracle, interval time.Duration) *OrderEngine {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &OrderEngine{
		store:      st,
		trading:    trading,
		oracle:     oracle,
		interval:   interval,
		sweepGuard: newInFlightLimiter(1),
		log:        logger.WithField("component", "orders"),
	}
}

// CreateOrder persists the order and, for market orders, fills it within
// this call. A failed market execution leaves the order cancelled; the
// creation call itself still succeeds.
func (oe *OrderEngine) CreateOrder(ctx context.Context, accountID string, p CreateOrderParams) (*domain.Order, error) {
	if err := validateCreate(p); err != nil {
		return nil, err
	}

	acct, err := store.GetAccount(ctx, oe.store.Q(), accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: load account: %v", domain.ErrStoreFailure, err)
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: account %s", domain.ErrNotFound, accountID)
	}

	order := &domain.Order{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Symbol:    p.Symbol,
		Type:      p.Type,
		Side:      p.Side,
		Quantity:  p.Quantity,
		Price:     p.Price,
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now(),
	}
	if err := store.InsertOrder(ctx, oe.store.Q(), order); err != nil {
		return nil, fmt.Errorf("%w: insert order: %v", domain.ErrStoreFailure, err)
	}

	if p.Type == domain.OrderTypeMarket {
		if err := oe.fillAtCurrentPrice(ctx, order); err != nil {
			oe.log.Warnf("market order %s failed: %v", order.ID, err)
		}
		return oe.reload(ctx, accountID, order.ID)
	}
	return order, nil
}

func validateCreate(p CreateOrderParams) error {
	if !p.Type.Valid() {
		return fmt.Errorf("%w: unknown order type %q", domain.ErrValidation, p.Type)
	}
	if !p.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q", domain.ErrValidation, p.Side)
	}
	if p.Quantity.Sign() <= 0 {
		return fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	}
	if p.Type.RequiresPrice() {
		if p.Price == nil {
			return fmt.Errorf("%w: price is required for %s orders", domain.ErrValidation, p.Type)
		}
		if p.Price.Sign() <= 0 {
			return fmt.Errorf("%w: price must be positive", domain.ErrValidation)
		}
	}
	if p.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", domain.ErrValidation)
	}
	return nil
}

// CancelOrder moves a pending order to cancelled. The compare-and-set in
// TransitionOrder means a concurrent fill and cancel resolve to exactly
// one winner.
func (oe *OrderEngine) CancelOrder(ctx context.Context, accountID, orderID string) (*domain.Order, error) {
	o, err := store.GetOrder(ctx, oe.store.Q(), accountID, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: load order: %v", domain.ErrStoreFailure, err)
	}
	if o == nil {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}

	won, err := store.TransitionOrder(ctx, oe.store.Q(), orderID, domain.OrderStatusCancelled, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: cancel order: %v", domain.ErrStoreFailure, err)
	}
	if !won {
		return nil, fmt.Errorf("%w: order %s is not pending", domain.ErrInvalidState, orderID)
	}
	oe.log.Infof("order %s cancelled by owner", orderID)
	return oe.reload(ctx, accountID, orderID)
}

func (oe *OrderEngine) ListOrders(ctx context.Context, accountID string) ([]domain.Order, error) {
	orders, err := store.ListOrders(ctx, oe.store.Q(), accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %v", domain.ErrStoreFailure, err)
	}
	return orders, nil
}

func (oe *OrderEngine) GetOrder(ctx context.Context, accountID, orderID string) (*domain.Order, error) {
	o, err := store.GetOrder(ctx, oe.store.Q(), accountID, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: get order: %v", domain.ErrStoreFailure, err)
	}
	if o == nil {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	return o, nil
}

// Start launches the reconciliation loop. Stop cancels it and waits for an
// in-progress sweep to finish.
func (oe *OrderEngine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	oe.cancel = cancel

	oe.wg.Add(1)
	go func() {
		defer oe.wg.Done()
		oe.sweepLoop(ctx)
	}()
	oe.log.Infof("reconciliation loop started, interval=%s", oe.interval)
}

func (oe *OrderEngine) Stop() {
	if oe.cancel != nil {
		oe.cancel()
	}
	oe.wg.Wait()
}

func (oe *OrderEngine) sweepLoop(ctx context.Context) {
	t := time.NewTicker(oe.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			oe.Sweep(ctx)
		}
	}
}

// Sweep runs one reconciliation pass. Single-flight: if a previous pass is
// still running this one is skipped entirely. A single order's failure is
// logged and never aborts the rest of the pass.
func (oe *OrderEngine) Sweep(ctx context.Context) {
	if !oe.sweepGuard.TryAcquire() {
		oe.log.Debugf("sweep still running, skipping pass")
		return
	}
	defer oe.sweepGuard.Release()

	orders, err := store.ListPendingConditionalOrders(ctx, oe.store.Q())
	if err != nil {
		oe.log.Errorf("sweep: load pending orders: %v", err)
		return
	}

	for i := range orders {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := oe.evaluate(ctx, &orders[i]); err != nil {
			oe.log.Warnf("sweep: order %s: %v", orders[i].ID, err)
		}
	}
}

// evaluate fetches the current price for one pending order and fills it if
// its trigger condition holds. A price failure skips the order until the
// next pass.
func (oe *OrderEngine) evaluate(ctx context.Context, o *domain.Order) error {
	pctx, cancel := context.WithTimeout(ctx, priceFetchTimeout)
	defer cancel()

	price, err := oe.oracle.CurrentPrice(pctx, o.Symbol)
	if err != nil {
		return err
	}
	if !triggered(o, price) {
		return nil
	}
	return oe.fill(ctx, o, price)
}

// triggered is the trigger predicate set. Stop-loss is sell-only: a
// stop-loss buy order never fires, matching the modeled design.
func triggered(o *domain.Order, price decimal.Decimal) bool {
	if o.Price == nil {
		return false
	}
	switch o.Type {
	case domain.OrderTypeLimit:
		if o.Side == domain.OrderSideBuy {
			return price.LessThanOrEqual(*o.Price)
		}
		return price.GreaterThanOrEqual(*o.Price)
	case domain.OrderTypeStopLoss:
		return o.Side == domain.OrderSideSell && price.LessThanOrEqual(*o.Price)
	}
	return false
}

func (oe *OrderEngine) fillAtCurrentPrice(ctx context.Context, o *domain.Order) error {
	pctx, cancel := context.WithTimeout(ctx, priceFetchTimeout)
	defer cancel()

	price, err := oe.oracle.CurrentPrice(pctx, o.Symbol)
	if err != nil {
		// No price, no execution: the order ends up cancelled.
		if _, terr := store.TransitionOrder(ctx, oe.store.Q(), o.ID, domain.OrderStatusCancelled, nil); terr != nil {
			return fmt.Errorf("%w: cancel after price failure: %v", domain.ErrStoreFailure, terr)
		}
		return err
	}
	return oe.fill(ctx, o, price)
}

// fill claims the pending order and executes it in one transaction, so the
// status flip and the ledger mutations commit or roll back together. On an
// execution failure the order is cancelled instead. The pending->filled
// compare-and-set makes the fill exactly-once even if two passes evaluate
// the same order.
func (oe *OrderEngine) fill(ctx context.Context, o *domain.Order, price decimal.Decimal) error {
	unlock := oe.trading.locks.Lock(o.AccountID)
	defer unlock()

	now := time.Now()
	claimed := false
	err := oe.store.WithTx(ctx, func(q store.Querier) error {
		won, err := store.TransitionOrder(ctx, q, o.ID, domain.OrderStatusFilled, &now)
		if err != nil {
			return fmt.Errorf("%w: claim order: %v", domain.ErrStoreFailure, err)
		}
		if !won {
			return nil
		}
		claimed = true
		_, err = oe.trading.executeTx(ctx, q, ExecParams{
			AccountID: o.AccountID,
			Symbol:    o.Symbol,
			Side:      o.Side,
			Quantity:  o.Quantity,
			OrderID:   &o.ID,
		}, price)
		return err
	})
	if err != nil {
		if claimed {
			// The claim rolled back with the failed execution; a losing
			// cancel racing us is fine, the CAS keeps it single-winner.
			if _, terr := store.TransitionOrder(ctx, oe.store.Q(), o.ID, domain.OrderStatusCancelled, nil); terr != nil {
				oe.log.Errorf("order %s: cancel after failed fill: %v", o.ID, terr)
			}
		}
		return err
	}
	if claimed {
		oe.log.WithFields(logrus.Fields{
			"order":  o.ID,
			"symbol": o.Symbol,
			"side":   o.Side,
		}).Infof("order filled at %s", price)
	}
	return nil
}

func (oe *OrderEngine) reload(ctx context.Context, accountID, orderID string) (*domain.Order, error) {
	o, err := store.GetOrder(ctx, oe.store.Q(), accountID, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: reload order: %v", domain.ErrStoreFailure, err)
	}
	if o == nil {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	return o, nil
}
