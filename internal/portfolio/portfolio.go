package portfolio

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betfold/papertrade/internal/domain"
	"github.com/betfold/papertrade/internal/market"
	"github.com/betfold/papertrade/internal/store"
	"github.com/betfold/papertrade/pkg/logger"
)

var hundred = decimal.NewFromInt(100)

type BalanceLine struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
	USDValue decimal.Decimal `json:"usd_value"`
}

type HoldingLine struct {
	Symbol               string          `json:"symbol"`
	Quantity             decimal.Decimal `json:"quantity"`
	AvgPurchasePrice     decimal.Decimal `json:"avg_purchase_price"`
	CurrentPrice         decimal.Decimal `json:"current_price"`
	CurrentValue         decimal.Decimal `json:"current_value"`
	TotalCost            decimal.Decimal `json:"total_cost"`
	UnrealizedPnl        decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnlPercent decimal.Decimal `json:"unrealized_pnl_percent"`
}

type Summary struct {
	Balances                  []BalanceLine   `json:"balances"`
	Holdings                  []HoldingLine   `json:"holdings"`
	TotalPortfolioValue       decimal.Decimal `json:"total_portfolio_value"`
	TotalUnrealizedPnl        decimal.Decimal `json:"total_unrealized_pnl"`
	TotalUnrealizedPnlPercent decimal.Decimal `json:"total_unrealized_pnl_percent"`
}

type Performance struct {
	TotalUnrealizedPnl        decimal.Decimal `json:"total_unrealized_pnl"`
	TotalUnrealizedPnlPercent decimal.Decimal `json:"total_unrealized_pnl_percent"`
	TotalRealizedPnl          decimal.Decimal `json:"total_realized_pnl"`
	TotalRealizedPnlPercent   decimal.Decimal `json:"total_realized_pnl_percent"`
	TotalPnl                  decimal.Decimal `json:"total_pnl"`
	TotalPnlPercent           decimal.Decimal `json:"total_pnl_percent"`
	TotalTrades               int             `json:"total_trades"`
	WinningTrades             int             `json:"winning_trades"`
	LosingTrades              int             `json:"losing_trades"`
	WinRate                   decimal.Decimal `json:"win_rate"`
}

// Service is the derived, read-only side: it never mutates the ledger,
// only values it against current oracle prices and walks trade history.
type Service struct {
	store  *store.Store
	oracle market.PriceOracle
	log    *logrus.Entry
}

func NewService(st *store.Store, oracle market.PriceOracle) *Service {
	return &Service{
		store:  st,
		oracle: oracle,
		log:    logger.WithField("component", "portfolio"),
	}
}

func (s *Service) Summary(ctx context.Context, accountID string) (*Summary, error) {
	if err := s.ensureAccount(ctx, accountID); err != nil {
		return nil, err
	}
	balances, err := s.BalanceLines(ctx, accountID)
	if err != nil {
		return nil, err
	}
	holdings, err := s.HoldingLines(ctx, accountID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b.USDValue)
	}
	unrealized := decimal.Zero
	for _, h := range holdings {
		total = total.Add(h.CurrentValue)
		unrealized = unrealized.Add(h.UnrealizedPnl)
	}

	sum := &Summary{
		Balances:            balances,
		Holdings:            holdings,
		TotalPortfolioValue: total,
		TotalUnrealizedPnl:  unrealized,
	}
	if basis := total.Sub(unrealized); basis.Sign() > 0 {
		sum.TotalUnrealizedPnlPercent = unrealized.Div(basis).Mul(hundred)
	}
	return sum, nil
}

// BalanceLines values every cash balance in the quote currency. A price
// failure for a non-quote currency degrades that line's value to zero
// instead of failing the whole call.
func (s *Service) BalanceLines(ctx context.Context, accountID string) ([]BalanceLine, error) {
	balances, err := store.ListBalances(ctx, s.store.Q(), accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: list balances: %v", domain.ErrStoreFailure, err)
	}

	out := make([]BalanceLine, 0, len(balances))
	for _, b := range balances {
		line := BalanceLine{Currency: b.Currency, Amount: b.Amount, USDValue: b.Amount}
		if b.Currency != domain.QuoteCurrency {
			price, perr := s.oracle.CurrentPrice(ctx, b.Currency+domain.QuoteCurrency)
			if perr != nil {
				s.log.Warnf("no price for %s%s, valuing balance at 0", b.Currency, domain.QuoteCurrency)
				line.USDValue = decimal.Zero
			} else {
				line.USDValue = b.Amount.Mul(price)
			}
		}
		out = append(out, line)
	}
	return out, nil
}

// HoldingLines values every holding at the current market price. A holding
// whose price cannot be fetched is skipped, not fatal.
func (s *Service) HoldingLines(ctx context.Context, accountID string) ([]HoldingLine, error) {
	holdings, err := store.ListHoldings(ctx, s.store.Q(), accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: list holdings: %v", domain.ErrStoreFailure, err)
	}

	out := make([]HoldingLine, 0, len(holdings))
	for _, h := range holdings {
		price, perr := s.oracle.CurrentPrice(ctx, h.Symbol+domain.QuoteCurrency)
		if perr != nil {
			s.log.Warnf("no price for %s%s, skipping holding line", h.Symbol, domain.QuoteCurrency)
			continue
		}
		line := HoldingLine{
			Symbol:           h.Symbol,
			Quantity:         h.Quantity,
			AvgPurchasePrice: h.AvgPurchasePrice,
			CurrentPrice:     price,
			CurrentValue:     h.Quantity.Mul(price),
			TotalCost:        h.Quantity.Mul(h.AvgPurchasePrice),
		}
		line.UnrealizedPnl = line.CurrentValue.Sub(line.TotalCost)
		if line.TotalCost.Sign() > 0 {
			line.UnrealizedPnlPercent = line.UnrealizedPnl.Div(line.TotalCost).Mul(hundred)
		}
		out = append(out, line)
	}
	return out, nil
}

func (s *Service) TradeHistory(ctx context.Context, accountID string, limit int) ([]domain.Trade, error) {
	if err := s.ensureAccount(ctx, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	trades, err := store.ListTrades(ctx, s.store.Q(), accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list trades: %v", domain.ErrStoreFailure, err)
	}
	return trades, nil
}

// Performance walks the full trade history in order. Realized P&L per sell
// compares the sell's total against the plain average of all earlier buy
// prices for that symbol; the same average classifies the sell as a win or
// loss. This is a whole-history average-cost approximation, not FIFO or
// per-lot costing.
func (s *Service) Performance(ctx context.Context, accountID string) (*Performance, error) {
	if err := s.ensureAccount(ctx, accountID); err != nil {
		return nil, err
	}
	trades, err := store.ListTradesAsc(ctx, s.store.Q(), accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: list trades: %v", domain.ErrStoreFailure, err)
	}
	holdings, err := s.HoldingLines(ctx, accountID)
	if err != nil {
		return nil, err
	}

	type buyStats struct {
		priceSum decimal.Decimal
		count    int64
	}
	buysBySymbol := make(map[string]*buyStats)

	perf := &Performance{TotalTrades: len(trades)}
	realizedPnl := decimal.Zero
	realizedCost := decimal.Zero
	sells, wins := 0, 0

	for _, t := range trades {
		if t.Side == domain.OrderSideBuy {
			st, ok := buysBySymbol[t.Symbol]
			if !ok {
				st = &buyStats{priceSum: decimal.Zero}
				buysBySymbol[t.Symbol] = st
			}
			st.priceSum = st.priceSum.Add(t.Price)
			st.count++
			continue
		}

		sells++
		st, ok := buysBySymbol[t.Symbol]
		if !ok || st.count == 0 {
			// Sell with no prior buys on record: nothing to cost against.
			continue
		}
		avgBuy := st.priceSum.Div(decimal.NewFromInt(st.count))
		cost := t.Quantity.Mul(avgBuy)
		realizedPnl = realizedPnl.Add(t.Total.Sub(cost))
		realizedCost = realizedCost.Add(cost)
		if t.Price.GreaterThan(avgBuy) {
			wins++
		}
	}

	unrealizedPnl := decimal.Zero
	unrealizedCost := decimal.Zero
	for _, h := range holdings {
		unrealizedPnl = unrealizedPnl.Add(h.UnrealizedPnl)
		unrealizedCost = unrealizedCost.Add(h.TotalCost)
	}

	perf.TotalRealizedPnl = realizedPnl
	perf.TotalUnrealizedPnl = unrealizedPnl
	perf.TotalPnl = realizedPnl.Add(unrealizedPnl)
	perf.WinningTrades = wins
	perf.LosingTrades = sells - wins

	if realizedCost.Sign() > 0 {
		perf.TotalRealizedPnlPercent = realizedPnl.Div(realizedCost).Mul(hundred)
	}
	if unrealizedCost.Sign() > 0 {
		perf.TotalUnrealizedPnlPercent = unrealizedPnl.Div(unrealizedCost).Mul(hundred)
	}
	if basis := realizedCost.Add(unrealizedCost); basis.Sign() > 0 {
		perf.TotalPnlPercent = perf.TotalPnl.Div(basis).Mul(hundred)
	}
	if sells > 0 {
		perf.WinRate = decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(sells))).Mul(hundred)
	}
	return perf, nil
}

func (s *Service) ensureAccount(ctx context.Context, accountID string) error {
	acct, err := store.GetAccount(ctx, s.store.Q(), accountID)
	if err != nil {
		return fmt.Errorf("%w: load account: %v", domain.ErrStoreFailure, err)
	}
	if acct == nil {
		return fmt.Errorf("%w: account %s", domain.ErrNotFound, accountID)
	}
	return nil
}
