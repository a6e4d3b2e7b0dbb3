package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderType string

const (
	OrderTypeMarket   OrderType = "market"
	OrderTypeLimit    OrderType = "limit"
	OrderTypeStopLoss OrderType = "stop_loss"
)

func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStopLoss:
		return true
	}
	return false
}

// RequiresPrice reports whether orders of this type must carry a trigger
// price.
func (t OrderType) RequiresPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStopLoss
}

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order lifecycle: pending -> filled | cancelled. Filled and cancelled are
// terminal; only pending orders may be cancelled or triggered.
type Order struct {
	ID        string           `json:"id"`
	AccountID string           `json:"account_id"`
	Symbol    string           `json:"symbol"`
	Type      OrderType        `json:"type"`
	Side      OrderSide        `json:"side"`
	Quantity  decimal.Decimal  `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Status    OrderStatus      `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	FilledAt  *time.Time       `json:"filled_at,omitempty"`
}

// BaseAsset strips the quote suffix from a trading symbol: BTCUSDT -> BTC.
func BaseAsset(symbol string) string {
	return strings.TrimSuffix(strings.ToUpper(symbol), QuoteCurrency)
}
