package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeRate is the fixed fraction of notional charged on every execution
// (0.1%).
var FeeRate = decimal.NewFromFloat(0.001)

// Trade is the append-only record of an execution. OrderID is nil for
// instant buy/sell calls that did not originate from an order.
type Trade struct {
	ID         string          `json:"id"`
	OrderID    *string         `json:"order_id,omitempty"`
	AccountID  string          `json:"account_id"`
	Symbol     string          `json:"symbol"`
	Side       OrderSide       `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Total      decimal.Decimal `json:"total"`
	Fee        decimal.Decimal `json:"fee"`
	ExecutedAt time.Time       `json:"executed_at"`
}
