package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteCurrency is the only quote currency in the system. Every trading
// symbol is BASE+QuoteCurrency (e.g. BTCUSDT) and all cash balances are
// kept in it.
const QuoteCurrency = "USDT"

// SeedBalance is credited once, at registration.
var SeedBalance = decimal.NewFromInt(10000)

type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Balance is the (account, currency) cash row. Amount never goes negative;
// the trading engine checks before it debits.
type Balance struct {
	AccountID string          `json:"account_id"`
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Holding is the (account, base asset) position. A holding with zero
// quantity is deleted, never persisted.
type Holding struct {
	AccountID        string          `json:"account_id"`
	Symbol           string          `json:"symbol"` // base asset, e.g. "BTC"
	Quantity         decimal.Decimal `json:"quantity"`
	AvgPurchasePrice decimal.Decimal `json:"avg_purchase_price"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
