package market

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceOracle supplies the current price for a trading symbol. The feed
// behind it is external and untrusted: calls can fail, time out, or serve
// slightly stale data. Callers must treat any error as "no price right
// now", never as fatal.
type PriceOracle interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
