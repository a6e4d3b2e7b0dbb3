package store

import (
	"context"
	"database/sql"

	"github.com/betfold/papertrade/internal/domain"
)

// Trades are append-only; there is no update or delete path.
func InsertTrade(ctx context.Context, q Querier, t *domain.Trade) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO trades (id,order_id,account_id,symbol,side,quantity,price,total,fee,executed_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
`, t.ID, t.OrderID, t.AccountID, t.Symbol, string(t.Side), t.Quantity.String(), t.Price.String(), t.Total.String(), t.Fee.String(), fmtTime(t.ExecutedAt))
	return err
}

// ListTrades returns the newest trades first, capped at limit (<=0 means
// no cap).
func ListTrades(ctx context.Context, q Querier, accountID string, limit int) ([]domain.Trade, error) {
	query := `
SELECT id,order_id,account_id,symbol,side,quantity,price,total,fee,executed_at
FROM trades WHERE account_id=? ORDER BY executed_at DESC`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

// ListTradesAsc returns the full history in chronological order, the shape
// the performance walk needs.
func ListTradesAsc(ctx context.Context, q Querier, accountID string) ([]domain.Trade, error) {
	rows, err := q.QueryContext(ctx, `
SELECT id,order_id,account_id,symbol,side,quantity,price,total,fee,executed_at
FROM trades WHERE account_id=? ORDER BY executed_at
`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanTrades(rows *sql.Rows) ([]domain.Trade, error) {
	var out []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side, qty, price, total, fee, executed string
		var orderID sql.NullString
		if err := rows.Scan(&t.ID, &orderID, &t.AccountID, &t.Symbol, &side, &qty, &price, &total, &fee, &executed); err != nil {
			return nil, err
		}
		t.Side = domain.OrderSide(side)
		t.Quantity = parseDec(qty)
		t.Price = parseDec(price)
		t.Total = parseDec(total)
		t.Fee = parseDec(fee)
		t.ExecutedAt = parseTime(executed)
		if orderID.Valid {
			v := orderID.String
			t.OrderID = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
