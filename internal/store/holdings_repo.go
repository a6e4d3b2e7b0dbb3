package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/betfold/papertrade/internal/domain"
)

func GetHolding(ctx context.Context, q Querier, accountID, symbol string) (*domain.Holding, error) {
	row := q.QueryRowContext(ctx, `
SELECT account_id,symbol,quantity,avg_purchase_price,updated_at
FROM holdings WHERE account_id=? AND symbol=?
`, accountID, symbol)
	var h domain.Holding
	var qty, avg, updated string
	if err := row.Scan(&h.AccountID, &h.Symbol, &qty, &avg, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	h.Quantity = parseDec(qty)
	h.AvgPurchasePrice = parseDec(avg)
	h.UpdatedAt = parseTime(updated)
	return &h, nil
}

func UpsertHolding(ctx context.Context, q Querier, h *domain.Holding) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO holdings (account_id,symbol,quantity,avg_purchase_price,updated_at)
VALUES (?,?,?,?,?)
ON CONFLICT(account_id,symbol) DO UPDATE SET
  quantity=excluded.quantity,
  avg_purchase_price=excluded.avg_purchase_price,
  updated_at=excluded.updated_at
`, h.AccountID, h.Symbol, h.Quantity.String(), h.AvgPurchasePrice.String(), fmtTime(time.Now()))
	return err
}

func DeleteHolding(ctx context.Context, q Querier, accountID, symbol string) error {
	_, err := q.ExecContext(ctx, `
DELETE FROM holdings WHERE account_id=? AND symbol=?
`, accountID, symbol)
	return err
}

func ListHoldings(ctx context.Context, q Querier, accountID string) ([]domain.Holding, error) {
	rows, err := q.QueryContext(ctx, `
SELECT account_id,symbol,quantity,avg_purchase_price,updated_at
FROM holdings WHERE account_id=? ORDER BY symbol
`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Holding
	for rows.Next() {
		var h domain.Holding
		var qty, avg, updated string
		if err := rows.Scan(&h.AccountID, &h.Symbol, &qty, &avg, &updated); err != nil {
			return nil, err
		}
		h.Quantity = parseDec(qty)
		h.AvgPurchasePrice = parseDec(avg)
		h.UpdatedAt = parseTime(updated)
		out = append(out, h)
	}
	return out, rows.Err()
}
