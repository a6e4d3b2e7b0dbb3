package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/betfold/papertrade/internal/domain"
)

func GetBalance(ctx context.Context, q Querier, accountID, currency string) (*domain.Balance, error) {
	row := q.QueryRowContext(ctx, `
SELECT account_id,currency,amount,updated_at
FROM balances WHERE account_id=? AND currency=?
`, accountID, currency)
	var b domain.Balance
	var amount, updated string
	if err := row.Scan(&b.AccountID, &b.Currency, &amount, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	b.Amount = parseDec(amount)
	b.UpdatedAt = parseTime(updated)
	return &b, nil
}

func UpsertBalance(ctx context.Context, q Querier, b *domain.Balance) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO balances (account_id,currency,amount,updated_at)
VALUES (?,?,?,?)
ON CONFLICT(account_id,currency) DO UPDATE SET amount=excluded.amount, updated_at=excluded.updated_at
`, b.AccountID, b.Currency, b.Amount.String(), fmtTime(time.Now()))
	return err
}

func ListBalances(ctx context.Context, q Querier, accountID string) ([]domain.Balance, error) {
	rows, err := q.QueryContext(ctx, `
SELECT account_id,currency,amount,updated_at
FROM balances WHERE account_id=? ORDER BY currency
`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Balance
	for rows.Next() {
		var b domain.Balance
		var amount, updated string
		if err := rows.Scan(&b.AccountID, &b.Currency, &amount, &updated); err != nil {
			return nil, err
		}
		b.Amount = parseDec(amount)
		b.UpdatedAt = parseTime(updated)
		out = append(out, b)
	}
	return out, rows.Err()
}
