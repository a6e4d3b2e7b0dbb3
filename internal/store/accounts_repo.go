package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/betfold/papertrade/internal/domain"
)

func InsertAccount(ctx context.Context, q Querier, a *domain.Account) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO accounts (id,email,password_hash,created_at,updated_at)
VALUES (?,?,?,?,?)
`, a.ID, a.Email, a.PasswordHash, fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt))
	return err
}

func GetAccount(ctx context.Context, q Querier, accountID string) (*domain.Account, error) {
	row := q.QueryRowContext(ctx, `
SELECT id,email,password_hash,created_at,updated_at
FROM accounts WHERE id=?
`, accountID)
	return scanAccount(row)
}

func GetAccountByEmail(ctx context.Context, q Querier, email string) (*domain.Account, error) {
	row := q.QueryRowContext(ctx, `
SELECT id,email,password_hash,created_at,updated_at
FROM accounts WHERE email=?
`, email)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var a domain.Account
	var created, updated string
	if err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return &a, nil
}
