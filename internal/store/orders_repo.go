package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/betfold/papertrade/internal/domain"
)

func InsertOrder(ctx context.Context, q Querier, o *domain.Order) error {
	var price *string
	if o.Price != nil {
		v := o.Price.String()
		price = &v
	}
	_, err := q.ExecContext(ctx, `
INSERT INTO orders (id,account_id,symbol,type,side,quantity,price,status,created_at,filled_at)
VALUES (?,?,?,?,?,?,?,?,?,NULL)
`, o.ID, o.AccountID, o.Symbol, string(o.Type), string(o.Side), o.Quantity.String(), price, string(o.Status), fmtTime(o.CreatedAt))
	return err
}

// GetOrder returns the order only if it belongs to accountID; a foreign
// order is indistinguishable from a missing one.
func GetOrder(ctx context.Context, q Querier, accountID, orderID string) (*domain.Order, error) {
	rows, err := q.QueryContext(ctx, `
SELECT id,account_id,symbol,type,side,quantity,price,status,created_at,filled_at
FROM orders WHERE id=? AND account_id=?
`, orderID, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOneOrder(rows)
}

func ListOrders(ctx context.Context, q Querier, accountID string) ([]domain.Order, error) {
	rows, err := q.QueryContext(ctx, `
SELECT id,account_id,symbol,type,side,quantity,price,status,created_at,filled_at
FROM orders WHERE account_id=? ORDER BY created_at DESC
`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

// ListPendingConditionalOrders loads every pending limit and stop-loss
// order across all accounts, oldest first. Market orders never show up
// here: they leave pending within their creation call.
func ListPendingConditionalOrders(ctx context.Context, q Querier) ([]domain.Order, error) {
	rows, err := q.QueryContext(ctx, `
SELECT id,account_id,symbol,type,side,quantity,price,status,created_at,filled_at
FROM orders WHERE status=? AND type IN (?,?) ORDER BY created_at
`, string(domain.OrderStatusPending), string(domain.OrderTypeLimit), string(domain.OrderTypeStopLoss))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

// TransitionOrder moves a pending order to a terminal status and reports
// whether this call won the transition. The WHERE status='pending' guard is
// the compare-and-set that makes fills exactly-once and lets a concurrent
// cancel and fill resolve to exactly one winner.
func TransitionOrder(ctx context.Context, q Querier, orderID string, to domain.OrderStatus, filledAt *time.Time) (bool, error) {
	var fa *string
	if filledAt != nil {
		v := fmtTime(*filledAt)
		fa = &v
	}
	res, err := q.ExecContext(ctx, `
UPDATE orders SET status=?, filled_at=? WHERE id=? AND status=?
`, string(to), fa, orderID, string(domain.OrderStatusPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanOneOrder(rows *sql.Rows) (*domain.Order, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	o, err := scanOrder(rows)
	if err != nil {
		return nil, err
	}
	return o, rows.Err()
}

func scanOrders(rows *sql.Rows) ([]domain.Order, error) {
	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func scanOrder(rows *sql.Rows) (*domain.Order, error) {
	var o domain.Order
	var typ, side, status, qty, created string
	var price, filled sql.NullString
	if err := rows.Scan(&o.ID, &o.AccountID, &o.Symbol, &typ, &side, &qty, &price, &status, &created, &filled); err != nil {
		return nil, err
	}
	o.Type = domain.OrderType(typ)
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	o.Quantity = parseDec(qty)
	o.CreatedAt = parseTime(created)
	if price.Valid {
		p := parseDec(price.String)
		o.Price = &p
	}
	if filled.Valid {
		t := parseTime(filled.String)
		o.FilledAt = &t
	}
	return &o, nil
}
