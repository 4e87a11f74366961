package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const getDailySales = `-- name: GetDailySales :many
SELECT (paid_at AT TIME ZONE $3::text)::date AS sale_date,
       COUNT(*) AS order_count,
       COALESCE(SUM(total_price), 0)::numeric AS total_revenue
FROM orders
WHERE status = 'paid' AND paid_at >= $1 AND paid_at < $2
GROUP BY sale_date
ORDER BY sale_date
`

type SalesRangeParams struct {
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Timezone string    `json:"timezone"`
}

type GetDailySalesRow struct {
	SaleDate     pgtype.Date    `json:"sale_date"`
	OrderCount   int64          `json:"order_count"`
	TotalRevenue pgtype.Numeric `json:"total_revenue"`
}

func (q *Queries) GetDailySales(ctx context.Context, arg SalesRangeParams) ([]GetDailySalesRow, error) {
	rows, err := q.db.Query(ctx, getDailySales, arg.From, arg.To, arg.Timezone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []GetDailySalesRow{}
	for rows.Next() {
		var i GetDailySalesRow
		if err := rows.Scan(&i.SaleDate, &i.OrderCount, &i.TotalRevenue); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getHourlySales = `-- name: GetHourlySales :many
SELECT EXTRACT(HOUR FROM paid_at AT TIME ZONE $3::text)::int AS hour,
       COUNT(*) AS order_count,
       COALESCE(SUM(total_price), 0)::numeric AS total_revenue
FROM orders
WHERE status = 'paid' AND paid_at >= $1 AND paid_at < $2
GROUP BY hour
ORDER BY hour
`

type GetHourlySalesRow struct {
	Hour         int32          `json:"hour"`
	OrderCount   int64          `json:"order_count"`
	TotalRevenue pgtype.Numeric `json:"total_revenue"`
}

func (q *Queries) GetHourlySales(ctx context.Context, arg SalesRangeParams) ([]GetHourlySalesRow, error) {
	rows, err := q.db.Query(ctx, getHourlySales, arg.From, arg.To, arg.Timezone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []GetHourlySalesRow{}
	for rows.Next() {
		var i GetHourlySalesRow
		if err := rows.Scan(&i.Hour, &i.OrderCount, &i.TotalRevenue); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getItemSales = `-- name: GetItemSales :many
SELECT u.item_id, COALESCE(m.name, '')::text AS item_name, COUNT(*) AS quantity_sold
FROM orders o
CROSS JOIN LATERAL unnest(o.items) AS u(item_id)
LEFT JOIN menu_items m ON m.id = u.item_id
WHERE o.status = 'paid' AND o.paid_at >= $1 AND o.paid_at < $2
GROUP BY u.item_id, m.name
ORDER BY quantity_sold DESC, item_name
LIMIT $3
`

type GetItemSalesParams struct {
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
	Limit int32     `json:"limit"`
}

type GetItemSalesRow struct {
	ItemID       uuid.UUID `json:"item_id"`
	ItemName     string    `json:"item_name"`
	QuantitySold int64     `json:"quantity_sold"`
}

func (q *Queries) GetItemSales(ctx context.Context, arg GetItemSalesParams) ([]GetItemSalesRow, error) {
	rows, err := q.db.Query(ctx, getItemSales, arg.From, arg.To, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []GetItemSalesRow{}
	for rows.Next() {
		var i GetItemSalesRow
		if err := rows.Scan(&i.ItemID, &i.ItemName, &i.QuantitySold); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getPaymentSummary = `-- name: GetPaymentSummary :many
SELECT status, COUNT(*) AS transaction_count, COALESCE(SUM(amount_cents), 0)::bigint AS total_cents
FROM payments
WHERE created_at >= $1 AND created_at < $2
GROUP BY status
ORDER BY status
`

type GetPaymentSummaryParams struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type GetPaymentSummaryRow struct {
	Status           PaymentStatus `json:"status"`
	TransactionCount int64         `json:"transaction_count"`
	TotalCents       int64         `json:"total_cents"`
}

func (q *Queries) GetPaymentSummary(ctx context.Context, arg GetPaymentSummaryParams) ([]GetPaymentSummaryRow, error) {
	rows, err := q.db.Query(ctx, getPaymentSummary, arg.From, arg.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []GetPaymentSummaryRow{}
	for rows.Next() {
		var i GetPaymentSummaryRow
		if err := rows.Scan(&i.Status, &i.TransactionCount, &i.TotalCents); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
