package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, items, table_num, total_price, status, ordered_at, paid_at`

func scanOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		var i Order
		if err := rows.Scan(
			&i.ID,
			&i.Items,
			&i.TableNum,
			&i.TotalPrice,
			&i.Status,
			&i.OrderedAt,
			&i.PaidAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.Items,
		&i.TableNum,
		&i.TotalPrice,
		&i.Status,
		&i.OrderedAt,
		&i.PaidAt,
	)
	return i, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (items, table_num, total_price, status)
VALUES ($1, $2, $3, $4)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	Items      []uuid.UUID    `json:"items"`
	TableNum   int32          `json:"table_num"`
	TotalPrice pgtype.Numeric `json:"total_price"`
	Status     OrderStatus    `json:"status"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder,
		arg.Items,
		arg.TableNum,
		arg.TotalPrice,
		arg.Status,
	))
}

const deleteOrder = `-- name: DeleteOrder :execrows
DELETE FROM orders WHERE id = $1
`

func (q *Queries) DeleteOrder(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteOrder, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
FOR NO KEY UPDATE
`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + `
FROM orders
WHERE ($1::int IS NULL OR table_num = $1)
  AND ($2::text IS NULL OR status = $2)
ORDER BY ordered_at DESC, id
LIMIT $3 OFFSET $4
`

type ListOrdersParams struct {
	TableNum pgtype.Int4 `json:"table_num"`
	Status   pgtype.Text `json:"status"`
	Limit    int32       `json:"limit"`
	Offset   int32       `json:"offset"`
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders,
		arg.TableNum,
		arg.Status,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

const listOrdersByIDs = `-- name: ListOrdersByIDs :many
SELECT ` + orderColumns + `
FROM orders
WHERE id = ANY($1::uuid[])
ORDER BY id
`

func (q *Queries) ListOrdersByIDs(ctx context.Context, ids []uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByIDs, ids)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

const listOrdersByIDsForUpdate = `-- name: ListOrdersByIDsForUpdate :many
SELECT ` + orderColumns + `
FROM orders
WHERE id = ANY($1::uuid[])
ORDER BY id
FOR NO KEY UPDATE
`

func (q *Queries) ListOrdersByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByIDsForUpdate, ids)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

const listUnpaidOrdersByTable = `-- name: ListUnpaidOrdersByTable :many
SELECT ` + orderColumns + `
FROM orders
WHERE table_num = $1 AND status IN ('new', 'preparing', 'served')
ORDER BY ordered_at, id
`

// ListUnpaidOrdersByTable returns the orders of a table that still await
// payment. Cancelled orders are not listed.
func (q *Queries) ListUnpaidOrdersByTable(ctx context.Context, tableNum int32) ([]Order, error) {
	rows, err := q.db.Query(ctx, listUnpaidOrdersByTable, tableNum)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

const listUnpaidOrdersByTableForUpdate = `-- name: ListUnpaidOrdersByTableForUpdate :many
SELECT ` + orderColumns + `
FROM orders
WHERE table_num = $1 AND status IN ('new', 'preparing', 'served')
ORDER BY id
FOR NO KEY UPDATE
`

func (q *Queries) ListUnpaidOrdersByTableForUpdate(ctx context.Context, tableNum int32) ([]Order, error) {
	rows, err := q.db.Query(ctx, listUnpaidOrdersByTableForUpdate, tableNum)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

const markOrderPaid = `-- name: MarkOrderPaid :one
UPDATE orders SET status = 'paid', paid_at = $2, total_price = $3
WHERE id = $1
RETURNING ` + orderColumns

type MarkOrderPaidParams struct {
	ID         uuid.UUID          `json:"id"`
	PaidAt     pgtype.Timestamptz `json:"paid_at"`
	TotalPrice pgtype.Numeric     `json:"total_price"`
}

func (q *Queries) MarkOrderPaid(ctx context.Context, arg MarkOrderPaidParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, markOrderPaid, arg.ID, arg.PaidAt, arg.TotalPrice))
}

const sumTableDue = `-- name: SumTableDue :one
SELECT COALESCE(SUM(total_price), 0)::numeric(10, 2)
FROM orders
WHERE table_num = $1 AND status <> 'paid'
`

// SumTableDue totals every order of the table that is not paid. Cancelled
// orders are included.
func (q *Queries) SumTableDue(ctx context.Context, tableNum int32) (pgtype.Numeric, error) {
	row := q.db.QueryRow(ctx, sumTableDue, tableNum)
	var due pgtype.Numeric
	err := row.Scan(&due)
	return due, err
}

const updateOrderItems = `-- name: UpdateOrderItems :one
UPDATE orders SET items = $2, total_price = $3
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderItemsParams struct {
	ID         uuid.UUID      `json:"id"`
	Items      []uuid.UUID    `json:"items"`
	TotalPrice pgtype.Numeric `json:"total_price"`
}

func (q *Queries) UpdateOrderItems(ctx context.Context, arg UpdateOrderItemsParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderItems, arg.ID, arg.Items, arg.TotalPrice))
}

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders SET status = $2, total_price = $3
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID         uuid.UUID      `json:"id"`
	Status     OrderStatus    `json:"status"`
	TotalPrice pgtype.Numeric `json:"total_price"`
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status, arg.TotalPrice))
}
