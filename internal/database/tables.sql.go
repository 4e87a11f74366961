package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createTable = `-- name: CreateTable :one
INSERT INTO tables (table_number)
VALUES ($1)
RETURNING id, table_number, amount_due
`

func (q *Queries) CreateTable(ctx context.Context, tableNumber int32) (Table, error) {
	row := q.db.QueryRow(ctx, createTable, tableNumber)
	var i Table
	err := row.Scan(&i.ID, &i.TableNumber, &i.AmountDue)
	return i, err
}

const deleteTable = `-- name: DeleteTable :execrows
DELETE FROM tables WHERE table_number = $1
`

func (q *Queries) DeleteTable(ctx context.Context, tableNumber int32) (int64, error) {
	result, err := q.db.Exec(ctx, deleteTable, tableNumber)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getMaxTableNumber = `-- name: GetMaxTableNumber :one
SELECT COALESCE(MAX(table_number), 0)::int FROM tables
`

func (q *Queries) GetMaxTableNumber(ctx context.Context) (int32, error) {
	row := q.db.QueryRow(ctx, getMaxTableNumber)
	var n int32
	err := row.Scan(&n)
	return n, err
}

const getTableByNumber = `-- name: GetTableByNumber :one
SELECT id, table_number, amount_due
FROM tables
WHERE table_number = $1
`

func (q *Queries) GetTableByNumber(ctx context.Context, tableNumber int32) (Table, error) {
	row := q.db.QueryRow(ctx, getTableByNumber, tableNumber)
	var i Table
	err := row.Scan(&i.ID, &i.TableNumber, &i.AmountDue)
	return i, err
}

const listTables = `-- name: ListTables :many
SELECT id, table_number, amount_due
FROM tables
ORDER BY table_number
`

func (q *Queries) ListTables(ctx context.Context) ([]Table, error) {
	rows, err := q.db.Query(ctx, listTables)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Table{}
	for rows.Next() {
		var i Table
		if err := rows.Scan(&i.ID, &i.TableNumber, &i.AmountDue); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateTableAmountDue = `-- name: UpdateTableAmountDue :execrows
UPDATE tables SET amount_due = $2
WHERE table_number = $1
`

type UpdateTableAmountDueParams struct {
	TableNumber int32          `json:"table_number"`
	AmountDue   pgtype.Numeric `json:"amount_due"`
}

// UpdateTableAmountDue reports zero rows when no table carries the number;
// orders may reference a table that was never created.
func (q *Queries) UpdateTableAmountDue(ctx context.Context, arg UpdateTableAmountDueParams) (int64, error) {
	result, err := q.db.Exec(ctx, updateTableAmountDue, arg.TableNumber, arg.AmountDue)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
