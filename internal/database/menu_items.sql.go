package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// MenuItemRow is a menu item joined with the path of its category. The path
// is empty when the category no longer exists.
type MenuItemRow struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	CategoryID   uuid.UUID      `json:"category_id"`
	Price        pgtype.Numeric `json:"price"`
	Available    bool           `json:"available"`
	Description  pgtype.Text    `json:"description"`
	LastUpdated  time.Time      `json:"last_updated"`
	CategoryPath pgtype.Text    `json:"category_path"`
}

const createMenuItem = `-- name: CreateMenuItem :one
INSERT INTO menu_items (name, category_id, price, available, description)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, name, category_id, price, available, description, last_updated
`

type CreateMenuItemParams struct {
	Name        string         `json:"name"`
	CategoryID  uuid.UUID      `json:"category_id"`
	Price       pgtype.Numeric `json:"price"`
	Available   bool           `json:"available"`
	Description pgtype.Text    `json:"description"`
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, createMenuItem,
		arg.Name,
		arg.CategoryID,
		arg.Price,
		arg.Available,
		arg.Description,
	)
	var i MenuItem
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.CategoryID,
		&i.Price,
		&i.Available,
		&i.Description,
		&i.LastUpdated,
	)
	return i, err
}

const deleteMenuItem = `-- name: DeleteMenuItem :execrows
DELETE FROM menu_items WHERE id = $1
`

func (q *Queries) DeleteMenuItem(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteMenuItem, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteMenuItemsByCategory = `-- name: DeleteMenuItemsByCategory :execrows
DELETE FROM menu_items WHERE category_id = $1
`

func (q *Queries) DeleteMenuItemsByCategory(ctx context.Context, categoryID uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteMenuItemsByCategory, categoryID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getMenuItem = `-- name: GetMenuItem :one
SELECT m.id, m.name, m.category_id, m.price, m.available, m.description, m.last_updated,
       c.path AS category_path
FROM menu_items m
LEFT JOIN menu_categories c ON c.id = m.category_id
WHERE m.id = $1
`

func (q *Queries) GetMenuItem(ctx context.Context, id uuid.UUID) (MenuItemRow, error) {
	row := q.db.QueryRow(ctx, getMenuItem, id)
	var i MenuItemRow
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.CategoryID,
		&i.Price,
		&i.Available,
		&i.Description,
		&i.LastUpdated,
		&i.CategoryPath,
	)
	return i, err
}

const listMenuItemPrices = `-- name: ListMenuItemPrices :many
SELECT id, name, price, available
FROM menu_items
WHERE id = ANY($1::uuid[])
ORDER BY id
FOR SHARE
`

type ListMenuItemPricesRow struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Price     pgtype.Numeric `json:"price"`
	Available bool           `json:"available"`
}

// ListMenuItemPrices share-locks the given items so their prices cannot
// change until the calling transaction ends.
func (q *Queries) ListMenuItemPrices(ctx context.Context, ids []uuid.UUID) ([]ListMenuItemPricesRow, error) {
	rows, err := q.db.Query(ctx, listMenuItemPrices, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListMenuItemPricesRow{}
	for rows.Next() {
		var i ListMenuItemPricesRow
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.Price,
			&i.Available,
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

const listMenuItemsByIDs = `-- name: ListMenuItemsByIDs :many
SELECT id, name, price, available
FROM menu_items
WHERE id = ANY($1::uuid[])
ORDER BY id
`

func (q *Queries) ListMenuItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]ListMenuItemPricesRow, error) {
	rows, err := q.db.Query(ctx, listMenuItemsByIDs, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListMenuItemPricesRow{}
	for rows.Next() {
		var i ListMenuItemPricesRow
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.Price,
			&i.Available,
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

const listMenuItems = `-- name: ListMenuItems :many
SELECT m.id, m.name, m.category_id, m.price, m.available, m.description, m.last_updated,
       c.path AS category_path
FROM menu_items m
LEFT JOIN menu_categories c ON c.id = m.category_id
WHERE ($1::boolean = false OR m.available)
ORDER BY c.path, m.name
`

func (q *Queries) ListMenuItems(ctx context.Context, availableOnly bool) ([]MenuItemRow, error) {
	rows, err := q.db.Query(ctx, listMenuItems, availableOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []MenuItemRow{}
	for rows.Next() {
		var i MenuItemRow
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.CategoryID,
			&i.Price,
			&i.Available,
			&i.Description,
			&i.LastUpdated,
			&i.CategoryPath,
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

const listMenuItemsByCategory = `-- name: ListMenuItemsByCategory :many
SELECT m.id, m.name, m.category_id, m.price, m.available, m.description, m.last_updated,
       c.path AS category_path
FROM menu_items m
LEFT JOIN menu_categories c ON c.id = m.category_id
WHERE m.category_id = $1
ORDER BY m.name
`

func (q *Queries) ListMenuItemsByCategory(ctx context.Context, categoryID uuid.UUID) ([]MenuItemRow, error) {
	rows, err := q.db.Query(ctx, listMenuItemsByCategory, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []MenuItemRow{}
	for rows.Next() {
		var i MenuItemRow
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.CategoryID,
			&i.Price,
			&i.Available,
			&i.Description,
			&i.LastUpdated,
			&i.CategoryPath,
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

const updateMenuItemAvailability = `-- name: UpdateMenuItemAvailability :one
UPDATE menu_items SET available = $2, last_updated = now()
WHERE id = $1
RETURNING id, name, category_id, price, available, description, last_updated
`

type UpdateMenuItemAvailabilityParams struct {
	ID        uuid.UUID `json:"id"`
	Available bool      `json:"available"`
}

func (q *Queries) UpdateMenuItemAvailability(ctx context.Context, arg UpdateMenuItemAvailabilityParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, updateMenuItemAvailability, arg.ID, arg.Available)
	var i MenuItem
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.CategoryID,
		&i.Price,
		&i.Available,
		&i.Description,
		&i.LastUpdated,
	)
	return i, err
}

const updateMenuItemCategory = `-- name: UpdateMenuItemCategory :one
UPDATE menu_items SET category_id = $2, last_updated = now()
WHERE id = $1
RETURNING id, name, category_id, price, available, description, last_updated
`

type UpdateMenuItemCategoryParams struct {
	ID         uuid.UUID `json:"id"`
	CategoryID uuid.UUID `json:"category_id"`
}

func (q *Queries) UpdateMenuItemCategory(ctx context.Context, arg UpdateMenuItemCategoryParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, updateMenuItemCategory, arg.ID, arg.CategoryID)
	var i MenuItem
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.CategoryID,
		&i.Price,
		&i.Available,
		&i.Description,
		&i.LastUpdated,
	)
	return i, err
}

const updateMenuItemDetails = `-- name: UpdateMenuItemDetails :one
UPDATE menu_items SET name = $2, description = $3, last_updated = now()
WHERE id = $1
RETURNING id, name, category_id, price, available, description, last_updated
`

type UpdateMenuItemDetailsParams struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description pgtype.Text `json:"description"`
}

func (q *Queries) UpdateMenuItemDetails(ctx context.Context, arg UpdateMenuItemDetailsParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, updateMenuItemDetails, arg.ID, arg.Name, arg.Description)
	var i MenuItem
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.CategoryID,
		&i.Price,
		&i.Available,
		&i.Description,
		&i.LastUpdated,
	)
	return i, err
}

const updateMenuItemPrice = `-- name: UpdateMenuItemPrice :one
UPDATE menu_items SET price = $2, last_updated = now()
WHERE id = $1
RETURNING id, name, category_id, price, available, description, last_updated
`

type UpdateMenuItemPriceParams struct {
	ID    uuid.UUID      `json:"id"`
	Price pgtype.Numeric `json:"price"`
}

func (q *Queries) UpdateMenuItemPrice(ctx context.Context, arg UpdateMenuItemPriceParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, updateMenuItemPrice, arg.ID, arg.Price)
	var i MenuItem
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.CategoryID,
		&i.Price,
		&i.Available,
		&i.Description,
		&i.LastUpdated,
	)
	return i, err
}
