package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createCategory = `-- name: CreateCategory :one
INSERT INTO menu_categories (name, parent_id, path, ancestors)
VALUES ($1, $2, $3, $4)
RETURNING id, name, parent_id, path, ancestors, created_at
`

type CreateCategoryParams struct {
	Name      string      `json:"name"`
	ParentID  pgtype.UUID `json:"parent_id"`
	Path      string      `json:"path"`
	Ancestors []uuid.UUID `json:"ancestors"`
}

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (Category, error) {
	row := q.db.QueryRow(ctx, createCategory,
		arg.Name,
		arg.ParentID,
		arg.Path,
		arg.Ancestors,
	)
	var i Category
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.ParentID,
		&i.Path,
		&i.Ancestors,
		&i.CreatedAt,
	)
	return i, err
}

const deleteCategory = `-- name: DeleteCategory :execrows
DELETE FROM menu_categories WHERE id = $1
`

func (q *Queries) DeleteCategory(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteCategory, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getCategory = `-- name: GetCategory :one
SELECT id, name, parent_id, path, ancestors, created_at
FROM menu_categories
WHERE id = $1
`

func (q *Queries) GetCategory(ctx context.Context, id uuid.UUID) (Category, error) {
	row := q.db.QueryRow(ctx, getCategory, id)
	var i Category
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.ParentID,
		&i.Path,
		&i.Ancestors,
		&i.CreatedAt,
	)
	return i, err
}

const getCategoryByPath = `-- name: GetCategoryByPath :one
SELECT id, name, parent_id, path, ancestors, created_at
FROM menu_categories
WHERE path = $1
`

func (q *Queries) GetCategoryByPath(ctx context.Context, path string) (Category, error) {
	row := q.db.QueryRow(ctx, getCategoryByPath, path)
	var i Category
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.ParentID,
		&i.Path,
		&i.Ancestors,
		&i.CreatedAt,
	)
	return i, err
}

const getCategoryForShare = `-- name: GetCategoryForShare :one
SELECT id, name, parent_id, path, ancestors, created_at
FROM menu_categories
WHERE id = $1
FOR KEY SHARE
`

// GetCategoryForShare keeps the category from being deleted until the
// calling transaction ends.
func (q *Queries) GetCategoryForShare(ctx context.Context, id uuid.UUID) (Category, error) {
	row := q.db.QueryRow(ctx, getCategoryForShare, id)
	var i Category
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.ParentID,
		&i.Path,
		&i.Ancestors,
		&i.CreatedAt,
	)
	return i, err
}

const getCategoryForUpdate = `-- name: GetCategoryForUpdate :one
SELECT id, name, parent_id, path, ancestors, created_at
FROM menu_categories
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetCategoryForUpdate(ctx context.Context, id uuid.UUID) (Category, error) {
	row := q.db.QueryRow(ctx, getCategoryForUpdate, id)
	var i Category
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.ParentID,
		&i.Path,
		&i.Ancestors,
		&i.CreatedAt,
	)
	return i, err
}

const listCategories = `-- name: ListCategories :many
SELECT id, name, parent_id, path, ancestors, created_at
FROM menu_categories
ORDER BY path
`

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.Query(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Category{}
	for rows.Next() {
		var i Category
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.ParentID,
			&i.Path,
			&i.Ancestors,
			&i.CreatedAt,
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

const listCategoryDescendants = `-- name: ListCategoryDescendants :many
SELECT id, name, parent_id, path, ancestors, created_at
FROM menu_categories
WHERE path LIKE $1 ESCAPE '\'
ORDER BY cardinality(ancestors), path
`

// ListCategoryDescendants returns every category whose path matches the LIKE
// pattern, shallowest first. Callers pass an escaped "<path>/%" pattern.
func (q *Queries) ListCategoryDescendants(ctx context.Context, pattern string) ([]Category, error) {
	rows, err := q.db.Query(ctx, listCategoryDescendants, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Category{}
	for rows.Next() {
		var i Category
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.ParentID,
			&i.Path,
			&i.Ancestors,
			&i.CreatedAt,
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

const listChildCategories = `-- name: ListChildCategories :many
SELECT id, name, parent_id, path, ancestors, created_at
FROM menu_categories
WHERE parent_id IS NOT DISTINCT FROM $1
ORDER BY name
`

// ListChildCategories returns the direct children of parentID. An invalid
// parentID lists the top-level categories.
func (q *Queries) ListChildCategories(ctx context.Context, parentID pgtype.UUID) ([]Category, error) {
	rows, err := q.db.Query(ctx, listChildCategories, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Category{}
	for rows.Next() {
		var i Category
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.ParentID,
			&i.Path,
			&i.Ancestors,
			&i.CreatedAt,
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

const updateCategoryTree = `-- name: UpdateCategoryTree :one
UPDATE menu_categories
SET name = $2, parent_id = $3, path = $4, ancestors = $5
WHERE id = $1
RETURNING id, name, parent_id, path, ancestors, created_at
`

type UpdateCategoryTreeParams struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	ParentID  pgtype.UUID `json:"parent_id"`
	Path      string      `json:"path"`
	Ancestors []uuid.UUID `json:"ancestors"`
}

func (q *Queries) UpdateCategoryTree(ctx context.Context, arg UpdateCategoryTreeParams) (Category, error) {
	row := q.db.QueryRow(ctx, updateCategoryTree,
		arg.ID,
		arg.Name,
		arg.ParentID,
		arg.Path,
		arg.Ancestors,
	)
	var i Category
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.ParentID,
		&i.Path,
		&i.Ancestors,
		&i.CreatedAt,
	)
	return i, err
}
