package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const userColumns = `id, username, email, hashed_password, first_name, last_name, role, favorites,
       created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.Email,
		&i.HashedPassword,
		&i.FirstName,
		&i.LastName,
		&i.Role,
		&i.Favorites,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const addFavorite = `-- name: AddFavorite :one
UPDATE users
SET favorites = CASE WHEN $2::uuid = ANY(favorites) THEN favorites ELSE array_append(favorites, $2::uuid) END,
    updated_at = now()
WHERE id = $1
RETURNING ` + userColumns

type AddFavoriteParams struct {
	ID     uuid.UUID `json:"id"`
	ItemID uuid.UUID `json:"item_id"`
}

func (q *Queries) AddFavorite(ctx context.Context, arg AddFavoriteParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, addFavorite, arg.ID, arg.ItemID))
}

const createUser = `-- name: CreateUser :one
INSERT INTO users (username, email, hashed_password, first_name, last_name, role)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + userColumns

type CreateUserParams struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	HashedPassword string `json:"hashed_password"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Role           string `json:"role"`
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, createUser,
		arg.Username,
		arg.Email,
		arg.HashedPassword,
		arg.FirstName,
		arg.LastName,
		arg.Role,
	))
}

const createWaiter = `-- name: CreateWaiter :exec
INSERT INTO waiters (user_id) VALUES ($1)
ON CONFLICT (user_id) DO NOTHING
`

func (q *Queries) CreateWaiter(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.Exec(ctx, createWaiter, userID)
	return err
}

const deleteUser = `-- name: DeleteUser :execrows
DELETE FROM users WHERE id = $1
`

func (q *Queries) DeleteUser(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteUser, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteWaiter = `-- name: DeleteWaiter :exec
DELETE FROM waiters WHERE user_id = $1
`

func (q *Queries) DeleteWaiter(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteWaiter, userID)
	return err
}

const endWaiterShift = `-- name: EndWaiterShift :one
UPDATE waiters SET end_time = $2
WHERE user_id = $1
RETURNING user_id, start_time, end_time
`

type WaiterShiftParams struct {
	UserID uuid.UUID          `json:"user_id"`
	At     pgtype.Timestamptz `json:"at"`
}

func (q *Queries) EndWaiterShift(ctx context.Context, arg WaiterShiftParams) (Waiter, error) {
	row := q.db.QueryRow(ctx, endWaiterShift, arg.UserID, arg.At)
	var i Waiter
	err := row.Scan(&i.UserID, &i.StartTime, &i.EndTime)
	return i, err
}

const getUserByID = `-- name: GetUserByID :one
SELECT ` + userColumns + `
FROM users
WHERE id = $1
`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByID, id))
}

const getUserByIDForUpdate = `-- name: GetUserByIDForUpdate :one
SELECT ` + userColumns + `
FROM users
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetUserByIDForUpdate(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByIDForUpdate, id))
}

const getUserByLogin = `-- name: GetUserByLogin :one
SELECT ` + userColumns + `
FROM users
WHERE username = $1 OR email = $1
LIMIT 1
`

// GetUserByLogin matches either the username or the email address.
func (q *Queries) GetUserByLogin(ctx context.Context, login string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByLogin, login))
}

const getWaiter = `-- name: GetWaiter :one
SELECT user_id, start_time, end_time
FROM waiters
WHERE user_id = $1
`

func (q *Queries) GetWaiter(ctx context.Context, userID uuid.UUID) (Waiter, error) {
	row := q.db.QueryRow(ctx, getWaiter, userID)
	var i Waiter
	err := row.Scan(&i.UserID, &i.StartTime, &i.EndTime)
	return i, err
}

const listUsers = `-- name: ListUsers :many
SELECT ` + userColumns + `
FROM users
ORDER BY username
`

func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.Query(ctx, listUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []User{}
	for rows.Next() {
		i, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const removeFavorite = `-- name: RemoveFavorite :one
UPDATE users SET favorites = array_remove(favorites, $2::uuid), updated_at = now()
WHERE id = $1
RETURNING ` + userColumns

type RemoveFavoriteParams struct {
	ID     uuid.UUID `json:"id"`
	ItemID uuid.UUID `json:"item_id"`
}

func (q *Queries) RemoveFavorite(ctx context.Context, arg RemoveFavoriteParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, removeFavorite, arg.ID, arg.ItemID))
}

const startWaiterShift = `-- name: StartWaiterShift :one
UPDATE waiters SET start_time = $2, end_time = NULL
WHERE user_id = $1
RETURNING user_id, start_time, end_time
`

func (q *Queries) StartWaiterShift(ctx context.Context, arg WaiterShiftParams) (Waiter, error) {
	row := q.db.QueryRow(ctx, startWaiterShift, arg.UserID, arg.At)
	var i Waiter
	err := row.Scan(&i.UserID, &i.StartTime, &i.EndTime)
	return i, err
}

const updateUserRole = `-- name: UpdateUserRole :one
UPDATE users SET role = $2, updated_at = now()
WHERE id = $1
RETURNING ` + userColumns

type UpdateUserRoleParams struct {
	ID   uuid.UUID `json:"id"`
	Role string    `json:"role"`
}

func (q *Queries) UpdateUserRole(ctx context.Context, arg UpdateUserRoleParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, updateUserRole, arg.ID, arg.Role))
}
