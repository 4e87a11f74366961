package service

import (
	"context"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/servizo/api/internal/database"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DB runs queries outside a transaction and starts transactions.
// Satisfied by *pgxpool.Pool.
type DB interface {
	database.DBTX
	TxBeginner
}

// Locker takes transaction-scoped advisory locks.
// Satisfied by *database.Queries.
type Locker interface {
	AcquireXactLock(ctx context.Context, key int64) error
}

func treeLockKey(root uuid.UUID) int64 {
	return int64(xxhash.Sum64String("category:" + root.String()))
}

func tableLockKey(tableNum int32) int64 {
	return int64(xxhash.Sum64String("table:" + strconv.Itoa(int(tableNum))))
}

// lockKeys acquires every key once, in ascending order, so that two
// transactions locking overlapping sets cannot deadlock.
func lockKeys(ctx context.Context, l Locker, keys ...int64) error {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)
	for _, k := range keys {
		if err := l.AcquireXactLock(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// lockTables locks the given tables. Table locks come first in every
// transaction that also locks order rows.
func lockTables(ctx context.Context, l Locker, tableNums ...int32) error {
	keys := make([]int64, len(tableNums))
	for i, n := range tableNums {
		keys[i] = tableLockKey(n)
	}
	return lockKeys(ctx, l, keys...)
}
