package database

import "context"

const acquireXactLock = `-- name: AcquireXactLock :exec
SELECT pg_advisory_xact_lock($1)
`

// AcquireXactLock blocks until the transaction-scoped advisory lock for key
// is held. The lock is released on commit or rollback.
func (q *Queries) AcquireXactLock(ctx context.Context, key int64) error {
	_, err := q.db.Exec(ctx, acquireXactLock, key)
	return err
}
