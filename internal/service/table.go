package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/servizo/api/internal/database"
	"github.com/servizo/api/internal/enum"
	"github.com/servizo/api/internal/observability"
	"github.com/shopspring/decimal"
)

const maxTableNumberRetries = 3

// TableDueStore recomputes the cached amount due of a table.
// Satisfied by *database.Queries.
type TableDueStore interface {
	SumTableDue(ctx context.Context, tableNum int32) (pgtype.Numeric, error)
	UpdateTableAmountDue(ctx context.Context, arg database.UpdateTableAmountDueParams) (int64, error)
}

// TableStore defines the DB methods needed by table accounts.
// Satisfied by *database.Queries; narrow interface for testability.
type TableStore interface {
	Locker
	TableDueStore
	CreateTable(ctx context.Context, tableNumber int32) (database.Table, error)
	GetMaxTableNumber(ctx context.Context) (int32, error)
	GetTableByNumber(ctx context.Context, tableNumber int32) (database.Table, error)
	ListTables(ctx context.Context) ([]database.Table, error)
	DeleteTable(ctx context.Context, tableNumber int32) (int64, error)
	ListUnpaidOrdersByTable(ctx context.Context, tableNum int32) ([]database.Order, error)
	ListUnpaidOrdersByTableForUpdate(ctx context.Context, tableNum int32) ([]database.Order, error)
	MarkOrderPaid(ctx context.Context, arg database.MarkOrderPaidParams) (database.Order, error)
	ListMenuItemPrices(ctx context.Context, ids []uuid.UUID) ([]database.ListMenuItemPricesRow, error)
}

// NewTableStore creates a TableStore from a DBTX (pool or tx).
type NewTableStore func(db database.DBTX) TableStore

// TableService keeps each table's amount_due equal to the sum of its
// orders that are not paid. Cancelled orders still count.
type TableService struct {
	pool      DB
	newStore  NewTableStore
	publisher EventPublisher
	now       func() time.Time
}

// NewTableService creates a new TableService. A nil publisher discards
// events.
func NewTableService(pool DB, newStore NewTableStore, publisher EventPublisher) *TableService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &TableService{pool: pool, newStore: newStore, publisher: publisher, now: time.Now}
}

// recomputeTable writes the current due amount of a table and returns it.
// The caller must hold the table lock.
func recomputeTable(ctx context.Context, store TableDueStore, tableNum int32) (decimal.Decimal, error) {
	sum, err := store.SumTableDue(ctx, tableNum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum table due: %w", err)
	}
	due := numericToDecimal(sum)
	if _, err := store.UpdateTableAmountDue(ctx, database.UpdateTableAmountDueParams{
		TableNumber: tableNum,
		AmountDue:   decimalToNumeric(due),
	}); err != nil {
		return decimal.Zero, fmt.Errorf("update table amount due: %w", err)
	}
	return due, nil
}

// Get returns a single table.
func (s *TableService) Get(ctx context.Context, tableNum int32) (database.Table, error) {
	t, err := s.newStore(s.pool).GetTableByNumber(ctx, tableNum)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Table{}, ErrTableNotFound
		}
		return database.Table{}, fmt.Errorf("get table: %w", err)
	}
	return t, nil
}

// List returns every table ordered by number.
func (s *TableService) List(ctx context.Context) ([]database.Table, error) {
	tables, err := s.newStore(s.pool).ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

// UnpaidOrders lists the orders of a table awaiting payment.
func (s *TableService) UnpaidOrders(ctx context.Context, tableNum int32) ([]database.Order, error) {
	orders, err := s.newStore(s.pool).ListUnpaidOrdersByTable(ctx, tableNum)
	if err != nil {
		return nil, fmt.Errorf("list unpaid orders: %w", err)
	}
	return orders, nil
}

// Recompute refreshes amount_due from the table's orders.
func (s *TableService) Recompute(ctx context.Context, tableNum int32) (_ decimal.Decimal, err error) {
	ctx, op := observability.Start(ctx, "table.recompute", observability.TableAttr(tableNum))
	defer op.End(&err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	if err := lockTables(ctx, store, tableNum); err != nil {
		return decimal.Zero, fmt.Errorf("lock table: %w", err)
	}
	due, err := recomputeTable(ctx, store, tableNum)
	if err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("commit tx: %w", err)
	}
	return due, nil
}

// PayAll marks every new, preparing or served order of the table as paid
// and returns how many orders changed.
func (s *TableService) PayAll(ctx context.Context, tableNum int32) (_ int, err error) {
	ctx, op := observability.Start(ctx, "table.pay_all", observability.TableAttr(tableNum))
	defer op.End(&err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if _, err := store.GetTableByNumber(ctx, tableNum); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrTableNotFound
		}
		return 0, fmt.Errorf("get table: %w", err)
	}
	if err := lockTables(ctx, store, tableNum); err != nil {
		return 0, fmt.Errorf("lock table: %w", err)
	}

	orders, err := store.ListUnpaidOrdersByTableForUpdate(ctx, tableNum)
	if err != nil {
		return 0, fmt.Errorf("list unpaid orders: %w", err)
	}
	at := pgtype.Timestamptz{Time: s.now(), Valid: true}
	paid := make([]database.Order, 0, len(orders))
	for _, o := range orders {
		total, err := repriceOrder(ctx, store, o.Items)
		if err != nil {
			return 0, fmt.Errorf("order %s: %w", o.ID, err)
		}
		updated, err := store.MarkOrderPaid(ctx, database.MarkOrderPaidParams{ID: o.ID, PaidAt: at, TotalPrice: total})
		if err != nil {
			return 0, fmt.Errorf("mark order %s paid: %w", o.ID, err)
		}
		paid = append(paid, updated)
	}
	due, err := recomputeTable(ctx, store, tableNum)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	for _, o := range paid {
		s.publisher.PublishOrder(ctx, OrderEvent{Type: enum.EventOrderPaid, Order: o, AmountDue: due})
	}
	return len(paid), nil
}

// Create adds a table with the given number. Orders already placed for that
// number are reflected in its amount_due.
func (s *TableService) Create(ctx context.Context, tableNum int32) (database.Table, error) {
	if tableNum <= 0 {
		return database.Table{}, ErrInvalidTableNumber
	}
	return s.createTx(ctx, tableNum)
}

// CreateNext adds a table numbered one above the current highest.
// Retries up to maxTableNumberRetries times when a concurrent call takes
// the same number.
func (s *TableService) CreateNext(ctx context.Context) (database.Table, error) {
	var lastErr error
	for attempt := 0; attempt < maxTableNumberRetries; attempt++ {
		maxNum, err := s.newStore(s.pool).GetMaxTableNumber(ctx)
		if err != nil {
			return database.Table{}, fmt.Errorf("get max table number: %w", err)
		}
		t, err := s.createTx(ctx, maxNum+1)
		if err == nil {
			return t, nil
		}
		if errors.Is(err, ErrDuplicateTable) {
			lastErr = err
			continue
		}
		return database.Table{}, err
	}
	return database.Table{}, lastErr
}

func (s *TableService) createTx(ctx context.Context, tableNum int32) (database.Table, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Table{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	if err := lockTables(ctx, store, tableNum); err != nil {
		return database.Table{}, fmt.Errorf("lock table: %w", err)
	}

	t, err := store.CreateTable(ctx, tableNum)
	if err != nil {
		if isUniqueViolation(err, "") {
			return database.Table{}, ErrDuplicateTable
		}
		return database.Table{}, fmt.Errorf("create table: %w", err)
	}
	due, err := recomputeTable(ctx, store, tableNum)
	if err != nil {
		return database.Table{}, err
	}
	t.AmountDue = decimalToNumeric(due)

	if err := tx.Commit(ctx); err != nil {
		return database.Table{}, fmt.Errorf("commit tx: %w", err)
	}
	return t, nil
}

// Delete removes a table. Its orders are kept.
func (s *TableService) Delete(ctx context.Context, tableNum int32) error {
	n, err := s.newStore(s.pool).DeleteTable(ctx, tableNum)
	if err != nil {
		return fmt.Errorf("delete table: %w", err)
	}
	if n == 0 {
		return ErrTableNotFound
	}
	return nil
}
