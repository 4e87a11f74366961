package service

import (
	"context"
	"errors"
	"testing"

	"github.com/servizo/api/internal/database"
	"github.com/servizo/api/internal/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTablePayAll(t *testing.T) {
	f := newMenuFixture(t)
	ctx := context.Background()
	a := placeOrder(t, f, 1, LineItem{ItemID: f.burger.ID, Quantity: 1})
	b := placeOrder(t, f, 1, LineItem{ItemID: f.fries.ID, Quantity: 1})
	c := placeOrder(t, f, 1, LineItem{ItemID: f.fries.ID, Quantity: 2})
	_, err := f.orders.Cancel(ctx, c.ID)
	require.NoError(t, err)
	placeOrder(t, f, 2, LineItem{ItemID: f.burger.ID, Quantity: 1})
	f.events.events = nil

	n, err := f.tables.PayAll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []database.Order{a, b} {
		got, err := f.orders.Get(ctx, id.ID)
		require.NoError(t, err)
		assert.Equal(t, database.OrderStatusPaid, got.Status)
	}
	// Cancelled orders are not settled by PayAll and keep counting.
	requireDue(t, f, 1, "6.00")
	requireDue(t, f, 2, "5.00")

	require.Len(t, f.events.events, 2)
	for _, e := range f.events.events {
		assert.Equal(t, enum.EventOrderPaid, e.Type)
		assert.True(t, money("6").Equal(e.AmountDue))
	}

	n, err = f.tables.PayAll(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTablePayAll_RepricesOrders(t *testing.T) {
	f := newMenuFixture(t)
	ctx := context.Background()
	o := placeOrder(t, f, 1, LineItem{ItemID: f.burger.ID, Quantity: 2})
	_, err := f.menu.UpdatePrice(ctx, f.burger.ID, money("6.50"))
	require.NoError(t, err)

	n, err := f.tables.PayAll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	requireTotal(t, "13.00", got)
	requireDue(t, f, 1, "0.00")
}

func TestTablePayAll_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.tables.PayAll(context.Background(), 42)
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestTablePayAll_FailureIsAllOrNothing(t *testing.T) {
	f := newMenuFixture(t)
	ctx := context.Background()
	placeOrder(t, f, 1, LineItem{ItemID: f.burger.ID, Quantity: 1})
	placeOrder(t, f, 1, LineItem{ItemID: f.fries.ID, Quantity: 1})
	f.db.errs["MarkOrderPaid"] = errors.New("boom")

	_, err := f.tables.PayAll(ctx, 1)
	require.Error(t, err)
	delete(f.db.errs, "MarkOrderPaid")

	unpaid, err := f.tables.UnpaidOrders(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, unpaid, 2)
	requireDue(t, f, 1, "8.00")
}

func TestTableCreate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tbl, err := f.tables.Create(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(3), tbl.TableNumber)
	assert.True(t, numericToDecimal(tbl.AmountDue).IsZero())

	_, err = f.tables.Create(ctx, 3)
	assert.ErrorIs(t, err, ErrDuplicateTable)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.tables.Create(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidTableNumber)
}

func TestTableCreateNext(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.tables.CreateNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), first.TableNumber)

	_, err = f.tables.Create(ctx, 5)
	require.NoError(t, err)

	next, err := f.tables.CreateNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(6), next.TableNumber)

	tables, err := f.tables.List(ctx)
	require.NoError(t, err)
	assert.Len(t, tables, 3)
}

func TestTableRecompute(t *testing.T) {
	f := newMenuFixture(t)
	ctx := context.Background()
	placeOrder(t, f, 2, LineItem{ItemID: f.fries.ID, Quantity: 3})

	// Drift the cached value and recompute it back.
	st := f.db.store(f.db)
	_, err := st.UpdateTableAmountDue(ctx, database.UpdateTableAmountDueParams{TableNumber: 2, AmountDue: decimalToNumeric(money("99"))})
	require.NoError(t, err)

	due, err := f.tables.Recompute(ctx, 2)
	require.NoError(t, err)
	assert.True(t, money("9").Equal(due))
	requireDue(t, f, 2, "9.00")
}

func TestTableDelete(t *testing.T) {
	f := newMenuFixture(t)
	ctx := context.Background()
	o := placeOrder(t, f, 2, LineItem{ItemID: f.fries.ID, Quantity: 1})

	require.NoError(t, f.tables.Delete(ctx, 2))
	assert.ErrorIs(t, f.tables.Delete(ctx, 2), ErrTableNotFound)
	_, err := f.tables.Get(ctx, 2)
	assert.ErrorIs(t, err, ErrTableNotFound)

	// Orders outlive their table.
	_, err = f.orders.Get(ctx, o.ID)
	assert.NoError(t, err)
}
