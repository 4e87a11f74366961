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

const defaultOrderPageSize = 50

// Order size limits. A line may order at most MaxLineQuantity units and an
// order holds at most MaxOrderUnits units in total.
const (
	MaxLineQuantity = 100
	MaxOrderUnits   = 500
)

// maxOrderTotal is the largest total the orders table can store.
var maxOrderTotal = decimal.RequireFromString("99999999.99")

// ErrOrderCancelled is returned when items are changed on a cancelled order.
var ErrOrderCancelled = fmt.Errorf("%w: order is cancelled", ErrInvalidOperation)

// allowedTransitions lists the statuses each status may move to. Paid is
// terminal.
var allowedTransitions = map[database.OrderStatus][]database.OrderStatus{
	database.OrderStatusNew:       {database.OrderStatusPreparing, database.OrderStatusServed, database.OrderStatusCancelled, database.OrderStatusPaid},
	database.OrderStatusPreparing: {database.OrderStatusServed, database.OrderStatusCancelled, database.OrderStatusPaid},
	database.OrderStatusServed:    {database.OrderStatusCancelled, database.OrderStatusPaid},
	database.OrderStatusCancelled: {database.OrderStatusPaid},
}

// OrderStore defines the DB methods needed by the order ledger.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	Locker
	TableDueStore
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListUnpaidOrdersByTable(ctx context.Context, tableNum int32) ([]database.Order, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	UpdateOrderItems(ctx context.Context, arg database.UpdateOrderItemsParams) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	MarkOrderPaid(ctx context.Context, arg database.MarkOrderPaidParams) (database.Order, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) (int64, error)
	ListMenuItemPrices(ctx context.Context, ids []uuid.UUID) ([]database.ListMenuItemPricesRow, error)
	ListMenuItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]database.ListMenuItemPricesRow, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// LineItem is one line of a new order.
type LineItem struct {
	ItemID   uuid.UUID
	Quantity int32
}

// OrderFilter narrows List. Zero values mean no filter.
type OrderFilter struct {
	TableNum *int32
	Status   string
	Limit    int32
	Offset   int32
}

// OrderDetail is an order with its units grouped per menu item.
type OrderDetail struct {
	Order database.Order
	Lines []OrderLine
}

// OrderLine is a menu item and how many units of it the order holds, priced
// at the item's current price.
type OrderLine struct {
	ItemID    uuid.UUID
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int32
	Subtotal  decimal.Decimal
}

// OrderService owns the order lifecycle. Every committed mutation reprices
// the order from the live catalog and recomputes the table's amount_due in
// the same transaction.
//
// Lock order, shared with TableService and PaymentService: table advisory
// lock, then order rows, then menu item rows.
type OrderService struct {
	pool      DB
	newStore  NewOrderStore
	publisher EventPublisher
	now       func() time.Time
}

// NewOrderService creates a new OrderService. A nil publisher discards
// events.
func NewOrderService(pool DB, newStore NewOrderStore, publisher EventPublisher) *OrderService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &OrderService{pool: pool, newStore: newStore, publisher: publisher, now: time.Now}
}

// Place validates the lines, expands them into one entry per unit and
// stores a new order priced from the catalog.
func (s *OrderService) Place(ctx context.Context, tableNum int32, lines []LineItem) (_ database.Order, err error) {
	// --- Validate ---
	if tableNum <= 0 {
		return database.Order{}, ErrInvalidTableNumber
	}
	if len(lines) == 0 {
		return database.Order{}, ErrEmptyItems
	}
	count := 0
	for i, l := range lines {
		if l.Quantity <= 0 || l.Quantity > MaxLineQuantity {
			return database.Order{}, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		count += int(l.Quantity)
		if count > MaxOrderUnits {
			return database.Order{}, ErrTooManyUnits
		}
	}
	units := make([]uuid.UUID, 0, count)
	for _, l := range lines {
		for q := int32(0); q < l.Quantity; q++ {
			units = append(units, l.ItemID)
		}
	}

	ctx, op := observability.Start(ctx, "order.place", observability.TableAttr(tableNum))
	defer op.End(&err)

	// --- Begin transaction ---
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if err := lockTables(ctx, store, tableNum); err != nil {
		return database.Order{}, fmt.Errorf("lock table: %w", err)
	}

	prices, err := lockPrices(ctx, store, units)
	if err != nil {
		return database.Order{}, err
	}
	for i, l := range lines {
		p, ok := prices[l.ItemID]
		if !ok {
			return database.Order{}, fmt.Errorf("item[%d]: %w", i, ErrMenuItemNotFound)
		}
		if !p.Available {
			return database.Order{}, fmt.Errorf("item[%d]: %w", i, ErrItemUnavailable)
		}
	}

	total, err := checkedTotal(units, prices)
	if err != nil {
		return database.Order{}, err
	}
	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		Items:      units,
		TableNum:   tableNum,
		TotalPrice: total,
		Status:     database.OrderStatusNew,
	})
	if err != nil {
		return database.Order{}, fmt.Errorf("create order: %w", err)
	}
	due, err := recomputeTable(ctx, store, tableNum)
	if err != nil {
		return database.Order{}, err
	}

	// --- Commit ---
	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}

	s.publisher.PublishOrder(ctx, OrderEvent{Type: enum.EventOrderCreated, Order: order, AmountDue: due})
	return order, nil
}

// AddItem appends one unit of an available item and reprices the order.
func (s *OrderService) AddItem(ctx context.Context, orderID, itemID uuid.UUID) (_ database.Order, err error) {
	ctx, op := observability.Start(ctx, "order.add_item", observability.OrderAttr(orderID), observability.ItemAttr(itemID))
	defer op.End(&err)

	return s.mutate(ctx, orderID, enum.EventOrderUpdated, func(store OrderStore, o database.Order) (database.Order, error) {
		if err := checkItemsMutable(o); err != nil {
			return database.Order{}, err
		}
		if len(o.Items) >= MaxOrderUnits {
			return database.Order{}, ErrTooManyUnits
		}
		items := append(append([]uuid.UUID{}, o.Items...), itemID)
		prices, err := lockPrices(ctx, store, items)
		if err != nil {
			return database.Order{}, err
		}
		p, ok := prices[itemID]
		if !ok {
			return database.Order{}, ErrMenuItemNotFound
		}
		if !p.Available {
			return database.Order{}, ErrItemUnavailable
		}
		return s.saveItems(ctx, store, o.ID, items, prices)
	})
}

// RemoveItem removes the first unit of itemID and reprices the order.
func (s *OrderService) RemoveItem(ctx context.Context, orderID, itemID uuid.UUID) (_ database.Order, err error) {
	ctx, op := observability.Start(ctx, "order.remove_item", observability.OrderAttr(orderID), observability.ItemAttr(itemID))
	defer op.End(&err)

	return s.mutate(ctx, orderID, enum.EventOrderUpdated, func(store OrderStore, o database.Order) (database.Order, error) {
		if err := checkItemsMutable(o); err != nil {
			return database.Order{}, err
		}
		idx := indexOf(o.Items, itemID)
		if idx < 0 {
			return database.Order{}, ErrItemNotInOrder
		}
		items := make([]uuid.UUID, 0, len(o.Items)-1)
		items = append(items, o.Items[:idx]...)
		items = append(items, o.Items[idx+1:]...)
		prices, err := lockPrices(ctx, store, items)
		if err != nil {
			return database.Order{}, err
		}
		return s.saveItems(ctx, store, o.ID, items, prices)
	})
}

// Pay marks the order paid at the given time, or now. It returns false
// without changing anything when the order is already paid.
func (s *OrderService) Pay(ctx context.Context, orderID uuid.UUID, at *time.Time) (_ bool, err error) {
	ctx, op := observability.Start(ctx, "order.pay", observability.OrderAttr(orderID))
	defer op.End(&err)

	paidAt := s.now()
	if at != nil {
		paidAt = *at
	}
	changed := false
	_, err = s.mutate(ctx, orderID, enum.EventOrderPaid, func(store OrderStore, o database.Order) (database.Order, error) {
		if o.Status == database.OrderStatusPaid {
			return o, errNoChange
		}
		total, err := repriceOrder(ctx, store, o.Items)
		if err != nil {
			return database.Order{}, err
		}
		changed = true
		return store.MarkOrderPaid(ctx, database.MarkOrderPaidParams{
			ID:         o.ID,
			PaidAt:     pgtype.Timestamptz{Time: paidAt, Valid: true},
			TotalPrice: total,
		})
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// Cancel cancels an unpaid order. Cancelling a cancelled order is a no-op.
func (s *OrderService) Cancel(ctx context.Context, orderID uuid.UUID) (database.Order, error) {
	return s.transition(ctx, orderID, database.OrderStatusCancelled, enum.EventOrderCancelled)
}

// MarkPreparing moves a new order to preparing.
func (s *OrderService) MarkPreparing(ctx context.Context, orderID uuid.UUID) (database.Order, error) {
	return s.transition(ctx, orderID, database.OrderStatusPreparing, enum.EventOrderUpdated)
}

// MarkServed moves an order to served.
func (s *OrderService) MarkServed(ctx context.Context, orderID uuid.UUID) (database.Order, error) {
	return s.transition(ctx, orderID, database.OrderStatusServed, enum.EventOrderUpdated)
}

func (s *OrderService) transition(ctx context.Context, orderID uuid.UUID, to database.OrderStatus, eventType string) (_ database.Order, err error) {
	ctx, op := observability.Start(ctx, "order."+string(to), observability.OrderAttr(orderID))
	defer op.End(&err)

	return s.mutate(ctx, orderID, eventType, func(store OrderStore, o database.Order) (database.Order, error) {
		if o.Status == to && to == database.OrderStatusCancelled {
			return o, errNoChange
		}
		if o.Status == database.OrderStatusPaid {
			return database.Order{}, ErrOrderPaid
		}
		if !canTransition(o.Status, to) {
			return database.Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
		}
		total, err := repriceOrder(ctx, store, o.Items)
		if err != nil {
			return database.Order{}, err
		}
		return store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{ID: o.ID, Status: to, TotalPrice: total})
	})
}

// Delete removes an order and recomputes its table.
func (s *OrderService) Delete(ctx context.Context, orderID uuid.UUID) (err error) {
	ctx, op := observability.Start(ctx, "order.delete", observability.OrderAttr(orderID))
	defer op.End(&err)

	_, err = s.mutate(ctx, orderID, enum.EventOrderDeleted, func(store OrderStore, o database.Order) (database.Order, error) {
		if _, err := store.DeleteOrder(ctx, o.ID); err != nil {
			return database.Order{}, fmt.Errorf("delete order: %w", err)
		}
		return o, nil
	})
	return err
}

// Get returns a single order.
func (s *OrderService) Get(ctx context.Context, orderID uuid.UUID) (database.Order, error) {
	return getOrder(ctx, s.newStore(s.pool), orderID)
}

// GetDetail returns an order with its units grouped per item, in the order
// each item was first added.
func (s *OrderService) GetDetail(ctx context.Context, orderID uuid.UUID) (OrderDetail, error) {
	store := s.newStore(s.pool)
	o, err := getOrder(ctx, store, orderID)
	if err != nil {
		return OrderDetail{}, err
	}
	rows, err := store.ListMenuItemsByIDs(ctx, distinct(o.Items))
	if err != nil {
		return OrderDetail{}, fmt.Errorf("list order items: %w", err)
	}
	byID := make(map[uuid.UUID]database.ListMenuItemPricesRow, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	detail := OrderDetail{Order: o, Lines: []OrderLine{}}
	pos := map[uuid.UUID]int{}
	for _, id := range o.Items {
		i, ok := pos[id]
		if !ok {
			r := byID[id]
			pos[id] = len(detail.Lines)
			detail.Lines = append(detail.Lines, OrderLine{ItemID: id, Name: r.Name, UnitPrice: numericToDecimal(r.Price)})
			i = pos[id]
		}
		detail.Lines[i].Quantity++
	}
	for i := range detail.Lines {
		l := &detail.Lines[i]
		l.Subtotal = l.UnitPrice.Mul(decimal.NewFromInt32(l.Quantity))
	}
	return detail, nil
}

// List returns orders newest first.
func (s *OrderService) List(ctx context.Context, f OrderFilter) ([]database.Order, error) {
	arg := database.ListOrdersParams{Limit: f.Limit, Offset: f.Offset}
	if arg.Limit <= 0 {
		arg.Limit = defaultOrderPageSize
	}
	if f.TableNum != nil {
		arg.TableNum = pgtype.Int4{Int32: *f.TableNum, Valid: true}
	}
	if f.Status != "" {
		arg.Status = pgtype.Text{String: f.Status, Valid: true}
	}
	orders, err := s.newStore(s.pool).ListOrders(ctx, arg)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// ListUnpaidByTable returns the new, preparing and served orders of a table.
func (s *OrderService) ListUnpaidByTable(ctx context.Context, tableNum int32) ([]database.Order, error) {
	orders, err := s.newStore(s.pool).ListUnpaidOrdersByTable(ctx, tableNum)
	if err != nil {
		return nil, fmt.Errorf("list unpaid orders: %w", err)
	}
	return orders, nil
}

// errNoChange makes mutate commit nothing and return the order unchanged.
var errNoChange = errors.New("no change")

// mutate runs fn on the order under the table lock and the order row lock,
// recomputes the table and publishes the result after commit.
func (s *OrderService) mutate(ctx context.Context, orderID uuid.UUID, eventType string, fn func(OrderStore, database.Order) (database.Order, error)) (database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// table_num never changes, so the unlocked read names the right table.
	o, err := getOrder(ctx, store, orderID)
	if err != nil {
		return database.Order{}, err
	}
	if err := lockTables(ctx, store, o.TableNum); err != nil {
		return database.Order{}, fmt.Errorf("lock table: %w", err)
	}
	o, err = store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}

	updated, err := fn(store, o)
	if errors.Is(err, errNoChange) {
		return updated, nil
	}
	if err != nil {
		return database.Order{}, err
	}
	due, err := recomputeTable(ctx, store, o.TableNum)
	if err != nil {
		return database.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}

	s.publisher.PublishOrder(ctx, OrderEvent{Type: eventType, Order: updated, AmountDue: due})
	return updated, nil
}

func (s *OrderService) saveItems(ctx context.Context, store OrderStore, id uuid.UUID, items []uuid.UUID, prices map[uuid.UUID]database.ListMenuItemPricesRow) (database.Order, error) {
	total, err := checkedTotal(items, prices)
	if err != nil {
		return database.Order{}, err
	}
	o, err := store.UpdateOrderItems(ctx, database.UpdateOrderItemsParams{
		ID:         id,
		Items:      items,
		TotalPrice: total,
	})
	if err != nil {
		return database.Order{}, fmt.Errorf("update order items: %w", err)
	}
	return o, nil
}

// --- Helpers ---

type priceLister interface {
	ListMenuItemPrices(ctx context.Context, ids []uuid.UUID) ([]database.ListMenuItemPricesRow, error)
}

// lockPrices share-locks the distinct items so their prices hold until
// commit, and returns them by id. Missing items are absent from the map.
func lockPrices(ctx context.Context, store priceLister, items []uuid.UUID) (map[uuid.UUID]database.ListMenuItemPricesRow, error) {
	prices := map[uuid.UUID]database.ListMenuItemPricesRow{}
	if len(items) == 0 {
		return prices, nil
	}
	rows, err := store.ListMenuItemPrices(ctx, distinct(items))
	if err != nil {
		return nil, fmt.Errorf("list item prices: %w", err)
	}
	for _, r := range rows {
		prices[r.ID] = r
	}
	return prices, nil
}

// totalOf sums the current price of every unit. Items no longer in the
// catalog count as zero.
func totalOf(items []uuid.UUID, prices map[uuid.UUID]database.ListMenuItemPricesRow) decimal.Decimal {
	total := decimal.Zero
	for _, id := range items {
		if p, ok := prices[id]; ok {
			total = total.Add(numericToDecimal(p.Price))
		}
	}
	return total
}

// repriceOrder prices the units at the current catalog prices. Every write
// to an order stores the total it returns.
func repriceOrder(ctx context.Context, store priceLister, items []uuid.UUID) (pgtype.Numeric, error) {
	prices, err := lockPrices(ctx, store, items)
	if err != nil {
		return pgtype.Numeric{}, err
	}
	return checkedTotal(items, prices)
}

func checkedTotal(items []uuid.UUID, prices map[uuid.UUID]database.ListMenuItemPricesRow) (pgtype.Numeric, error) {
	total := totalOf(items, prices)
	if total.GreaterThan(maxOrderTotal) {
		return pgtype.Numeric{}, ErrOrderTotalTooLarge
	}
	return decimalToNumeric(total), nil
}

func checkItemsMutable(o database.Order) error {
	switch o.Status {
	case database.OrderStatusPaid:
		return ErrOrderPaid
	case database.OrderStatusCancelled:
		return ErrOrderCancelled
	}
	return nil
}

func canTransition(from, to database.OrderStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type orderGetter interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
}

func getOrder(ctx context.Context, store orderGetter, id uuid.UUID) (database.Order, error) {
	o, err := store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func distinct(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
