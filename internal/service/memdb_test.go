package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/servizo/api/internal/database"
	"github.com/shopspring/decimal"
)

// --- In-memory database ---
//
// memDB stands in for the pgx pool. Begin snapshots the committed state,
// the store works on the snapshot and Commit swaps it in, so a failed
// operation leaves no trace. Commit also checks the deferred constraints of
// menu_categories.

type memState struct {
	categories map[uuid.UUID]database.Category
	items      map[uuid.UUID]database.MenuItem
	orders     map[uuid.UUID]database.Order
	tables     map[int32]database.Table
	payments   map[string]database.Payment
	users      map[uuid.UUID]database.User
	waiters    map[uuid.UUID]database.Waiter
}

func newMemState() *memState {
	return &memState{
		categories: map[uuid.UUID]database.Category{},
		items:      map[uuid.UUID]database.MenuItem{},
		orders:     map[uuid.UUID]database.Order{},
		tables:     map[int32]database.Table{},
		payments:   map[string]database.Payment{},
		users:      map[uuid.UUID]database.User{},
		waiters:    map[uuid.UUID]database.Waiter{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.categories {
		v.Ancestors = append([]uuid.UUID{}, v.Ancestors...)
		c.categories[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.orders {
		v.Items = append([]uuid.UUID{}, v.Items...)
		c.orders[k] = v
	}
	for k, v := range s.tables {
		c.tables[k] = v
	}
	for k, v := range s.payments {
		v.OrderIDs = append([]uuid.UUID{}, v.OrderIDs...)
		c.payments[k] = v
	}
	for k, v := range s.users {
		v.Favorites = append([]uuid.UUID{}, v.Favorites...)
		c.users[k] = v
	}
	for k, v := range s.waiters {
		c.waiters[k] = v
	}
	return c
}

type memDB struct {
	state   *memState
	locks   []int64
	errs    map[string]error
	clock   time.Time
	commits int
}

func newMemDB() *memDB {
	return &memDB{
		state: newMemState(),
		errs:  map[string]error{},
		clock: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (db *memDB) tick() time.Time {
	db.clock = db.clock.Add(time.Second)
	return db.clock
}

func (db *memDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := db.errs["Begin"]; err != nil {
		return nil, err
	}
	return &memTx{db: db, state: db.state.clone()}, nil
}

func (db *memDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (db *memDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (db *memDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}

// store returns the store bound to the committed state (pool) or to a
// transaction's snapshot.
func (db *memDB) store(dbtx database.DBTX) *memStore {
	switch v := dbtx.(type) {
	case *memTx:
		return &memStore{db: db, st: v.state}
	case *memDB:
		return &memStore{db: db, st: db.state}
	}
	panic(fmt.Sprintf("unexpected DBTX %T", dbtx))
}

// memTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type memTx struct {
	db    *memDB
	state *memState
	done  bool
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	if err := t.db.errs["Commit"]; err != nil {
		return err
	}
	if err := checkDeferred(t.state); err != nil {
		return err
	}
	t.db.state = t.state
	t.db.commits++
	return nil
}
func (t *memTx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (t *memTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (t *memTx) Conn() *pgx.Conn { panic("not implemented") }

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

// checkDeferred enforces the path uniqueness and parent foreign key of
// menu_categories at commit time.
func checkDeferred(st *memState) error {
	seen := map[string]bool{}
	for _, c := range st.categories {
		if seen[c.Path] {
			return uniqueViolation("menu_categories_path_key")
		}
		seen[c.Path] = true
		if c.ParentID.Valid {
			if _, ok := st.categories[c.ParentID.Bytes]; !ok {
				return &pgconn.PgError{Code: "23503", ConstraintName: "menu_categories_parent_fkey"}
			}
		}
	}
	return nil
}

// --- Store ---

type memStore struct {
	db *memDB
	st *memState
}

func (m *memStore) fail(method string) error { return m.db.errs[method] }

func (m *memStore) AcquireXactLock(ctx context.Context, key int64) error {
	if err := m.fail("AcquireXactLock"); err != nil {
		return err
	}
	m.db.locks = append(m.db.locks, key)
	return nil
}

// Categories

func (m *memStore) GetCategory(ctx context.Context, id uuid.UUID) (database.Category, error) {
	c, ok := m.st.categories[id]
	if !ok {
		return database.Category{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *memStore) GetCategoryForUpdate(ctx context.Context, id uuid.UUID) (database.Category, error) {
	return m.GetCategory(ctx, id)
}

func (m *memStore) GetCategoryForShare(ctx context.Context, id uuid.UUID) (database.Category, error) {
	return m.GetCategory(ctx, id)
}

func (m *memStore) GetCategoryByPath(ctx context.Context, path string) (database.Category, error) {
	for _, c := range m.st.categories {
		if c.Path == path {
			return c, nil
		}
	}
	return database.Category{}, pgx.ErrNoRows
}

func (m *memStore) ListCategories(ctx context.Context) ([]database.Category, error) {
	out := []database.Category{}
	for _, c := range m.st.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memStore) ListChildCategories(ctx context.Context, parentID pgtype.UUID) ([]database.Category, error) {
	out := []database.Category{}
	for _, c := range m.st.categories {
		if c.ParentID.Valid == parentID.Valid && (!parentID.Valid || c.ParentID.Bytes == parentID.Bytes) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListCategoryDescendants understands the "<escaped path>/%" patterns built
// by subtreePattern.
func (m *memStore) ListCategoryDescendants(ctx context.Context, pattern string) ([]database.Category, error) {
	prefix := strings.NewReplacer(`\\`, `\`, `\%`, `%`, `\_`, `_`).Replace(strings.TrimSuffix(pattern, "%"))
	out := []database.Category{}
	for _, c := range m.st.categories {
		if strings.HasPrefix(c.Path, prefix) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Ancestors) != len(out[j].Ancestors) {
			return len(out[i].Ancestors) < len(out[j].Ancestors)
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

func (m *memStore) CreateCategory(ctx context.Context, arg database.CreateCategoryParams) (database.Category, error) {
	c := database.Category{
		ID:        uuid.New(),
		Name:      arg.Name,
		ParentID:  arg.ParentID,
		Path:      arg.Path,
		Ancestors: append([]uuid.UUID{}, arg.Ancestors...),
		CreatedAt: m.db.tick(),
	}
	m.st.categories[c.ID] = c
	return c, nil
}

func (m *memStore) UpdateCategoryTree(ctx context.Context, arg database.UpdateCategoryTreeParams) (database.Category, error) {
	if err := m.fail("UpdateCategoryTree"); err != nil {
		return database.Category{}, err
	}
	c, ok := m.st.categories[arg.ID]
	if !ok {
		return database.Category{}, pgx.ErrNoRows
	}
	c.Name = arg.Name
	c.ParentID = arg.ParentID
	c.Path = arg.Path
	c.Ancestors = append([]uuid.UUID{}, arg.Ancestors...)
	m.st.categories[c.ID] = c
	return c, nil
}

func (m *memStore) DeleteCategory(ctx context.Context, id uuid.UUID) (int64, error) {
	if _, ok := m.st.categories[id]; !ok {
		return 0, nil
	}
	delete(m.st.categories, id)
	return 1, nil
}

// Menu items

func (m *memStore) itemRow(i database.MenuItem) database.MenuItemRow {
	row := database.MenuItemRow{
		ID:          i.ID,
		Name:        i.Name,
		CategoryID:  i.CategoryID,
		Price:       i.Price,
		Available:   i.Available,
		Description: i.Description,
		LastUpdated: i.LastUpdated,
	}
	if c, ok := m.st.categories[i.CategoryID]; ok {
		row.CategoryPath = pgtype.Text{String: c.Path, Valid: true}
	}
	return row
}

func (m *memStore) GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItemRow, error) {
	i, ok := m.st.items[id]
	if !ok {
		return database.MenuItemRow{}, pgx.ErrNoRows
	}
	return m.itemRow(i), nil
}

func (m *memStore) ListMenuItems(ctx context.Context, availableOnly bool) ([]database.MenuItemRow, error) {
	out := []database.MenuItemRow{}
	for _, i := range m.st.items {
		if availableOnly && !i.Available {
			continue
		}
		out = append(out, m.itemRow(i))
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CategoryPath.String != out[b].CategoryPath.String {
			return out[a].CategoryPath.String < out[b].CategoryPath.String
		}
		return out[a].Name < out[b].Name
	})
	return out, nil
}

func (m *memStore) ListMenuItemsByCategory(ctx context.Context, categoryID uuid.UUID) ([]database.MenuItemRow, error) {
	out := []database.MenuItemRow{}
	for _, i := range m.st.items {
		if i.CategoryID == categoryID {
			out = append(out, m.itemRow(i))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

func (m *memStore) CreateMenuItem(ctx context.Context, arg database.CreateMenuItemParams) (database.MenuItem, error) {
	i := database.MenuItem{
		ID:          uuid.New(),
		Name:        arg.Name,
		CategoryID:  arg.CategoryID,
		Price:       arg.Price,
		Available:   arg.Available,
		Description: arg.Description,
		LastUpdated: m.db.tick(),
	}
	m.st.items[i.ID] = i
	return i, nil
}

func (m *memStore) updateItem(id uuid.UUID, fn func(*database.MenuItem)) (database.MenuItem, error) {
	i, ok := m.st.items[id]
	if !ok {
		return database.MenuItem{}, pgx.ErrNoRows
	}
	fn(&i)
	i.LastUpdated = m.db.tick()
	m.st.items[id] = i
	return i, nil
}

func (m *memStore) UpdateMenuItemPrice(ctx context.Context, arg database.UpdateMenuItemPriceParams) (database.MenuItem, error) {
	return m.updateItem(arg.ID, func(i *database.MenuItem) { i.Price = arg.Price })
}

func (m *memStore) UpdateMenuItemAvailability(ctx context.Context, arg database.UpdateMenuItemAvailabilityParams) (database.MenuItem, error) {
	return m.updateItem(arg.ID, func(i *database.MenuItem) { i.Available = arg.Available })
}

func (m *memStore) UpdateMenuItemCategory(ctx context.Context, arg database.UpdateMenuItemCategoryParams) (database.MenuItem, error) {
	return m.updateItem(arg.ID, func(i *database.MenuItem) { i.CategoryID = arg.CategoryID })
}

func (m *memStore) UpdateMenuItemDetails(ctx context.Context, arg database.UpdateMenuItemDetailsParams) (database.MenuItem, error) {
	return m.updateItem(arg.ID, func(i *database.MenuItem) {
		i.Name = arg.Name
		i.Description = arg.Description
	})
}

func (m *memStore) DeleteMenuItem(ctx context.Context, id uuid.UUID) (int64, error) {
	if _, ok := m.st.items[id]; !ok {
		return 0, nil
	}
	delete(m.st.items, id)
	return 1, nil
}

func (m *memStore) DeleteMenuItemsByCategory(ctx context.Context, categoryID uuid.UUID) (int64, error) {
	var n int64
	for id, i := range m.st.items {
		if i.CategoryID == categoryID {
			delete(m.st.items, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListMenuItemPrices(ctx context.Context, ids []uuid.UUID) ([]database.ListMenuItemPricesRow, error) {
	return m.ListMenuItemsByIDs(ctx, ids)
}

func (m *memStore) ListMenuItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]database.ListMenuItemPricesRow, error) {
	out := []database.ListMenuItemPricesRow{}
	for _, id := range ids {
		if i, ok := m.st.items[id]; ok {
			out = append(out, database.ListMenuItemPricesRow{ID: i.ID, Name: i.Name, Price: i.Price, Available: i.Available})
		}
	}
	return out, nil
}

// Orders

func (m *memStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	o, ok := m.st.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *memStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return m.GetOrder(ctx, id)
}

func (m *memStore) sortedOrders(keep func(database.Order) bool) []database.Order {
	out := []database.Order{}
	for _, o := range m.st.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderedAt.Before(out[j].OrderedAt) })
	return out
}

func (m *memStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	all := m.sortedOrders(func(o database.Order) bool {
		if arg.TableNum.Valid && o.TableNum != arg.TableNum.Int32 {
			return false
		}
		if arg.Status.Valid && string(o.Status) != arg.Status.String {
			return false
		}
		return true
	})
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	start := min(int(arg.Offset), len(all))
	end := min(start+int(arg.Limit), len(all))
	return all[start:end], nil
}

func (m *memStore) ListOrdersByIDs(ctx context.Context, ids []uuid.UUID) ([]database.Order, error) {
	out := []database.Order{}
	for _, id := range ids {
		if o, ok := m.st.orders[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) ListOrdersByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]database.Order, error) {
	return m.ListOrdersByIDs(ctx, ids)
}

func isUnpaidStatus(s database.OrderStatus) bool {
	return s == database.OrderStatusNew || s == database.OrderStatusPreparing || s == database.OrderStatusServed
}

func (m *memStore) ListUnpaidOrdersByTable(ctx context.Context, tableNum int32) ([]database.Order, error) {
	return m.sortedOrders(func(o database.Order) bool {
		return o.TableNum == tableNum && isUnpaidStatus(o.Status)
	}), nil
}

func (m *memStore) ListUnpaidOrdersByTableForUpdate(ctx context.Context, tableNum int32) ([]database.Order, error) {
	return m.ListUnpaidOrdersByTable(ctx, tableNum)
}

func (m *memStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	if err := m.fail("CreateOrder"); err != nil {
		return database.Order{}, err
	}
	o := database.Order{
		ID:         uuid.New(),
		Items:      append([]uuid.UUID{}, arg.Items...),
		TableNum:   arg.TableNum,
		TotalPrice: arg.TotalPrice,
		Status:     arg.Status,
		OrderedAt:  m.db.tick(),
	}
	m.st.orders[o.ID] = o
	return o, nil
}

func (m *memStore) updateOrder(id uuid.UUID, fn func(*database.Order)) (database.Order, error) {
	o, ok := m.st.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	fn(&o)
	m.st.orders[id] = o
	return o, nil
}

func (m *memStore) UpdateOrderItems(ctx context.Context, arg database.UpdateOrderItemsParams) (database.Order, error) {
	return m.updateOrder(arg.ID, func(o *database.Order) {
		o.Items = append([]uuid.UUID{}, arg.Items...)
		o.TotalPrice = arg.TotalPrice
	})
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	return m.updateOrder(arg.ID, func(o *database.Order) {
		o.Status = arg.Status
		o.TotalPrice = arg.TotalPrice
	})
}

func (m *memStore) MarkOrderPaid(ctx context.Context, arg database.MarkOrderPaidParams) (database.Order, error) {
	if err := m.fail("MarkOrderPaid"); err != nil {
		return database.Order{}, err
	}
	return m.updateOrder(arg.ID, func(o *database.Order) {
		o.Status = database.OrderStatusPaid
		o.PaidAt = arg.PaidAt
		o.TotalPrice = arg.TotalPrice
	})
}

func (m *memStore) DeleteOrder(ctx context.Context, id uuid.UUID) (int64, error) {
	if _, ok := m.st.orders[id]; !ok {
		return 0, nil
	}
	delete(m.st.orders, id)
	return 1, nil
}

func (m *memStore) SumTableDue(ctx context.Context, tableNum int32) (pgtype.Numeric, error) {
	sum := decimal.Zero
	for _, o := range m.st.orders {
		if o.TableNum == tableNum && o.Status != database.OrderStatusPaid {
			sum = sum.Add(numericToDecimal(o.TotalPrice))
		}
	}
	return decimalToNumeric(sum), nil
}

// Tables

func (m *memStore) UpdateTableAmountDue(ctx context.Context, arg database.UpdateTableAmountDueParams) (int64, error) {
	t, ok := m.st.tables[arg.TableNumber]
	if !ok {
		return 0, nil
	}
	t.AmountDue = arg.AmountDue
	m.st.tables[arg.TableNumber] = t
	return 1, nil
}

func (m *memStore) CreateTable(ctx context.Context, tableNumber int32) (database.Table, error) {
	if _, ok := m.st.tables[tableNumber]; ok {
		return database.Table{}, uniqueViolation("tables_table_number_key")
	}
	t := database.Table{ID: uuid.New(), TableNumber: tableNumber, AmountDue: decimalToNumeric(decimal.Zero)}
	m.st.tables[tableNumber] = t
	return t, nil
}

func (m *memStore) GetMaxTableNumber(ctx context.Context) (int32, error) {
	var n int32
	for k := range m.st.tables {
		n = max(n, k)
	}
	return n, nil
}

func (m *memStore) GetTableByNumber(ctx context.Context, tableNumber int32) (database.Table, error) {
	t, ok := m.st.tables[tableNumber]
	if !ok {
		return database.Table{}, pgx.ErrNoRows
	}
	return t, nil
}

func (m *memStore) ListTables(ctx context.Context) ([]database.Table, error) {
	out := []database.Table{}
	for _, t := range m.st.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableNumber < out[j].TableNumber })
	return out, nil
}

func (m *memStore) DeleteTable(ctx context.Context, tableNumber int32) (int64, error) {
	if _, ok := m.st.tables[tableNumber]; !ok {
		return 0, nil
	}
	delete(m.st.tables, tableNumber)
	return 1, nil
}

// Payments

func (m *memStore) CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error) {
	if err := m.fail("CreatePayment"); err != nil {
		return database.Payment{}, err
	}
	if _, ok := m.st.payments[arg.ExternalIntentID]; ok {
		return database.Payment{}, uniqueViolation("payments_external_intent_id_key")
	}
	now := m.db.tick()
	p := database.Payment{
		ID:               uuid.New(),
		TableNum:         arg.TableNum,
		AmountCents:      arg.AmountCents,
		Currency:         arg.Currency,
		OrderIDs:         append([]uuid.UUID{}, arg.OrderIDs...),
		ExternalIntentID: arg.ExternalIntentID,
		ClientSecret:     arg.ClientSecret,
		PayerEmail:       arg.PayerEmail,
		Status:           arg.Status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	m.st.payments[p.ExternalIntentID] = p
	return p, nil
}

func (m *memStore) GetPaymentByIntentID(ctx context.Context, externalIntentID string) (database.Payment, error) {
	p, ok := m.st.payments[externalIntentID]
	if !ok {
		return database.Payment{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *memStore) GetPaymentByIntentIDForUpdate(ctx context.Context, externalIntentID string) (database.Payment, error) {
	return m.GetPaymentByIntentID(ctx, externalIntentID)
}

func (m *memStore) MarkPaymentSucceeded(ctx context.Context, arg database.MarkPaymentSucceededParams) (database.Payment, error) {
	p, ok := m.st.payments[arg.ExternalIntentID]
	if !ok {
		return database.Payment{}, pgx.ErrNoRows
	}
	p.Status = database.PaymentStatusSucceeded
	p.ReceiptURL = arg.ReceiptURL
	p.PaidAt = arg.PaidAt
	p.ErrorMessage = pgtype.Text{}
	p.UpdatedAt = m.db.tick()
	m.st.payments[p.ExternalIntentID] = p
	return p, nil
}

func (m *memStore) MarkPaymentFailed(ctx context.Context, arg database.MarkPaymentFailedParams) (int64, error) {
	p, ok := m.st.payments[arg.ExternalIntentID]
	if !ok || p.PaidAt.Valid {
		return 0, nil
	}
	p.Status = database.PaymentStatusFailed
	p.ErrorMessage = arg.ErrorMessage
	p.UpdatedAt = m.db.tick()
	m.st.payments[p.ExternalIntentID] = p
	return 1, nil
}

func (m *memStore) MarkPaymentCanceled(ctx context.Context, externalIntentID string) (int64, error) {
	p, ok := m.st.payments[externalIntentID]
	if !ok || p.PaidAt.Valid {
		return 0, nil
	}
	p.Status = database.PaymentStatusCanceled
	p.UpdatedAt = m.db.tick()
	m.st.payments[p.ExternalIntentID] = p
	return 1, nil
}

// Users

func (m *memStore) CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error) {
	for _, u := range m.st.users {
		if u.Username == arg.Username || u.Email == arg.Email {
			return database.User{}, uniqueViolation("users_username_key")
		}
	}
	now := m.db.tick()
	u := database.User{
		ID:             uuid.New(),
		Username:       arg.Username,
		Email:          arg.Email,
		HashedPassword: arg.HashedPassword,
		FirstName:      arg.FirstName,
		LastName:       arg.LastName,
		Role:           arg.Role,
		Favorites:      []uuid.UUID{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.st.users[u.ID] = u
	return u, nil
}

func (m *memStore) GetUserByIDForUpdate(ctx context.Context, id uuid.UUID) (database.User, error) {
	u, ok := m.st.users[id]
	if !ok {
		return database.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *memStore) UpdateUserRole(ctx context.Context, arg database.UpdateUserRoleParams) (database.User, error) {
	u, ok := m.st.users[arg.ID]
	if !ok {
		return database.User{}, pgx.ErrNoRows
	}
	u.Role = arg.Role
	m.st.users[u.ID] = u
	return u, nil
}

func (m *memStore) CreateWaiter(ctx context.Context, userID uuid.UUID) error {
	if err := m.fail("CreateWaiter"); err != nil {
		return err
	}
	if _, ok := m.st.waiters[userID]; !ok {
		m.st.waiters[userID] = database.Waiter{UserID: userID}
	}
	return nil
}

func (m *memStore) DeleteWaiter(ctx context.Context, userID uuid.UUID) error {
	delete(m.st.waiters, userID)
	return nil
}

// --- Fixtures ---

type fixture struct {
	db       *memDB
	events   *recordingPublisher
	gateway  *fakeGateway
	category *CategoryService
	menu     *MenuService
	orders   *OrderService
	tables   *TableService
	payments *PaymentService
	users    *UserService
}

func newFixture() *fixture {
	db := newMemDB()
	events := &recordingPublisher{}
	gw := &fakeGateway{}
	f := &fixture{db: db, events: events, gateway: gw}
	f.category = NewCategoryService(db, func(d database.DBTX) CategoryStore { return db.store(d) })
	f.menu = NewMenuService(db, func(d database.DBTX) MenuStore { return db.store(d) })
	f.orders = NewOrderService(db, func(d database.DBTX) OrderStore { return db.store(d) }, events)
	f.orders.now = db.tick
	f.tables = NewTableService(db, func(d database.DBTX) TableStore { return db.store(d) }, events)
	f.tables.now = db.tick
	f.payments = NewPaymentService(db, func(d database.DBTX) PaymentStore { return db.store(d) }, gw, "", events)
	f.payments.now = db.tick
	f.users = NewUserService(db, func(d database.DBTX) UserStore { return db.store(d) })
	return f
}

type recordingPublisher struct {
	events []OrderEvent
}

func (p *recordingPublisher) PublishOrder(ctx context.Context, e OrderEvent) {
	p.events = append(p.events, e)
}

type fakeGateway struct {
	created   []IntentRequest
	cancelled []string
	createErr error
	cancelErr error
}

func (g *fakeGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if g.createErr != nil {
		return Intent{}, g.createErr
	}
	g.created = append(g.created, req)
	id := fmt.Sprintf("pi_%d", len(g.created))
	return Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *fakeGateway) CancelIntent(ctx context.Context, intentID string) error {
	g.cancelled = append(g.cancelled, intentID)
	return g.cancelErr
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }
