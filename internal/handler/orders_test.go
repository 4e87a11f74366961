package handler_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/servizo/api/internal/database"
	"github.com/servizo/api/internal/handler"
	"github.com/servizo/api/internal/service"
	"github.com/shopspring/decimal"
)

// --- Mock service ---

type mockOrderService struct {
	orders     map[uuid.UUID]database.Order
	placed     [][]service.LineItem
	lastFilter service.OrderFilter
	placeErr   error
	calls      []string
}

func newMockOrderService() *mockOrderService {
	return &mockOrderService{orders: make(map[uuid.UUID]database.Order)}
}

func (m *mockOrderService) add(tableNum int32, status database.OrderStatus, total string) database.Order {
	o := database.Order{
		ID:         uuid.New(),
		Items:      []uuid.UUID{uuid.New()},
		TableNum:   tableNum,
		TotalPrice: service.DecimalToNumeric(decimal.RequireFromString(total)),
		Status:     status,
		OrderedAt:  time.Now(),
	}
	m.orders[o.ID] = o
	return o
}

func (m *mockOrderService) get(id uuid.UUID) (database.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return database.Order{}, service.ErrOrderNotFound
	}
	return o, nil
}

func (m *mockOrderService) Place(_ context.Context, tableNum int32, lines []service.LineItem) (database.Order, error) {
	if m.placeErr != nil {
		return database.Order{}, m.placeErr
	}
	m.placed = append(m.placed, lines)
	o := m.add(tableNum, database.OrderStatusNew, "0")
	o.Items = nil
	for _, l := range lines {
		for i := int32(0); i < l.Quantity; i++ {
			o.Items = append(o.Items, l.ItemID)
		}
	}
	m.orders[o.ID] = o
	return o, nil
}

func (m *mockOrderService) AddItem(_ context.Context, orderID, itemID uuid.UUID) (database.Order, error) {
	o, err := m.get(orderID)
	if err != nil {
		return database.Order{}, err
	}
	if o.Status == database.OrderStatusPaid {
		return database.Order{}, service.ErrOrderPaid
	}
	o.Items = append(o.Items, itemID)
	m.orders[o.ID] = o
	return o, nil
}

func (m *mockOrderService) RemoveItem(_ context.Context, orderID, itemID uuid.UUID) (database.Order, error) {
	o, err := m.get(orderID)
	if err != nil {
		return database.Order{}, err
	}
	for i, id := range o.Items {
		if id == itemID {
			o.Items = append(o.Items[:i:i], o.Items[i+1:]...)
			m.orders[o.ID] = o
			return o, nil
		}
	}
	return database.Order{}, service.ErrItemNotInOrder
}

func (m *mockOrderService) Pay(_ context.Context, orderID uuid.UUID, _ *time.Time) (bool, error) {
	m.calls = append(m.calls, "pay")
	o, err := m.get(orderID)
	if err != nil {
		return false, err
	}
	if o.Status == database.OrderStatusPaid {
		return false, nil
	}
	o.Status = database.OrderStatusPaid
	o.PaidAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	m.orders[o.ID] = o
	return true, nil
}

func (m *mockOrderService) setStatus(name string, orderID uuid.UUID, to database.OrderStatus) (database.Order, error) {
	m.calls = append(m.calls, name)
	o, err := m.get(orderID)
	if err != nil {
		return database.Order{}, err
	}
	if o.Status == database.OrderStatusPaid {
		return database.Order{}, service.ErrOrderPaid
	}
	o.Status = to
	m.orders[o.ID] = o
	return o, nil
}

func (m *mockOrderService) Cancel(_ context.Context, id uuid.UUID) (database.Order, error) {
	return m.setStatus("cancel", id, database.OrderStatusCancelled)
}

func (m *mockOrderService) MarkPreparing(_ context.Context, id uuid.UUID) (database.Order, error) {
	return m.setStatus("preparing", id, database.OrderStatusPreparing)
}

func (m *mockOrderService) MarkServed(_ context.Context, id uuid.UUID) (database.Order, error) {
	return m.setStatus("served", id, database.OrderStatusServed)
}

func (m *mockOrderService) Delete(_ context.Context, id uuid.UUID) error {
	if _, err := m.get(id); err != nil {
		return err
	}
	delete(m.orders, id)
	return nil
}

func (m *mockOrderService) Get(_ context.Context, id uuid.UUID) (database.Order, error) {
	return m.get(id)
}

func (m *mockOrderService) GetDetail(_ context.Context, id uuid.UUID) (service.OrderDetail, error) {
	o, err := m.get(id)
	if err != nil {
		return service.OrderDetail{}, err
	}
	price := service.NumericToDecimal(o.TotalPrice)
	return service.OrderDetail{
		Order: o,
		Lines: []service.OrderLine{{ItemID: o.Items[0], Name: "Burger", UnitPrice: price, Quantity: 1, Subtotal: price}},
	}, nil
}

func (m *mockOrderService) List(_ context.Context, f service.OrderFilter) ([]database.Order, error) {
	m.lastFilter = f
	var out []database.Order
	for _, o := range m.orders {
		if f.TableNum != nil && o.TableNum != *f.TableNum {
			continue
		}
		if f.Status != "" && string(o.Status) != f.Status {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// --- Helpers ---

func setupOrderRouter(svc *mockOrderService) *chi.Mux {
	h := handler.NewOrderHandler(svc)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	h.RegisterStaffRoutes(r)
	h.RegisterManagerRoutes(r)
	return r
}

// --- Create tests ---

func TestOrderCreate(t *testing.T) {
	svc := newMockOrderService()
	burger, fries := uuid.New(), uuid.New()

	rr := doRequest(t, setupOrderRouter(svc), "POST", "/orders", map[string]interface{}{
		"table_num": 4,
		"items": []map[string]interface{}{
			{"item_id": burger.String(), "quantity": 2},
			{"item_id": fries.String(), "quantity": 1},
		},
	})
	expectStatus(t, rr, http.StatusCreated)

	resp := decodeResponse(t, rr)
	if resp["table_num"] != float64(4) || resp["status"] != "new" {
		t.Errorf("order: got %v", resp)
	}
	if items, _ := resp["items"].([]interface{}); len(items) != 3 {
		t.Errorf("items: got %v, want 3 units", resp["items"])
	}
	if len(svc.placed) != 1 || svc.placed[0][0].Quantity != 2 {
		t.Errorf("placed: got %v", svc.placed)
	}
}

func TestOrderCreate_Validation(t *testing.T) {
	item := uuid.New().String()
	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid body", `{`, http.StatusBadRequest},
		{"no table", `{"items":[{"item_id":"` + item + `","quantity":1}]}`, http.StatusBadRequest},
		{"no items", `{"table_num":1,"items":[]}`, http.StatusBadRequest},
		{"invalid item id", `{"table_num":1,"items":[{"item_id":"nope","quantity":1}]}`, http.StatusBadRequest},
		{"zero quantity", `{"table_num":1,"items":[{"item_id":"` + item + `","quantity":0}]}`, http.StatusBadRequest},
		{"quantity over limit", `{"table_num":1,"items":[{"item_id":"` + item + `","quantity":101}]}`, http.StatusBadRequest},
		{"huge quantity", `{"table_num":1,"items":[{"item_id":"` + item + `","quantity":2147483647}]}`, http.StatusBadRequest},
		{"quantity overflows int32", `{"table_num":1,"items":[{"item_id":"` + item + `","quantity":4294967296}]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockOrderService()
			expectStatus(t, doRaw(t, setupOrderRouter(svc), "POST", "/orders", tt.body), tt.want)
			if len(svc.placed) != 0 {
				t.Error("service called for invalid request")
			}
		})
	}
}

func TestOrderCreate_ServiceErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("item[0]: %w", service.ErrMenuItemNotFound), http.StatusNotFound},
		{fmt.Errorf("item[1]: %w", service.ErrItemUnavailable), http.StatusUnprocessableEntity},
		{service.ErrTooManyUnits, http.StatusBadRequest},
		{fmt.Errorf("update order items: %w", service.ErrOrderTotalTooLarge), http.StatusBadRequest},
		{fmt.Errorf("create order: %w", context.DeadlineExceeded), http.StatusInternalServerError},
	}
	body := `{"table_num":1,"items":[{"item_id":"` + uuid.New().String() + `","quantity":1}]}`
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			svc := newMockOrderService()
			svc.placeErr = tt.err
			expectStatus(t, doRaw(t, setupOrderRouter(svc), "POST", "/orders", body), tt.want)
		})
	}
}

// --- Read tests ---

func TestOrderGet(t *testing.T) {
	svc := newMockOrderService()
	o := svc.add(2, database.OrderStatusServed, "12.5")
	r := setupOrderRouter(svc)

	rr := doRequest(t, r, "GET", "/orders/"+o.ID.String(), nil)
	expectStatus(t, rr, http.StatusOK)
	resp := decodeResponse(t, rr)
	if resp["total_price"] != "12.50" {
		t.Errorf("total_price: got %v", resp["total_price"])
	}
	lines, _ := resp["lines"].([]interface{})
	if len(lines) != 1 || lines[0].(map[string]interface{})["subtotal"] != "12.50" {
		t.Errorf("lines: got %v", resp["lines"])
	}

	expectStatus(t, doRequest(t, r, "GET", "/orders/"+uuid.New().String(), nil), http.StatusNotFound)
}

func TestOrderList_Filters(t *testing.T) {
	svc := newMockOrderService()
	svc.add(1, database.OrderStatusNew, "5")
	svc.add(1, database.OrderStatusPaid, "5")
	svc.add(2, database.OrderStatusNew, "5")
	r := setupOrderRouter(svc)

	rr := doRequest(t, r, "GET", "/orders?table_num=1&status=new&limit=500&offset=10", nil)
	expectStatus(t, rr, http.StatusOK)
	if list := decodeList(t, rr); len(list) != 1 {
		t.Errorf("orders: got %d, want 1", len(list))
	}
	if svc.lastFilter.Limit != 100 || svc.lastFilter.Offset != 10 {
		t.Errorf("paging: got limit %d offset %d", svc.lastFilter.Limit, svc.lastFilter.Offset)
	}

	expectStatus(t, doRequest(t, r, "GET", "/orders?status=lost", nil), http.StatusBadRequest)
	expectStatus(t, doRequest(t, r, "GET", "/orders?table_num=x", nil), http.StatusBadRequest)
}

// --- Status tests ---

func TestOrderUpdateStatus_Dispatch(t *testing.T) {
	tests := []struct {
		status string
		call   string
	}{
		{"preparing", "preparing"},
		{"served", "served"},
		{"cancelled", "cancel"},
		{"paid", "pay"},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			svc := newMockOrderService()
			o := svc.add(1, database.OrderStatusNew, "5")

			rr := doRequest(t, setupOrderRouter(svc), "PUT", "/orders/"+o.ID.String()+"/status", map[string]string{"status": tt.status})
			expectStatus(t, rr, http.StatusOK)
			if len(svc.calls) != 1 || svc.calls[0] != tt.call {
				t.Errorf("calls: got %v, want [%s]", svc.calls, tt.call)
			}
			if resp := decodeResponse(t, rr); resp["status"] != tt.status {
				t.Errorf("status: got %v, want %s", resp["status"], tt.status)
			}
		})
	}
}

func TestOrderUpdateStatus_Errors(t *testing.T) {
	svc := newMockOrderService()
	paid := svc.add(1, database.OrderStatusPaid, "5")
	r := setupOrderRouter(svc)
	path := "/orders/" + paid.ID.String() + "/status"

	expectStatus(t, doRequest(t, r, "PUT", path, map[string]string{"status": "new"}), http.StatusBadRequest)
	expectStatus(t, doRequest(t, r, "PUT", path, map[string]string{"status": "served"}), http.StatusConflict)
	// Paying twice is not an error.
	expectStatus(t, doRequest(t, r, "PUT", path, map[string]string{"status": "paid"}), http.StatusOK)
	expectStatus(t, doRequest(t, r, "PUT", "/orders/"+uuid.New().String()+"/status", map[string]string{"status": "served"}), http.StatusNotFound)
}

// --- Item tests ---

func TestOrderItems(t *testing.T) {
	svc := newMockOrderService()
	o := svc.add(1, database.OrderStatusNew, "5")
	r := setupOrderRouter(svc)
	soup := uuid.New()

	rr := doRequest(t, r, "POST", "/orders/"+o.ID.String()+"/items", map[string]string{"item_id": soup.String()})
	expectStatus(t, rr, http.StatusOK)
	if len(svc.orders[o.ID].Items) != 2 {
		t.Errorf("items after add: got %v", svc.orders[o.ID].Items)
	}

	rr = doRequest(t, r, "DELETE", "/orders/"+o.ID.String()+"/items/"+soup.String(), nil)
	expectStatus(t, rr, http.StatusOK)
	rr = doRequest(t, r, "DELETE", "/orders/"+o.ID.String()+"/items/"+soup.String(), nil)
	expectStatus(t, rr, http.StatusNotFound)

	expectStatus(t, doRequest(t, r, "POST", "/orders/"+o.ID.String()+"/items", map[string]string{"item_id": "x"}), http.StatusBadRequest)
}

func TestOrderDelete(t *testing.T) {
	svc := newMockOrderService()
	o := svc.add(1, database.OrderStatusNew, "5")
	r := setupOrderRouter(svc)

	expectStatus(t, doRequest(t, r, "DELETE", "/orders/"+o.ID.String(), nil), http.StatusNoContent)
	expectStatus(t, doRequest(t, r, "DELETE", "/orders/"+o.ID.String(), nil), http.StatusNotFound)
}
