package handler_test

import (
	"context"
	"net/http"
	"sort"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/servizo/api/internal/database"
	"github.com/servizo/api/internal/handler"
	"github.com/servizo/api/internal/service"
	"github.com/shopspring/decimal"
)

// --- Mock service ---

type mockTableService struct {
	tables     map[int32]decimal.Decimal
	unpaid     map[int32][]database.Order
	recomputed []int32
}

func newMockTableService() *mockTableService {
	return &mockTableService{
		tables: make(map[int32]decimal.Decimal),
		unpaid: make(map[int32][]database.Order),
	}
}

func (m *mockTableService) row(num int32) database.Table {
	return database.Table{ID: uuid.New(), TableNumber: num, AmountDue: service.DecimalToNumeric(m.tables[num])}
}

func (m *mockTableService) Get(_ context.Context, num int32) (database.Table, error) {
	if _, ok := m.tables[num]; !ok {
		return database.Table{}, service.ErrTableNotFound
	}
	return m.row(num), nil
}

func (m *mockTableService) List(_ context.Context) ([]database.Table, error) {
	nums := make([]int, 0, len(m.tables))
	for n := range m.tables {
		nums = append(nums, int(n))
	}
	sort.Ints(nums)
	out := make([]database.Table, len(nums))
	for i, n := range nums {
		out[i] = m.row(int32(n))
	}
	return out, nil
}

func (m *mockTableService) UnpaidOrders(_ context.Context, num int32) ([]database.Order, error) {
	return m.unpaid[num], nil
}

func (m *mockTableService) Recompute(_ context.Context, num int32) (decimal.Decimal, error) {
	m.recomputed = append(m.recomputed, num)
	return m.tables[num], nil
}

func (m *mockTableService) PayAll(_ context.Context, num int32) (int, error) {
	if _, ok := m.tables[num]; !ok {
		return 0, service.ErrTableNotFound
	}
	n := len(m.unpaid[num])
	delete(m.unpaid, num)
	m.tables[num] = decimal.Zero
	return n, nil
}

func (m *mockTableService) Create(_ context.Context, num int32) (database.Table, error) {
	if num <= 0 {
		return database.Table{}, service.ErrInvalidTableNumber
	}
	if _, ok := m.tables[num]; ok {
		return database.Table{}, service.ErrDuplicateTable
	}
	m.tables[num] = decimal.Zero
	return m.row(num), nil
}

func (m *mockTableService) CreateNext(ctx context.Context) (database.Table, error) {
	var max int32
	for n := range m.tables {
		if n > max {
			max = n
		}
	}
	return m.Create(ctx, max+1)
}

func (m *mockTableService) Delete(_ context.Context, num int32) error {
	if _, ok := m.tables[num]; !ok {
		return service.ErrTableNotFound
	}
	delete(m.tables, num)
	return nil
}

func setupTableRouter(svc *mockTableService) *chi.Mux {
	h := handler.NewTableHandler(svc)
	r := chi.NewRouter()
	h.RegisterStaffRoutes(r)
	h.RegisterManagerRoutes(r)
	return r
}

// --- Tests ---

func TestTableListAndGet(t *testing.T) {
	svc := newMockTableService()
	svc.tables[2] = decimal.RequireFromString("7.5")
	svc.tables[1] = decimal.Zero
	r := setupTableRouter(svc)

	rr := doRequest(t, r, "GET", "/tables", nil)
	expectStatus(t, rr, http.StatusOK)
	list := decodeList(t, rr)
	if len(list) != 2 || list[0]["table_number"] != float64(1) {
		t.Fatalf("tables: got %v", list)
	}
	if list[1]["amount_due"] != "7.50" {
		t.Errorf("amount_due: got %v, want 7.50", list[1]["amount_due"])
	}

	expectStatus(t, doRequest(t, r, "GET", "/tables/2", nil), http.StatusOK)
	expectStatus(t, doRequest(t, r, "GET", "/tables/9", nil), http.StatusNotFound)
	expectStatus(t, doRequest(t, r, "GET", "/tables/0", nil), http.StatusBadRequest)
	expectStatus(t, doRequest(t, r, "GET", "/tables/abc", nil), http.StatusBadRequest)
}

func TestTableUnpaidOrders(t *testing.T) {
	svc := newMockTableService()
	svc.tables[3] = decimal.RequireFromString("5")
	svc.unpaid[3] = []database.Order{{ID: uuid.New(), TableNum: 3, Status: database.OrderStatusServed}}

	rr := doRequest(t, setupTableRouter(svc), "GET", "/tables/3/orders/unpaid", nil)
	expectStatus(t, rr, http.StatusOK)
	list := decodeList(t, rr)
	if len(list) != 1 || list[0]["status"] != "served" {
		t.Errorf("unpaid: got %v", list)
	}
	if items, ok := list[0]["items"].([]interface{}); !ok || len(items) != 0 {
		t.Errorf("items: got %v, want []", list[0]["items"])
	}
}

func TestTablePayAll(t *testing.T) {
	svc := newMockTableService()
	svc.tables[4] = decimal.RequireFromString("18")
	svc.unpaid[4] = []database.Order{{ID: uuid.New()}, {ID: uuid.New()}}
	r := setupTableRouter(svc)

	rr := doRequest(t, r, "POST", "/tables/4/pay", nil)
	expectStatus(t, rr, http.StatusOK)
	resp := decodeResponse(t, rr)
	if resp["table_number"] != float64(4) || resp["paid_orders"] != float64(2) || resp["amount_due"] != "0.00" {
		t.Errorf("pay all: got %v", resp)
	}

	rr = doRequest(t, r, "POST", "/tables/4/pay", nil)
	expectStatus(t, rr, http.StatusOK)
	if resp := decodeResponse(t, rr); resp["paid_orders"] != float64(0) {
		t.Errorf("second pay: got %v", resp)
	}

	expectStatus(t, doRequest(t, r, "POST", "/tables/8/pay", nil), http.StatusNotFound)
}

func TestTableCreate(t *testing.T) {
	svc := newMockTableService()
	r := setupTableRouter(svc)

	rr := doRequest(t, r, "POST", "/tables", map[string]int{"table_number": 5})
	expectStatus(t, rr, http.StatusCreated)
	if resp := decodeResponse(t, rr); resp["amount_due"] != "0.00" {
		t.Errorf("amount_due: got %v", resp["amount_due"])
	}

	expectStatus(t, doRequest(t, r, "POST", "/tables", map[string]int{"table_number": 5}), http.StatusConflict)
	expectStatus(t, doRequest(t, r, "POST", "/tables", map[string]int{"table_number": -1}), http.StatusBadRequest)
	expectStatus(t, doRaw(t, r, "POST", "/tables", `{`), http.StatusBadRequest)

	rr = doRequest(t, r, "POST", "/tables/next", nil)
	expectStatus(t, rr, http.StatusCreated)
	if resp := decodeResponse(t, rr); resp["table_number"] != float64(6) {
		t.Errorf("next table: got %v", resp["table_number"])
	}
}

func TestTableRecompute(t *testing.T) {
	svc := newMockTableService()
	svc.tables[1] = decimal.RequireFromString("3")
	r := setupTableRouter(svc)

	rr := doRequest(t, r, "POST", "/tables/1/recompute", nil)
	expectStatus(t, rr, http.StatusOK)
	if resp := decodeResponse(t, rr); resp["amount_due"] != "3.00" {
		t.Errorf("amount_due: got %v", resp["amount_due"])
	}

	expectStatus(t, doRequest(t, r, "POST", "/tables/2/recompute", nil), http.StatusNotFound)
	if len(svc.recomputed) != 1 {
		t.Errorf("recompute calls: got %v", svc.recomputed)
	}
}

func TestTableDelete(t *testing.T) {
	svc := newMockTableService()
	svc.tables[1] = decimal.Zero
	r := setupTableRouter(svc)

	expectStatus(t, doRequest(t, r, "DELETE", "/tables/1", nil), http.StatusNoContent)
	expectStatus(t, doRequest(t, r, "DELETE", "/tables/1", nil), http.StatusNotFound)
}
