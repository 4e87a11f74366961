package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/servizo/api/internal/database"
	"github.com/shopspring/decimal"
)

// TableServicer defines the table account operations used by the table
// handlers. Satisfied by *service.TableService.
type TableServicer interface {
	Get(ctx context.Context, tableNum int32) (database.Table, error)
	List(ctx context.Context) ([]database.Table, error)
	UnpaidOrders(ctx context.Context, tableNum int32) ([]database.Order, error)
	Recompute(ctx context.Context, tableNum int32) (decimal.Decimal, error)
	PayAll(ctx context.Context, tableNum int32) (int, error)
	Create(ctx context.Context, tableNum int32) (database.Table, error)
	CreateNext(ctx context.Context) (database.Table, error)
	Delete(ctx context.Context, tableNum int32) error
}

// TableHandler handles table endpoints.
type TableHandler struct {
	svc TableServicer
}

// NewTableHandler creates a new TableHandler.
func NewTableHandler(svc TableServicer) *TableHandler {
	return &TableHandler{svc: svc}
}

// RegisterStaffRoutes registers the endpoints waiters use at the table.
func (h *TableHandler) RegisterStaffRoutes(r chi.Router) {
	r.Get("/tables", h.List)
	r.Get("/tables/{num}", h.Get)
	r.Get("/tables/{num}/orders/unpaid", h.UnpaidOrders)
	r.Post("/tables/{num}/pay", h.PayAll)
}

// RegisterManagerRoutes registers table management.
func (h *TableHandler) RegisterManagerRoutes(r chi.Router) {
	r.Post("/tables", h.Create)
	r.Post("/tables/next", h.CreateNext)
	r.Post("/tables/{num}/recompute", h.Recompute)
	r.Delete("/tables/{num}", h.Delete)
}

// --- Request / Response types ---

type createTableRequest struct {
	TableNumber int32 `json:"table_number"`
}

type tableResponse struct {
	ID          uuid.UUID `json:"id"`
	TableNumber int32     `json:"table_number"`
	AmountDue   string    `json:"amount_due"`
}

type payAllResponse struct {
	TableNumber int32  `json:"table_number"`
	PaidOrders  int    `json:"paid_orders"`
	AmountDue   string `json:"amount_due"`
}

func toTableResponse(t database.Table) tableResponse {
	return tableResponse{
		ID:          t.ID,
		TableNumber: t.TableNumber,
		AmountDue:   numericToString(t.AmountDue),
	}
}

// --- Handlers ---

// List handles GET /tables.
func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	tables, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, "list tables", err)
		return
	}
	resp := make([]tableResponse, len(tables))
	for i, t := range tables {
		resp[i] = toTableResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /tables/{num}.
func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	num, ok := tableParam(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Get(r.Context(), num)
	if err != nil {
		writeServiceError(w, "get table", err)
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(t))
}

// UnpaidOrders handles GET /tables/{num}/orders/unpaid.
func (h *TableHandler) UnpaidOrders(w http.ResponseWriter, r *http.Request) {
	num, ok := tableParam(w, r)
	if !ok {
		return
	}
	orders, err := h.svc.UnpaidOrders(r.Context(), num)
	if err != nil {
		writeServiceError(w, "list unpaid orders", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(orders))
}

// PayAll handles POST /tables/{num}/pay: every unpaid order of the table is
// settled at once, typically for cash at the counter.
func (h *TableHandler) PayAll(w http.ResponseWriter, r *http.Request) {
	num, ok := tableParam(w, r)
	if !ok {
		return
	}
	n, err := h.svc.PayAll(r.Context(), num)
	if err != nil {
		writeServiceError(w, "pay table", err)
		return
	}
	t, err := h.svc.Get(r.Context(), num)
	if err != nil {
		writeServiceError(w, "get table", err)
		return
	}
	writeJSON(w, http.StatusOK, payAllResponse{
		TableNumber: num,
		PaidOrders:  n,
		AmountDue:   numericToString(t.AmountDue),
	})
}

// Create handles POST /tables.
func (h *TableHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.svc.Create(r.Context(), req.TableNumber)
	if err != nil {
		writeServiceError(w, "create table", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTableResponse(t))
}

// CreateNext handles POST /tables/next, adding the table after the highest
// existing number.
func (h *TableHandler) CreateNext(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.CreateNext(r.Context())
	if err != nil {
		writeServiceError(w, "create next table", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTableResponse(t))
}

// Recompute handles POST /tables/{num}/recompute.
func (h *TableHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	num, ok := tableParam(w, r)
	if !ok {
		return
	}
	if _, err := h.svc.Get(r.Context(), num); err != nil {
		writeServiceError(w, "get table", err)
		return
	}
	due, err := h.svc.Recompute(r.Context(), num)
	if err != nil {
		writeServiceError(w, "recompute table", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"table_number": num, "amount_due": decimalString(due)})
}

// Delete handles DELETE /tables/{num}.
func (h *TableHandler) Delete(w http.ResponseWriter, r *http.Request) {
	num, ok := tableParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), num); err != nil {
		writeServiceError(w, "delete table", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
