package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/servizo/api/internal/database"
	"github.com/servizo/api/internal/service"
)

// OrderServicer defines the order ledger operations used by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	Place(ctx context.Context, tableNum int32, lines []service.LineItem) (database.Order, error)
	AddItem(ctx context.Context, orderID, itemID uuid.UUID) (database.Order, error)
	RemoveItem(ctx context.Context, orderID, itemID uuid.UUID) (database.Order, error)
	Pay(ctx context.Context, orderID uuid.UUID, at *time.Time) (bool, error)
	Cancel(ctx context.Context, orderID uuid.UUID) (database.Order, error)
	MarkPreparing(ctx context.Context, orderID uuid.UUID) (database.Order, error)
	MarkServed(ctx context.Context, orderID uuid.UUID) (database.Order, error)
	Delete(ctx context.Context, orderID uuid.UUID) error
	Get(ctx context.Context, orderID uuid.UUID) (database.Order, error)
	GetDetail(ctx context.Context, orderID uuid.UUID) (service.OrderDetail, error)
	List(ctx context.Context, f service.OrderFilter) ([]database.Order, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc OrderServicer
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// RegisterRoutes registers the endpoints open to every signed-in user.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/orders", h.Create)
	r.Get("/orders/{id}", h.Get)
}

// RegisterStaffRoutes registers the endpoints waiters and above use to run
// the floor.
func (h *OrderHandler) RegisterStaffRoutes(r chi.Router) {
	r.Get("/orders", h.List)
	r.Put("/orders/{id}/status", h.UpdateStatus)
	r.Post("/orders/{id}/items", h.AddItem)
	r.Delete("/orders/{id}/items/{itemID}", h.RemoveItem)
}

// RegisterManagerRoutes registers corrections reserved for managers.
func (h *OrderHandler) RegisterManagerRoutes(r chi.Router) {
	r.Delete("/orders/{id}", h.Delete)
}

// --- Request / Response types ---

type createOrderRequest struct {
	TableNum int32                    `json:"table_num"`
	Items    []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int32  `json:"quantity"`
}

type addItemRequest struct {
	ItemID string `json:"item_id"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type orderResponse struct {
	ID         uuid.UUID            `json:"id"`
	Items      []uuid.UUID          `json:"items"`
	TableNum   int32                `json:"table_num"`
	TotalPrice string               `json:"total_price"`
	Status     database.OrderStatus `json:"status"`
	OrderedAt  time.Time            `json:"ordered_at"`
	PaidAt     *time.Time           `json:"paid_at"`
}

type orderDetailResponse struct {
	orderResponse
	Lines []orderLineResponse `json:"lines"`
}

type orderLineResponse struct {
	ItemID    uuid.UUID `json:"item_id"`
	Name      string    `json:"name"`
	UnitPrice string    `json:"unit_price"`
	Quantity  int32     `json:"quantity"`
	Subtotal  string    `json:"subtotal"`
}

func toOrderResponse(o database.Order) orderResponse {
	items := o.Items
	if items == nil {
		items = []uuid.UUID{}
	}
	return orderResponse{
		ID:         o.ID,
		Items:      items,
		TableNum:   o.TableNum,
		TotalPrice: numericToString(o.TotalPrice),
		Status:     o.Status,
		OrderedAt:  o.OrderedAt,
		PaidAt:     timestampPtr(o.PaidAt),
	}
}

func toOrderList(orders []database.Order) []orderResponse {
	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	return resp
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.TableNum <= 0 {
		writeError(w, http.StatusBadRequest, "table_num must be > 0")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items are required")
		return
	}

	lines := make([]service.LineItem, len(req.Items))
	for i, item := range req.Items {
		id, err := uuid.Parse(item.ItemID)
		if err != nil {
			writeError(w, http.StatusBadRequest, formatItemError(i, "invalid item_id"))
			return
		}
		if item.Quantity <= 0 || item.Quantity > service.MaxLineQuantity {
			writeError(w, http.StatusBadRequest, formatItemError(i, fmt.Sprintf("quantity must be 1-%d", service.MaxLineQuantity)))
			return
		}
		lines[i] = service.LineItem{ItemID: id, Quantity: item.Quantity}
	}

	order, err := h.svc.Place(r.Context(), req.TableNum, lines)
	if err != nil {
		writeServiceError(w, "create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "order ID")
	if !ok {
		return
	}

	detail, err := h.svc.GetDetail(r.Context(), id)
	if err != nil {
		writeServiceError(w, "get order", err)
		return
	}

	resp := orderDetailResponse{
		orderResponse: toOrderResponse(detail.Order),
		Lines:         make([]orderLineResponse, len(detail.Lines)),
	}
	for i, l := range detail.Lines {
		resp.Lines[i] = orderLineResponse{
			ItemID:    l.ItemID,
			Name:      l.Name,
			UnitPrice: decimalString(l.UnitPrice),
			Quantity:  l.Quantity,
			Subtotal:  decimalString(l.Subtotal),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// List handles GET /orders with optional table_num, status, limit and
// offset query parameters.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f service.OrderFilter

	if s := q.Get("table_num"); s != "" {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid table_num")
			return
		}
		tableNum := int32(n)
		f.TableNum = &tableNum
	}
	if s := q.Get("status"); s != "" {
		if !isValidOrderStatus(database.OrderStatus(s)) {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		f.Status = s
	}

	// Parse pagination
	f.Limit = 20
	if s := q.Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			f.Limit = int32(v)
		}
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if s := q.Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			f.Offset = int32(v)
		}
	}

	orders, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, "list orders", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(orders))
}

// UpdateStatus handles PUT /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "order ID")
	if !ok {
		return
	}
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		order database.Order
		err   error
	)
	switch database.OrderStatus(req.Status) {
	case database.OrderStatusPreparing:
		order, err = h.svc.MarkPreparing(r.Context(), id)
	case database.OrderStatusServed:
		order, err = h.svc.MarkServed(r.Context(), id)
	case database.OrderStatusCancelled:
		order, err = h.svc.Cancel(r.Context(), id)
	case database.OrderStatusPaid:
		if _, err = h.svc.Pay(r.Context(), id, nil); err == nil {
			order, err = h.svc.Get(r.Context(), id)
		}
	default:
		writeError(w, http.StatusBadRequest, "status must be one of preparing, served, cancelled, paid")
		return
	}
	if err != nil {
		writeServiceError(w, "update order status", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// AddItem handles POST /orders/{id}/items.
func (h *OrderHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "order ID")
	if !ok {
		return
	}
	var req addItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	itemID, err := uuid.Parse(req.ItemID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item_id")
		return
	}

	order, err := h.svc.AddItem(r.Context(), id, itemID)
	if err != nil {
		writeServiceError(w, "add order item", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// RemoveItem handles DELETE /orders/{id}/items/{itemID}. One unit is
// removed per call.
func (h *OrderHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "order ID")
	if !ok {
		return
	}
	itemID, ok := uuidParam(w, r, "itemID", "item ID")
	if !ok {
		return
	}

	order, err := h.svc.RemoveItem(r.Context(), id, itemID)
	if err != nil {
		writeServiceError(w, "remove order item", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// Delete handles DELETE /orders/{id}.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "order ID")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, "delete order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func formatItemError(idx int, msg string) string {
	return fmt.Sprintf("items[%d]: %s", idx, msg)
}

func isValidOrderStatus(s database.OrderStatus) bool {
	switch s {
	case database.OrderStatusNew, database.OrderStatusPreparing, database.OrderStatusServed,
		database.OrderStatusPaid, database.OrderStatusCancelled:
		return true
	}
	return false
}
