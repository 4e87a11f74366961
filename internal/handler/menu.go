package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/servizo/api/internal/database"
	"github.com/servizo/api/internal/service"
	"github.com/shopspring/decimal"
)

// MenuServicer defines the catalog operations used by the menu handlers.
// Satisfied by *service.MenuService.
type MenuServicer interface {
	Get(ctx context.Context, id uuid.UUID) (database.MenuItemRow, error)
	List(ctx context.Context, availableOnly bool) ([]database.MenuItemRow, error)
	ListByCategory(ctx context.Context, categoryID uuid.UUID) ([]database.MenuItemRow, error)
	AddItem(ctx context.Context, req service.NewMenuItem) (database.MenuItemRow, error)
	UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) (database.MenuItemRow, error)
	UpdateAvailability(ctx context.Context, id uuid.UUID, available bool) (database.MenuItemRow, error)
	ReassignCategory(ctx context.Context, id, categoryID uuid.UUID) (database.MenuItemRow, error)
	UpdateDetails(ctx context.Context, id uuid.UUID, name, description string) (database.MenuItemRow, error)
	DeleteItem(ctx context.Context, id uuid.UUID) error
}

// CategoryGetter resolves a category. Satisfied by *service.CategoryService.
type CategoryGetter interface {
	Get(ctx context.Context, id uuid.UUID) (database.Category, error)
}

// MenuHandler handles menu item endpoints.
type MenuHandler struct {
	svc        MenuServicer
	categories CategoryGetter
}

// NewMenuHandler creates a new MenuHandler.
func NewMenuHandler(svc MenuServicer, categories CategoryGetter) *MenuHandler {
	return &MenuHandler{svc: svc, categories: categories}
}

// RegisterPublicRoutes registers the read-only catalog endpoints.
func (h *MenuHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/menu/items", h.List)
	r.Get("/menu/items/{id}", h.Get)
	r.Get("/menu/categories/{id}/items", h.ListByCategory)
}

// RegisterRoutes registers item management, mounted at /items.
func (h *MenuHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Patch("/{id}", h.UpdateDetails)
	r.Put("/{id}/price", h.UpdatePrice)
	r.Put("/{id}/availability", h.UpdateAvailability)
	r.Put("/{id}/category", h.ReassignCategory)
	r.Delete("/{id}", h.Delete)
}

// --- Request / Response types ---

type createMenuItemRequest struct {
	Name        string `json:"name"`
	CategoryID  string `json:"category_id"`
	Price       string `json:"price"`
	Available   *bool  `json:"available"`
	Description string `json:"description"`
}

type updateMenuItemRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type priceRequest struct {
	Price string `json:"price"`
}

type availabilityRequest struct {
	Available *bool `json:"available"`
}

type categoryRequest struct {
	CategoryID string `json:"category_id"`
}

type menuItemResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	CategoryID   uuid.UUID `json:"category_id"`
	CategoryPath *string   `json:"category_path"`
	Price        string    `json:"price"`
	Available    bool      `json:"available"`
	Description  *string   `json:"description"`
	LastUpdated  time.Time `json:"last_updated"`
}

func toMenuItemResponse(m database.MenuItemRow) menuItemResponse {
	return menuItemResponse{
		ID:           m.ID,
		Name:         m.Name,
		CategoryID:   m.CategoryID,
		CategoryPath: textPtr(m.CategoryPath),
		Price:        numericToString(m.Price),
		Available:    m.Available,
		Description:  textPtr(m.Description),
		LastUpdated:  m.LastUpdated,
	}
}

func toMenuItemList(items []database.MenuItemRow) []menuItemResponse {
	resp := make([]menuItemResponse, len(items))
	for i, m := range items {
		resp[i] = toMenuItemResponse(m)
	}
	return resp
}

// --- Handlers ---

// List handles GET /menu/items. ?available=true hides unavailable items.
func (h *MenuHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context(), r.URL.Query().Get("available") == "true")
	if err != nil {
		writeServiceError(w, "list menu items", err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItemList(items))
}

// Get handles GET /menu/items/{id}.
func (h *MenuHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "item ID")
	if !ok {
		return
	}
	item, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, "get menu item", err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItemResponse(item))
}

// ListByCategory handles GET /menu/categories/{id}/items.
func (h *MenuHandler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "category ID")
	if !ok {
		return
	}
	if _, err := h.categories.Get(r.Context(), id); err != nil {
		writeServiceError(w, "get category", err)
		return
	}
	items, err := h.svc.ListByCategory(r.Context(), id)
	if err != nil {
		writeServiceError(w, "list menu items by category", err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItemList(items))
}

// Create handles POST /items.
func (h *MenuHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMenuItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid category_id")
		return
	}
	price, ok := parsePrice(w, req.Price)
	if !ok {
		return
	}
	available := true
	if req.Available != nil {
		available = *req.Available
	}

	item, err := h.svc.AddItem(r.Context(), service.NewMenuItem{
		Name:        req.Name,
		CategoryID:  categoryID,
		Price:       price,
		Available:   available,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(w, "create menu item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMenuItemResponse(item))
}

// UpdateDetails handles PATCH /items/{id}.
func (h *MenuHandler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "item ID")
	if !ok {
		return
	}
	var req updateMenuItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	item, err := h.svc.UpdateDetails(r.Context(), id, req.Name, req.Description)
	if err != nil {
		writeServiceError(w, "update menu item", err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItemResponse(item))
}

// UpdatePrice handles PUT /items/{id}/price.
func (h *MenuHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "item ID")
	if !ok {
		return
	}
	var req priceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	price, ok := parsePrice(w, req.Price)
	if !ok {
		return
	}
	item, err := h.svc.UpdatePrice(r.Context(), id, price)
	if err != nil {
		writeServiceError(w, "update price", err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItemResponse(item))
}

// UpdateAvailability handles PUT /items/{id}/availability.
func (h *MenuHandler) UpdateAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "item ID")
	if !ok {
		return
	}
	var req availabilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Available == nil {
		writeError(w, http.StatusBadRequest, "available is required")
		return
	}
	item, err := h.svc.UpdateAvailability(r.Context(), id, *req.Available)
	if err != nil {
		writeServiceError(w, "update availability", err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItemResponse(item))
}

// ReassignCategory handles PUT /items/{id}/category.
func (h *MenuHandler) ReassignCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "item ID")
	if !ok {
		return
	}
	var req categoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid category_id")
		return
	}
	item, err := h.svc.ReassignCategory(r.Context(), id, categoryID)
	if err != nil {
		writeServiceError(w, "reassign category", err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItemResponse(item))
}

// Delete handles DELETE /items/{id}.
func (h *MenuHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "item ID")
	if !ok {
		return
	}
	if err := h.svc.DeleteItem(r.Context(), id); err != nil {
		writeServiceError(w, "delete menu item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parsePrice(w http.ResponseWriter, s string) (decimal.Decimal, bool) {
	price, err := decimal.NewFromString(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid price")
		return decimal.Decimal{}, false
	}
	if !price.Equal(price.Round(2)) {
		writeError(w, http.StatusBadRequest, "price must have at most 2 decimal places")
		return decimal.Decimal{}, false
	}
	return price, true
}
