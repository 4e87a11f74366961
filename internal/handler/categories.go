package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/servizo/api/internal/database"
	"github.com/servizo/api/internal/service"
)

// CategoryServicer defines the category tree operations used by the
// handlers. Satisfied by *service.CategoryService.
type CategoryServicer interface {
	Get(ctx context.Context, id uuid.UUID) (database.Category, error)
	List(ctx context.Context) ([]database.Category, error)
	Children(ctx context.Context, parentID *uuid.UUID) ([]database.Category, error)
	Descendants(ctx context.Context, id uuid.UUID) ([]database.Category, error)
	Insert(ctx context.Context, name string, parentID *uuid.UUID) (database.Category, error)
	Update(ctx context.Context, id uuid.UUID, upd service.CategoryUpdate) (database.Category, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CategoryHandler handles the menu category tree endpoints.
type CategoryHandler struct {
	svc CategoryServicer
}

// NewCategoryHandler creates a new CategoryHandler.
func NewCategoryHandler(svc CategoryServicer) *CategoryHandler {
	return &CategoryHandler{svc: svc}
}

// RegisterPublicRoutes registers the read-only tree endpoints.
func (h *CategoryHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/menu/categories", h.List)
	r.Get("/menu/categories/{id}", h.Get)
	r.Get("/menu/categories/{id}/children", h.Children)
	r.Get("/menu/categories/{id}/descendants", h.Descendants)
}

// RegisterRoutes registers category management, mounted at /categories.
func (h *CategoryHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// --- Request / Response types ---

type createCategoryRequest struct {
	Name     string     `json:"name"`
	ParentID *uuid.UUID `json:"parent_id"`
}

// updateCategoryRequest renames and/or moves a category. parent_id is only
// applied when present in the body; an explicit null moves the category to
// the top level.
type updateCategoryRequest struct {
	Name     *string         `json:"name"`
	ParentID json.RawMessage `json:"parent_id"`
}

type categoryResponse struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	ParentID  *uuid.UUID  `json:"parent_id"`
	Path      string      `json:"path"`
	Ancestors []uuid.UUID `json:"ancestors"`
	CreatedAt time.Time   `json:"created_at"`
}

func toCategoryResponse(c database.Category) categoryResponse {
	resp := categoryResponse{
		ID:        c.ID,
		Name:      c.Name,
		Path:      c.Path,
		Ancestors: c.Ancestors,
		CreatedAt: c.CreatedAt,
	}
	if resp.Ancestors == nil {
		resp.Ancestors = []uuid.UUID{}
	}
	if c.ParentID.Valid {
		id := uuid.UUID(c.ParentID.Bytes)
		resp.ParentID = &id
	}
	return resp
}

func toCategoryList(cats []database.Category) []categoryResponse {
	resp := make([]categoryResponse, len(cats))
	for i, c := range cats {
		resp[i] = toCategoryResponse(c)
	}
	return resp
}

// --- Handlers ---

// List handles GET /menu/categories. With ?top=true only top-level
// categories are returned.
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		cats []database.Category
		err  error
	)
	if r.URL.Query().Get("top") == "true" {
		cats, err = h.svc.Children(r.Context(), nil)
	} else {
		cats, err = h.svc.List(r.Context())
	}
	if err != nil {
		writeServiceError(w, "list categories", err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryList(cats))
}

// Get handles GET /menu/categories/{id}.
func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "category ID")
	if !ok {
		return
	}
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, "get category", err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryResponse(c))
}

// Children handles GET /menu/categories/{id}/children.
func (h *CategoryHandler) Children(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "category ID")
	if !ok {
		return
	}
	cats, err := h.svc.Children(r.Context(), &id)
	if err != nil {
		writeServiceError(w, "list child categories", err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryList(cats))
}

// Descendants handles GET /menu/categories/{id}/descendants.
func (h *CategoryHandler) Descendants(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "category ID")
	if !ok {
		return
	}
	cats, err := h.svc.Descendants(r.Context(), id)
	if err != nil {
		writeServiceError(w, "list descendants", err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryList(cats))
}

// Create handles POST /categories.
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.Insert(r.Context(), req.Name, req.ParentID)
	if err != nil {
		writeServiceError(w, "create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryResponse(c))
}

// Update handles PATCH /categories/{id}.
func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "category ID")
	if !ok {
		return
	}
	var req updateCategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	upd := service.CategoryUpdate{Name: req.Name}
	if len(req.ParentID) > 0 {
		upd.MoveParent = true
		if !bytes.Equal(req.ParentID, []byte("null")) {
			var parent uuid.UUID
			if err := json.Unmarshal(req.ParentID, &parent); err != nil {
				writeError(w, http.StatusBadRequest, "invalid parent_id")
				return
			}
			upd.Parent = &parent
		}
	}
	if upd.Name == nil && !upd.MoveParent {
		writeError(w, http.StatusBadRequest, "name or parent_id is required")
		return
	}

	c, err := h.svc.Update(r.Context(), id, upd)
	if err != nil {
		writeServiceError(w, "update category", err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryResponse(c))
}

// Delete handles DELETE /categories/{id}. Children move up to the deleted
// category's parent; items filed directly under it are deleted.
func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "category ID")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, "delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
