package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/servizo/api/internal/database"
	"github.com/servizo/api/internal/middleware"
	"github.com/servizo/api/internal/service"
)

// UserStore defines the database methods needed by user handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type UserStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
	ListUsers(ctx context.Context) ([]database.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) (int64, error)
	AddFavorite(ctx context.Context, arg database.AddFavoriteParams) (database.User, error)
	RemoveFavorite(ctx context.Context, arg database.RemoveFavoriteParams) (database.User, error)
	StartWaiterShift(ctx context.Context, arg database.WaiterShiftParams) (database.Waiter, error)
	EndWaiterShift(ctx context.Context, arg database.WaiterShiftParams) (database.Waiter, error)
}

// RoleSetter changes user roles. Satisfied by *service.UserService.
type RoleSetter interface {
	SetRole(ctx context.Context, id uuid.UUID, role string) (database.User, error)
}

// ItemReader looks up menu items. Satisfied by *service.MenuService.
type ItemReader interface {
	Get(ctx context.Context, id uuid.UUID) (database.MenuItemRow, error)
}

// UserHandler handles the account endpoints: the caller's own profile and
// favorites, waiter shifts, and admin user management.
type UserHandler struct {
	store UserStore
	roles RoleSetter
	items ItemReader
	now   func() time.Time
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(store UserStore, roles RoleSetter, items ItemReader) *UserHandler {
	return &UserHandler{store: store, roles: roles, items: items, now: time.Now}
}

// RegisterMeRoutes registers the caller's profile endpoints.
func (h *UserHandler) RegisterMeRoutes(r chi.Router) {
	r.Get("/me", h.Me)
	r.Get("/me/favorites", h.ListFavorites)
	r.Post("/me/favorites", h.AddFavorite)
	r.Delete("/me/favorites/{itemID}", h.RemoveFavorite)
}

// RegisterShiftRoutes registers the waiter shift endpoints.
func (h *UserHandler) RegisterShiftRoutes(r chi.Router) {
	r.Post("/waiters/me/shift/start", h.StartShift)
	r.Post("/waiters/me/shift/end", h.EndShift)
}

// RegisterRoutes registers admin user management, mounted at /users.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Patch("/{id}/role", h.SetRole)
	r.Delete("/{id}", h.Delete)
}

// --- Request / Response types ---

type favoriteRequest struct {
	ItemID string `json:"item_id"`
}

type setRoleRequest struct {
	Role string `json:"role"`
}

type shiftResponse struct {
	UserID    uuid.UUID  `json:"user_id"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

// --- Handlers ---

// Me handles GET /me.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// ListFavorites handles GET /me/favorites. Favorites whose item has since
// been deleted are skipped.
func (h *UserHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	resp := make([]menuItemResponse, 0, len(user.Favorites))
	for _, id := range user.Favorites {
		item, err := h.items.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				continue
			}
			writeServiceError(w, "get favorite item", err)
			return
		}
		resp = append(resp, toMenuItemResponse(item))
	}
	writeJSON(w, http.StatusOK, resp)
}

// AddFavorite handles POST /me/favorites.
func (h *UserHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req favoriteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	itemID, err := uuid.Parse(req.ItemID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item_id")
		return
	}
	if _, err := h.items.Get(r.Context(), itemID); err != nil {
		writeServiceError(w, "get menu item", err)
		return
	}

	user, err := h.store.AddFavorite(r.Context(), database.AddFavoriteParams{ID: claims.UserID, ItemID: itemID})
	if err != nil {
		h.writeUserError(w, "add favorite", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// RemoveFavorite handles DELETE /me/favorites/{itemID}.
func (h *UserHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	itemID, ok := uuidParam(w, r, "itemID", "item ID")
	if !ok {
		return
	}

	user, err := h.store.RemoveFavorite(r.Context(), database.RemoveFavoriteParams{ID: claims.UserID, ItemID: itemID})
	if err != nil {
		h.writeUserError(w, "remove favorite", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// StartShift handles POST /waiters/me/shift/start.
func (h *UserHandler) StartShift(w http.ResponseWriter, r *http.Request) {
	h.shift(w, r, "start shift", h.store.StartWaiterShift)
}

// EndShift handles POST /waiters/me/shift/end.
func (h *UserHandler) EndShift(w http.ResponseWriter, r *http.Request) {
	h.shift(w, r, "end shift", h.store.EndWaiterShift)
}

func (h *UserHandler) shift(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, database.WaiterShiftParams) (database.Waiter, error)) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	waiter, err := fn(r.Context(), database.WaiterShiftParams{
		UserID: claims.UserID,
		At:     pgtype.Timestamptz{Time: h.now(), Valid: true},
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "waiter profile not found")
			return
		}
		log.Printf("ERROR: %s: %v", action, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, shiftResponse{
		UserID:    waiter.UserID,
		StartTime: timestampPtr(waiter.StartTime),
		EndTime:   timestampPtr(waiter.EndTime),
	})
}

// List handles GET /users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		log.Printf("ERROR: list users: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]userResponse, len(users))
	for i, u := range users {
		resp[i] = toUserResponse(u)
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetRole handles PATCH /users/{id}/role.
func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "user ID")
	if !ok {
		return
	}
	var req setRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.roles.SetRole(r.Context(), id, req.Role)
	if err != nil {
		writeServiceError(w, "set role", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Delete handles DELETE /users/{id}. Admins cannot delete themselves.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "user ID")
	if !ok {
		return
	}
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil && claims.UserID == id {
		writeError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	n, err := h.store.DeleteUser(r.Context(), id)
	if err != nil {
		log.Printf("ERROR: delete user: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func (h *UserHandler) currentUser(w http.ResponseWriter, r *http.Request) (database.User, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return database.User{}, false
	}
	user, err := h.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		h.writeUserError(w, "get user", err)
		return database.User{}, false
	}
	return user, true
}

func (h *UserHandler) writeUserError(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	log.Printf("ERROR: %s: %v", action, err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func timestampPtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	return &ts.Time
}
