package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/servizo/api/internal/database"
	"github.com/servizo/api/internal/observability"
	"github.com/shopspring/decimal"
)

const maxMenuItemNameLength = 50

// MenuStore defines the DB methods needed by the menu catalog.
// Satisfied by *database.Queries; narrow interface for testability.
type MenuStore interface {
	GetCategoryForShare(ctx context.Context, id uuid.UUID) (database.Category, error)
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItemRow, error)
	ListMenuItems(ctx context.Context, availableOnly bool) ([]database.MenuItemRow, error)
	ListMenuItemsByCategory(ctx context.Context, categoryID uuid.UUID) ([]database.MenuItemRow, error)
	CreateMenuItem(ctx context.Context, arg database.CreateMenuItemParams) (database.MenuItem, error)
	UpdateMenuItemPrice(ctx context.Context, arg database.UpdateMenuItemPriceParams) (database.MenuItem, error)
	UpdateMenuItemAvailability(ctx context.Context, arg database.UpdateMenuItemAvailabilityParams) (database.MenuItem, error)
	UpdateMenuItemCategory(ctx context.Context, arg database.UpdateMenuItemCategoryParams) (database.MenuItem, error)
	UpdateMenuItemDetails(ctx context.Context, arg database.UpdateMenuItemDetailsParams) (database.MenuItem, error)
	DeleteMenuItem(ctx context.Context, id uuid.UUID) (int64, error)
}

// NewMenuStore creates a MenuStore from a DBTX (pool or tx).
type NewMenuStore func(db database.DBTX) MenuStore

// NewMenuItem is the validated input for AddItem.
type NewMenuItem struct {
	Name        string
	CategoryID  uuid.UUID
	Price       decimal.Decimal
	Available   bool
	Description string
}

// MenuService is the catalog of orderable items and the price source for
// the order ledger. Item reads carry the path of the item's category.
type MenuService struct {
	pool     DB
	newStore NewMenuStore
}

// NewMenuService creates a new MenuService.
func NewMenuService(pool DB, newStore NewMenuStore) *MenuService {
	return &MenuService{pool: pool, newStore: newStore}
}

// Get returns a single item.
func (s *MenuService) Get(ctx context.Context, id uuid.UUID) (database.MenuItemRow, error) {
	return getMenuItem(ctx, s.newStore(s.pool), id)
}

// List returns the catalog grouped by category path.
func (s *MenuService) List(ctx context.Context, availableOnly bool) ([]database.MenuItemRow, error) {
	items, err := s.newStore(s.pool).ListMenuItems(ctx, availableOnly)
	if err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	return items, nil
}

// ListByCategory returns the items filed directly under a category.
func (s *MenuService) ListByCategory(ctx context.Context, categoryID uuid.UUID) ([]database.MenuItemRow, error) {
	items, err := s.newStore(s.pool).ListMenuItemsByCategory(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list menu items by category: %w", err)
	}
	return items, nil
}

// AddItem creates a menu item in an existing category.
func (s *MenuService) AddItem(ctx context.Context, req NewMenuItem) (_ database.MenuItemRow, err error) {
	if err := validateItemName(req.Name); err != nil {
		return database.MenuItemRow{}, err
	}
	if req.Price.IsNegative() {
		return database.MenuItemRow{}, ErrNegativePrice
	}
	ctx, op := observability.Start(ctx, "menu.add_item", observability.CategoryAttr(req.CategoryID))
	defer op.End(&err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.MenuItemRow{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if err := shareCategory(ctx, store, req.CategoryID); err != nil {
		return database.MenuItemRow{}, err
	}

	item, err := store.CreateMenuItem(ctx, database.CreateMenuItemParams{
		Name:        req.Name,
		CategoryID:  req.CategoryID,
		Price:       decimalToNumeric(req.Price),
		Available:   req.Available,
		Description: optionalText(req.Description),
	})
	if err != nil {
		return database.MenuItemRow{}, fmt.Errorf("create menu item: %w", err)
	}
	row, err := getMenuItem(ctx, store, item.ID)
	if err != nil {
		return database.MenuItemRow{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return database.MenuItemRow{}, fmt.Errorf("commit tx: %w", err)
	}
	return row, nil
}

// UpdatePrice sets an item's price. Unpaid orders pick up the new price the
// next time they are mutated.
func (s *MenuService) UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) (_ database.MenuItemRow, err error) {
	if price.IsNegative() {
		return database.MenuItemRow{}, ErrNegativePrice
	}
	ctx, op := observability.Start(ctx, "menu.update_price", observability.ItemAttr(id))
	defer op.End(&err)

	store := s.newStore(s.pool)
	if _, err := store.UpdateMenuItemPrice(ctx, database.UpdateMenuItemPriceParams{
		ID:    id,
		Price: decimalToNumeric(price),
	}); err != nil {
		return database.MenuItemRow{}, itemUpdateError("update price", err)
	}
	return getMenuItem(ctx, store, id)
}

// UpdateAvailability marks an item as orderable or not.
func (s *MenuService) UpdateAvailability(ctx context.Context, id uuid.UUID, available bool) (database.MenuItemRow, error) {
	store := s.newStore(s.pool)
	if _, err := store.UpdateMenuItemAvailability(ctx, database.UpdateMenuItemAvailabilityParams{
		ID:        id,
		Available: available,
	}); err != nil {
		return database.MenuItemRow{}, itemUpdateError("update availability", err)
	}
	return getMenuItem(ctx, store, id)
}

// ReassignCategory files an item under another existing category.
func (s *MenuService) ReassignCategory(ctx context.Context, id, categoryID uuid.UUID) (_ database.MenuItemRow, err error) {
	ctx, op := observability.Start(ctx, "menu.reassign_category", observability.ItemAttr(id), observability.CategoryAttr(categoryID))
	defer op.End(&err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.MenuItemRow{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if err := shareCategory(ctx, store, categoryID); err != nil {
		return database.MenuItemRow{}, err
	}
	if _, err := store.UpdateMenuItemCategory(ctx, database.UpdateMenuItemCategoryParams{
		ID:         id,
		CategoryID: categoryID,
	}); err != nil {
		return database.MenuItemRow{}, itemUpdateError("update category", err)
	}
	row, err := getMenuItem(ctx, store, id)
	if err != nil {
		return database.MenuItemRow{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return database.MenuItemRow{}, fmt.Errorf("commit tx: %w", err)
	}
	return row, nil
}

// UpdateDetails replaces an item's name and description.
func (s *MenuService) UpdateDetails(ctx context.Context, id uuid.UUID, name, description string) (database.MenuItemRow, error) {
	if err := validateItemName(name); err != nil {
		return database.MenuItemRow{}, err
	}
	store := s.newStore(s.pool)
	if _, err := store.UpdateMenuItemDetails(ctx, database.UpdateMenuItemDetailsParams{
		ID:          id,
		Name:        name,
		Description: optionalText(description),
	}); err != nil {
		return database.MenuItemRow{}, itemUpdateError("update details", err)
	}
	return getMenuItem(ctx, store, id)
}

// DeleteItem removes an item. Orders that reference it keep the id; it is
// priced at zero from then on.
func (s *MenuService) DeleteItem(ctx context.Context, id uuid.UUID) error {
	n, err := s.newStore(s.pool).DeleteMenuItem(ctx, id)
	if err != nil {
		return fmt.Errorf("delete menu item: %w", err)
	}
	if n == 0 {
		return ErrMenuItemNotFound
	}
	return nil
}

func getMenuItem(ctx context.Context, store MenuStore, id uuid.UUID) (database.MenuItemRow, error) {
	item, err := store.GetMenuItem(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.MenuItemRow{}, ErrMenuItemNotFound
		}
		return database.MenuItemRow{}, fmt.Errorf("get menu item: %w", err)
	}
	return item, nil
}

// shareCategory checks that a category exists and holds it against
// deletion until the transaction ends.
func shareCategory(ctx context.Context, store MenuStore, id uuid.UUID) error {
	if _, err := store.GetCategoryForShare(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCategoryNotFound
		}
		return fmt.Errorf("get category: %w", err)
	}
	return nil
}

func itemUpdateError(action string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrMenuItemNotFound
	}
	return fmt.Errorf("%s: %w", action, err)
}

func validateItemName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n == 0 || utf8.RuneCountInString(name) > maxMenuItemNameLength {
		return ErrInvalidItemName
	}
	return nil
}

func optionalText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
