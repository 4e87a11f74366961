package service

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error kinds. Every error returned by a service wraps exactly one of these;
// handlers map the kind to an HTTP status with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrConflict         = errors.New("conflict")
	ErrUnavailable      = errors.New("unavailable")
	ErrExternalService  = errors.New("external service error")
)

// Errors returned by the category tree and menu catalog.
var (
	ErrCategoryNotFound  = fmt.Errorf("category %w", ErrNotFound)
	ErrParentNotFound    = fmt.Errorf("parent category %w", ErrNotFound)
	ErrMenuItemNotFound  = fmt.Errorf("menu item %w", ErrNotFound)
	ErrInvalidName       = fmt.Errorf("%w: name must be 1-%d characters and must not contain '/'", ErrInvalidArgument, MaxCategoryNameLength)
	ErrPathTooLong       = fmt.Errorf("%w: category path exceeds %d characters", ErrInvalidArgument, MaxCategoryPathLength)
	ErrInvalidItemName   = fmt.Errorf("%w: item name must be 1-50 characters", ErrInvalidArgument)
	ErrNegativePrice     = fmt.Errorf("%w: price must be >= 0", ErrInvalidArgument)
	ErrCategoryCycle     = fmt.Errorf("%w: cannot move a category into its own subtree", ErrInvalidOperation)
	ErrMaxDepth          = fmt.Errorf("%w: category tree deeper than %d levels", ErrInvalidOperation, MaxCategoryDepth+1)
	ErrDuplicateCategory = fmt.Errorf("%w: a category with this path already exists", ErrConflict)
)

// Errors returned by the order ledger and table accounts.
var (
	ErrOrderNotFound      = fmt.Errorf("order %w", ErrNotFound)
	ErrTableNotFound      = fmt.Errorf("table %w", ErrNotFound)
	ErrItemNotInOrder     = fmt.Errorf("item %w in order", ErrNotFound)
	ErrItemUnavailable    = fmt.Errorf("menu item %w", ErrUnavailable)
	ErrEmptyItems         = fmt.Errorf("%w: items are required", ErrInvalidArgument)
	ErrInvalidQuantity    = fmt.Errorf("%w: quantity must be 1-%d", ErrInvalidArgument, MaxLineQuantity)
	ErrTooManyUnits       = fmt.Errorf("%w: an order holds at most %d units", ErrInvalidArgument, MaxOrderUnits)
	ErrOrderTotalTooLarge = fmt.Errorf("%w: order total exceeds %s", ErrInvalidArgument, maxOrderTotal.StringFixed(2))
	ErrInvalidTableNumber = fmt.Errorf("%w: table number must be > 0", ErrInvalidArgument)
	ErrOrderPaid          = fmt.Errorf("%w: order is already paid", ErrInvalidOperation)
	ErrInvalidTransition  = fmt.Errorf("%w: invalid status transition", ErrInvalidOperation)
	ErrDuplicateTable     = fmt.Errorf("%w: table number already exists", ErrConflict)
)

// Errors returned by the payment reconciler.
var (
	ErrPaymentNotFound  = fmt.Errorf("payment %w", ErrNotFound)
	ErrEmptyOrderSet    = fmt.Errorf("%w: order_ids are required", ErrInvalidArgument)
	ErrNonPositiveTotal = fmt.Errorf("%w: amount must be > 0", ErrInvalidArgument)
	ErrDuplicateIntent  = fmt.Errorf("%w: payment intent already recorded", ErrConflict)
)

// Errors returned by the user service.
var (
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	ErrInvalidRole  = fmt.Errorf("%w: invalid role", ErrInvalidArgument)
)

// isUniqueViolation checks for a unique constraint violation (pgconn error
// code 23505), optionally on a specific constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
	}
	return false
}
