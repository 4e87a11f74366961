package database

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusServed    OrderStatus = "served"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (e *OrderStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = OrderStatus(s)
	case string:
		*e = OrderStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for OrderStatus: %T", src)
	}
	return nil
}

func (e OrderStatus) Value() (driver.Value, error) {
	return string(e), nil
}

type PaymentStatus string

const (
	PaymentStatusCreated        PaymentStatus = "created"
	PaymentStatusRequiresAction PaymentStatus = "requires_action"
	PaymentStatusProcessing     PaymentStatus = "processing"
	PaymentStatusSucceeded      PaymentStatus = "succeeded"
	PaymentStatusFailed         PaymentStatus = "failed"
	PaymentStatusCanceled       PaymentStatus = "canceled"
)

func (e *PaymentStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = PaymentStatus(s)
	case string:
		*e = PaymentStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for PaymentStatus: %T", src)
	}
	return nil
}

func (e PaymentStatus) Value() (driver.Value, error) {
	return string(e), nil
}

// Category is a node of the menu tree. Path and Ancestors are denormalised
// from the parent chain and rewritten by the category service on every
// structural change.
type Category struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	ParentID  pgtype.UUID `json:"parent_id"`
	Path      string      `json:"path"`
	Ancestors []uuid.UUID `json:"ancestors"`
	CreatedAt time.Time   `json:"created_at"`
}

type MenuItem struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	CategoryID  uuid.UUID      `json:"category_id"`
	Price       pgtype.Numeric `json:"price"`
	Available   bool           `json:"available"`
	Description pgtype.Text    `json:"description"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Order.Items holds one menu item id per unit ordered.
type Order struct {
	ID         uuid.UUID          `json:"id"`
	Items      []uuid.UUID        `json:"items"`
	TableNum   int32              `json:"table_num"`
	TotalPrice pgtype.Numeric     `json:"total_price"`
	Status     OrderStatus        `json:"status"`
	OrderedAt  time.Time          `json:"ordered_at"`
	PaidAt     pgtype.Timestamptz `json:"paid_at"`
}

type Table struct {
	ID          uuid.UUID      `json:"id"`
	TableNumber int32          `json:"table_number"`
	AmountDue   pgtype.Numeric `json:"amount_due"`
}

type Payment struct {
	ID               uuid.UUID          `json:"id"`
	TableNum         pgtype.Int4        `json:"table_num"`
	AmountCents      int64              `json:"amount_cents"`
	Currency         string             `json:"currency"`
	OrderIDs         []uuid.UUID        `json:"order_ids"`
	ExternalIntentID string             `json:"external_intent_id"`
	ClientSecret     string             `json:"client_secret"`
	ReceiptURL       pgtype.Text        `json:"receipt_url"`
	PayerEmail       pgtype.Text        `json:"payer_email"`
	Status           PaymentStatus      `json:"status"`
	ErrorMessage     pgtype.Text        `json:"error_message"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	PaidAt           pgtype.Timestamptz `json:"paid_at"`
}

type User struct {
	ID             uuid.UUID   `json:"id"`
	Username       string      `json:"username"`
	Email          string      `json:"email"`
	HashedPassword string      `json:"hashed_password"`
	FirstName      string      `json:"first_name"`
	LastName       string      `json:"last_name"`
	Role           string      `json:"role"`
	Favorites      []uuid.UUID `json:"favorites"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

type Waiter struct {
	UserID    uuid.UUID          `json:"user_id"`
	StartTime pgtype.Timestamptz `json:"start_time"`
	EndTime   pgtype.Timestamptz `json:"end_time"`
}
