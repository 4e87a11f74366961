package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/servizo/api/internal/database"
	"github.com/servizo/api/internal/enum"
	"github.com/servizo/api/internal/observability"
	"github.com/shopspring/decimal"
)

// Gateway is the external payment processor.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	CancelIntent(ctx context.Context, intentID string) error
}

// IntentRequest is what the gateway needs to open a payment intent.
type IntentRequest struct {
	AmountCents  int64
	Currency     string
	Metadata     map[string]string
	ReceiptEmail string
}

// Intent is an opened payment intent.
type Intent struct {
	ID           string
	ClientSecret string
}

// ExternalEvent is a verified gateway callback. Kind is one of the
// enum.PaymentEvent* values; other kinds are ignored.
type ExternalEvent struct {
	Kind         string
	IntentID     string
	ReceiptURL   string
	ErrorMessage string
}

// CreateIntentRequest is the validated input for CreateIntent.
type CreateIntentRequest struct {
	OrderIDs   []uuid.UUID
	PayerEmail string
}

// PaymentStore defines the DB methods needed by the payment reconciler.
// Satisfied by *database.Queries; narrow interface for testability.
type PaymentStore interface {
	Locker
	TableDueStore
	ListOrdersByIDs(ctx context.Context, ids []uuid.UUID) ([]database.Order, error)
	ListOrdersByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]database.Order, error)
	MarkOrderPaid(ctx context.Context, arg database.MarkOrderPaidParams) (database.Order, error)
	ListMenuItemPrices(ctx context.Context, ids []uuid.UUID) ([]database.ListMenuItemPricesRow, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	GetPaymentByIntentID(ctx context.Context, externalIntentID string) (database.Payment, error)
	GetPaymentByIntentIDForUpdate(ctx context.Context, externalIntentID string) (database.Payment, error)
	MarkPaymentSucceeded(ctx context.Context, arg database.MarkPaymentSucceededParams) (database.Payment, error)
	MarkPaymentFailed(ctx context.Context, arg database.MarkPaymentFailedParams) (int64, error)
	MarkPaymentCanceled(ctx context.Context, externalIntentID string) (int64, error)
}

// NewPaymentStore creates a PaymentStore from a DBTX (pool or tx).
type NewPaymentStore func(db database.DBTX) PaymentStore

// PaymentService opens payment intents for sets of orders and applies the
// gateway's lifecycle events to them. Success events are applied at most
// once per intent.
type PaymentService struct {
	pool      DB
	newStore  NewPaymentStore
	gateway   Gateway
	currency  string
	publisher EventPublisher
	now       func() time.Time
}

// NewPaymentService creates a new PaymentService. An empty currency falls
// back to enum.DefaultCurrency; a nil publisher discards events.
func NewPaymentService(pool DB, newStore NewPaymentStore, gateway Gateway, currency string, publisher EventPublisher) *PaymentService {
	if currency == "" {
		currency = enum.DefaultCurrency
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &PaymentService{
		pool:      pool,
		newStore:  newStore,
		gateway:   gateway,
		currency:  strings.ToLower(currency),
		publisher: publisher,
		now:       time.Now,
	}
}

// CreateIntent opens a gateway intent for the total of the given unpaid
// orders and records it as a created Payment. Nothing is stored when the
// gateway call fails.
func (s *PaymentService) CreateIntent(ctx context.Context, req CreateIntentRequest) (_ database.Payment, err error) {
	ids := distinct(req.OrderIDs)
	if len(ids) == 0 {
		return database.Payment{}, ErrEmptyOrderSet
	}
	ctx, op := observability.Start(ctx, "payment.create_intent")
	defer op.End(&err)

	store := s.newStore(s.pool)

	orders, err := store.ListOrdersByIDs(ctx, ids)
	if err != nil {
		return database.Payment{}, fmt.Errorf("list orders: %w", err)
	}
	if len(orders) != len(ids) {
		return database.Payment{}, ErrOrderNotFound
	}

	total := decimal.Zero
	tableNum := pgtype.Int4{Int32: orders[0].TableNum, Valid: true}
	for _, o := range orders {
		if o.Status == database.OrderStatusPaid {
			return database.Payment{}, fmt.Errorf("order %s: %w", o.ID, ErrOrderPaid)
		}
		total = total.Add(numericToDecimal(o.TotalPrice))
		if o.TableNum != tableNum.Int32 {
			tableNum = pgtype.Int4{}
		}
	}
	cents := toMinorUnits(total)
	if cents <= 0 {
		return database.Payment{}, ErrNonPositiveTotal
	}

	metadata := map[string]string{"order_ids": joinIDs(ids)}
	if tableNum.Valid {
		metadata["table_num"] = strconv.Itoa(int(tableNum.Int32))
	}
	intent, err := s.gateway.CreateIntent(ctx, IntentRequest{
		AmountCents:  cents,
		Currency:     s.currency,
		Metadata:     metadata,
		ReceiptEmail: req.PayerEmail,
	})
	if err != nil {
		return database.Payment{}, fmt.Errorf("%w: create payment intent: %w", ErrExternalService, err)
	}

	payment, err := store.CreatePayment(ctx, database.CreatePaymentParams{
		TableNum:         tableNum,
		AmountCents:      cents,
		Currency:         s.currency,
		OrderIDs:         ids,
		ExternalIntentID: intent.ID,
		ClientSecret:     intent.ClientSecret,
		PayerEmail:       optionalText(req.PayerEmail),
		Status:           database.PaymentStatusCreated,
	})
	if err != nil {
		if cerr := s.gateway.CancelIntent(ctx, intent.ID); cerr != nil {
			log.Printf("ERROR: cancel orphaned payment intent %s: %v", intent.ID, cerr)
		}
		if isUniqueViolation(err, "payments_external_intent_id_key") {
			return database.Payment{}, ErrDuplicateIntent
		}
		return database.Payment{}, fmt.Errorf("create payment: %w", err)
	}
	return payment, nil
}

// HandleEvent applies a gateway event to the payment with the event's
// intent id. Failed and canceled events never override a succeeded payment.
func (s *PaymentService) HandleEvent(ctx context.Context, ev ExternalEvent) (err error) {
	ctx, op := observability.Start(ctx, "payment.handle_event",
		observability.IntentAttr(ev.IntentID), observability.EventKindAttr(ev.Kind))
	defer op.End(&err)

	switch ev.Kind {
	case enum.PaymentEventSucceeded:
		return s.applySucceeded(ctx, ev)
	case enum.PaymentEventFailed:
		n, err := s.newStore(s.pool).MarkPaymentFailed(ctx, database.MarkPaymentFailedParams{
			ExternalIntentID: ev.IntentID,
			ErrorMessage:     optionalText(ev.ErrorMessage),
		})
		if err != nil {
			return fmt.Errorf("mark payment failed: %w", err)
		}
		return s.checkApplied(ctx, ev.IntentID, n)
	case enum.PaymentEventCanceled:
		n, err := s.newStore(s.pool).MarkPaymentCanceled(ctx, ev.IntentID)
		if err != nil {
			return fmt.Errorf("mark payment canceled: %w", err)
		}
		return s.checkApplied(ctx, ev.IntentID, n)
	default:
		return nil
	}
}

// checkApplied distinguishes an unknown intent from one that is already
// paid when a failed or canceled update touched no row.
func (s *PaymentService) checkApplied(ctx context.Context, intentID string, rows int64) error {
	if rows > 0 {
		return nil
	}
	if _, err := s.Status(ctx, intentID); err != nil {
		return err
	}
	return nil
}

func (s *PaymentService) applySucceeded(ctx context.Context, ev ExternalEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// The payment row lock serializes redeliveries of the same event.
	p, err := store.GetPaymentByIntentIDForUpdate(ctx, ev.IntentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPaymentNotFound
		}
		return fmt.Errorf("get payment: %w", err)
	}
	if p.PaidAt.Valid {
		return nil
	}

	orders, err := store.ListOrdersByIDs(ctx, p.OrderIDs)
	if err != nil {
		return fmt.Errorf("list orders: %w", err)
	}
	tables := make([]int32, 0, len(orders))
	for _, o := range orders {
		tables = append(tables, o.TableNum)
	}
	slices.Sort(tables)
	tables = slices.Compact(tables)
	if err := lockTables(ctx, store, tables...); err != nil {
		return fmt.Errorf("lock tables: %w", err)
	}

	at := pgtype.Timestamptz{Time: s.now(), Valid: true}
	if _, err := store.MarkPaymentSucceeded(ctx, database.MarkPaymentSucceededParams{
		ExternalIntentID: ev.IntentID,
		ReceiptURL:       optionalText(ev.ReceiptURL),
		PaidAt:           at,
	}); err != nil {
		return fmt.Errorf("mark payment succeeded: %w", err)
	}

	locked, err := store.ListOrdersByIDsForUpdate(ctx, p.OrderIDs)
	if err != nil {
		return fmt.Errorf("lock orders: %w", err)
	}
	var paid []database.Order
	for _, o := range locked {
		if o.Status == database.OrderStatusPaid {
			continue
		}
		total, err := repriceOrder(ctx, store, o.Items)
		if err != nil {
			return fmt.Errorf("order %s: %w", o.ID, err)
		}
		updated, err := store.MarkOrderPaid(ctx, database.MarkOrderPaidParams{ID: o.ID, PaidAt: at, TotalPrice: total})
		if err != nil {
			return fmt.Errorf("mark order %s paid: %w", o.ID, err)
		}
		paid = append(paid, updated)
	}

	dues := make(map[int32]decimal.Decimal, len(tables))
	for _, n := range tables {
		due, err := recomputeTable(ctx, store, n)
		if err != nil {
			return err
		}
		dues[n] = due
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	for _, o := range paid {
		s.publisher.PublishOrder(ctx, OrderEvent{Type: enum.EventOrderPaid, Order: o, AmountDue: dues[o.TableNum]})
	}
	return nil
}

// Status returns the payment recorded for a gateway intent.
func (s *PaymentService) Status(ctx context.Context, intentID string) (database.Payment, error) {
	p, err := s.newStore(s.pool).GetPaymentByIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Payment{}, ErrPaymentNotFound
		}
		return database.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}
