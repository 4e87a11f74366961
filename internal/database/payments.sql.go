package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, table_num, amount_cents, currency, order_ids, external_intent_id, client_secret,
       receipt_url, payer_email, status, error_message, created_at, updated_at, paid_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var i Payment
	err := row.Scan(
		&i.ID,
		&i.TableNum,
		&i.AmountCents,
		&i.Currency,
		&i.OrderIDs,
		&i.ExternalIntentID,
		&i.ClientSecret,
		&i.ReceiptURL,
		&i.PayerEmail,
		&i.Status,
		&i.ErrorMessage,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.PaidAt,
	)
	return i, err
}

const createPayment = `-- name: CreatePayment :one
INSERT INTO payments (table_num, amount_cents, currency, order_ids, external_intent_id,
                      client_secret, payer_email, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + paymentColumns

type CreatePaymentParams struct {
	TableNum         pgtype.Int4   `json:"table_num"`
	AmountCents      int64         `json:"amount_cents"`
	Currency         string        `json:"currency"`
	OrderIDs         []uuid.UUID   `json:"order_ids"`
	ExternalIntentID string        `json:"external_intent_id"`
	ClientSecret     string        `json:"client_secret"`
	PayerEmail       pgtype.Text   `json:"payer_email"`
	Status           PaymentStatus `json:"status"`
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, createPayment,
		arg.TableNum,
		arg.AmountCents,
		arg.Currency,
		arg.OrderIDs,
		arg.ExternalIntentID,
		arg.ClientSecret,
		arg.PayerEmail,
		arg.Status,
	))
}

const getPaymentByIntentID = `-- name: GetPaymentByIntentID :one
SELECT ` + paymentColumns + `
FROM payments
WHERE external_intent_id = $1
`

func (q *Queries) GetPaymentByIntentID(ctx context.Context, externalIntentID string) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getPaymentByIntentID, externalIntentID))
}

const getPaymentByIntentIDForUpdate = `-- name: GetPaymentByIntentIDForUpdate :one
SELECT ` + paymentColumns + `
FROM payments
WHERE external_intent_id = $1
FOR UPDATE
`

func (q *Queries) GetPaymentByIntentIDForUpdate(ctx context.Context, externalIntentID string) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getPaymentByIntentIDForUpdate, externalIntentID))
}

const markPaymentCanceled = `-- name: MarkPaymentCanceled :execrows
UPDATE payments SET status = 'canceled', updated_at = now()
WHERE external_intent_id = $1 AND paid_at IS NULL
`

func (q *Queries) MarkPaymentCanceled(ctx context.Context, externalIntentID string) (int64, error) {
	result, err := q.db.Exec(ctx, markPaymentCanceled, externalIntentID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const markPaymentFailed = `-- name: MarkPaymentFailed :execrows
UPDATE payments SET status = 'failed', error_message = $2, updated_at = now()
WHERE external_intent_id = $1 AND paid_at IS NULL
`

type MarkPaymentFailedParams struct {
	ExternalIntentID string      `json:"external_intent_id"`
	ErrorMessage     pgtype.Text `json:"error_message"`
}

func (q *Queries) MarkPaymentFailed(ctx context.Context, arg MarkPaymentFailedParams) (int64, error) {
	result, err := q.db.Exec(ctx, markPaymentFailed, arg.ExternalIntentID, arg.ErrorMessage)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const markPaymentSucceeded = `-- name: MarkPaymentSucceeded :one
UPDATE payments
SET status = 'succeeded', receipt_url = $2, paid_at = $3, error_message = NULL, updated_at = now()
WHERE external_intent_id = $1
RETURNING ` + paymentColumns

type MarkPaymentSucceededParams struct {
	ExternalIntentID string             `json:"external_intent_id"`
	ReceiptURL       pgtype.Text        `json:"receipt_url"`
	PaidAt           pgtype.Timestamptz `json:"paid_at"`
}

func (q *Queries) MarkPaymentSucceeded(ctx context.Context, arg MarkPaymentSucceededParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, markPaymentSucceeded, arg.ExternalIntentID, arg.ReceiptURL, arg.PaidAt))
}
