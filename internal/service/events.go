package service

import (
	"context"

	"github.com/servizo/api/internal/database"
	"github.com/shopspring/decimal"
)

// OrderEvent describes a committed order change. AmountDue is the table's
// amount due after the change.
type OrderEvent struct {
	Type      string
	Order     database.Order
	AmountDue decimal.Decimal
}

// EventPublisher receives order changes after their transaction commits.
// Implementations must not block.
type EventPublisher interface {
	PublishOrder(ctx context.Context, event OrderEvent)
}

type nopPublisher struct{}

func (nopPublisher) PublishOrder(context.Context, OrderEvent) {}
