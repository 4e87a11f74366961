package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/servizo/api/internal/database"
	"github.com/servizo/api/internal/service"
	"github.com/shopspring/decimal"
)

// OrderPayload is the payload of every order event.
type OrderPayload struct {
	OrderID    uuid.UUID            `json:"order_id"`
	TableNum   int32                `json:"table_num"`
	Status     database.OrderStatus `json:"status"`
	Items      []uuid.UUID          `json:"items"`
	TotalPrice decimal.Decimal      `json:"total_price"`
	AmountDue  decimal.Decimal      `json:"amount_due"`
}

// Publisher fans committed order changes out to the staff feed and the
// feed of the order's table.
type Publisher struct {
	hub *Hub
}

// NewPublisher creates a Publisher on hub.
func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

// PublishOrder implements service.EventPublisher.
func (p *Publisher) PublishOrder(ctx context.Context, e service.OrderEvent) {
	payload, err := json.Marshal(OrderPayload{
		OrderID:    e.Order.ID,
		TableNum:   e.Order.TableNum,
		Status:     e.Order.Status,
		Items:      e.Order.Items,
		TotalPrice: service.NumericToDecimal(e.Order.TotalPrice),
		AmountDue:  e.AmountDue,
	})
	if err != nil {
		log.Printf("ERROR: marshal %s payload: %v", e.Type, err)
		return
	}
	ev := Event{Type: e.Type, Payload: payload}
	p.hub.Broadcast(TopicOrders, ev)
	p.hub.Broadcast(TableTopic(e.Order.TableNum), ev)
}
