package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-commerce-inventory/internal/kafka"
)

// Notifier is the boundary to the notification collaborators (email,
// websocket broadcast). Delivery is asynchronous and at-least-once; a
// delivery failure must never roll back the transaction that produced it.
type Notifier interface {
	OrderCreated(ctx context.Context, o *Order)
	OrderStatusChanged(ctx context.Context, orderID string, from, to Status, actorID, reason string)
	StockChanged(ctx context.Context, productID string, stock, reserved int)
}

// KafkaNotifier publishes envelope events, one producer per topic.
type KafkaNotifier struct {
	Orders   *kafkax.Producer // order.created
	Statuses *kafkax.Producer // order.status.changed
	Stock    *kafkax.Producer // stock.changed
	Service  string
}

func (n *KafkaNotifier) publish(p *kafkax.Producer, eventType, correlationID string, payload any) {
	if p == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      n.Service,
		CorrelationID: correlationID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(PartitionKey(correlationID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (n *KafkaNotifier) OrderCreated(ctx context.Context, o *Order) {
	items := make([]OrderItemLine, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemLine{ProductID: it.ProductID, Quantity: it.Quantity, UnitPriceCents: it.UnitPriceCents})
	}
	n.publish(n.Orders, EventOrderCreated, o.ID, OrderCreatedPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Items:       items,
		TotalCents:  o.TotalCents,
	})
}

func (n *KafkaNotifier) OrderStatusChanged(ctx context.Context, orderID string, from, to Status, actorID, reason string) {
	n.publish(n.Statuses, EventOrderStatusChanged, orderID, OrderStatusChangedPayload{
		OrderID:   orderID,
		OldStatus: from,
		NewStatus: to,
		ActorID:   actorID,
		Reason:    reason,
	})
}

func (n *KafkaNotifier) StockChanged(ctx context.Context, productID string, stock, reserved int) {
	available := stock - reserved
	if available < 0 {
		available = 0
	}
	n.publish(n.Stock, EventStockChanged, productID, StockChangedPayload{
		ProductID: productID,
		Stock:     stock,
		Reserved:  reserved,
		Available: available,
	})
}

// NopNotifier satisfies Notifier for tests and one-off tooling.
type NopNotifier struct{}

func (NopNotifier) OrderCreated(context.Context, *Order) {}
func (NopNotifier) OrderStatusChanged(context.Context, string, Status, Status, string, string) {
}
func (NopNotifier) StockChanged(context.Context, string, int, int) {}
