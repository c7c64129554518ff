package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column on outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregatePayment OutboxAggregateType = "payment"
	AggregateProduct OutboxAggregateType = "product"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePayment,
	AggregateProduct,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column on outbox_events.
type OutboxEventType string

const (
	EventOrderCreated      OutboxEventType = "order_created"
	EventOrderCancelled    OutboxEventType = "order_cancelled"
	EventOrderExpired      OutboxEventType = "order_expired"
	EventOrderPaid         OutboxEventType = "order_paid"
	EventOrderFulfilled    OutboxEventType = "order_fulfilled"
	EventPaymentFailed     OutboxEventType = "payment_failed"
	EventInventoryLowStock OutboxEventType = "inventory_low_stock"
)

var validEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderCancelled,
	EventOrderExpired,
	EventOrderPaid,
	EventOrderFulfilled,
	EventPaymentFailed,
	EventInventoryLowStock,
}

func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
