package enums

import "fmt"

// OrderStatus tracks the order lifecycle. PAYMENT_PENDING is the only
// payable state; PAID, CANCELLED and EXPIRED end the payment window and
// FULFILLED closes the order.
type OrderStatus string

const (
	OrderStatusCreated        OrderStatus = "CREATED"
	OrderStatusPaymentPending OrderStatus = "PAYMENT_PENDING"
	OrderStatusPaid           OrderStatus = "PAID"
	OrderStatusFulfilled      OrderStatus = "FULFILLED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
	OrderStatusExpired        OrderStatus = "EXPIRED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusPaymentPending,
	OrderStatusPaid,
	OrderStatusFulfilled,
	OrderStatusCancelled,
	OrderStatusExpired,
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:        {OrderStatusPaymentPending},
	OrderStatusPaymentPending: {OrderStatusPaid, OrderStatusCancelled, OrderStatusExpired},
	OrderStatusPaid:           {OrderStatusFulfilled},
}

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
