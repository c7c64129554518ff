package orders

import (
	"github.com/paymall/paymall-backend/pkg/enums"
	pkgerrors "github.com/paymall/paymall-backend/pkg/errors"
)

// StateError reports that the order is not in a status the operation accepts.
func StateError(message string, status enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).
		WithDetails(map[string]any{"status": status})
}

// ExpiredError is returned after an overdue order was moved to EXPIRED.
func ExpiredError() error {
	return pkgerrors.New(pkgerrors.CodeExpired, "order expired").
		WithDetails(map[string]any{"status": enums.OrderStatusExpired})
}

func notFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func forbidden() error {
	return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
}
