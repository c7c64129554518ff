package models

import "github.com/google/uuid"

// ensureID assigns a random id when the caller did not set one. Postgres
// also has a column default; sqlite does not.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&Product{},
		&InventoryAlert{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&PaymentAttempt{},
		&Payment{},
		&ExitOTP{},
		&OutboxEvent{},
	}
}
