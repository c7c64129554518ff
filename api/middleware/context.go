package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/paymall/paymall-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
	ctxMallID contextKey = "mall_id"
)

// UserIDFromContext returns the authenticated user, or uuid.Nil.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxUserID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

func RoleFromContext(ctx context.Context) enums.Role {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.Role); ok {
		return v
	}
	return ""
}

// MallIDFromContext returns the mall a staff token is scoped to.
func MallIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	v, ok := ctx.Value(ctxMallID).(uuid.UUID)
	return v, ok
}

// WithUser seeds the identity values the Auth middleware would set.
func WithUser(ctx context.Context, userID uuid.UUID, role enums.Role, mallID *uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxRole, role)
	if mallID != nil {
		ctx = context.WithValue(ctx, ctxMallID, *mallID)
	}
	return ctx
}
