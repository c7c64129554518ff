package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/paymall/paymall-backend/pkg/db"
	"github.com/paymall/paymall-backend/pkg/db/models"
	"github.com/paymall/paymall-backend/pkg/enums"
	"github.com/paymall/paymall-backend/pkg/outbox/payloads"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.OpenSQLite("file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}))
	return conn
}

func TestEmitWritesEnvelope(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	orderID := uuid.New()
	userID := uuid.New()
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &ActorRef{UserID: userID},
			Data: payloads.OrderStatusEvent{
				OrderID: orderID,
				From:    enums.OrderStatusPaymentPending,
				To:      enums.OrderStatusCancelled,
			},
		})
	})
	require.NoError(t, err)

	rows, err := repo.FetchUnpublished(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, orderID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.Equal(t, "order_cancelled", envelope.EventType)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, userID, envelope.Actor.UserID)

	var data payloads.OrderStatusEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, enums.OrderStatusCancelled, data.To)
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	_ = conn.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
		}))
		return errors.New("abort")
	})

	rows, err := repo.FetchUnpublished(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEmitRejectsUnknownTypes(t *testing.T) {
	svc := NewService(NewRepository(newTestDB(t)), nil)
	err := svc.Emit(context.Background(), &gorm.DB{}, DomainEvent{EventType: "nope", AggregateType: enums.AggregateOrder})
	assert.Error(t, err)
	err = svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder})
	assert.Error(t, err)
}

func TestMarkFailedAndPublished(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	row := models.OutboxEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
	}
	require.NoError(t, repo.Insert(conn, row))

	rows, err := repo.FetchUnpublished(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, repo.MarkFailed(ctx, rows[0].ID, errors.New("topic missing")))
	rows, err = repo.FetchUnpublished(ctx, 10, 1)
	require.NoError(t, err)
	assert.Empty(t, rows, "row at max attempts should be skipped")

	all, err := repo.FetchUnpublished(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NoError(t, repo.MarkPublished(ctx, all[0].ID))
	all, err = repo.FetchUnpublished(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}
