package product

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/paymall/paymall-backend/pkg/db/models"
)

// TriggeredAlert describes a low-stock alert that fired during settlement.
type TriggeredAlert struct {
	ProductID     uuid.UUID
	MallID        uuid.UUID
	StockQuantity int
	Threshold     int
}

// EvaluateLowStock fires alerts for products whose stock is at or below their
// threshold. Products without an alert row get one at defaultThreshold when it
// is positive. Each alert fires at most once.
func (r *Repository) EvaluateLowStock(ctx context.Context, products []models.Product, defaultThreshold int, now time.Time) ([]TriggeredAlert, error) {
	if len(products) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	alerts, err := r.FindAlerts(ctx, ids)
	if err != nil {
		return nil, err
	}

	var fired []TriggeredAlert
	for _, p := range products {
		alert, ok := alerts[p.ID]
		if !ok {
			if defaultThreshold <= 0 {
				continue
			}
			alert = models.InventoryAlert{ProductID: p.ID, Threshold: defaultThreshold}
		}
		if alert.IsTriggered || p.StockQuantity > alert.Threshold {
			if !ok {
				if err := r.SaveAlert(ctx, &alert); err != nil {
					return nil, err
				}
			}
			continue
		}

		at := now
		alert.IsTriggered = true
		alert.TriggeredAt = &at
		if err := r.SaveAlert(ctx, &alert); err != nil {
			return nil, err
		}
		fired = append(fired, TriggeredAlert{
			ProductID:     p.ID,
			MallID:        p.MallID,
			StockQuantity: p.StockQuantity,
			Threshold:     alert.Threshold,
		})
	}
	return fired, nil
}
