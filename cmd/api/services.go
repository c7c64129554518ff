package main

import (
	"fmt"

	"github.com/paymall/paymall-backend/internal/cart"
	"github.com/paymall/paymall-backend/internal/exitotp"
	"github.com/paymall/paymall-backend/internal/orders"
	"github.com/paymall/paymall-backend/internal/payments"
	product "github.com/paymall/paymall-backend/internal/products"
	"github.com/paymall/paymall-backend/pkg/config"
	"github.com/paymall/paymall-backend/pkg/db"
	"github.com/paymall/paymall-backend/pkg/enums"
	"github.com/paymall/paymall-backend/pkg/locks"
	"github.com/paymall/paymall-backend/pkg/logger"
	"github.com/paymall/paymall-backend/pkg/metrics"
	"github.com/paymall/paymall-backend/pkg/outbox"
)

type services struct {
	carts     cart.Service
	orders    orders.Service
	payments  payments.Service
	exitCodes exitotp.Service
}

func buildServices(cfg *config.Config, logg *logger.Logger, client *db.Client, m *metrics.CheckoutMetrics) (*services, error) {
	conn := client.DB()

	provider, err := enums.ParsePaymentProvider(cfg.Checkout.DefaultProvider, enums.PaymentProviderMock)
	if err != nil {
		return nil, fmt.Errorf("default payment provider: %w", err)
	}

	events := outbox.NewService(outbox.NewRepository(conn), logg)
	products := product.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)

	lifecycle, err := orders.NewLifecycle(orderRepo, events, m, logg)
	if err != nil {
		return nil, err
	}

	cartSvc, err := cart.NewService(cartRepo, products, client, logg)
	if err != nil {
		return nil, err
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repository: orderRepo,
		Carts:      cartRepo,
		Lifecycle:  lifecycle,
		Tx:         client,
		Outbox:     events,
		Metrics:    m,
		Logger:     logg,
		OrderTTL:   cfg.Checkout.OrderTTL,
	})
	if err != nil {
		return nil, err
	}

	exitSvc, err := exitotp.NewService(exitotp.ServiceParams{
		Repository: exitotp.NewRepository(conn),
		Orders:     orderRepo,
		Lifecycle:  lifecycle,
		Tx:         client,
		Logger:     logg,
		TTL:        cfg.Checkout.ExitOTPTTL,
	})
	if err != nil {
		return nil, err
	}

	paySvc, err := payments.NewService(payments.ServiceParams{
		Repository:        payments.NewRepository(conn),
		Orders:            orderRepo,
		Lifecycle:         lifecycle,
		Products:          products,
		Carts:             cartRepo,
		ExitCodes:         exitSvc,
		Outbox:            events,
		Tx:                client,
		Locks:             locks.NewKeyed(),
		Metrics:           m,
		Logger:            logg,
		DefaultProvider:   provider,
		LowStockThreshold: cfg.Checkout.LowStockThreshold,
	})
	if err != nil {
		return nil, err
	}

	return &services{carts: cartSvc, orders: orderSvc, payments: paySvc, exitCodes: exitSvc}, nil
}
