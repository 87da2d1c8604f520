package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsGranted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_reservations_granted_total",
		Help: "Stock reservations granted to carts.",
	})
	ReservationsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_reservations_rejected_total",
		Help: "Stock reservations rejected for insufficient stock.",
	})
	OrdersCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_orders_committed_total",
		Help: "Orders successfully committed at checkout.",
	})
	CheckoutsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_checkouts_rejected_total",
		Help: "Checkouts aborted on stock re-validation.",
	})
	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_orders_cancelled_total",
		Help: "Orders cancelled with stock restored.",
	})
	CartsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_carts_swept_total",
		Help: "Abandoned carts deactivated by the sweeper.",
	})
	InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_stock_invariant_violations_total",
		Help: "Observed reserved/stock counter states that should be impossible.",
	})
)
