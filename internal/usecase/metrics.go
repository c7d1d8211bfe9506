package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Orders created from a cart",
	})

	orderPlacementFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_placement_failures_total",
			Help: "Order placements rejected, by error code",
		},
		[]string{"code"},
	)

	paymentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_processed_total",
			Help: "Payments moved out of PENDING, by resulting status",
		},
		[]string{"status"},
	)
)

func recordPlacementFailure(err error) {
	code := ErrInternal.Code
	if he, ok := AsHTTPError(err); ok {
		code = he.Code
	}
	orderPlacementFailures.WithLabelValues(code).Inc()
}
