package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the booking core. Exposed on /metrics by cmd/api.
var (
	ReservationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "groombook",
		Name:      "reservations_created_total",
		Help:      "Number of reservations successfully created",
	})

	CapacityRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "groombook",
		Name:      "capacity_rejections_total",
		Help:      "Number of holds rejected because a package had no remaining units",
	})

	LedgerReserves = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "groombook",
		Name:      "ledger_reserves_total",
		Help:      "Number of successful unit holds",
	})

	LedgerConfirms = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "groombook",
		Name:      "ledger_confirms_total",
		Help:      "Number of holds made permanent on completed visits",
	})

	LedgerReleases = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "groombook",
		Name:      "ledger_releases_total",
		Help:      "Number of holds returned to capacity on cancellation or deletion",
	})
)
