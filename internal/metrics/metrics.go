package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reservation_sweeps_total",
			Help: "Completed reservation expiry sweeps",
		},
	)

	SweptTickets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reservation_swept_tickets_total",
			Help: "Reserved tickets reclaimed to available by the sweeper",
		},
	)

	PurchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchases_total",
			Help: "Purchase attempts by outcome",
		},
		[]string{"outcome"},
	)

	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Processed payment webhooks by outcome",
		},
		[]string{"outcome"},
	)

	RefundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refunds_total",
			Help: "Completed refunds by settlement leg",
		},
		[]string{"leg"},
	)

	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_verifications_total",
			Help: "Ticket verification attempts by result",
		},
		[]string{"result"},
	)
)
