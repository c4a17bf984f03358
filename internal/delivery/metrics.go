package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var attemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scan2sheets_delivery_attempts_total",
		Help: "Total number of delivery attempts by result",
	},
	[]string{"result"},
)
