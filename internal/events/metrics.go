package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sseClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "scan2sheets_sse_clients",
		Help: "Number of connected event stream clients",
	},
)
