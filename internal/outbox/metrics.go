package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var historySize = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "scan2sheets_history_entries",
		Help: "Number of entries in the history log",
	},
)
