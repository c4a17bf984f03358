package recognize

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan2sheets_analyses_total",
			Help: "Total number of analyses by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	analysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan2sheets_analysis_duration_seconds",
			Help:    "Time spent recognizing a value",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"mode"},
	)
)

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNoBarcodeFound), errors.Is(err, ErrEmptyRecognition), errors.Is(err, ErrBothFailed):
		return "not_found"
	default:
		return "error"
	}
}
