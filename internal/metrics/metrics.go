package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counter for graded attempts, split by whether the deadline forced submission
	attemptsGraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classquiz_attempts_graded_total",
			Help: "Total number of graded attempts",
		},
		[]string{"forced"},
	)

	appendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classquiz_result_append_failures_total",
			Help: "Total number of graded attempts that could not be written to the result log",
		},
	)

	scores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "classquiz_score",
			Help:    "Distribution of graded scores",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		},
	)

	// Gauge for attempts started but not yet submitted or discarded
	activeAttempts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "classquiz_active_attempts",
			Help: "Current number of attempts in progress",
		},
	)
)

// AttemptGraded records a successfully saved result.
func AttemptGraded(score float64, forced bool) {
	attemptsGraded.WithLabelValues(strconv.FormatBool(forced)).Inc()
	scores.Observe(score)
}

func AppendFailed() { appendFailures.Inc() }

func AttemptStarted() { activeAttempts.Inc() }

// AttemptClosed is called once an attempt leaves the store, graded or discarded.
func AttemptClosed() { activeAttempts.Dec() }
