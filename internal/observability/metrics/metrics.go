package metrics

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "parking_"

	// ResultSuccess labels a successful operation.
	ResultSuccess = "success"
	// ResultError labels a failed operation.
	ResultError = "error"

	// PathFast labels a reconciliation satisfied by the cache.
	PathFast = "fast"
	// PathSlow labels a reconciliation that refetched history.
	PathSlow = "slow"
)

var (
	registerOnce sync.Once

	refreshTotal   *prometheus.CounterVec
	refreshLatency *prometheus.HistogramVec
	refreshSkipped *prometheus.CounterVec

	reconcileTotal  *prometheus.CounterVec
	submissionTotal *prometheus.CounterVec
	storageErrors   *prometheus.CounterVec

	facilityAge          *prometheus.GaugeVec
	facilityApproximated *prometheus.GaugeVec
)

// HistorySource exposes the in-memory history size.
type HistorySource interface {
	HistoryLen() int
}

// Init registers parking metrics. source may be nil.
func Init(source HistorySource, logger *log.Logger) {
	registerOnce.Do(func() {
		refreshTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "refresh_total",
				Help: "Total realtime refresh cycles by result",
			},
			[]string{"result"},
		)
		refreshLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "refresh_latency_seconds",
				Help:    "Realtime refresh cycle latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		refreshSkipped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "refresh_skipped_total",
				Help: "Refresh calls skipped by reason",
			},
			[]string{"reason"},
		)
		reconcileTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconcile_total",
				Help: "History reconciliations by path",
			},
			[]string{"path"},
		)
		submissionTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "form_submissions_total",
				Help: "Form submissions by result",
			},
			[]string{"result"},
		)
		storageErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "storage_errors_total",
				Help: "Cache storage errors by operation",
			},
			[]string{"op"},
		)
		facilityAge = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "facility_age_minutes",
				Help: "Age of the latest facility reading in minutes",
			},
			[]string{"facility"},
		)
		facilityApproximated = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "facility_approximated",
				Help: "1 when the facility value is approximated",
			},
			[]string{"facility"},
		)

		prometheus.MustRegister(
			refreshTotal,
			refreshLatency,
			refreshSkipped,
			reconcileTotal,
			submissionTotal,
			storageErrors,
			facilityAge,
			facilityApproximated,
		)

		if source != nil {
			registerHistoryGauge(source, logger)
		}
	})
}

func registerHistoryGauge(source HistorySource, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "history_rows",
			Help: "History rows held in memory",
		},
		func() float64 {
			n := source.HistoryLen()
			if n < 0 {
				if logger != nil {
					logger.Printf("metrics: negative history length %d", n)
				}
				return 0
			}
			return float64(n)
		},
	))
}

// ObserveRefresh records a refresh cycle.
func ObserveRefresh(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if refreshTotal != nil {
		refreshTotal.WithLabelValues(result).Inc()
	}
	if refreshLatency != nil {
		refreshLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncRefreshSkipped counts a refresh call that did nothing.
func IncRefreshSkipped(reason string) {
	if refreshSkipped != nil {
		refreshSkipped.WithLabelValues(reason).Inc()
	}
}

// IncReconcile counts a reconciliation by path.
func IncReconcile(path string) {
	if reconcileTotal != nil {
		reconcileTotal.WithLabelValues(path).Inc()
	}
}

// IncFormSubmission counts a form submission attempt.
func IncFormSubmission(result string) {
	if submissionTotal != nil {
		submissionTotal.WithLabelValues(result).Inc()
	}
}

// IncStorageError counts a failed cache operation.
func IncStorageError(op string) {
	if op == "" {
		op = "unknown"
	}
	if storageErrors != nil {
		storageErrors.WithLabelValues(op).Inc()
	}
}

// SetFacility publishes a facility's age and approximation flag.
// Unknown ages are not published.
func SetFacility(facility string, ageMinutes *int, approximated bool) {
	if facilityAge != nil && ageMinutes != nil {
		facilityAge.WithLabelValues(facility).Set(float64(*ageMinutes))
	}
	if facilityApproximated != nil {
		value := 0.0
		if approximated {
			value = 1
		}
		facilityApproximated.WithLabelValues(facility).Set(value)
	}
}
