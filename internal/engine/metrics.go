package engine

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: time spent on one frame, inference included
	FrameDuration *prometheus.HistogramVec

	// Traffic
	FramesTotal *prometheus.CounterVec

	// Outcomes of the aggregation layer
	ViolationsTotal *prometheus.CounterVec
	DuplicatesTotal *prometheus.CounterVec
	PhonesTotal     *prometheus.CounterVec

	// Errors by type: detect, classify, source, evidence
	ErrorTotal *prometheus.CounterVec

	// Saturation
	ActiveWorkers       prometheus.Gauge
	CircuitBreakerState *prometheus.GaugeVec
	JournalBufferFill   prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// unregistered metrics when no registry is given
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		FrameDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proctor_frame_duration_seconds",
			Help:    "Histogram of per-frame processing latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"camera_id"}),

		FramesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_frames_total",
			Help: "Total number of frames read.",
		}, []string{"camera_id", "mode"}), // mode: detect, passthrough

		ViolationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_violations_total",
			Help: "Accepted violation records.",
		}, []string{"camera_id", "reason"}),

		DuplicatesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_violation_duplicates_total",
			Help: "Candidates rejected by deduplication.",
		}, []string{"camera_id"}),

		PhonesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_phone_detections_total",
			Help: "Phone sightings.",
		}, []string{"camera_id"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}),

		ActiveWorkers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "proctor_active_workers",
			Help: "Camera workers currently running.",
		}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "proctor_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open).",
		}, []string{"name"}),

		JournalBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "proctor_journal_buffer_utilization",
			Help: "Current number of records waiting in the journal buffer.",
		}),
	}
}

func camLabel(id int64) string { return strconv.FormatInt(id, 10) }

// ObserveFrame implements pipeline.FrameObserver.
func (m *Metrics) ObserveFrame(cameraID int64, d time.Duration, detecting bool) {
	mode := "detect"
	if !detecting {
		mode = "passthrough"
	}
	m.FramesTotal.WithLabelValues(camLabel(cameraID), mode).Inc()
	if detecting {
		m.FrameDuration.WithLabelValues(camLabel(cameraID)).Observe(d.Seconds())
	}
}

// ObserveError implements pipeline.FrameObserver.
func (m *Metrics) ObserveError(kind string) {
	m.ErrorTotal.WithLabelValues(kind).Inc()
}

// BreakerState is an inference.StateObserver.
func (m *Metrics) BreakerState(name string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(v)
}
