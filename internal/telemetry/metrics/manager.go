package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterAPIRequests         *prometheus.CounterVec
	CounterCacheHits           prometheus.Counter
	CounterCacheMisses         prometheus.Counter
	CounterRealtimeEvents      prometheus.Counter
	CounterOptimisticRollbacks prometheus.Counter
	CounterDeepLinks           prometheus.Counter
	CounterHandleRequestPanic  prometheus.Counter
	CounterCallbackRequests    *prometheus.CounterVec

	// gauges
	GaugeLifeSignal        prometheus.Gauge
	GaugeOpenSubscriptions prometheus.Gauge

	// histograms
	HistogramAPIRequestDuration *prometheus.HistogramVec
}

func NewTestManager() *Manager {
	return NewManager("velofit", "test_client", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("velofit", "test_client", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterAPIRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "api_requests",
		Help:      "The total number of backend API requests",
	}, []string{"operation", "status"})
	counterCacheHits := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "session_cache_hits",
		Help:      "The total number of session cache hits",
	})
	counterCacheMisses := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "session_cache_misses",
		Help:      "The total number of session cache misses",
	})
	counterRealtimeEvents := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "realtime_events",
		Help:      "The total number of received realtime change events",
	})
	counterOptimisticRollbacks := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "optimistic_rollbacks",
		Help:      "The total number of optimistic updates rolled back after a failed call",
	})
	counterDeepLinks := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "deep_links",
		Help:      "The total number of handled deep link callbacks",
	})
	counterHandleRequestPanic := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "handle_request_panic",
		Help:      "The total number of callback server request panics",
	})

	counterCallbackRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "callback_requests",
		Help:      "The total number of local callback server requests",
	}, []string{"method", "status"})

	gaugeLifeSignal := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "life_signal",
		Help:      "Shows whether the client runtime is alive",
	})
	gaugeOpenSubscriptions := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "open_subscriptions",
		Help:      "Current number of open realtime subscriptions",
	})

	histogramAPIRequestDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "api_request_duration_seconds",
		Help:      "Histogram of backend API request durations in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"operation"})

	return &Manager{
		CounterAPIRequests:          counterAPIRequests,
		CounterCacheHits:            counterCacheHits,
		CounterCacheMisses:          counterCacheMisses,
		CounterRealtimeEvents:       counterRealtimeEvents,
		CounterOptimisticRollbacks:  counterOptimisticRollbacks,
		CounterDeepLinks:            counterDeepLinks,
		CounterHandleRequestPanic:   counterHandleRequestPanic,
		CounterCallbackRequests:     counterCallbackRequests,
		GaugeLifeSignal:             gaugeLifeSignal,
		GaugeOpenSubscriptions:      gaugeOpenSubscriptions,
		HistogramAPIRequestDuration: histogramAPIRequestDuration,
	}
}
