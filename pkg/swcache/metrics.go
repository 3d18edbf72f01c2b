package swcache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch results recorded in fetches_total.
const (
	resultHit      = "hit"
	resultMiss     = "miss"
	resultBypass   = "bypass"
	resultInactive = "inactive"
)

// MetricsConfig configures the cache metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "homepage").
	Namespace string

	// Subsystem is the metrics subsystem (default: "swcache").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for lifecycle step duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the cache metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "homepage",
		Subsystem: "swcache",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus metrics of a Controller.
// A nil *Metrics records nothing.
type Metrics struct {
	fetches          *prometheus.CounterVec
	networkErrors    prometheus.Counter
	offlineFallbacks prometheus.Counter
	putFailures      prometheus.Counter
	evictions        prometheus.Counter
	stepDuration     *prometheus.HistogramVec
	installFailures  prometheus.Counter
}

// NewMetrics creates and registers the cache metrics:
//
//   - homepage_swcache_fetches_total: requests by result (hit, miss, bypass, inactive)
//   - homepage_swcache_network_errors_total: failed network fetches on a miss
//   - homepage_swcache_offline_fallbacks_total: offline shell pages served
//   - homepage_swcache_put_failures_total: responses that could not be cached
//   - homepage_swcache_evictions_total: stale caches deleted on activate
//   - homepage_swcache_step_duration_seconds: install and activate duration
//   - homepage_swcache_install_failures_total: failed install steps
//
// Expose them with promhttp.Handler().
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fetches_total",
			Help:        "Total number of intercepted requests by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		networkErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "network_errors_total",
			Help:        "Total number of network failures on a cache miss",
			ConstLabels: config.ConstLabels,
		}),

		offlineFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "offline_fallbacks_total",
			Help:        "Total number of offline shell pages served",
			ConstLabels: config.ConstLabels,
		}),

		putFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "put_failures_total",
			Help:        "Total number of responses that could not be written to the cache",
			ConstLabels: config.ConstLabels,
		}),

		evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "evictions_total",
			Help:        "Total number of stale caches deleted",
			ConstLabels: config.ConstLabels,
		}),

		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "step_duration_seconds",
			Help:        "Lifecycle step duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"step"}),

		installFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "install_failures_total",
			Help:        "Total number of failed install steps",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (m *Metrics) fetch(result string) {
	if m != nil {
		m.fetches.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) networkError() {
	if m != nil {
		m.networkErrors.Inc()
	}
}

func (m *Metrics) offlineFallback() {
	if m != nil {
		m.offlineFallbacks.Inc()
	}
}

func (m *Metrics) putFailure() {
	if m != nil {
		m.putFailures.Inc()
	}
}

func (m *Metrics) eviction() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *Metrics) step(name string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil && name == "install" {
		m.installFailures.Inc()
	}
}
