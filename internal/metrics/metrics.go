package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var durationBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000}

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shelter_http_requests_total",
		Help: "Total HTTP API requests by route",
	}, []string{"route"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shelter_http_request_duration_ms",
		Help:    "HTTP API request duration in milliseconds",
		Buckets: durationBuckets,
	}, []string{"route"})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shelter_route_cache_hits_total",
		Help: "Route cache hits by cache layer",
	}, []string{"layer"})
	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shelter_route_cache_misses_total",
		Help: "Route cache misses by cache layer",
	}, []string{"layer"})
	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shelter_provider_requests_total",
		Help: "Total route provider requests",
	}, []string{"provider"})
	ProviderSuccessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shelter_provider_success_total",
		Help: "Total route provider successes",
	}, []string{"provider"})
	ProviderFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shelter_provider_fail_total",
		Help: "Total route provider failures by kind",
	}, []string{"provider", "kind"})
	ProviderDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shelter_provider_duration_ms",
		Help:    "Route provider call duration in milliseconds",
		Buckets: durationBuckets,
	}, []string{"provider"})
	ProviderHeartbeatTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shelter_provider_heartbeat_total",
		Help: "Route provider heartbeat count by status",
	}, []string{"provider", "status"})
	RoundsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shelter_aggregation_rounds_total",
		Help: "Aggregation rounds by terminal state",
	}, []string{"state"})
	OutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shelter_aggregation_outcomes_total",
		Help: "Merged per-candidate outcomes by kind",
	}, []string{"kind"})
	LateResultsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shelter_aggregation_late_results_total",
		Help: "Results discarded because their round was superseded",
	})
	FacilitiesLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shelter_facilities_loaded",
		Help: "Geolocated facilities in the current generation",
	})
	FacilitiesSkipped = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shelter_facilities_skipped",
		Help: "Records skipped by the validity predicate in the current generation",
	})
	ReloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shelter_facility_reloads_total",
		Help: "Facility reloads by trigger and status",
	}, []string{"trigger", "status"})
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shelter_sessions_active",
		Help: "Active tracking sessions",
	})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shelter_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(ProviderRequestsTotal)
	prometheus.MustRegister(ProviderSuccessTotal)
	prometheus.MustRegister(ProviderFailTotal)
	prometheus.MustRegister(ProviderDurationMs)
	prometheus.MustRegister(ProviderHeartbeatTotal)
	prometheus.MustRegister(RoundsTotal)
	prometheus.MustRegister(OutcomesTotal)
	prometheus.MustRegister(LateResultsTotal)
	prometheus.MustRegister(FacilitiesLoaded)
	prometheus.MustRegister(FacilitiesSkipped)
	prometheus.MustRegister(ReloadsTotal)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(RateLimitedTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 /metrics 路径，供 Prometheus 抓取；在主入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
