// Package metrics 定义推荐引擎的 Prometheus 指标。
//
// 指标在包初始化时注册到默认 Registry，由宿主进程自行暴露 /metrics。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 训练结果
const (
	TrainSuccess  = "success"
	TrainFailure  = "failure"
	TrainNoData   = "no_data"
	TrainRejected = "rejected"
)

// 缓存结果
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
	CacheError = "error"
)

var (
	// Training
	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoprec_training_runs_total",
			Help: "Total number of training runs by result",
		},
		[]string{"result"},
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shoprec_training_duration_seconds",
			Help:    "Duration of training runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)

	ModelProducts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shoprec_model_products",
			Help: "Number of products in the serving model",
		},
	)

	ModelUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shoprec_model_users",
			Help: "Number of users in the serving interaction matrix",
		},
	)

	ModelInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shoprec_model_info",
			Help: "Serving model version (value is always 1)",
		},
		[]string{"version", "collaborative"},
	)

	// Cache
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoprec_cache_requests_total",
			Help: "Result cache lookups by namespace and result",
		},
		[]string{"namespace", "result"},
	)

	CacheBackendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoprec_cache_backend_failures_total",
			Help: "Cache backends that could not be opened; the engine runs without a result cache",
		},
		[]string{"backend"},
	)

	// Serving
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shoprec_request_duration_seconds",
			Help:    "Latency of recommendation operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	RecallCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shoprec_recall_candidates",
			Help:    "Candidates produced per recall source",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100, 200, 500},
		},
		[]string{"source"},
	)

	RecallErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoprec_recall_errors_total",
			Help: "Recall source failures (treated as empty results)",
		},
		[]string{"source"},
	)

	// Evaluation
	EvaluationAccuracy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shoprec_evaluation_accuracy",
			Help: "Last reported self-consistency accuracy",
		},
	)
)

// RecordTraining 记录一次训练
func RecordTraining(result string, elapsed time.Duration) {
	TrainingRuns.WithLabelValues(result).Inc()
	if result == TrainSuccess || result == TrainFailure {
		TrainingDuration.Observe(elapsed.Seconds())
	}
}

// SetModel 记录当前服务中的模型
func SetModel(version string, collaborative bool, products, users int) {
	ModelInfo.Reset()
	cf := "false"
	if collaborative {
		cf = "true"
	}
	ModelInfo.WithLabelValues(version, cf).Set(1)
	ModelProducts.Set(float64(products))
	ModelUsers.Set(float64(users))
}

// RecordRequest 记录一次服务请求
func RecordRequest(operation, outcome string, elapsed time.Duration) {
	RequestDuration.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
}

// RecordRecall 记录一个召回源的产出
func RecordRecall(source string, candidates int, err error) {
	if err != nil {
		RecallErrors.WithLabelValues(source).Inc()
		return
	}
	RecallCandidates.WithLabelValues(source).Observe(float64(candidates))
}

// RecordCache 记录一次缓存查询
func RecordCache(namespace, result string) {
	CacheRequests.WithLabelValues(namespace, result).Inc()
}

// RecordCacheBackendFailure 记录一次缓存后端初始化失败
func RecordCacheBackendFailure(backend string) {
	CacheBackendFailures.WithLabelValues(backend).Inc()
}
