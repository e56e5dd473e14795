// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証操作の種類（operationラベル）
const (
	OpRegister = "register"
	OpLogin    = "login"
	OpRefresh  = "refresh"
)

// OutcomeOK は成功時のoutcomeラベル。失敗時はエラーコードを使う。
const OutcomeOK = "ok"

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordAuthOutcome(operation, outcome string)
	RecordUserCreated()
	RecordDuplicateAbsorbed()
	RecordStreakDays(days int)
	RecordVerifyLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authOutcomes      *prometheus.CounterVec
	usersCreated      prometheus.Counter
	duplicateAbsorbed prometheus.Counter
	streakDays        prometheus.Histogram
	verifyLatency     prometheus.Histogram
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polylearn_auth_requests_total",
			Help: "認証操作の結果別の合計数",
		}, []string{"operation", "outcome"}),
		usersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polylearn_users_created_total",
			Help: "新規作成されたユーザーの合計数",
		}),
		duplicateAbsorbed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polylearn_duplicate_create_absorbed_total",
			Help: "同時作成の競合を既存ユーザーとして吸収した合計数",
		}),
		streakDays: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "polylearn_login_streak_days",
			Help:    "ログイン時点のストリーク日数",
			Buckets: []float64{1, 2, 3, 7, 14, 30, 60, 100, 365},
		}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "polylearn_assertion_verify_latency_seconds",
			Help:    "IDトークン検証のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polylearn_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authOutcomes,
		c.usersCreated,
		c.duplicateAbsorbed,
		c.streakDays,
		c.verifyLatency,
		c.httpStatus,
	)

	return c
}

// RecordAuthOutcome は認証操作の結果を記録する。
func (c *Collector) RecordAuthOutcome(operation, outcome string) {
	c.authOutcomes.WithLabelValues(operation, outcome).Inc()
}

// RecordUserCreated はユーザー作成を記録する。
func (c *Collector) RecordUserCreated() {
	c.usersCreated.Inc()
}

// RecordDuplicateAbsorbed は同時作成の競合吸収を記録する。
func (c *Collector) RecordDuplicateAbsorbed() {
	c.duplicateAbsorbed.Inc()
}

// RecordStreakDays はログイン時点のストリーク日数を記録する。
func (c *Collector) RecordStreakDays(days int) {
	c.streakDays.Observe(float64(days))
}

// RecordVerifyLatency はIDトークン検証のレイテンシを記録する。
func (c *Collector) RecordVerifyLatency(duration time.Duration) {
	c.verifyLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordAuthOutcome(string, string)  {}
func (Nop) RecordUserCreated()                {}
func (Nop) RecordDuplicateAbsorbed()          {}
func (Nop) RecordStreakDays(int)              {}
func (Nop) RecordVerifyLatency(time.Duration) {}
func (Nop) RecordHTTPStatus(int)              {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
