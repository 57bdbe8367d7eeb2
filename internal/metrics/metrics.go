// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値
const (
	LoginSuccess            = "success"
	LoginInvalidCredentials = "invalid_credentials"
	LoginError              = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
	RecordLeadCreated()
	RecordLeadLimitRejected()
	RecordLogin(outcome string)
	RecordSnapshotsUpserted(count int)
	RecordSessionsExpired(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests      *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
	leadsCreated      prometheus.Counter
	leadLimitRejected prometheus.Counter
	logins            *prometheus.CounterVec
	snapshotsUpserted prometheus.Counter
	sessionsExpired   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steadyleadflow_http_requests_total",
			Help: "ルート・メソッド・ステータス別のHTTPリクエスト数",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "steadyleadflow_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		leadsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steadyleadflow_leads_created_total",
			Help: "作成されたリードの合計数",
		}),
		leadLimitRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steadyleadflow_lead_limit_rejections_total",
			Help: "月間リード上限により拒否された作成リクエスト数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steadyleadflow_logins_total",
			Help: "結果別のログイン試行数",
		}, []string{"outcome"}),
		snapshotsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steadyleadflow_snapshots_upserted_total",
			Help: "保存された分析スナップショットの合計数",
		}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steadyleadflow_sessions_expired_total",
			Help: "クリーンアップで削除された期限切れセッション数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.leadsCreated,
		c.leadLimitRejected,
		c.logins,
		c.snapshotsUpserted,
		c.sessionsExpired,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
// routeにはchiのルートパターンを渡し、IDごとにラベルが増えないようにする。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordLeadCreated はリード作成を記録する。
func (c *Collector) RecordLeadCreated() {
	c.leadsCreated.Inc()
}

// RecordLeadLimitRejected は上限到達による作成拒否を記録する。
func (c *Collector) RecordLeadLimitRejected() {
	c.leadLimitRejected.Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordSnapshotsUpserted は保存したスナップショット数を記録する。
func (c *Collector) RecordSnapshotsUpserted(count int) {
	c.snapshotsUpserted.Add(float64(count))
}

// RecordSessionsExpired は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsExpired(count int64) {
	c.sessionsExpired.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (Nop) RecordLeadCreated()                                    {}
func (Nop) RecordLeadLimitRejected()                              {}
func (Nop) RecordLogin(string)                                    {}
func (Nop) RecordSnapshotsUpserted(int)                           {}
func (Nop) RecordSessionsExpired(int64)                           {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
