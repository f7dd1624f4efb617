// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordRegistration()
	RecordLogin(success bool)
	RecordCourseCreated()
	RecordCourseDeleted()
	RecordBookingCreated()
	RecordBookingCancelled()
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations     prometheus.Counter
	logins            *prometheus.CounterVec
	coursesCreated    prometheus.Counter
	coursesDeleted    prometheus.Counter
	bookingsCreated   prometheus.Counter
	bookingsCancelled prometheus.Counter
	httpStatus        *prometheus.CounterVec
	requestLatency    prometheus.Histogram
	sessionsPurged    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursebook_registrations_total",
			Help: "ユーザー登録の合計数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursebook_logins_total",
			Help: "ログイン試行の結果別合計数",
		}, []string{"result"}),
		coursesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursebook_courses_created_total",
			Help: "作成された講座の合計数",
		}),
		coursesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursebook_courses_deleted_total",
			Help: "削除された講座の合計数",
		}),
		bookingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursebook_bookings_created_total",
			Help: "作成された予約の合計数",
		}),
		bookingsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursebook_bookings_cancelled_total",
			Help: "取り消された予約の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursebook_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coursebook_request_latency_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursebook_sessions_purged_total",
			Help: "期限切れで削除されたセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.registrations,
		c.logins,
		c.coursesCreated,
		c.coursesDeleted,
		c.bookingsCreated,
		c.bookingsCancelled,
		c.httpStatus,
		c.requestLatency,
		c.sessionsPurged,
	)

	return c
}

// RecordRegistration はユーザー登録を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(result).Inc()
}

// RecordCourseCreated は講座作成を記録する。
func (c *Collector) RecordCourseCreated() {
	c.coursesCreated.Inc()
}

// RecordCourseDeleted は講座削除を記録する。
func (c *Collector) RecordCourseDeleted() {
	c.coursesDeleted.Inc()
}

// RecordBookingCreated は予約作成を記録する。
func (c *Collector) RecordBookingCreated() {
	c.bookingsCreated.Inc()
}

// RecordBookingCancelled は予約取消を記録する。
func (c *Collector) RecordBookingCancelled() {
	c.bookingsCancelled.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordSessionsPurged は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordRegistration() {}
func (Nop) RecordLogin(bool) {}
func (Nop) RecordCourseCreated() {}
func (Nop) RecordCourseDeleted() {}
func (Nop) RecordBookingCreated() {}
func (Nop) RecordBookingCancelled() {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) RecordSessionsPurged(int64) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
