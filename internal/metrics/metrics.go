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
	LoginSuccess  = "success"
	LoginRejected = "rejected"
	LoginUpstream = "upstream_error"
	LoginConflict = "conflict"
	LoginError    = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordLogin(result string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordPodcastCreated()
	RecordPodcastDeleted(commentsDeleted int64)
	RecordCommentCreated()
	RecordMediaStored(kind string, bytes int64)
	RecordMediaDeleteFailure(kind string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins           *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	requestLatency   prometheus.Histogram
	podcastsCreated  prometheus.Counter
	podcastsDeleted  prometheus.Counter
	commentsCascaded prometheus.Counter
	commentsCreated  prometheus.Counter
	mediaBytes       *prometheus.CounterVec
	mediaDeleteFail  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ambaria_logins_total",
			Help: "結果別のログイン試行数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ambaria_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ambaria_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		podcastsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ambaria_podcasts_created_total",
			Help: "作成されたポッドキャストの合計数",
		}),
		podcastsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ambaria_podcasts_deleted_total",
			Help: "削除されたポッドキャストの合計数",
		}),
		commentsCascaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ambaria_comments_cascade_deleted_total",
			Help: "ポッドキャスト削除に伴って削除されたコメントの合計数",
		}),
		commentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ambaria_comments_created_total",
			Help: "作成されたコメントの合計数",
		}),
		mediaBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ambaria_media_stored_bytes_total",
			Help: "種類別の保存されたメディアのバイト数",
		}, []string{"kind"}),
		mediaDeleteFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ambaria_media_delete_failures_total",
			Help: "種類別のメディア削除失敗数",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.logins,
		c.httpStatus,
		c.requestLatency,
		c.podcastsCreated,
		c.podcastsDeleted,
		c.commentsCascaded,
		c.commentsCreated,
		c.mediaBytes,
		c.mediaDeleteFail,
	)

	return c
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordPodcastCreated はポッドキャスト作成を記録する。
func (c *Collector) RecordPodcastCreated() {
	c.podcastsCreated.Inc()
}

// RecordPodcastDeleted はポッドキャスト削除と、同時に削除されたコメント数を記録する。
func (c *Collector) RecordPodcastDeleted(commentsDeleted int64) {
	c.podcastsDeleted.Inc()
	c.commentsCascaded.Add(float64(commentsDeleted))
}

// RecordCommentCreated はコメント作成を記録する。
func (c *Collector) RecordCommentCreated() {
	c.commentsCreated.Inc()
}

// RecordMediaStored は保存したメディアのバイト数を記録する。
func (c *Collector) RecordMediaStored(kind string, bytes int64) {
	c.mediaBytes.WithLabelValues(kind).Add(float64(bytes))
}

// RecordMediaDeleteFailure はメディア削除の失敗を記録する。
func (c *Collector) RecordMediaDeleteFailure(kind string) {
	c.mediaDeleteFail.WithLabelValues(kind).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordLogin(string) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) RecordPodcastCreated() {}
func (Nop) RecordPodcastDeleted(int64) {}
func (Nop) RecordCommentCreated() {}
func (Nop) RecordMediaStored(string, int64) {}
func (Nop) RecordMediaDeleteFailure(string) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface checks
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
