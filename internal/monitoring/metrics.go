package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// RPC 指标
	RPCCallsTotal   *prometheus.CounterVec
	RPCCallDuration *prometheus.HistogramVec

	// 领取记录指标
	ClaimRecordsCreated prometheus.Counter
	StatusTransitions   *prometheus.CounterVec

	// 邮件派发指标
	MailsSent            prometheus.Counter
	MailBatchFailures    prometheus.Counter
	MailBatchSize        prometheus.Gauge
	MailDispatchDuration prometheus.Histogram

	// 系统指标
	SystemUptime     prometheus.Gauge
	WebsocketClients prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics 创建监控指标，reg 为空时注册到默认注册表
func NewMetrics(reg *prometheus.Registry) *Metrics {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer = reg
		gatherer = reg
	}
	factory := promauto.With(registerer)

	return &Metrics{
		// HTTP 请求指标
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sudtfaucet_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sudtfaucet_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sudtfaucet_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sudtfaucet_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		// RPC 指标
		RPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sudtfaucet_rpc_calls_total",
				Help: "Total number of JSON-RPC calls by method and result code",
			},
			[]string{"method", "code"},
		),

		RPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sudtfaucet_rpc_call_duration_seconds",
				Help:    "JSON-RPC call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		// 领取记录指标
		ClaimRecordsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sudtfaucet_claim_records_created_total",
				Help: "Total number of claim records created",
			},
		),

		StatusTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sudtfaucet_claim_status_transitions_total",
				Help: "Total number of claim status transitions by target status",
			},
			[]string{"to"},
		),

		// 邮件派发指标
		MailsSent: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sudtfaucet_mails_sent_total",
				Help: "Total number of claim mails accepted by the provider",
			},
		),

		MailBatchFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sudtfaucet_mail_batch_failures_total",
				Help: "Total number of failed mail batches",
			},
		),

		MailBatchSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sudtfaucet_mail_batch_size",
				Help: "Number of mails in the most recent dispatch batch",
			},
		),

		MailDispatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sudtfaucet_mail_dispatch_duration_seconds",
				Help:    "Duration of one mail dispatch round in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		// 系统指标
		SystemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sudtfaucet_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),

		WebsocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sudtfaucet_websocket_clients",
				Help: "Number of connected websocket clients",
			},
		),

		// 错误指标
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sudtfaucet_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sudtfaucet_panics_total",
				Help: "Total number of panics",
			},
		),

		// 限流指标
		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sudtfaucet_rate_limit_blocks_total",
				Help: "Total number of requests blocked by rate limiting",
			},
			[]string{"limit_type"},
		),

		gatherer: gatherer,
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, requestSize, responseSize int64) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// RecordRPCCall 记录 RPC 调用
func (m *Metrics) RecordRPCCall(method, code string, duration time.Duration) {
	m.RPCCallsTotal.WithLabelValues(method, code).Inc()
	m.RPCCallDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordClaimRecordsCreated 记录新建的领取记录数
func (m *Metrics) RecordClaimRecordsCreated(count int) {
	m.ClaimRecordsCreated.Add(float64(count))
}

// RecordStatusTransition 记录状态迁移
func (m *Metrics) RecordStatusTransition(to string, count int) {
	m.StatusTransitions.WithLabelValues(to).Add(float64(count))
}

// RecordMailBatch 记录一轮邮件派发
func (m *Metrics) RecordMailBatch(size int, err error, duration time.Duration) {
	m.MailBatchSize.Set(float64(size))
	m.MailDispatchDuration.Observe(duration.Seconds())
	if err != nil {
		m.MailBatchFailures.Inc()
		return
	}
	m.MailsSent.Add(float64(size))
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(limitType string) {
	m.RateLimitBlocks.WithLabelValues(limitType).Inc()
}

// UpdateSystemUptime 更新系统运行时间
func (m *Metrics) UpdateSystemUptime(uptime time.Duration) {
	m.SystemUptime.Set(uptime.Seconds())
}

// UpdateWebsocketClients 更新 websocket 连接数
func (m *Metrics) UpdateWebsocketClients(count int) {
	m.WebsocketClients.Set(float64(count))
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
