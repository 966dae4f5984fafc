package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 模拟器业务指标
type AppMetrics struct {
	TCPAccepted      prometheus.Counter
	TCPRejected      prometheus.Counter
	TCPBytesReceived prometheus.Counter
	FrameParseTotal  *prometheus.CounterVec // labels: result=ok|error
	DispatchTotal    *prometheus.CounterVec // labels: cmd
	ResponseTotal    *prometheus.CounterVec // labels: type
	SimTickTotal     prometheus.Counter     // 仿真节拍计数
	ServosMoving     prometheus.Gauge       // 当前运动中的舵机数
	MotionPlayTotal  *prometheus.CounterVec // labels: kind=animation|behavior
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		TCPAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_accept_total",
			Help: "Total accepted TCP connections.",
		}),
		TCPRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_reject_total",
			Help: "TCP connections rejected by the accept limiter.",
		}),
		TCPBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_bytes_received_total",
			Help: "Total bytes received over TCP.",
		}),
		FrameParseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frame_parse_total",
			Help: "Protocol frame parse attempts.",
		}, []string{"result"}),
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_total",
			Help: "Dispatched commands by code.",
		}, []string{"cmd"}),
		ResponseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "response_total",
			Help: "Responses by frame type.",
		}, []string{"type"}),
		SimTickTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sim_tick_total",
			Help: "Simulation clock ticks.",
		}),
		ServosMoving: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "servos_moving",
			Help: "Servos currently moving toward a target.",
		}),
		MotionPlayTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "motion_play_total",
			Help: "Animation and behavior playbacks.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		m.TCPAccepted,
		m.TCPRejected,
		m.TCPBytesReceived,
		m.FrameParseTotal,
		m.DispatchTotal,
		m.ResponseTotal,
		m.SimTickTotal,
		m.ServosMoving,
		m.MotionPlayTotal,
	)
	return m
}
