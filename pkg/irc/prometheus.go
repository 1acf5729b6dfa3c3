package irc

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics 基于 Prometheus 的 Metrics 实现
type PrometheusMetrics struct {
	connections     prometheus.Gauge
	connectFailures *prometheus.CounterVec
	linesIn         *prometheus.CounterVec
	linesOut        *prometheus.CounterVec
	truncated       *prometheus.CounterVec
	parseErrors     *prometheus.CounterVec
	writeRetries    *prometheus.CounterVec
	writeFailures   *prometheus.CounterVec
	dispatch        *prometheus.HistogramVec
}

// NewPrometheusMetrics 向 reg 注册指标，reg 为空时使用默认注册器
// 指标已注册时复用已有的采集器
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) (*PrometheusMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &PrometheusMetrics{}
	var err error

	if m.connections, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "connections",
		Help: "Number of live IRC connections.",
	})); err != nil {
		return nil, err
	}
	if m.connectFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "connect_failures_total",
		Help: "Connection attempts that failed, by server and reason.",
	}, []string{"server", "reason"})); err != nil {
		return nil, err
	}
	if m.linesIn, err = register(reg, newServerCounter(namespace, "lines_received_total", "Lines read from the server.")); err != nil {
		return nil, err
	}
	if m.linesOut, err = register(reg, newServerCounter(namespace, "lines_sent_total", "Lines written to the server.")); err != nil {
		return nil, err
	}
	if m.truncated, err = register(reg, newServerCounter(namespace, "lines_truncated_total", "Lines truncated at the maximum line size.")); err != nil {
		return nil, err
	}
	if m.parseErrors, err = register(reg, newServerCounter(namespace, "parse_errors_total", "Lines dropped because they could not be parsed.")); err != nil {
		return nil, err
	}
	if m.writeRetries, err = register(reg, newServerCounter(namespace, "write_retries_total", "Write attempts retried after a transient error.")); err != nil {
		return nil, err
	}
	if m.writeFailures, err = register(reg, newServerCounter(namespace, "write_failures_total", "Writes abandoned after exhausting retries.")); err != nil {
		return nil, err
	}
	if m.dispatch, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "dispatch_duration_seconds",
		Help:    "Time spent dispatching one message to handlers.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"command"})); err != nil {
		return nil, err
	}

	return m, nil
}

func newServerCounter(namespace, name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: name, Help: help,
	}, []string{"server"})
}

// register 注册采集器，已存在同名采集器时返回已有实例
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

func (m *PrometheusMetrics) IncConnections() { m.connections.Inc() }
func (m *PrometheusMetrics) DecConnections() { m.connections.Dec() }

func (m *PrometheusMetrics) IncConnectFailures(server, reason string) {
	m.connectFailures.WithLabelValues(server, reason).Inc()
}

func (m *PrometheusMetrics) IncLinesIn(server string)  { m.linesIn.WithLabelValues(server).Inc() }
func (m *PrometheusMetrics) IncLinesOut(server string) { m.linesOut.WithLabelValues(server).Inc() }

func (m *PrometheusMetrics) IncTruncatedLines(server string) {
	m.truncated.WithLabelValues(server).Inc()
}

func (m *PrometheusMetrics) IncParseErrors(server string) {
	m.parseErrors.WithLabelValues(server).Inc()
}

func (m *PrometheusMetrics) IncWriteRetries(server string) {
	m.writeRetries.WithLabelValues(server).Inc()
}

func (m *PrometheusMetrics) IncWriteFailures(server string) {
	m.writeFailures.WithLabelValues(server).Inc()
}

func (m *PrometheusMetrics) ObserveDispatch(command string, d time.Duration) {
	m.dispatch.WithLabelValues(command).Observe(d.Seconds())
}
