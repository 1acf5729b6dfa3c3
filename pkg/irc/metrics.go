package irc

import "time"

// Metrics 监控接口
type Metrics interface {
	// 连接指标
	IncConnections()
	DecConnections()
	IncConnectFailures(server, reason string)

	// 收发指标
	IncLinesIn(server string)
	IncLinesOut(server string)
	IncTruncatedLines(server string)
	IncParseErrors(server string)
	IncWriteRetries(server string)
	IncWriteFailures(server string)

	// 分发耗时
	ObserveDispatch(command string, d time.Duration)
}

// NoopMetrics 空实现（默认）
type NoopMetrics struct{}

func (NoopMetrics) IncConnections()                          {}
func (NoopMetrics) DecConnections()                          {}
func (NoopMetrics) IncConnectFailures(server, reason string) {}
func (NoopMetrics) IncLinesIn(server string)                 {}
func (NoopMetrics) IncLinesOut(server string)                {}
func (NoopMetrics) IncTruncatedLines(server string)          {}
func (NoopMetrics) IncParseErrors(server string)             {}
func (NoopMetrics) IncWriteRetries(server string)            {}
func (NoopMetrics) IncWriteFailures(server string)           {}
func (NoopMetrics) ObserveDispatch(string, time.Duration)    {}
