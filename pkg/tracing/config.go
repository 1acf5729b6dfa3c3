// Package tracing 初始化 OpenTelemetry TracerProvider，供 IRC 连接建立、TLS 握手与退出流程打点。
package tracing

import (
	"time"
)

// Config 链路追踪配置
type Config struct {
	// 服务名称（必填）
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`

	// 服务版本
	ServiceVersion string `mapstructure:"service_version" yaml:"service_version"`

	// 环境（dev/staging/prod）
	Environment string `mapstructure:"environment" yaml:"environment"`

	// 导出器类型（otlp/otlp-grpc/stdout/noop）
	ExporterType string `mapstructure:"exporter" yaml:"exporter"`

	// 导出器端点（如 OTLP Collector URL）
	ExporterEndpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// 导出器请求头（用于认证）
	ExporterHeaders map[string]string `mapstructure:"headers" yaml:"headers"`

	// 是否使用非 TLS 连接（默认 false，即使用 HTTPS）
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// 采样率（0.0-1.0，1.0 表示全量采集）
	SamplingRate float64 `mapstructure:"sampling_rate" yaml:"sampling_rate"`

	// 采样类型（always/never/ratio/parent_based）
	SamplingType string `mapstructure:"sampling_type" yaml:"sampling_type"`

	// 始终采集的 Span 名称（默认为连接生命周期 Span），不受采样率影响
	AlwaysSample []string `mapstructure:"always_sample" yaml:"always_sample"`

	// 是否启用（默认 true）
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// 资源属性（自定义标签）
	ResourceAttributes map[string]string `mapstructure:"resource_attributes" yaml:"resource_attributes"`

	// 批处理配置
	BatchTimeout       time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout"`                 // 批量导出超时（默认 5s）
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size" yaml:"max_export_batch_size"` // 最大批量大小（默认 512）
	MaxQueueSize       int           `mapstructure:"max_queue_size" yaml:"max_queue_size"`               // 最大队列大小（默认 2048）
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ServiceName:        "ircium",
		ServiceVersion:     "1.0.0",
		Environment:        "development",
		ExporterType:       "stdout",
		SamplingRate:       1.0,
		SamplingType:       "parent_based",
		AlwaysSample:       append([]string(nil), LifecycleSpans...),
		Enabled:            true,
		ResourceAttributes: make(map[string]string),
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrInvalidConfig("service name is required")
	}

	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return ErrInvalidConfig("sampling rate must be between 0.0 and 1.0")
	}

	switch c.SamplingType {
	case "", "always", "never", "ratio", "parent_based":
	default:
		return ErrInvalidConfig("invalid sampling type: " + c.SamplingType)
	}

	validExporters := map[string]bool{
		"otlp":      true,
		"otlp-grpc": true,
		"stdout":    true,
		"noop":      true,
	}
	if !validExporters[c.ExporterType] {
		return ErrInvalidConfig("invalid exporter type: " + c.ExporterType)
	}

	if c.BatchTimeout < 0 || c.MaxExportBatchSize < 0 || c.MaxQueueSize < 0 {
		return ErrInvalidConfig("batch settings must not be negative")
	}

	return nil
}

// setDefaults 补齐未设置的批处理参数
func (c *Config) setDefaults() {
	if c.BatchTimeout == 0 {
		c.BatchTimeout = 5 * time.Second
	}
	if c.MaxExportBatchSize == 0 {
		c.MaxExportBatchSize = 512
	}
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = 2048
	}
	if c.SamplingType == "" {
		c.SamplingType = "parent_based"
	}
}

// ConfigError 配置错误
type ConfigError struct {
	message string
}

func (e *ConfigError) Error() string {
	return "tracing config error: " + e.message
}

// ErrInvalidConfig 创建配置错误
func ErrInvalidConfig(message string) error {
	return &ConfigError{message: message}
}
