package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Format 日志格式
type Format string

const (
	// JSONFormat JSON 格式（生产环境推荐）
	JSONFormat Format = "json"
	// ConsoleFormat 控制台格式（开发环境推荐）
	ConsoleFormat Format = "console"
)

// String 返回格式名称
func (f Format) String() string {
	return string(f)
}

// IsValid 检查格式是否有效
func (f Format) IsValid() bool {
	return f == JSONFormat || f == ConsoleFormat
}

// Config 日志配置
type Config struct {
	// 基础配置
	Level  Level  // 日志级别（默认 InfoLevel）
	Format Format // 日志格式（json/console，默认 json）
	Name   string // Logger 名称（可选）

	// 输出配置
	Console bool          // 是否输出到控制台（无其他输出时默认 true）
	File    string        // 文件路径（空则不输出到文件）
	Rotate  *RotateConfig // 轮转配置（nil 则不轮转）

	// 性能配置
	Sampling *SamplingConfig // 采样配置（nil 则不采样）

	// 功能配置
	EnableCaller     bool // 是否记录调用位置
	EnableStacktrace bool // 是否记录堆栈（Error 及以上）

	// 扩展配置
	EncoderConfig *zapcore.EncoderConfig // 自定义 Encoder 配置
	Hooks         []Hook                 // Hook 列表
}

// RotateConfig 文件轮转配置
type RotateConfig struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`       // 日志文件路径
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`       // 单文件最大大小（MB，默认 100MB）
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`         // 文件保留天数（默认 30 天）
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // 最多保留文件数（默认 10 个）
	LocalTime  bool   `mapstructure:"local_time" yaml:"local_time"`   // 使用本地时间
	Compress   bool   `mapstructure:"compress" yaml:"compress"`       // 是否压缩
}

// SamplingConfig 采样配置
type SamplingConfig struct {
	Initial    int `mapstructure:"initial" yaml:"initial"`       // 每秒前 N 条日志必定记录
	Thereafter int `mapstructure:"thereafter" yaml:"thereafter"` // 之后每 M 条记录 1 条
}

// Settings 配置文件中的日志段落
type Settings struct {
	Level      string          `mapstructure:"level" yaml:"level"`
	Format     string          `mapstructure:"format" yaml:"format"`
	File       string          `mapstructure:"file" yaml:"file,omitempty"`
	Rotate     *RotateConfig   `mapstructure:"rotate" yaml:"rotate,omitempty"`
	Sampling   *SamplingConfig `mapstructure:"sampling" yaml:"sampling,omitempty"`
	Caller     bool            `mapstructure:"caller" yaml:"caller"`
	Stacktrace bool            `mapstructure:"stacktrace" yaml:"stacktrace"`
}

// FromSettings 将配置文件段落转换为 Config
func FromSettings(s Settings) (*Config, error) {
	level, err := ParseLevel(s.Level)
	if err != nil {
		return nil, err
	}
	format := Format(strings.ToLower(strings.TrimSpace(s.Format)))
	if format == "" {
		format = JSONFormat
	}
	if !format.IsValid() {
		return nil, fmt.Errorf("unsupported log format %q", s.Format)
	}
	return &Config{
		Level:            level,
		Format:           format,
		File:             s.File,
		Rotate:           s.Rotate,
		Sampling:         s.Sampling,
		EnableCaller:     s.Caller,
		EnableStacktrace: s.Stacktrace,
	}, nil
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Format == "" {
		c.Format = JSONFormat
	}
	if !c.Console && c.File == "" && c.Rotate == nil {
		c.Console = true
	}
}

// setDefaults 设置默认值
func (r *RotateConfig) setDefaults() {
	if r.MaxSize == 0 {
		r.MaxSize = 100
	}
	if r.MaxAge == 0 {
		r.MaxAge = 30
	}
	if r.MaxBackups == 0 {
		r.MaxBackups = 10
	}
}

// setDefaults 设置默认值
func (s *SamplingConfig) setDefaults() {
	if s.Initial == 0 {
		s.Initial = 100
	}
	if s.Thereafter == 0 {
		s.Thereafter = 100
	}
}
