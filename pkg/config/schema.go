package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/tokmz/ircium/pkg/logger"
	"github.com/tokmz/ircium/pkg/tracing"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "IRCIUM"

// File ircium 配置文件结构
type File struct {
	Client   ClientSettings   `mapstructure:"client" yaml:"client"`
	Shutdown ShutdownSettings `mapstructure:"shutdown" yaml:"shutdown"`
	Servers  []ServerSettings `mapstructure:"servers" yaml:"servers"`
	Logger   logger.Settings  `mapstructure:"logger" yaml:"logger"`
	Tracing  tracing.Config   `mapstructure:"tracing" yaml:"tracing"`
	Metrics  MetricsSettings  `mapstructure:"metrics" yaml:"metrics"`
	Admin    AdminSettings    `mapstructure:"admin" yaml:"admin"`
	Bridge   BridgeSettings   `mapstructure:"bridge" yaml:"bridge"`
	Archive  ArchiveSettings  `mapstructure:"archive" yaml:"archive"`
}

// ClientSettings 连接核心参数
type ClientSettings struct {
	MaxConnections   int               `mapstructure:"max_connections" yaml:"max_connections"`
	ReadyTimeout     time.Duration     `mapstructure:"ready_timeout" yaml:"ready_timeout"`
	BootstrapTimeout time.Duration     `mapstructure:"bootstrap_timeout" yaml:"bootstrap_timeout"`
	IdleTimeout      time.Duration     `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	DialTimeout      time.Duration     `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	HandshakeTimeout time.Duration     `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	QuitMessage      string            `mapstructure:"quit_message" yaml:"quit_message"`
	WriteRetry       RetrySettings     `mapstructure:"write_retry" yaml:"write_retry"`
	Reconnect        ReconnectSettings `mapstructure:"reconnect" yaml:"reconnect"`
}

// RetrySettings 写失败重试
type RetrySettings struct {
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier" yaml:"multiplier"`
}

// ReconnectSettings 断线重连策略，MaxAttempts 为 0 表示不限次数
type ReconnectSettings struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff" yaml:"backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

// ShutdownSettings 优雅退出
type ShutdownSettings struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ServerSettings 单个 IRC 服务器
type ServerSettings struct {
	Name     string      `mapstructure:"name" yaml:"name"`
	Host     string      `mapstructure:"host" yaml:"host"`
	Port     int         `mapstructure:"port" yaml:"port"`
	Secure   bool        `mapstructure:"secure" yaml:"secure"`
	Nick     string      `mapstructure:"nick" yaml:"nick"`
	Ident    string      `mapstructure:"ident" yaml:"ident,omitempty"`
	RealName string      `mapstructure:"real_name" yaml:"real_name,omitempty"`
	Password string      `mapstructure:"password" yaml:"password,omitempty"`
	TLS      TLSSettings `mapstructure:"tls" yaml:"tls,omitempty"`
}

// TLSSettings TLS 证书选项
type TLSSettings struct {
	CAFile             string `mapstructure:"ca_file" yaml:"ca_file,omitempty"`
	CertFile           string `mapstructure:"cert_file" yaml:"cert_file,omitempty"`
	KeyFile            string `mapstructure:"key_file" yaml:"key_file,omitempty"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify,omitempty"`
}

// MetricsSettings Prometheus 指标
type MetricsSettings struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// AdminSettings 管理端 HTTP 服务
type AdminSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// BridgeSettings 消息桥接
type BridgeSettings struct {
	Commands      []string      `mapstructure:"commands" yaml:"commands"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Dedup         bool          `mapstructure:"dedup" yaml:"dedup"`
	DedupCapacity uint          `mapstructure:"dedup_capacity" yaml:"dedup_capacity,omitempty"`
	Redis         *RedisSink    `mapstructure:"redis" yaml:"redis,omitempty"`
	Kafka         *KafkaSink    `mapstructure:"kafka" yaml:"kafka,omitempty"`
	AMQP          *AMQPSink     `mapstructure:"amqp" yaml:"amqp,omitempty"`
}

// RedisSink Redis 发布
type RedisSink struct {
	Addr          string `mapstructure:"addr" yaml:"addr"`
	Password      string `mapstructure:"password" yaml:"password,omitempty"`
	DB            int    `mapstructure:"db" yaml:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix" yaml:"channel_prefix"`
}

// KafkaSink Kafka 生产者
type KafkaSink struct {
	Brokers  []string `mapstructure:"brokers" yaml:"brokers"`
	Topic    string   `mapstructure:"topic" yaml:"topic"`
	ClientID string   `mapstructure:"client_id" yaml:"client_id"`
}

// AMQPSink AMQP 交换机
type AMQPSink struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Exchange string `mapstructure:"exchange" yaml:"exchange"`
	Kind     string `mapstructure:"kind" yaml:"kind"`
}

// ArchiveSettings 消息归档
type ArchiveSettings struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled"`
	Driver   string   `mapstructure:"driver" yaml:"driver"`
	DSN      string   `mapstructure:"dsn" yaml:"dsn"`
	Replicas []string `mapstructure:"replicas" yaml:"replicas,omitempty"` // 只读从库，查询走从库
}

// Default 默认配置
func Default() *File {
	tc := tracing.DefaultConfig()
	tc.Enabled = false
	tc.ExporterType = "noop"

	return &File{
		Client: ClientSettings{
			MaxConnections:   10,
			ReadyTimeout:     10500 * time.Millisecond,
			BootstrapTimeout: 6 * time.Second,
			DialTimeout:      30 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			QuitMessage:      "go i must now",
			WriteRetry: RetrySettings{
				MaxAttempts:    3,
				InitialBackoff: 50 * time.Millisecond,
				MaxBackoff:     time.Second,
				Multiplier:     2,
			},
			Reconnect: ReconnectSettings{
				Enabled:    true,
				Backoff:    time.Second,
				MaxBackoff: time.Minute,
			},
		},
		Shutdown: ShutdownSettings{Timeout: 10 * time.Second},
		Servers: []ServerSettings{
			{Name: "libera", Host: "irc.libera.chat", Port: 6697, Secure: true, Nick: "ircium", Ident: "ircium", RealName: "ircium bot"},
		},
		Logger:  logger.Settings{Level: "info", Format: "console"},
		Tracing: *tc,
		Metrics: MetricsSettings{Namespace: "ircium"},
		Admin:   AdminSettings{Addr: "127.0.0.1:8081"},
		Bridge:  BridgeSettings{Commands: []string{"*"}, Timeout: 5 * time.Second},
		Archive: ArchiveSettings{Driver: "sqlite", DSN: "ircium.db"},
	}
}

// Validate 校验配置
func (f *File) Validate() error {
	if f.Client.MaxConnections <= 0 {
		return ErrConfigInvalid.WithMessage("client.max_connections 必须大于 0")
	}
	if f.Client.IdleTimeout < 0 {
		return ErrConfigInvalid.WithMessage("client.idle_timeout 不能为负数")
	}
	if len(f.Servers) == 0 {
		return ErrConfigInvalid.WithMessage("至少需要配置一个服务器")
	}
	if len(f.Servers) > f.Client.MaxConnections {
		return ErrConfigInvalid.WithMessage(fmt.Sprintf("服务器数量 %d 超过 max_connections %d", len(f.Servers), f.Client.MaxConnections))
	}

	seen := make(map[string]struct{}, len(f.Servers))
	for i, s := range f.Servers {
		switch {
		case s.Name == "":
			return ErrConfigInvalid.WithMessage(fmt.Sprintf("servers[%d].name 不能为空", i))
		case s.Host == "":
			return ErrConfigInvalid.WithMessage(fmt.Sprintf("servers[%d].host 不能为空", i))
		case s.Port <= 0 || s.Port > 65535:
			return ErrConfigInvalid.WithMessage(fmt.Sprintf("servers[%d].port 超出范围: %d", i, s.Port))
		}
		if _, ok := seen[s.Name]; ok {
			return ErrConfigInvalid.WithMessage(fmt.Sprintf("服务器名称重复: %s", s.Name))
		}
		seen[s.Name] = struct{}{}
	}

	if f.Tracing.Enabled {
		if err := f.Tracing.Validate(); err != nil {
			return ErrConfigInvalid.WithError(err)
		}
	}

	if f.Archive.Enabled {
		switch strings.ToLower(f.Archive.Driver) {
		case "sqlite", "mysql", "postgres", "sqlserver":
		default:
			return ErrConfigInvalid.WithMessage("不支持的归档驱动: " + f.Archive.Driver)
		}
	}
	return nil
}

// Decode 将已加载的配置解码为 File，未出现的字段保留默认值
func (c *Config) Decode() (*File, error) {
	f := Default()
	// 配置文件中出现 servers 时整体替换默认服务器
	if c.IsSet("servers") {
		f.Servers = nil
	}
	if err := c.Unmarshal(f); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// LoadFile 读取并校验配置文件，支持 IRCIUM_ 前缀的环境变量覆盖
func LoadFile(path string, opts ...Option) (*File, *Config, error) {
	opts = append([]Option{WithConfigFile(path), WithEnvPrefix(EnvPrefix)}, opts...)
	c := New(opts...)
	if err := c.Load(); err != nil {
		return nil, nil, err
	}
	f, err := c.Decode()
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	return f, c, nil
}

// WriteDefault 将默认配置以 YAML 写入 path
func WriteDefault(path string) error {
	b, err := yaml.Marshal(Default())
	if err != nil {
		return ErrConfigDecode.WithError(err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0o644)
}
