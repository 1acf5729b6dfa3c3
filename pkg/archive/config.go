package archive

import (
	"strings"
	"time"
)

// Driver 数据库驱动
type Driver string

const (
	MySQL     Driver = "mysql"
	Postgres  Driver = "postgres"
	SQLite    Driver = "sqlite"
	SQLServer Driver = "sqlserver"
)

// ParseDriver 解析驱动名，不区分大小写
func ParseDriver(s string) (Driver, error) {
	switch d := Driver(strings.ToLower(strings.TrimSpace(s))); d {
	case MySQL, Postgres, SQLite, SQLServer:
		return d, nil
	case "postgresql":
		return Postgres, nil
	default:
		return "", ErrUnsupportedDriver.WithMessage("archive: unsupported driver " + s)
	}
}

type Config struct {
	Driver Driver
	DSN    string

	// 连接池
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration

	// 日志
	LogLevel      int           // 1:Silent 2:Error 3:Warn 4:Info
	SlowThreshold time.Duration // 慢查询阈值

	TablePrefix string

	// 只读从库 DSN，Recent/Count 查询走从库
	Replicas []string
	// 从库负载均衡策略: random(随机), round_robin(轮询)
	ReplicaPolicy string

	// 写入队列
	QueueSize int
	BatchSize int

	// Trace 为 true 时为每条 SQL 创建 span
	Trace bool
}

// DefaultConfig 默认配置，写入本地 sqlite 文件
func DefaultConfig() *Config {
	return &Config{
		Driver:          SQLite,
		DSN:             "ircium.db",
		MaxIdleConns:    2,
		MaxOpenConns:    10,
		ConnMaxLifetime: time.Hour,
		LogLevel:        2,
		SlowThreshold:   200 * time.Millisecond,
		QueueSize:       1024,
		BatchSize:       64,
	}
}

func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.Driver == "" {
		c.Driver = d.Driver
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = d.MaxIdleConns
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = d.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = d.ConnMaxLifetime
	}
	if c.LogLevel <= 0 {
		c.LogLevel = d.LogLevel
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = d.SlowThreshold
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
}
