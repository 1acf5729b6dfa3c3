package bridge

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tokmz/ircium/pkg/errors"
)

// ErrRedisConnection Redis 连接失败
var ErrRedisConnection = errors.New(4010, "bridge: redis connection failed")

// RedisConfig Redis 发布配置
type RedisConfig struct {
	Addr          string
	Username      string
	Password      string
	DB            int
	PoolSize      int
	DialTimeout   time.Duration
	ChannelPrefix string // 频道名 = ChannelPrefix + 服务器名
}

// RedisSink 以 PUBLISH 将消息发到 <prefix><server> 频道
type RedisSink struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisSink 连接 Redis 并校验可用性
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	if cfg.Addr == "" {
		return nil, ErrRedisConnection.WithMessage("redis addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, ErrRedisConnection.WithError(err)
	}

	return NewRedisSinkWithClient(client, cfg.ChannelPrefix), nil
}

// NewRedisSinkWithClient 使用已有客户端（单机、集群或哨兵）
func NewRedisSinkWithClient(client redis.UniversalClient, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

// Name 实现 Sink
func (s *RedisSink) Name() string { return "redis" }

// Channel 服务器对应的频道名
func (s *RedisSink) Channel(server string) string {
	return s.prefix + server
}

// Publish 实现 Sink
func (s *RedisSink) Publish(ctx context.Context, ev *Event) error {
	payload, err := ev.Encode()
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.Channel(ev.Server), payload).Err()
}

// Close 实现 Sink
func (s *RedisSink) Close() error {
	return s.client.Close()
}
