package bridge

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tokmz/ircium/pkg/errors"
)

// ErrAMQPConnection AMQP 连接或交换机声明失败
var ErrAMQPConnection = errors.New(4030, "bridge: amqp connection failed")

// AMQPConfig AMQP 发布配置
type AMQPConfig struct {
	URL      string
	Exchange string
	Kind     string // direct / topic / fanout，默认 topic
}

// amqpChannel *amqp.Channel 中用到的方法
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink 发布到交换机，路由键为 <server>.<command>
type AMQPSink struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
}

// NewAMQPSink 建立连接并声明持久化交换机
func NewAMQPSink(cfg AMQPConfig) (*AMQPSink, error) {
	if cfg.URL == "" || cfg.Exchange == "" {
		return nil, ErrAMQPConnection.WithMessage("amqp url and exchange are required")
	}
	if cfg.Kind == "" {
		cfg.Kind = amqp.ExchangeTopic
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, ErrAMQPConnection.WithError(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, ErrAMQPConnection.WithError(err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, cfg.Kind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, ErrAMQPConnection.WithError(err)
	}

	return &AMQPSink{conn: conn, ch: ch, exchange: cfg.Exchange}, nil
}

// Name 实现 Sink
func (s *AMQPSink) Name() string { return "amqp" }

// RoutingKey 消息的路由键
func RoutingKey(ev *Event) string {
	return ev.Server + "." + ev.Command
}

// Publish 实现 Sink
func (s *AMQPSink) Publish(ctx context.Context, ev *Event) error {
	payload, err := ev.Encode()
	if err != nil {
		return err
	}
	return s.ch.PublishWithContext(ctx, s.exchange, RoutingKey(ev), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.Time,
		Body:         payload,
	})
}

// Close 实现 Sink
func (s *AMQPSink) Close() error {
	var errs []error
	if s.ch != nil {
		errs = append(errs, s.ch.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	return errors.Join(errs...)
}
