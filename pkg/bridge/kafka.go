package bridge

import (
	"context"

	"github.com/IBM/sarama"

	"github.com/tokmz/ircium/pkg/errors"
)

// ErrKafkaProducer Kafka 生产者创建失败
var ErrKafkaProducer = errors.New(4020, "bridge: kafka producer failed")

// KafkaConfig Kafka 发布配置
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// KafkaSink 同步生产者，消息 key 为服务器名，保证同一服务器的消息有序
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaSink 创建同步生产者
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, ErrKafkaProducer.WithMessage("kafka brokers and topic are required")
	}

	sc := sarama.NewConfig()
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, ErrKafkaProducer.WithError(err)
	}
	return NewKafkaSinkWithProducer(producer, cfg.Topic), nil
}

// NewKafkaSinkWithProducer 使用已有生产者
func NewKafkaSinkWithProducer(producer sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

// Name 实现 Sink
func (s *KafkaSink) Name() string { return "kafka" }

// Publish 实现 Sink
// SyncProducer 不接受 context，超时由 sarama 自身的 Net/Producer 超时控制
func (s *KafkaSink) Publish(ctx context.Context, ev *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := ev.Encode()
	if err != nil {
		return err
	}
	_, _, err = s.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     s.topic,
		Key:       sarama.StringEncoder(ev.Server),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: ev.Time,
		Headers: []sarama.RecordHeader{
			{Key: []byte("command"), Value: []byte(ev.Command)},
		},
	})
	return err
}

// Close 实现 Sink
func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
