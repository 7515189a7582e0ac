package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"shelter-api/internal/config"
	"shelter-api/internal/logger"
)

// KafkaWriter 发布更新事件所需的写入能力
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(c config.Kafka) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        c.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
}

// UpdatedEvent 设施数据已更新；消费端只把它当作重新加载的信号
type UpdatedEvent struct {
	Source string    `json:"source"`
	Count  int       `json:"count"`
	At     time.Time `json:"at"`
}

// PublishUpdated 发布一条更新事件，以数据源名作为消息键
func PublishUpdated(ctx context.Context, w KafkaWriter, ev UpdatedEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := w.WriteMessages(ctx, kafka.Message{Key: []byte(ev.Source), Value: b}); err != nil {
		return fmt.Errorf("publish updated event: %w", err)
	}
	logger.L().Info("kafka_updated_published", "source", ev.Source, "count", ev.Count)
	return nil
}
