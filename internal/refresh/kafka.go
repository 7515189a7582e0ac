package refresh

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"shelter-api/internal/config"
	"shelter-api/internal/logger"
)

// KafkaReader 消费者所需的读取能力，便于测试替换
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaReader 按配置创建手动提交的消费者
func NewKafkaReader(c config.Kafka) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.Brokers,
		Topic:          c.Topic,
		GroupID:        c.GroupID,
		CommitInterval: 0,
		MinBytes:       1,
		MaxBytes:       10e6,
	})
}

// 文档注释：设施更新事件监听
// 背景：导入工具写库后发布 "updated" 事件；每条消息触发一次重新加载，加载成功后才提交位点，
// 失败的消息在重启后会被再次消费。
// 约束：读取出错时退避重试；ctx 结束后关闭读取器并退出。
type Listener struct {
	reader  KafkaReader
	loader  *Loader
	backoff time.Duration
}

func NewListener(r KafkaReader, ld *Loader) *Listener {
	return &Listener{reader: r, loader: ld, backoff: time.Second}
}

// Run 阻塞消费直到 ctx 结束
func (ln *Listener) Run(ctx context.Context) {
	l := logger.L()
	defer func() {
		if err := ln.reader.Close(); err != nil {
			l.Error("kafka_close_error", "err", err)
		}
	}()
	l.Info("kafka_listener_started")
	for {
		msg, err := ln.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.Info("kafka_listener_stopped")
				return
			}
			l.Error("kafka_fetch_error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(ln.backoff):
			}
			continue
		}
		l.Debug("kafka_message", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "key", string(msg.Key))
		if _, err := ln.loader.Reload(ctx, "kafka"); err != nil {
			continue
		}
		if err := ln.reader.CommitMessages(ctx, msg); err != nil {
			l.Error("kafka_commit_error", "offset", msg.Offset, "err", err)
		}
	}
}
