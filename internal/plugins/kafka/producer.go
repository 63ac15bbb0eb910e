package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/arefin-aareef/talksy/internal/config"
	"github.com/arefin-aareef/talksy/internal/core/contracts"
	"github.com/arefin-aareef/talksy/pkg/logging"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes chat and user lifecycle events. Records are keyed by
// user id so one user's events stay ordered within a partition.
type Producer struct {
	log             *slog.Logger
	writer          messageWriter
	messagesTopic   string
	userEventsTopic string
}

var _ contracts.EventPublisher = (*Producer)(nil)

func NewProducer(log *slog.Logger, cfg config.KafkaConfig) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		// Topics are created by the broker when auto creation is enabled.
		AllowAutoTopicCreation: true,
	}
	return newProducer(log, writer, cfg.MessagesTopic, cfg.UserEventsTopic)
}

func newProducer(log *slog.Logger, w messageWriter, messagesTopic, userEventsTopic string) *Producer {
	return &Producer{
		log:             log,
		writer:          w,
		messagesTopic:   messagesTopic,
		userEventsTopic: userEventsTopic,
	}
}

func (p *Producer) PublishMessage(ctx context.Context, ev contracts.MessageEvent) error {
	return p.write(ctx, p.messagesTopic, ev.SenderID, ev)
}

func (p *Producer) PublishUserEvent(ctx context.Context, ev contracts.UserEvent) error {
	return p.write(ctx, p.userEventsTopic, ev.UserID, ev)
}

func (p *Producer) write(ctx context.Context, topic, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	})
	if err != nil {
		p.log.WarnContext(ctx, "kafka producer - write - failed", slog.String("topic", topic), logging.Err(err))
		return err
	}
	p.log.DebugContext(ctx, "kafka producer - write - success", slog.String("topic", topic))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
