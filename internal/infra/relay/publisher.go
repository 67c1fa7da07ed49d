package relay

import (
	"context"
	"sort"
	"time"

	"checkout-saga/internal/pkg/config"
	"checkout-saga/internal/pkg/errs"
	"checkout-saga/internal/usecase/shared"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("checkout-saga/infra/relay")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes outbox messages to the topic recorded on each row.
// Messages are keyed by saga id (or sku), so the hash balancer keeps them
// ordered per key.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaPublisher(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg shared.OutboxMessage) error {
	ctx, span := tracer.Start(ctx, "relay.publish "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.message.id", msg.ID.String()),
			attribute.String("outbox.kind", msg.Kind),
		))
	defer span.End()

	km := kafka.Message{
		Topic: msg.Topic,
		Key:   []byte(msg.Key),
		Value: msg.Payload,
	}
	km.Headers = append(km.Headers, kafka.Header{Key: "message_id", Value: []byte(msg.ID.String())})
	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(msg.Headers[k])})
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &km.Headers})

	if err := p.writer.WriteMessages(ctx, km); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return errs.Wrapf(err, "publish %s to %s", msg.Kind, msg.Topic)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
