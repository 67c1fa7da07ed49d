package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"checkout-saga/internal/domain/saga"
	"checkout-saga/internal/pkg/backoff"
	"checkout-saga/internal/pkg/config"
	"checkout-saga/internal/pkg/errs"
	"checkout-saga/internal/usecase/commands"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	handleAttempts = 5
	fetchBackoff   = time.Second
	maxRedelivery  = 30 * time.Second
)

type CallbackHandler interface {
	HandlePaymentCallback(ctx context.Context, cb commands.PaymentCallback) (*saga.Instance, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CallbackConsumer feeds payment results from Kafka into the orchestrator.
// Offsets are committed only after the callback was handled or judged
// unprocessable, so delivery is at least once.
type CallbackConsumer struct {
	reader  messageReader
	handler CallbackHandler
	retry   time.Duration
}

func NewKafkaReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.PaymentCallbackTopic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

func NewCallbackConsumer(reader messageReader, handler CallbackHandler) *CallbackConsumer {
	return &CallbackConsumer{reader: reader, handler: handler, retry: 100 * time.Millisecond}
}

// Run blocks until ctx is cancelled.
func (c *CallbackConsumer) Run(ctx context.Context) error {
	slog.Info("payment callback consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("payment callback consumer stopped")
				return nil
			}
			slog.Error("failed to fetch payment callback", "error", err.Error())
			if err := backoff.Sleep(ctx, fetchBackoff); err != nil {
				return nil
			}
			continue
		}

		// the partition does not advance past a callback that was not handled
		for attempt := 0; ; attempt++ {
			err := c.process(ctx, msg)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("payment callback not handled",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"attempt", attempt+1,
				"error", err.Error())
			if err := backoff.Sleep(ctx, backoff.Exponential(attempt, c.retry, maxRedelivery)); err != nil {
				return nil
			}
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			slog.Error("failed to commit payment callback", "offset", msg.Offset, "error", err.Error())
		}
	}
}

func (c *CallbackConsumer) process(ctx context.Context, msg kafka.Message) error {
	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier{headers: &msg.Headers})
	ctx, span := tracer.Start(ctx, "relay.consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		))
	defer span.End()

	var cb commands.PaymentCallback
	if err := json.Unmarshal(msg.Value, &cb); err != nil {
		slog.Warn("dropping malformed payment callback", "offset", msg.Offset, "error", err.Error())
		return nil
	}
	if err := cb.Validate(); err != nil {
		slog.Warn("dropping invalid payment callback", "offset", msg.Offset, "error", err.Error())
		return nil
	}

	var err error
	for attempt := 0; attempt < handleAttempts; attempt++ {
		_, err = c.handler.HandlePaymentCallback(ctx, cb)
		if err == nil || errs.IsAny(err, errs.ErrSagaNotFound, errs.ErrInvalidCheckout) {
			return nil
		}
		slog.Warn("retrying payment callback",
			"saga_id", cb.SagaID.String(),
			"attempt", attempt+1,
			"error", err.Error())
		if sleepErr := backoff.Sleep(ctx, backoff.Exponential(attempt, c.retry, 0)); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

func (c *CallbackConsumer) Close() error {
	return c.reader.Close()
}
