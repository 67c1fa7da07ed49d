package components

import (
	"context"
	"log/slog"

	"checkout-saga/internal/domain/saga"
	"checkout-saga/internal/infra/dedup"
	"checkout-saga/internal/infra/metrics"
	"checkout-saga/internal/infra/relay"
	"checkout-saga/internal/pkg/clock"
	"checkout-saga/internal/pkg/config"
	"checkout-saga/internal/usecase/commands"
	"checkout-saga/internal/usecase/shared"

	"go.uber.org/fx"
)

var RelayModule = fx.Module("relay",
	fx.Provide(
		NewHub,
		func(h *relay.Hub) shared.TransitionNotifier { return h },
		NewPublisher,
		NewDeduplicator,
	),
	fx.Invoke(registerCallbackConsumer),
)

func NewHub(collectors *metrics.Collectors) *relay.Hub {
	hub := relay.NewHub()
	hub.OnTransition(collectors.ObserveTransition)
	hub.OnTransition(func(_ context.Context, t saga.Transition) {
		slog.Debug("saga transition",
			"saga_id", t.SagaID.String(),
			"from", t.From.String(),
			"to", t.To.String(),
			"step_seq", t.StepSeq)
	})
	return hub
}

// NewPublisher writes to Kafka when brokers are configured. Otherwise outbox
// rows are delivered to in-process subscribers.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, hub *relay.Hub) shared.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		slog.Warn("KAFKA_BROKERS not set, outbox messages stay in process")
		for _, topic := range []string{cfg.Kafka.PaymentRequestTopic, cfg.Kafka.SagaEventTopic, cfg.Kafka.InventoryEventTopic} {
			hub.Subscribe(topic, logMessage)
		}
		return hub
	}

	writer := relay.NewKafkaWriter(cfg.Kafka)
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return writer.Close()
		},
	})
	return relay.NewKafkaPublisher(writer)
}

func logMessage(_ context.Context, msg shared.OutboxMessage) error {
	slog.Info("outbox message delivered in process",
		"topic", msg.Topic,
		"kind", msg.Kind,
		"key", msg.Key,
		"message_id", msg.ID.String())
	return nil
}

func NewDeduplicator(lc fx.Lifecycle, cfg config.Config, clk clock.Clock) shared.Deduplicator {
	if cfg.Redis.Addr == "" {
		return dedup.NewMemoryDeduplicator(clk, cfg.Redis.DedupTTL)
	}
	client := dedup.NewRedisClient(cfg.Redis)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				slog.Warn("redis not reachable yet, dedup falls back to the step fence", "error", err.Error())
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			return client.Close()
		},
	})
	return dedup.NewRedisDeduplicator(client, cfg.Redis.DedupTTL)
}

func registerCallbackConsumer(lc fx.Lifecycle, cfg config.Config, checkout commands.CheckoutCommands) {
	if len(cfg.Kafka.Brokers) == 0 {
		return
	}
	consumer := relay.NewCallbackConsumer(relay.NewKafkaReader(cfg.Kafka), checkout)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer close(done)
				if err := consumer.Run(ctx); err != nil {
					slog.Error("payment callback consumer exited", "error", err.Error())
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return consumer.Close()
		},
	})
}
