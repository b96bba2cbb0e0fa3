// Command event-tail prints events the outbox relay published for one topic.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/riskguard/platform/internal/domain"
	"github.com/riskguard/platform/internal/infra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	topic := flag.String("topic", "", "topic to follow (default <prefix>.principal.risk.enforced)")
	group := flag.String("group", "riskguard-event-tail", "consumer group id")
	flag.Parse()

	if err := run(logger, *topic, *group); err != nil {
		logger.Error("event tail failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, topic, group string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if topic == "" {
		topic = domain.OutboxDraft{AggregateType: domain.AggregatePrincipal, EventType: domain.EventRiskEnforced}.Topic(cfg.KafkaTopicPrefix)
	}

	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, topic, group, cfg.KafkaEnabled, logger)
	defer consumer.Close()
	if !consumer.Enabled() {
		return fmt.Errorf("kafka is disabled; set KAFKA_ENABLED=true")
	}
	logger.Info("tailing topic", "topic", topic, "group", group)

	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		logger.Info("event",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value", string(msg.Value),
		)
	}
}
