package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/rbxlabs/shipbox/config"
	"github.com/rbxlabs/shipbox/internal/broker/kafka"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	topic := cfg.Kafka.ShipmentUpdatedTopicName
	if topic == "" {
		topic = "shipment.updated"
	}
	group := cfg.ShipBox.KafkaConsumerGroup
	if group == "" {
		group = "ship-notifier"
	}

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, group)
	defer func() { _ = consumer.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("ship-notifier started", "topic", topic, "group", group)
	if err := runNotifier(ctx, consumer); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("notifier stopped", "error", err.Error())
		os.Exit(1)
	}
}
