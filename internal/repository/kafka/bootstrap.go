package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const bootstrapWait = 5 * time.Second

// BootstrapConsumer makes sure the inbound topic exists before the reader joins the group.
func BootstrapConsumer(ctx context.Context, cfg *ConsumerConfig, partitions int, logger *zap.Logger) *Consumer {
	if err := EnsureTopic(ctx, cfg.Brokers, TopicSpec{Name: cfg.Topic, NumPartitions: partitions}, bootstrapWait, logger); err != nil {
		logger.Warn("ensure topic failed", zap.String("topic", cfg.Topic), zap.Error(err))
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	return NewConsumer(cfg)
}

// BootstrapProducer ensures topic and returns a producer bound to it.
func BootstrapProducer(ctx context.Context, brokers []string, topic string, logger *zap.Logger) *Producer {
	if err := EnsureTopic(ctx, brokers, TopicSpec{Name: topic}, bootstrapWait, logger); err != nil {
		logger.Warn("ensure topic failed", zap.String("topic", topic), zap.Error(err))
	}
	return NewProducer(brokers, topic).WithLogger(logger)
}
