package main

import (
	"context"
	"fmt"

	config "github.com/NordCoder/Courier/internal/config/notifier"
	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/NordCoder/Courier/internal/ledger"
	"github.com/NordCoder/Courier/internal/obs/retry"
	"github.com/NordCoder/Courier/internal/repository/kafka"
	pg "github.com/NordCoder/Courier/internal/repository/postgres"
	notifier "github.com/NordCoder/Courier/internal/services/notifier"
	"go.uber.org/zap"
)

type app struct {
	ctrl      *notifier.Controller
	pruner    *ledger.Pruner
	consumer  *kafka.Consumer
	publisher *kafka.ChannelPublisher
	dlq       *kafka.Producer
}

func (a *app) Close() error {
	a.pruner.Stop()
	_ = a.dlq.Close()
	_ = a.publisher.Close()
	return a.consumer.Close()
}

func channelProducers(ctx context.Context, cfg *config.Config, l *zap.Logger) map[notification.Channel]*kafka.Producer {
	topics := cfg.Topology().Channels
	out := make(map[notification.Channel]*kafka.Producer, len(topics))
	for ch, topic := range topics {
		out[ch] = kafka.BootstrapProducer(ctx, cfg.In.Brokers, topic, l)
	}
	return out
}

func wiring(ctx context.Context, db *pg.DB, cfg *config.Config, l *zap.Logger) (*app, error) {
	clock := notification.SystemClock{}

	historyRepo := pg.NewHistoryRepo(db)
	templates := pg.NewTemplateRepo(db)
	prefs := pg.NewPreferenceRepo(db)
	led := ledger.New(historyRepo, pg.NewTransactor(db, l), clock, cfg.History.Retention, l)

	seed, err := config.LoadSeed(cfg.Templates.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("load seed: %w", err)
	}
	nt, np, err := notifier.ApplySeed(ctx, seed, notifier.NewTemplateService(templates, l), notifier.NewPreferenceService(prefs))
	if err != nil {
		return nil, fmt.Errorf("apply seed: %w", err)
	}
	if nt > 0 || np > 0 {
		l.Info("seed applied", zap.Int("templates", nt), zap.Int("preferences", np))
	}

	gate, err := notifier.NewFrequencyGate(cfg.Preferences.FrequencyStrategy, led, clock)
	if err != nil {
		return nil, err
	}

	relay := notifier.NewRelayClient(cfg.Relay, nil, l)
	if err := relay.ValidateConfiguration(); err != nil {
		return nil, err
	}

	publisher := kafka.NewChannelPublisher(channelProducers(ctx, cfg, l))
	var pub notification.Publisher = publisher
	if cfg.Channels.EmailTransport == "smtp" {
		mailer := notifier.NewMailer(cfg.SMTP).WithLogger(l)
		pub = notifier.NewPublisherMux(publisher).
			Route(notification.ChannelEmail, notifier.SenderPublisher{Sender: mailer})
	}
	policy := retry.WithLogging(retry.Policy{Name: "channel.publish", Config: cfg.Retry}, l)

	uc := notifier.NewProcessor(notifier.ProcessorDeps{
		Policy:         notifier.NewEvaluator(prefs, gate, clock, l),
		Templates:      templates,
		Renderer:       notifier.NewRenderer(l),
		Redactor:       notifier.NewRedactor(),
		Relay:          relay,
		Channels:       notifier.NewChannelAdapter(pub, policy, l),
		Ledger:         led,
		Log:            l,
		MinChannelTime: cfg.Processing.MinChannelTime,
	})

	cons := kafka.BootstrapConsumer(ctx, &kafka.ConsumerConfig{
		Brokers:       cfg.In.Brokers,
		GroupID:       cfg.In.GroupID,
		Topic:         cfg.In.Topic,
		FromBeginning: cfg.In.FromBeginning,
	}, cfg.In.Partitions, l)
	dlq := kafka.BootstrapProducer(ctx, cfg.In.Brokers, cfg.In.DLQTopic, l)

	pruner := ledger.NewPruner(historyRepo, clock, cfg.History.PruneBatchSize, l)
	if err := pruner.Start(ctx, cfg.History.PruneSchedule); err != nil {
		return nil, fmt.Errorf("start pruner: %w", err)
	}

	return &app{
		ctrl: &notifier.Controller{
			Log:    l.With(zap.String("component", "notifier.controller")),
			Sub:    cons,
			UC:     uc,
			DLQ:    kafka.NewDeadLetterQueue(dlq),
			Budget: cfg.Processing.Budget,
		},
		pruner:    pruner,
		consumer:  cons,
		publisher: publisher,
		dlq:       dlq,
	}, nil
}
