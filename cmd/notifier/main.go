package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	config "github.com/NordCoder/Courier/internal/config/notifier"
	"github.com/NordCoder/Courier/internal/obs"
	pg "github.com/NordCoder/Courier/internal/repository/postgres"
	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", "../config/notifier.yaml", "path to config file")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(obs.LogConfig{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		App:    cfg.App.Name,
		Env:    cfg.App.Env,
		Ver:    cfg.App.Version,
		Region: cfg.App.Region,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	l.Info("starting notifier",
		zap.Strings("brokers", cfg.In.Brokers),
		zap.String("topic", cfg.In.Topic),
		zap.String("email_transport", cfg.Channels.EmailTransport),
		zap.Bool("relay", cfg.Relay.Enabled),
		zap.String("frequency_strategy", cfg.Preferences.FrequencyStrategy),
	)

	// otel
	otelCloser, err := obs.SetupOTel(rootCtx, &obs.OTELConfig{
		Enable:      cfg.OTEL.Enable,
		Endpoint:    cfg.OTEL.Endpoint,
		ServiceName: cfg.OTEL.ServiceName,
		SampleRatio: cfg.OTEL.SampleRatio,
		Region:      cfg.App.Region,
	})
	if err != nil {
		l.Warn("otel init", zap.Error(err))
		otelCloser = &obs.OTel{}
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// db
	db, err := pg.NewDB(rootCtx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	l.Info("db connected")

	// metrics
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, db.Ping, l)

	a, err := wiring(rootCtx, db, cfg, l)
	if err != nil {
		l.Fatal("wiring", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	errCh := make(chan error, 1)
	go func() {
		l.Info("controller starting")
		errCh <- a.ctrl.Run(rootCtx)
	}()

	select {
	case <-rootCtx.Done():
		l.Info("shutdown signal")
	case runErr := <-errCh:
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			l.Error("controller error", zap.Error(runErr))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
