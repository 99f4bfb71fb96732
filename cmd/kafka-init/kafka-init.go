package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strconv"
	"time"

	config "github.com/NordCoder/Courier/internal/config/notifier"
	"github.com/NordCoder/Courier/internal/obs"
	kafkax "github.com/NordCoder/Courier/internal/repository/kafka"
	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", "../config/notifier.yaml", "path to notifier config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	l, err := obs.NewLogger(obs.LogConfig{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, App: "kafka-init", Env: cfg.App.Env})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	specs := cfg.Topology().Specs(cfg.In.Partitions, envInt("KAFKA_RF", 1))
	if err := kafkax.EnsureTopics(ctx, cfg.In.Brokers, specs, 30*time.Second, l); err != nil {
		l.Fatal("ensure topics", zap.Error(err))
	}
	l.Info("kafka-init ok", zap.Int("topics", len(specs)))
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, _ := strconv.Atoi(v); n > 0 {
			return n
		}
	}
	return def
}
