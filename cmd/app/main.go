package main

import (
	"context"
	"flag"
	"os"

	"TrainCtl/internal/di"
	"TrainCtl/internal/topology"
	"TrainCtl/pkg/config"
	"TrainCtl/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	check := flag.Bool("check", false, "validate config and topology, then exit")
	flag.Parse()

	boot, err := logger.New(&logger.Config{Level: "info", Format: "console", Output: "stderr"})
	if err != nil {
		os.Exit(2)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		boot.Error("config load failed", logger.String("path", *configPath), logger.Error(err))
		os.Exit(1)
	}
	boot.Info("config loaded",
		logger.String("env", cfg.Environment),
		logger.String("topology", cfg.Topology.Source),
		logger.Bool("kafka", cfg.Kafka.Enabled),
		logger.Bool("redis", cfg.Redis.Enabled),
		logger.Bool("clickhouse", cfg.ClickHouse.Enabled),
	)

	if *check {
		topo, err := topology.Load(context.Background(), cfg.Topology.Source, topology.WithFetchTimeout(cfg.Topology.FetchTimeout))
		if err != nil {
			boot.Error("topology invalid", logger.Error(err))
			os.Exit(1)
		}
		boot.Info("topology ok",
			logger.String("name", topo.Name()),
			logger.Int("segments", len(topo.Segments())),
			logger.Int("waypoints", len(topo.Waypoints())),
		)
		return
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		boot.Error("app initialization failed", logger.Error(err))
		os.Exit(1)
	}

	// blocks until SIGINT/SIGTERM or a fatal server error
	if err := app.Run(); err != nil {
		boot.Error("app stopped with error", logger.Error(err))
		os.Exit(1)
	}
}
