// Command raftd runs one reference-host node: it loads a YAML cluster
// config, opens durable storage, and drives the raft engine's tick loop
// until interrupted. This supersedes the originating sketch's example
// command, which never got past wiring NewServer.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ihavec/kirindb-raft-db/config"
	"github.com/ihavec/kirindb-raft-db/host"
	"github.com/ihavec/kirindb-raft-db/metrics"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the cluster config YAML file")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.ReadConfig(*configPath)
	if err != nil {
		logger.Error("read config", slog.Any("error", err))
		os.Exit(1)
	}

	collectors := metrics.NewCollectors(prometheus.DefaultRegisterer)
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("metrics server", slog.Any("error", err))
			}
		}()
	}

	h, err := host.Open(cfg, logger, collectors)
	if err != nil {
		logger.Error("open host", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("raftd starting", slog.Any("self_id", cfg.SelfID))
	h.Run(ctx)

	if err := h.Close(); err != nil {
		logger.Error("close host", slog.Any("error", err))
		os.Exit(1)
	}
}
