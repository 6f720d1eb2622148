// Command server runs a notus datastore behind a net/rpc listener and
// a Prometheus /metrics HTTP endpoint.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/lx7/notus"
	"github.com/lx7/notus/cmd/remote"
	"github.com/lx7/notus/config"
	"github.com/lx7/notus/metrics"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: server [--config <path>] [--path <data-dir>] [--addr <addr>] [--metrics-addr <addr>] [--fsync]")
	os.Exit(2)
}

func main() {
	var (
		configPath  = flag.String("config", "", "path to a JSONC config file (default: ./"+config.FileName+" if present)")
		dbPath      = flag.StringP("path", "p", "", "path to data directory (overrides config)")
		addr        = flag.String("addr", "", "RPC listen address (overrides config)")
		metricsAddr = flag.String("metrics-addr", "", "Prometheus /metrics listen address (overrides config)")
		fsync       = flag.Bool("fsync", false, "fsync the active segment after every buffer flush")
		help        = flag.BoolP("help", "h", false, "show usage")
	)
	flag.Parse()
	if *help {
		usage()
	}

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	path := *configPath
	if path == "" {
		if _, statErr := os.Stat(config.FileName); statErr == nil {
			path = config.FileName
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	if *dbPath != "" {
		cfg.DataDir = *dbPath
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *fsync {
		cfg.Fsync = true
	}
	if cfg.DataDir == "" {
		usage()
	}

	reg := prometheus.NewRegistry()
	sink := metrics.New(reg)

	db, err := notus.Open(cfg.DataDir,
		notus.WithFsync(cfg.Fsync),
		notus.WithFlushInterval(cfg.FlushInterval()),
		notus.WithLogger(log),
		notus.WithMetrics(sink),
	)
	if err != nil {
		log.Fatal("open datastore", zap.Error(err))
	}

	listenAddr, cleanup, err := remote.StartRPC(db, cfg.Addr, log)
	if err != nil {
		log.Fatal("start RPC server", zap.Error(err))
	}
	log.Info("RPC server listening", zap.String("addr", listenAddr), zap.Strings("methods", remote.RegisteredMethods))

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server", zap.Error(err))
			}
		}()
		log.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received signal, shutting down", zap.String("signal", sig.String()))

	if metricsServer != nil {
		_ = metricsServer.Close()
	}
	cleanup()
}
