package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hivewatch/pkg/bus"
	"hivewatch/pkg/config"
	"hivewatch/pkg/model"
	"hivewatch/pkg/observability"
	"hivewatch/pkg/pipeline"
	"hivewatch/pkg/structlog"
)

func main() {
	log := structlog.NewLogger("hivewatch-detector", structlog.ParseLevel(config.Get("LOG_LEVEL", "info")), os.Stdout)

	bundleDir := config.Get("HIVEWATCH_BUNDLE_DIR", "artifacts")
	bundle, err := model.LoadBundle(bundleDir)
	if err != nil {
		// Startup must refuse to run with unsafe artifacts.
		log.Fatal("artifact bundle rejected", structlog.Fields{"dir": bundleDir, "error": err.Error()})
	}
	log.Info("artifact bundle loaded", structlog.Fields{"dir": bundleDir, "version": bundle.Version})

	cfg := pipeline.Config{
		Threshold: config.GetFloat("HIVEWATCH_ALERT_THRESHOLD", 0.7),
		Workers:   config.GetInt("HIVEWATCH_WORKERS", 4),
	}
	redisAddr := config.Get("HIVEWATCH_REDIS_ADDR", "localhost:6379")
	inbound := config.Get("HIVEWATCH_INBOUND_STREAM", "honeypot.packets")
	outbound := config.Get("HIVEWATCH_OUTBOUND_STREAM", "anomaly.alerts")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer, err := bus.NewRedisConsumer(ctx, bus.StreamConfig{
		Addr:     redisAddr,
		Stream:   inbound,
		Group:    config.Get("HIVEWATCH_CONSUMER_GROUP", "hivewatch"),
		Consumer: config.Get("HIVEWATCH_CONSUMER_NAME", "detector-"+uuid.NewString()),
		Block:    config.GetDuration("HIVEWATCH_CONSUME_BLOCK", 5*time.Second),
	})
	if err != nil {
		log.Fatal("inbound stream unavailable", structlog.Fields{"addr": redisAddr, "stream": inbound, "error": err.Error()})
	}
	defer consumer.Close()

	publisher := bus.NewRedisPublisher(redisAddr, outbound)
	defer publisher.Close()

	listener := pipeline.NewListener(cfg, &pipeline.Runtime{
		Scaling: bundle.Scaling,
		Scorer:  model.NewScorer(bundle, log),
	}, consumer, publisher, log)

	// SIGHUP swaps in a freshly loaded bundle, whole or not at all.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			nb, err := model.LoadBundle(bundleDir)
			if err != nil {
				log.Error("reload rejected, keeping current bundle", structlog.Fields{"error": err.Error()})
				continue
			}
			listener.Swap(&pipeline.Runtime{Scaling: nb.Scaling, Scorer: model.NewScorer(nb, log)})
			log.Info("bundle reloaded", structlog.Fields{"version": nb.Version})
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	httpSrv := &http.Server{
		Addr:              config.Get("HIVEWATCH_HTTP_ADDR", ":7040"),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped", structlog.Fields{"error": err.Error()})
		}
	}()

	if endpoint := config.Get("HIVEWATCH_OTLP_ENDPOINT", ""); endpoint != "" {
		exporter, err := observability.NewOTelExporter("hivewatch-detector", endpoint)
		if err != nil {
			log.Error("otel exporter disabled", structlog.Fields{"endpoint": endpoint, "error": err.Error()})
		} else {
			if err := observability.BridgePrometheus("hivewatch-detector", prometheus.DefaultGatherer); err != nil {
				log.Error("otel metric bridge failed", structlog.Fields{"error": err.Error()})
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = exporter.Shutdown(shutdownCtx)
			}()
		}
	}

	log.Info("detector consuming", structlog.Fields{
		"inbound":   inbound,
		"outbound":  outbound,
		"threshold": cfg.Threshold,
		"workers":   cfg.Workers,
	})
	_ = listener.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Info("detector stopped", nil)
}
