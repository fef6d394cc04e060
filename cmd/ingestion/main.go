package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"fuelwatch/ingestion/internal/config"
	"fuelwatch/ingestion/internal/metrics"
	"fuelwatch/ingestion/internal/pipeline"
	"fuelwatch/ingestion/internal/resolver"
	"fuelwatch/ingestion/internal/session"
	"fuelwatch/ingestion/internal/store"
	transport "fuelwatch/ingestion/internal/transport/mqtt"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, using system environment")
	}
	log.SetFormatter(&log.JSONFormatter{})

	cfg := config.Load()
	ctx := context.Background()

	db, err := store.NewPostgresStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("postgres connection failed")
	}
	defer db.Close()

	redisStore, err := store.NewRedisStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("redis connection failed")
	}
	defer redisStore.Close()

	var apiClient *resolver.Client
	if cfg.ResolverURL != "" {
		apiClient = resolver.NewClient(cfg.ResolverURL, time.Duration(cfg.ResolverTimeoutMS)*time.Millisecond)
	} else {
		log.Warn("RESOLVER_URL not set, fallback resolution uses cache only")
	}
	res := resolver.New(apiClient, redisStore, time.Duration(cfg.ResolverTimeoutMS)*time.Millisecond)

	machine := session.New(session.Policy{
		MaxHours:      cfg.SessionMaxHours,
		HalveOverlong: cfg.SessionHoursCorrection,
		Company:       cfg.CompanyName,
	})

	emitter := pipeline.NewEmitter(db, redisStore, redisStore, cfg.EmitQueueSize)
	emitterCtx, stopEmitter := context.WithCancel(ctx)
	emitterDone := make(chan struct{})
	go func() {
		defer close(emitterDone)
		emitter.Run(emitterCtx)
	}()

	dispatcher := pipeline.NewDispatcher(cfg, machine, res, emitter, redisStore)

	sub := transport.NewSubscriber(cfg, dispatcher.HandleRaw)
	if err := sub.Connect(); err != nil {
		log.WithError(err).Fatal("mqtt connection failed")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", metrics.HandleMetrics)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	})
	httpServer := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: mux}
	go func() {
		log.WithField("port", cfg.HTTPPort).Info("metrics listener started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics listener failed")
		}
	}()

	log.Info("ingestion pipeline running")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	sub.Stop()
	dispatcher.Close()
	emitter.Close()
	<-emitterDone
	stopEmitter()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	log.Info("shutdown complete")
}
