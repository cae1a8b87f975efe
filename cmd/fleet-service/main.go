package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetgate/internal/alerts"
	"fleetgate/internal/analytics"
	"fleetgate/internal/authbroker"
	"fleetgate/internal/riders"
	"fleetgate/pkg/config"
	"fleetgate/pkg/db"
	"fleetgate/pkg/logger"
	"fleetgate/pkg/middleware"
	"fleetgate/pkg/organizations"
	"fleetgate/pkg/secrets"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	defer log.Sync()

	pool := db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)

	var prov organizations.Provider
	if pool != nil {
		if err := organizations.EnsureSchema(context.Background(), pool); err != nil {
			log.Fatalw("schema", "err", err)
		}
		prov = organizations.NewPostgresProvider(pool, log)
	} else {
		prov = organizations.NewMemoryProviderFromEnv(log)
	}

	box := secrets.NewBox(cfg.EncryptionKey)
	broker := authbroker.NewBroker(
		authbroker.NewStore(prov, box),
		log,
		authbroker.WithHTTPClient(&http.Client{Timeout: cfg.UpstreamTimeout}),
	)
	exec := authbroker.NewExecutor(broker, log)
	svc := riders.NewService(exec, rdb, log)

	kpiDefs, err := analytics.LoadDefinitions(cfg.RulesDir)
	if err != nil {
		log.Warnw("kpi definitions", "err", err)
	}
	rules, err := alerts.LoadRules(cfg.RulesDir)
	if err != nil {
		log.Warnw("alert rules", "err", err)
	}
	handler := riders.NewHandler(
		svc,
		analytics.NewEngine(kpiDefs, log),
		alerts.NewEngine(rules, rdb, log),
		prov,
		log,
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.Tracing("fleet-service"))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(pr chi.Router) {
		pr.Use(middleware.WithOrganization(prov))
		pr.Use(middleware.JWTAuth(cfg))
		handler.Register(pr)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Infow("fleet-service listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("fleet-service stopped")
}
