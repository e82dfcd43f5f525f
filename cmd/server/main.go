package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/listkeeper/internal/bounce"
	"github.com/ignite/listkeeper/internal/config"
	"github.com/ignite/listkeeper/internal/events"
	"github.com/ignite/listkeeper/internal/identity"
	"github.com/ignite/listkeeper/internal/listregistry"
	"github.com/ignite/listkeeper/internal/notify"
	"github.com/ignite/listkeeper/internal/pending"
	"github.com/ignite/listkeeper/internal/pkg/logger"
	"github.com/ignite/listkeeper/internal/roster"
)

// The server process drains the bounce intake queue and exposes the ops
// endpoints. Subscription and unsubscription run through the workflow engine
// embedded by the front-end tier; escalation runs in cmd/bounce-runner.
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}

	if cfg.Database.URL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("database open failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.Ping(); err != nil {
		logger.Error("database ping failed", "error", err.Error())
		os.Exit(1)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable, continuing without intake queue", "error", err.Error())
			rdb = nil
		}
	}

	identityStore := identity.NewStore(db)
	listStore := listregistry.NewStore(db)
	rosterStore := roster.NewStore(db)
	pendingStore := pending.NewStore(db)
	eventStore := bounce.NewStore(db)

	bus := events.NewBus()

	var outbound notify.Outbound
	if rdb != nil {
		outbound = notify.NewRedisOutbound(rdb, "")
	} else {
		outbound = notify.NewLogOutbound()
	}
	dispatcher := notify.NewDispatcher(outbound,
		notify.NewFileResolver(cfg.Site.TemplateDir, cfg.Site.DefaultLanguage),
		notify.Options{
			VERPDeliveries:   cfg.MTA.VERPPersonalizedDeliveries,
			DevmodeEnabled:   cfg.Devmode.Enabled,
			DevmodeRecipient: cfg.Devmode.Recipient,
			SiteOwner:        cfg.MTA.SiteOwner,
			DefaultLanguage:  cfg.Site.DefaultLanguage,
		})

	txRunner := bounce.NewSQLTxRunner(db, identityStore, rosterStore, listStore, pendingStore, eventStore)
	processor := bounce.NewProcessor(txRunner, dispatcher, bus,
		bounce.Options{
			VERPProbes:    cfg.Bounce.VERPProbes,
			ProbeLifetime: cfg.Pending.ProbeLifetime(),
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if rdb != nil {
		queue := bounce.NewQueue(rdb, cfg.Bounce.QueueKey)
		consumer := bounce.NewConsumer(queue, txRunner, processor)
		consumer.Start(ctx)
		defer consumer.Stop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if err := db.PingContext(req.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "database not available"})
			return
		}
		if rdb != nil {
			if err := rdb.Ping(req.Context()).Err(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "redis not available"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: r}

	go func() {
		logger.Info("ops listener up", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops listener failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops listener shutdown failed", "error", err.Error())
	}
	logger.Info("shutdown complete")
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
