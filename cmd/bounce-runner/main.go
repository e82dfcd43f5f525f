package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/listkeeper/internal/bounce"
	"github.com/ignite/listkeeper/internal/config"
	"github.com/ignite/listkeeper/internal/events"
	"github.com/ignite/listkeeper/internal/identity"
	"github.com/ignite/listkeeper/internal/listregistry"
	"github.com/ignite/listkeeper/internal/notify"
	"github.com/ignite/listkeeper/internal/pending"
	"github.com/ignite/listkeeper/internal/pkg/distlock"
	"github.com/ignite/listkeeper/internal/pkg/logger"
	"github.com/ignite/listkeeper/internal/roster"
)

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
			logger.Warn("redis not reachable, falling back to advisory locks", "error", err.Error())
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

	processor := bounce.NewProcessor(
		bounce.NewSQLTxRunner(db, identityStore, rosterStore, listStore, pendingStore, eventStore),
		dispatcher, bus,
		bounce.Options{
			VERPProbes:    cfg.Bounce.VERPProbes,
			ProbeLifetime: cfg.Pending.ProbeLifetime(),
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lock := distlock.NewLock(rdb, db, "listkeeper:bounce:escalate", cfg.Bounce.TickInterval())
	runner := bounce.NewRunner(processor, lock, cfg.Bounce.TickInterval())
	runner.Start(ctx)
	defer runner.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("bounce runner shutting down")
	cancel()
}
