package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"outreach-platform/internal/audit"
	"outreach-platform/internal/auth"
	"outreach-platform/internal/campaign"
	"outreach-platform/internal/config"
	"outreach-platform/internal/dispatcher"
	"outreach-platform/internal/gateway"
	"outreach-platform/internal/lead"
	"outreach-platform/internal/lock"
	"outreach-platform/internal/notify"
	"outreach-platform/internal/session"
	"outreach-platform/internal/workflow"
	"outreach-platform/pkg/logger"
	"outreach-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Best-effort; production sets real env vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	var locker lock.Locker
	if cfg.Lock.Mode == config.LockModeRedis {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb)
	} else {
		log.Warn("using in-process locks; single-instance deployments only")
		locker = lock.NewMemoryLocker()
	}

	campaigns := campaign.NewPostgresRepo(db)
	leads := lead.NewPostgresRepo(db)
	auditor := audit.NewService(audit.NewMemoryRepo())
	events := notify.NewBroker()

	var sender workflow.Sender
	if cfg.Gateway.BaseURL != "" {
		sender = gateway.NewHTTPSender(cfg.Gateway.BaseURL, cfg.Gateway.APIKey)
	} else {
		log.Warn("no gateway endpoint configured; outbound messages will only be logged")
		sender = gateway.LogSender{Log: log}
	}

	// No AI backend is wired yet; ai_agent nodes fail as misconfigured
	// until a generator is provided here.
	registry := workflow.NewRegistry(sender, nil, auditor)
	orch := workflow.NewOrchestrator(leads, campaigns, registry, locker, events, auditor, cfg.Lock.TTL)

	inbound := gateway.NewInboundService(
		session.NewDedupRegister(cfg.Gateway.DedupTTL),
		session.NewComposingTracker(cfg.Gateway.ComposingCooldown),
		leads, orch, log,
	)

	if cfg.Dispatcher.Enabled {
		d := dispatcher.New(campaigns, leads, orch, cfg.Dispatcher.Interval)
		stopDispatcher := d.Start(rootCtx)
		defer stopDispatcher()
	} else {
		log.Info("outbound dispatcher disabled")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		auth:         authManager,
		campaigns:    campaigns,
		leads:        leads,
		orch:         orch,
		events:       events,
		inbound:      inbound,
		webhookToken: cfg.Gateway.WebhookToken,
		db:           db,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "lock_mode", cfg.Lock.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
