package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aitema/hinweis-backend/internal/anonchannel"
	"github.com/aitema/hinweis-backend/internal/api"
	"github.com/aitema/hinweis-backend/internal/audit"
	"github.com/aitema/hinweis-backend/internal/casemgmt"
	"github.com/aitema/hinweis-backend/internal/config"
	"github.com/aitema/hinweis-backend/internal/crypto"
	"github.com/aitema/hinweis-backend/internal/infra"
	"github.com/aitema/hinweis-backend/internal/intake"
	"github.com/aitema/hinweis-backend/internal/metrics"
	"github.com/aitema/hinweis-backend/internal/model"
	"github.com/aitema/hinweis-backend/internal/notify"
	"github.com/aitema/hinweis-backend/internal/ombuds"
	"github.com/aitema/hinweis-backend/internal/report"
	"github.com/aitema/hinweis-backend/internal/scheduler"
	"github.com/aitema/hinweis-backend/internal/store"
	"github.com/aitema/hinweis-backend/internal/tenantcfg"
)

func main() {
	log.Println("🔥 Starting Hinweisgeber Backend...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	st, err := store.Open(cfg.Database.URL)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer st.Close()

	var kv infra.KV
	redisKV, err := infra.NewRedisKV(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Printf("⚠️  Redis unavailable (%v), falling back to in-memory store", err)
		kv = infra.NewMemoryKV()
	} else {
		kv = redisKV
	}
	defer kv.Close()

	env, err := crypto.NewEnvelope(cfg.Crypto.MasterKey)
	if err != nil {
		log.Fatalf("❌ Encryption setup failed: %v", err)
	}
	auditor, err := audit.NewLogger(cfg.Crypto.AuditHMACKey, st)
	if err != nil {
		log.Fatalf("❌ Audit setup failed: %v", err)
	}

	if err := tenantcfg.SetDefaults(model.TenantSettings{
		EingangsbestaetigungTage: cfg.HinSchG.EingangsbestaetigungTage,
		RueckmeldungTage:         cfg.HinSchG.RueckmeldungTage,
		AufbewahrungJahre:        cfg.HinSchG.AufbewahrungJahre,
		ReminderVorlaufTage:      cfg.HinSchG.ReminderVorlaufTage,
		AnonymousChannelEnabled:  true,
	}); err != nil {
		log.Fatalf("❌ HinSchG deadline configuration invalid: %v", err)
	}
	settings := tenantcfg.NewCache(st)

	var sender notify.Sender
	if cfg.Notifications.WebhookURL != "" {
		sender = notify.NewWebhookSender(cfg.Notifications.WebhookURL)
	} else {
		sender = notify.NewLogSender()
	}
	dispatcher := notify.NewDispatcher(sender, cfg.Notifications.Workers)

	intakeSvc := intake.NewService(st, env, settings, auditor)
	caseSvc := casemgmt.NewService(st, env, settings, auditor, dispatcher)
	limiter := anonchannel.NewLimiter(kv)
	anonSvc := anonchannel.NewService(st, env, settings, auditor, limiter)
	ombudsSvc := ombuds.NewService(st, env)
	reportSvc := report.NewService(st, auditor)
	admin := api.NewAdminHandler(st, settings, auditor)

	sched := scheduler.New(st, settings, auditor, dispatcher, kv, scheduler.Config{
		Interval:    time.Duration(cfg.Scheduler.IntervalMinutes) * time.Minute,
		SweepBudget: 10 * time.Minute,
		DigestHour:  cfg.Scheduler.DigestHour,
	})
	sched.Start()

	collector := metrics.NewCollector(metrics.New(), st)
	collector.Start(time.Duration(cfg.Metrics.RefreshSeconds) * time.Second)

	server := api.NewServer(intakeSvc, caseSvc, anonSvc, ombudsSvc, reportSvc, admin, settings, limiter, st, st)
	server.AddHealthCheck("database", st.Ping)
	server.AddHealthCheck("cache", func(ctx context.Context) error {
		_, err := kv.SetNX(ctx, "health:ping", "1", time.Second)
		return err
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.Router(cfg.CORS.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🚀 Listening on :%s (%s)", cfg.Server.Port, cfg.Server.Env)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("⏰ Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("⚠️  HTTP shutdown: %v", err)
	}
	sched.Stop()
	collector.Stop()
	dispatcher.Shutdown()
	log.Println("✅ Shutdown complete")
}
