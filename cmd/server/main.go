package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/app/controllers"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/app/repositories"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/app/services"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/config"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/database"
	httpPlatform "github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/http"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/llm"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/metrics"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/whatsapp"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/ws"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/pkg/eventlog"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/pkg/logger"
	storagepkg "github.com/bhardwajdevesh092005/WhatsApp-Bot/pkg/storage"
	minioStorage "github.com/bhardwajdevesh092005/WhatsApp-Bot/pkg/storage/minio"
	"github.com/joho/godotenv"
)

const version = "1.0.0"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg := config.MustLoad()
	level := "DEBUG"
	if cfg.Env == "production" {
		level = "INFO"
	}
	loggers := logger.New(level)
	loc := cfg.Location()

	log.Printf("configuration: driver=%s env=%s tz=%s", cfg.DBDriver, cfg.Env, loc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var objectStorage storagepkg.Service
	if cfg.Storage.Enabled() {
		store, err := minioStorage.New(ctx, minioStorage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			log.Fatalf("storage initialization error: %v", err)
		}
		objectStorage = store
		log.Printf("media archive enabled bucket=%s endpoint=%s", cfg.Storage.Bucket, cfg.Storage.Endpoint)
	}

	var (
		messagesRepo repositories.MessageRepository
		settingsRepo repositories.SettingsRepository
		repliesRepo  repositories.AutoReplyRepository
		snapsRepo    repositories.AnalyticsRepository
		dbClose      []func() error
	)

	switch cfg.DBDriver {
	case "postgres":
		log.Printf("initializing postgres repositories")
		db, err := database.Open(cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("database connection error: %v", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			dbClose = append(dbClose, sqlDB.Close)
		}

		messagesRepo, err = repositories.NewGormMessageRepo(db)
		if err != nil {
			log.Fatalf("message repository initialization error: %v", err)
		}
		settingsRepo, err = repositories.NewGormSettingsRepo(db)
		if err != nil {
			log.Fatalf("settings repository initialization error: %v", err)
		}

		// TODO: Refatorar os repositórios de SQL puro para GORM também
		sqlDB, err := database.OpenSQL(cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("database connection error: %v", err)
		}
		dbClose = append(dbClose, sqlDB.Close)

		repliesRepo, err = repositories.NewPostgresAutoReplyRepo(sqlDB)
		if err != nil {
			log.Fatalf("auto-reply repository initialization error: %v", err)
		}
		snapsRepo, err = repositories.NewPostgresAnalyticsRepo(sqlDB)
		if err != nil {
			log.Fatalf("analytics repository initialization error: %v", err)
		}
	default:
		log.Printf("initializing in-memory repositories")
		messagesRepo = repositories.NewInMemoryMessageRepo()
		settingsRepo = repositories.NewInMemorySettingsRepo()
		repliesRepo = repositories.NewInMemoryAutoReplyRepo()
		snapsRepo = repositories.NewInMemoryAnalyticsRepo()
	}

	mets := metrics.New()
	hub := ws.NewHub(loggers.App.Sub("WS"))
	go hub.Run(ctx)

	emitter := services.MultiEmitter{hub}
	if cfg.Webhook.URL != "" {
		emitter = append(emitter, services.NewWebhookDispatcher(services.WebhookConfig{
			URL:     cfg.Webhook.URL,
			Events:  cfg.Webhook.Events,
			Timeout: time.Duration(cfg.Webhook.TimeoutMS) * time.Millisecond,
		}, nil, loggers.App.Sub("Webhook")))
		log.Printf("webhook dispatcher enabled url=%s", cfg.Webhook.URL)
	}
	emitter = append(emitter, services.EmitterFunc(func(topic string, payload any) {
		if topic != "connection.status" {
			return
		}
		if snap, ok := payload.(whatsapp.StatusSnapshot); ok {
			mets.ObserveConnection(snap.Ready)
		}
	}))

	stats := services.NewAnalyticsService(loc, loggers.App.Sub("Analytics"))
	if snap, err := snapsRepo.LatestSnapshot(ctx); err != nil {
		log.Printf("analytics restore error: %v", err)
	} else if snap != nil {
		stats.Restore(*snap)
		log.Printf("analytics restored from snapshot captured at %s", snap.CapturedAt.Format(time.RFC3339))
	}

	resolved := services.ResolveSettings(ctx, settingsRepo, cfg.AutoReplySettings())
	limiter := services.NewRateLimiter(resolved.LLM.RateLimitPerHour, loggers.App.Sub("RateLimit"))
	generator := llm.NewGenerator(ctx, resolved.LLM, loggers.App.Sub("LLM"))
	gate := services.NewAutoReplyService(limiter, generator, loc, loggers.App.Sub("AutoReply"))
	settingsSvc := services.NewSettingsService(settingsRepo, resolved, limiter, generator, emitter, loggers.App.Sub("Settings"))

	rawEvents := eventlog.NewWriter(cfg.EventLogDir, loggers.App.Sub("EventLog"))
	stores := whatsapp.NewStoreFactory(cfg.DataDir, loggers.App.Sub("Store"))
	sup := whatsapp.NewSupervisor(whatsapp.SupervisorConfig{
		Factory:     whatsapp.NewClientFactory(stores, loggers.App.Sub("WA")),
		Emitter:     emitter,
		RawEventLog: rawEvents,
		Log:         loggers.App.Sub("Supervisor"),
	})

	sender := services.NewMessageService(sup, cfg.LinkPreviews, loggers.App.Sub("Sender"))
	pipeline := services.NewPipeline(services.PipelineConfig{
		Supervisor:  sup,
		Sender:      sender,
		Gate:        gate,
		Limiter:     limiter,
		Analytics:   stats,
		Settings:    settingsSvc,
		Messages:    messagesRepo,
		AutoReplies: repliesRepo,
		Snapshots:   snapsRepo,
		Media:       objectStorage,
		Emitter:     emitter,
		Metrics:     mets,
		Log:         loggers.App.Sub("Pipeline"),
		QueueSize:   cfg.QueueSize,
	})
	sup.SetListeners(pipeline, pipeline)
	go pipeline.Run(ctx)

	if cfg.SkipWAConnect {
		log.Printf("WA_SKIP_CONNECT set; whatsapp session stays offline until /api/connect")
	} else if err := sup.Connect(ctx); err != nil {
		// Boot segue mesmo assim: a sessão pode ser iniciada depois via API.
		log.Printf("whatsapp connect error: %v", err)
	}

	router := httpPlatform.NewRouter(httpPlatform.RouterConfig{
		StatusCtrl:    controllers.NewStatusController(sup),
		MessageCtrl:   controllers.NewMessageController(pipeline, messagesRepo),
		AnalyticsCtrl: controllers.NewAnalyticsController(pipeline),
		SettingsCtrl:  controllers.NewSettingsController(settingsSvc),
		AutoReplyCtrl: controllers.NewAutoReplyController(repliesRepo),
		Hub:           hub,
		Metrics:       mets,
		Supervisor:    sup,
		Generator:     generator,
		Logger:        loggers.HTTP,
		APIToken:      cfg.APIToken,
		Version:       version,
	})

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router}
	go func() {
		log.Printf("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}

	sup.Close()
	<-pipeline.Done()

	for _, closeFn := range dbClose {
		if err := closeFn(); err != nil {
			log.Printf("error closing database: %v", err)
		}
	}
}
