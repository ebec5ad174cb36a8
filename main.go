package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"legaladvisor/internal/analysis"
	"legaladvisor/internal/api"
	"legaladvisor/internal/auth"
	"legaladvisor/internal/config"
	"legaladvisor/internal/consultation"
	"legaladvisor/internal/events"
	"legaladvisor/internal/logger"
	"legaladvisor/internal/models"
	"legaladvisor/internal/redis"
	"legaladvisor/internal/service/account"
	"legaladvisor/internal/service/ai"
	"legaladvisor/internal/storage"
	"legaladvisor/internal/upload"
	"legaladvisor/internal/worker"
)

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	cfgPath := os.Getenv("LEGALADVISOR_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLog, err := logger.New(cfg.BasicConfig.LogLevel, cfg.BasicConfig.Environment)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer appLog.Sync()
	logger.SetGlobal(appLog)
	if cfg.BasicConfig.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	dbType := os.Getenv("LEGALADVISOR_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	appLog.Info("opening database", zap.String("driver", dbType))
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		appLog.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	// Create necessary tables: users, user_tokens, consultations
	if err := storage.Migrate(db, dbType); err != nil {
		appLog.Fatal("migrate database", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			appLog.Fatal("create redis client", zap.Error(err))
		}
		defer rdb.Close()
	}

	publisher, err := events.Connect(events.Config{
		URL:           cfg.Events.NatsURL,
		Token:         cfg.Events.Token,
		SubjectPrefix: cfg.Events.SubjectPrefix,
	}, appLog)
	if err != nil {
		appLog.Fatal("connect events", zap.Error(err))
	}
	defer publisher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var responder consultation.Responder = consultation.TemplateResponder{}
	if cfg.Responder.Kind == "llm" {
		responder, err = ai.NewResponder(ctx, cfg.Responder, cfg.Providers, appLog)
		if err != nil {
			appLog.Fatal("init responder", zap.Error(err))
		}
	}

	previews, closePreviews, err := openPreviewStore(ctx, cfg.Preview)
	if err != nil {
		appLog.Fatal("open preview store", zap.Error(err))
	}
	defer closePreviews()
	signer := upload.NewURLSigner(cfg.Preview.Secret, time.Duration(cfg.Preview.TTL)*time.Minute, cfg.Preview.PublicBaseURL)

	authService := auth.NewService(db, rdb, time.Duration(cfg.BasicConfig.TokenTTL)*time.Hour)
	accounts := account.NewService(db, models.Settings{
		Locale: models.Locale(cfg.Settings.Locale),
		Theme:  models.Theme(cfg.Settings.Theme),
	})
	store := storage.NewConsultationStore(db, rdb, appLog)
	feedback := consultation.NewFeedbackRecorder(store, publisher, appLog)

	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		MinWorkers:  cfg.BasicConfig.MinWorkers,
		MaxWorkers:  cfg.BasicConfig.MaxWorkers,
		QueueSize:   cfg.BasicConfig.QueueSize,
		IdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
		Logger:      appLog,
	})

	manager := consultation.NewManager(consultation.Deps{
		Backend:  consultation.NewBackend(responder, store, publisher, appLog),
		Runner:   dispatcher,
		Feedback: feedback,
		Analyzer: analysis.NewSimulator(analysis.WithFallbackLocale(models.Locale(cfg.Settings.Locale))),
		Previews: previews,
		Signer:   signer,
		Logger:   appLog,
	}, consultation.ManagerConfig{
		MaxFilesChat:     cfg.Upload.MaxFilesChat,
		MaxFilesDocument: cfg.Upload.MaxFilesDocument,
		Accept:           cfg.Upload.Accept,
		IdleTTL:          time.Duration(cfg.BasicConfig.WorkspaceIdleTTL) * time.Minute,
	})
	manager.StartJanitor(ctx, time.Duration(cfg.BasicConfig.WorkspaceSweep)*time.Minute)

	handlers := api.NewHandler(api.Deps{
		Accounts:      accounts,
		Auth:          authService,
		Workspaces:    manager,
		Consultations: store,
		Feedback:      feedback,
		Previews:      previews,
		Signer:        signer,
		Limiter:       redis.NewRateLimiter(rdb, cfg.BasicConfig.RateLimitQPS),
		Logger:        appLog,
		MaxFileBytes:  cfg.Upload.MaxFileBytes,
	})
	router := api.NewRouter(handlers, cfg.BasicConfig.AllowedOrigins, appLog)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	go func() {
		appLog.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	// closing workspaces first ends open event streams
	manager.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("http shutdown", zap.Error(err))
	}
	dispatcher.Stop()
}

func openPreviewStore(ctx context.Context, cfg config.PreviewConfig) (upload.PreviewStore, func(), error) {
	switch cfg.Backend {
	case "gcs":
		store, err := upload.NewGCSStore(ctx, cfg.Bucket, cfg.Prefix, cfg.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store, err := upload.NewDiskStore(cfg.BaseDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}
