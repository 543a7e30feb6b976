package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"thirteen-shop/config"
	"thirteen-shop/internal/api"
	"thirteen-shop/internal/broker"
	"thirteen-shop/internal/catalog"
	"thirteen-shop/internal/modal"
	"thirteen-shop/internal/redisclient"
	"thirteen-shop/internal/refdata"
	"thirteen-shop/internal/service"
	"thirteen-shop/internal/session"
	"thirteen-shop/internal/store"
	"thirteen-shop/internal/usage"
	"thirteen-shop/internal/util"
	"thirteen-shop/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting shop service", zap.String("env", cfg.Server.Env), zap.String("port", cfg.Server.Port))

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	sess, err := session.Parse(cfg.Session.AccessToken, cfg.Session.JWTSecret)
	if err != nil {
		logger.Fatal("Invalid session", zap.Error(err))
	}
	if sess.Expired(time.Now()) {
		logger.Fatal("Session expired", zap.Time("expires_at", sess.ExpiresAt))
	}
	logger.Info("Session loaded", zap.String("profile_id", sess.ProfileID), zap.Bool("guest", sess.IsGuest))

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	db.SetSessionClaims(sess.Claims)
	logger.Info("Database connected")

	ready := map[string]api.Pinger{"database": db}

	var (
		lock  service.PurchaseLock
		guard service.ClaimGuard
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		lock, guard = redisClient, redisClient
		ready["redis"] = redisClient
		logger.Info("Redis connected")
	}

	var publisher service.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicShop)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	cat, err := catalog.Load()
	if err != nil {
		logger.Fatal("Failed to load catalog", zap.Error(err))
	}

	shell := modal.NewShell()
	defer shell.Close()

	refs := refdata.NewCache(db)
	profiles := service.NewProfileCache(db, sess.ProfileID)

	bridge := api.NewAdBridge()
	ads := service.NewAdRewards(bridge, db, profiles, shell, publisher, service.AdConfig{
		Cooldown:     cfg.Shop.AdCooldown,
		ResetDelay:   cfg.Shop.AdResetDelay,
		ClaimTimeout: cfg.Shop.ClaimTimeout,
		ShowTimeout:  cfg.Shop.AdShowTimeout,
		WeeklyCap:    cfg.Shop.WeeklyGemCap,
	})
	defer ads.Close()
	if guard != nil {
		ads.SetClaimGuard(guard)
	}

	controller := service.NewPurchaseController(cat, refs, profiles, db, shell, publisher)
	controller.SetAdAvailability(ads)
	controller.SetModalAutoClose(cfg.Shop.ModalAutoClose)
	if lock != nil {
		controller.SetLock(lock)
	}

	boosters := service.NewBoosterService(cat, profiles, db, service.NewLogSounds(), publisher)

	if err := os.MkdirAll(filepath.Dir(cfg.Shop.UsageDBPath), 0o755); err != nil {
		logger.Fatal("Failed to create usage directory", zap.Error(err))
	}
	usageStore, err := usage.Open(cfg.Shop.UsageDBPath)
	if err != nil {
		logger.Fatal("Failed to open usage database", zap.Error(err))
	}
	defer usageStore.Close()

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if _, err := profiles.Refresh(startCtx, "initial"); err != nil {
		logger.Warn("Initial profile fetch failed", zap.Error(err))
	}
	if err := refs.Warm(startCtx); err != nil {
		logger.Warn("Reference data warm-up incomplete", zap.Error(err))
	}
	if _, err := ads.RefreshWeekly(startCtx); err != nil {
		logger.Warn("Weekly reward status unavailable", zap.Error(err))
	}
	startCancel()

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var profileWorker *worker.ProfileWorker
	if len(cfg.Kafka.Brokers) > 0 {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicProfile, cfg.Kafka.ConsumerGroup)
		profileWorker = worker.NewProfileWorker(consumer, profiles)
		go func() {
			if err := profileWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Profile worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Catalog:    cat,
		RefData:    refs,
		Profiles:   profiles,
		Controller: controller,
		Ads:        ads,
		AdBridge:   bridge,
		Boosters:   boosters,
		Shell:      shell,
		Usage:      usageStore,
		Ready:      ready,
		TickEvery:  cfg.Shop.BoosterTickEvery,
	})
	handler.SetupRoutes(router)

	// The UI shell loads from its own origin
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: corsHandler.Handler(router),
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if profileWorker != nil {
		if err := profileWorker.Stop(); err != nil {
			logger.Warn("Error stopping profile worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
