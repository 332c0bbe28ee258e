package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"smarthub/internal/cache"
	"smarthub/internal/config"
	"smarthub/internal/gateway/mpesa"
	"smarthub/internal/handler"
	"smarthub/internal/infra/db"
	infraRepo "smarthub/internal/infra/repository"
	"smarthub/internal/logger"
	"smarthub/internal/messaging"
	"smarthub/internal/realtime"
	"smarthub/internal/server"
	"smarthub/internal/usecase"
	"smarthub/internal/validator"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	//.envはローカル開発用（無くてもよい）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.GoEnv)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := db.Migrate(gormDB, log); err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	//ロール/token_versionのキャッシュ（REDIS_URLが無ければプロセス内）
	var userCache cache.UserCache
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		userCache = cache.NewRedisCache(rdb, cfg.RoleCacheTTL, log)
		log.Info("user cache: redis")
	} else {
		userCache = cache.NewMemoryCache(cfg.RoleCacheTTL, nil)
		log.Info("user cache: memory")
	}

	//決済イベント（KAFKA_BROKERSが無ければ送らない）
	var events messaging.PaymentEventPublisher = messaging.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		events = messaging.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaPaymentTopic)
		log.Info("payment events: kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaPaymentTopic))
	}
	defer func() {
		if err := events.Close(); err != nil {
			log.Warn("failed to close event publisher", zap.Error(err))
		}
	}()

	gateway := mpesa.NewClient(mpesa.Config{
		BaseURL:        cfg.Mpesa.BaseURL,
		ConsumerKey:    cfg.Mpesa.ConsumerKey,
		ConsumerSecret: cfg.Mpesa.ConsumerSecret,
		ShortCode:      cfg.Mpesa.ShortCode,
		Passkey:        cfg.Mpesa.Passkey,
		CallbackURL:    cfg.Mpesa.CallbackURL,
		Timeout:        cfg.Mpesa.Timeout,
	})
	if !cfg.Mpesa.Configured() {
		log.Warn("mpesa credentials not configured; stk push requests will be rejected")
	}

	//realtime: pg_notify -> Hub -> SSE
	hub := realtime.NewHub()
	go func() {
		if err := realtime.NewListener(cfg.DatabaseURL, hub, log).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("payment listener stopped", zap.Error(err))
		}
	}()

	//Repository（GORM実装）生成
	txm := infraRepo.NewTxManagerGorm(gormDB)
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	stkRepo := infraRepo.NewStkPaymentGormRepository(gormDB)
	manualRepo := infraRepo.NewManualPaymentGormRepository(gormDB)

	//Usecase生成
	authUC := usecase.NewAuthUsecase(cfg.JWTSecret, cfg.AccessTokenTTL, userRepo, txm, userCache, validator.NewAuthValidator(userRepo), log)
	orderUC := usecase.NewOrderUsecase(txm, orderRepo)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, orderRepo)
	paymentUC := usecase.NewPaymentUsecase(txm, stkRepo, orderRepo, gateway, events, log)
	manualUC := usecase.NewManualPaymentUsecase(txm, manualRepo, events, log)
	auditUC := usecase.NewAuditLogUsecase(infraRepo.NewAuditLogGormRepository(gormDB))

	//Handler生成
	e := server.New(log)
	server.RegisterRoutes(e, server.Handlers{
		Health:        handler.NewHealthHandler(sqlDB),
		Auth:          handler.NewAuthHandler(authUC),
		Orders:        handler.NewOrderHandler(orderUC),
		AdminOrders:   handler.NewAdminOrderHandler(adminOrderUC),
		AdminUsers:    handler.NewAdminUserHandler(authUC),
		AdminAudit:    handler.NewAdminAuditHandler(auditUC),
		Payments:      handler.NewPaymentHandler(paymentUC, hub, log),
		ManualPayment: handler.NewManualPaymentHandler(manualUC),
	}, server.RouteDeps{
		JWTSecret:          cfg.JWTSecret,
		Users:              userRepo,
		UserCache:          userCache,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		Log:                log,
	})

	return server.Start(ctx, e, cfg.Addr(), log)
}
