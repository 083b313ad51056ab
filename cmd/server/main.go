package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"parlay/internal/client/exchange"
	"parlay/internal/client/oracle"
	"parlay/internal/config"
	cronrunner "parlay/internal/cron"
	"parlay/internal/db"
	"parlay/internal/handler"
	"parlay/internal/hedging"
	"parlay/internal/logger"
	"parlay/internal/pricing"
	gormrepository "parlay/internal/repository/gorm"
	"parlay/internal/settlement"
)

func main() {
	cfgPath := os.Getenv("PL_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("PL_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	oracleHTTP := &http.Client{Timeout: cfg.Oracle.Timeout}
	oracleClient := oracle.New(oracleHTTP, cfg.Oracle)
	exchangeHTTP := &http.Client{Timeout: cfg.Exchange.Timeout}
	exchangeClient := exchange.New(exchangeHTTP, cfg.Exchange)

	pricingEngine := &pricing.Engine{
		Oracle: oracleClient,
		Config: cfg.Pricing,
		Logger: logger,
	}
	hedgingEngine := &hedging.Engine{
		Config: cfg.Hedging,
		Logger: logger,
	}
	hedgeExecutor := &hedging.Executor{
		Repo:   store,
		Client: exchangeClient,
		Logger: logger,
	}
	settlementEngine := &settlement.Engine{
		Repo:   store,
		Market: exchangeClient,
		Logger: logger,
		Config: cfg.Settlement,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)

	quoteCache := handler.NewQuoteCache()
	quoteHandler := &handler.QuoteHandler{
		Pricing: pricingEngine,
		Hedging: hedgingEngine,
		Quotes:  quoteCache,
		Logger:  logger,
	}
	quoteHandler.Register(engine)
	purchaseHandler := &handler.PurchaseHandler{
		Repo:       store,
		Quotes:     quoteCache,
		Executor:   hedgeExecutor,
		Settlement: settlementEngine,
		Logger:     logger,
	}
	purchaseHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)
		_, err = cronRunner.Add(cfg.Cron.SettlementSweep, func(ctx context.Context) {
			if _, err := settlementEngine.CheckAllActive(ctx); err != nil {
				logger.Warn("settlement sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register settlement sweep failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
