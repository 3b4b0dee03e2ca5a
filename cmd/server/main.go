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
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"optiondesk/internal/alert"
	"optiondesk/internal/clock"
	"optiondesk/internal/config"
	cronrunner "optiondesk/internal/cron"
	"optiondesk/internal/db"
	"optiondesk/internal/enrich"
	"optiondesk/internal/exiteval"
	"optiondesk/internal/handler"
	"optiondesk/internal/logger"
	"optiondesk/internal/market"
	"optiondesk/internal/models"
	gormrepository "optiondesk/internal/repository/gorm"
	"optiondesk/internal/service"
	"optiondesk/internal/trend"
)

func main() {
	cfgPath := os.Getenv("OD_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("OD_ENV_ONLY"); envOnlyRaw != "" {
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

	exchangeClock, err := clock.New(cfg.Trading.Timezone)
	if err != nil {
		logger.Fatal("bad trading timezone", zap.Error(err))
	}

	marketHTTP := &http.Client{Timeout: cfg.Market.Timeout}
	gateway := market.NewClient(marketHTTP, cfg.Market.BaseURL)
	store := gormrepository.New(dbConn.Gorm)

	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	slots, err := alert.NewSlots(cfg.Trading.Slots)
	if err != nil {
		logger.Fatal("bad slot table", zap.Error(err))
	}
	normalizer := &alert.Normalizer{Slots: slots}

	gate := &trend.Gate{
		Gateway: gateway,
		Repo:    store,
		Clock:   exchangeClock,
		Logger:  logger,
		Indices: cfg.Trading.Indices,
		Policy:  trend.ParsePolicy(cfg.Trading.IndexPolicy),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline := enrich.NewPipeline(store, gateway,
		&switchedGate{gate: gate, flags: settingsSvc}, settingsSvc, logger,
		enrich.Options{
			Workers:          cfg.Enrich.Workers,
			QueueSize:        cfg.Enrich.QueueSize,
			JobTimeout:       cfg.Enrich.JobTimeout,
			StopLossFraction: decimal.NewFromFloat(cfg.Trading.StopLossFraction),
			OTMSteps:         cfg.Trading.OTMSteps,
		})
	pipeline.Start(ctx)
	defer pipeline.Stop()

	evaluator := &exiteval.Evaluator{
		Repo:     store,
		Gateway:  gateway,
		Clock:    exchangeClock,
		Logger:   logger,
		Switches: settingsSvc,
		Opts: exiteval.Options{
			EODExitTime:          cfg.Trading.EODExitTime,
			VWAPCrossGraceTime:   cfg.Trading.VWAPCrossGraceTime,
			ProfitTargetMultiple: decimal.NewFromFloat(cfg.Trading.ProfitTargetMultiple),
		},
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn}
	healthHandler.Register(engine)
	handler.RegisterDocs(engine)
	webhookHandler := &handler.WebhookHandler{
		Normalizer: normalizer,
		Pipeline:   pipeline,
		Clock:      exchangeClock,
		Logger:     logger,
	}
	webhookHandler.Register(engine)
	tradesHandler := &handler.TradesHandler{Repo: store, Evaluator: evaluator, Clock: exchangeClock}
	tradesHandler.Register(engine)
	refreshHandler := &handler.RefreshHandler{Evaluator: evaluator}
	refreshHandler.Register(engine)
	trendHandler := &handler.TrendHandler{Repo: store, Clock: exchangeClock}
	trendHandler.Register(engine)
	settingsHandler := &handler.SettingsHandler{Settings: settingsSvc}
	settingsHandler.Register(engine)

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx, exchangeClock.Location())
		if _, err := cronRunner.AddExclusive("exit_eval", cfg.Cron.ExitEval, evaluator.RunOnce); err != nil {
			logger.Warn("cron register exit eval failed", zap.Error(err))
		}
		if _, err := cronRunner.AddExclusive("eod_exit", cfg.Cron.EODExit, evaluator.RunOnce); err != nil {
			logger.Warn("cron register eod exit failed", zap.Error(err))
		}
		if _, err := cronRunner.AddExclusive("quote_refresh", cfg.Cron.QuoteRefresh, func(ctx context.Context) {
			if _, err := evaluator.RefreshQuotes(ctx); err != nil {
				logger.Warn("quote refresh failed", zap.Error(err))
			}
		}); err != nil {
			logger.Warn("cron register quote refresh failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	if cfg.Stream.Enabled && settingsSvc.TickStream(ctx) {
		tickSvc := &service.TickStreamService{Repo: store, Clock: exchangeClock, Logger: logger}
		go func() {
			err := tickSvc.Run(ctx, service.TickStreamOptions{
				URL:             cfg.Market.WSURL,
				RefreshInterval: cfg.Stream.RefreshInterval,
				MaxSymbols:      cfg.Stream.MaxSymbols,
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("tick stream stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// switchedGate bypasses the index trend gate when its feature switch is off.
type switchedGate struct {
	gate  *trend.Gate
	flags *service.SystemSettingsService
}

func (g *switchedGate) Allow(ctx context.Context, direction models.Direction) (bool, error) {
	if g.flags != nil && !g.flags.IndexGate(ctx) {
		return true, nil
	}
	return g.gate.Allow(ctx, direction)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
