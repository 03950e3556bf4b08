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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"newsradar/internal/analysis"
	"newsradar/internal/cache"
	"newsradar/internal/calendar"
	"newsradar/internal/config"
	cronrunner "newsradar/internal/cron"
	"newsradar/internal/db"
	"newsradar/internal/handler"
	"newsradar/internal/llm"
	"newsradar/internal/logger"
	"newsradar/internal/market"
	"newsradar/internal/models"
	"newsradar/internal/notify"
	"newsradar/internal/report"
	"newsradar/internal/repository"
	gormrepository "newsradar/internal/repository/gorm"
	"newsradar/internal/service"
	"newsradar/internal/vector"
)

func main() {
	cfgPath := os.Getenv("NR_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("NR_ENV_ONLY"); envOnlyRaw != "" {
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ensureModels(ctx, store, cfg); err != nil {
		logger.Warn("model bootstrap failed", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	predictionCache := cache.NewPredictionCache(redisClient, 24*time.Hour, logger)

	vectorStore, err := vector.NewMilvusStore(ctx, cfg.Milvus.Addr, cfg.Milvus.Collection, cfg.Embedding.Dimensions, logger)
	if err != nil {
		logger.Fatal("milvus connect failed", zap.Error(err))
	}
	defer vectorStore.Close()
	if err := vectorStore.EnsureCollection(ctx); err != nil {
		logger.Fatal("milvus collection init failed", zap.Error(err))
	}

	// Primary provider has native JSON mode; the router path does not and
	// its completions are parsed leniently.
	primaryLLM := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey,
		llm.WithEmbeddingModel(cfg.Embedding.Model, cfg.Embedding.Dimensions),
		llm.WithHTTPTimeout(cfg.LLM.Timeout),
	)
	routerLLM := llm.NewClient(cfg.LLM.RouterURL, cfg.LLM.RouterKey,
		llm.WithoutNativeJSONMode(),
		llm.WithHTTPTimeout(cfg.LLM.Timeout),
	)
	chatFor := func(provider string) (llm.ChatClient, bool) {
		if strings.EqualFold(provider, "openrouter") {
			return routerLLM, true
		}
		return primaryLLM, false
	}

	broker := market.NewRESTBroker(cfg.Market.BaseURL, cfg.Market.APIKey, logger)

	dispatcher, err := analysis.NewDispatcher(ctx, store, logger, func(m models.Model) *analysis.Predictor {
		chat, lenient := chatFor(m.Provider)
		return &analysis.Predictor{
			Chat:         chat,
			Cache:        predictionCache,
			Logger:       logger,
			Model:        m,
			Temperature:  cfg.LLM.Temperature,
			MaxTokens:    cfg.LLM.MaxTokens,
			LenientParse: lenient,
		}
	})
	if err != nil {
		logger.Fatal("dispatcher init failed", zap.Error(err))
	}

	generatorA, generatorB, abEnabled := buildGenerators(ctx, store, broker, logger, cfg, chatFor)
	if generatorA == nil {
		logger.Fatal("no usable model for report generation")
	}

	analysisSvc := &service.AnalysisService{
		Repo:           store,
		Broker:         broker,
		Logger:         logger,
		GeneratorA:     generatorA,
		GeneratorB:     generatorB,
		ABEnabled:      abEnabled,
		MaxPredictions: cfg.Report.MaxPredictions,
	}
	evaluationSvc := &service.EvaluationService{Repo: store, Logger: logger}
	aggregationSvc := &service.AggregationService{Repo: store, Logger: logger}
	retriever := &analysis.Retriever{
		Embedder: primaryLLM,
		Store:    vectorStore,
		Repo:     store,
		Logger:   logger,
	}
	notifier := &notify.WebhookNotifier{URL: cfg.Notify.WebhookURL, Token: cfg.Notify.Token}
	notifySvc := &service.NotifyService{
		Repo:           store,
		Embedder:       primaryLLM,
		Store:          vectorStore,
		Retriever:      retriever,
		Dispatcher:     dispatcher,
		Broker:         broker,
		Notifier:       notifier,
		Logger:         logger,
		Lookback:       cfg.AutoNotify.Lookback,
		DedupHigh:      cfg.AutoNotify.DedupHigh,
		DedupLow:       cfg.AutoNotify.DedupMedium,
		DedupWindow:    cfg.AutoNotify.DedupWindow,
		RetrieveK:      cfg.AutoNotify.SearchTopK,
		RetrieveThresh: cfg.AutoNotify.SearchThreshold,
	}
	backfiller := &vector.Backfiller{
		Repo:      store,
		Embedder:  primaryLLM,
		Store:     vectorStore,
		Logger:    logger,
		BatchSize: 200,
		Pause:     cfg.Embedding.BatchSleep,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm, Redis: redisClient}
	healthHandler.Register(engine)
	stockHandler := &handler.StockHandler{Repo: store, Analysis: analysisSvc}
	stockHandler.Register(engine)
	newsHandler := &handler.NewsHandler{Repo: store, Dispatcher: dispatcher}
	newsHandler.Register(engine)
	predictionHandler := &handler.PredictionHandler{Repo: store}
	predictionHandler.Register(engine)
	evaluationHandler := &handler.EvaluationHandler{Repo: store, Evaluation: evaluationSvc}
	evaluationHandler.Register(engine)
	performanceHandler := &handler.PerformanceHandler{Repo: store, Aggregation: aggregationSvc}
	performanceHandler.Register(engine)
	cacheHandler := &handler.CacheHandler{Cache: predictionCache}
	cacheHandler.Register(engine)

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		if cfg.AutoNotify.Enabled {
			_, err := cronRunner.Add(cfg.Cron.AutoNotify, func(ctx context.Context) {
				stats, err := notifySvc.Run(ctx)
				if err != nil {
					logger.Warn("auto-notify run failed", zap.Error(err))
					return
				}
				if stats.Scanned > 0 {
					logger.Info("auto-notify run done",
						zap.Int("scanned", stats.Scanned),
						zap.Int("notified", stats.Notified),
						zap.Int("skipped_dup", stats.SkippedDup),
						zap.Int("failed", stats.Failed),
					)
				}
			})
			if err != nil {
				logger.Warn("cron register auto-notify failed", zap.Error(err))
			}
		}

		// Evaluate reports whose 5-business-day observation window has closed.
		_, err = cronRunner.Add(cfg.Cron.Evaluation, func(ctx context.Context) {
			target := calendar.AddBusinessDays(time.Now(), -cfg.Evaluation.HorizonDays)
			count, err := evaluationSvc.EvaluateDate(ctx, target)
			if err != nil {
				logger.Warn("cron evaluation failed", zap.Error(err))
				return
			}
			logger.Info("cron evaluation done",
				zap.String("date", target.Format("2006-01-02")),
				zap.Int("evaluated", count),
			)
		})
		if err != nil {
			logger.Warn("cron register evaluation failed", zap.Error(err))
		}

		_, err = cronRunner.Add(cfg.Cron.Aggregation, func(ctx context.Context) {
			target := calendar.AddBusinessDays(time.Now(), -cfg.Evaluation.HorizonDays)
			count, err := aggregationSvc.AggregateDate(ctx, target)
			if err != nil {
				logger.Warn("cron aggregation failed", zap.Error(err))
				return
			}
			logger.Info("cron aggregation done",
				zap.String("date", target.Format("2006-01-02")),
				zap.Int("models", count),
			)
		})
		if err != nil {
			logger.Warn("cron register aggregation failed", zap.Error(err))
		}

		_, err = cronRunner.Add(cfg.Cron.Embedding, func(ctx context.Context) {
			indexed, err := backfiller.Run(ctx)
			if err != nil {
				logger.Warn("embedding backfill failed", zap.Error(err))
				return
			}
			if indexed > 0 {
				logger.Info("embedding backfill done", zap.Int("indexed", indexed))
			}
		})
		if err != nil {
			logger.Warn("cron register embedding backfill failed", zap.Error(err))
		}

		cronRunner.Start()
		defer cronRunner.Stop()
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// ensureModels seeds the model table on first boot so the dispatcher has
// at least one active model to fan out to.
func ensureModels(ctx context.Context, repo repository.Repository, cfg config.Config) error {
	active, err := repo.ListActiveModels(ctx)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return nil
	}
	primary := &models.Model{
		Name:            "primary",
		Provider:        cfg.LLM.Provider,
		ModelIdentifier: cfg.LLM.Model,
		Description:     "default prediction model",
		IsActive:        true,
	}
	if err := repo.UpsertModel(ctx, primary); err != nil {
		return err
	}
	if !cfg.Report.ABTestEnabled || cfg.LLM.RouterKey == "" {
		return nil
	}
	challenger := &models.Model{
		Name:            "challenger",
		Provider:        "openrouter",
		ModelIdentifier: cfg.LLM.Model,
		Description:     "A/B challenger via router",
		IsActive:        true,
	}
	if err := repo.UpsertModel(ctx, challenger); err != nil {
		return err
	}
	return repo.UpsertABConfig(ctx, &models.ABTestConfig{
		ModelAID: primary.ID,
		ModelBID: challenger.ID,
		IsActive: true,
	})
}

// buildGenerators resolves the report generators from the active A/B
// config, falling back to single-model mode when no config is active.
func buildGenerators(ctx context.Context, repo repository.Repository, broker market.Broker, logger *zap.Logger, cfg config.Config, chatFor func(string) (llm.ChatClient, bool)) (*report.Generator, *report.Generator, bool) {
	newGenerator := func(m *models.Model) *report.Generator {
		chat, lenient := chatFor(m.Provider)
		return &report.Generator{
			Chat:           chat,
			Broker:         broker,
			Repo:           repo,
			Logger:         logger,
			Model:          *m,
			MaxPredictions: cfg.Report.MaxPredictions,
			LenientParse:   lenient,
		}
	}

	if cfg.Report.ABTestEnabled {
		if abCfg, err := repo.GetActiveABConfig(ctx); err == nil && abCfg != nil {
			modelA, errA := repo.GetModelByID(ctx, abCfg.ModelAID)
			modelB, errB := repo.GetModelByID(ctx, abCfg.ModelBID)
			if errA == nil && errB == nil && modelA != nil && modelB != nil {
				return newGenerator(modelA), newGenerator(modelB), true
			}
			logger.Warn("ab config references missing models, falling back to single-model reports")
		}
	}

	active, err := repo.ListActiveModels(ctx)
	if err != nil || len(active) == 0 {
		return nil, nil, false
	}
	return newGenerator(&active[0]), nil, false
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
