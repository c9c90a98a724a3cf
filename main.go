package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hyodream/api/catalog"
	"hyodream/api/clients"
	"hyodream/api/config"
	"hyodream/api/database"
	"hyodream/api/enrichment"
	"hyodream/api/handlers"
	"hyodream/api/interest"
	"hyodream/api/logging"
	"hyodream/api/middleware"
	"hyodream/api/recommend"
	"hyodream/api/store"
	"hyodream/api/supervisor"
	"hyodream/api/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	issuer, err := utils.NewJWTIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid JWT configuration")
	}

	// --- Databases ---
	dbClient, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize PostgreSQL")
	}
	defer dbClient.Close()
	if err := dbClient.EnsureSchema(ctx); err != nil {
		logging.Fatal().Err(err).Msg("failed to apply schema")
	}

	redisClient, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize Redis")
	}
	defer redisClient.Close()

	// ClickHouse is optional. Without it events are not archived and the
	// stats routes are not mounted.
	var (
		analyticsStore *store.AnalyticsStore
		archiver       interest.Archiver
	)
	if cfg.ClickHouse.Host != "" {
		chClient, err := database.NewClickHouseDB(ctx, cfg.ClickHouse)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to initialize ClickHouse")
		}
		defer chClient.Close()
		analyticsStore = store.NewAnalyticsStore(chClient)
		archiver = analyticsStore
	} else {
		logging.Warn().Msg("CLICKHOUSE_HOST not set, interest archive disabled")
	}

	// --- Stores ---
	userStore := store.NewUserStore(dbClient.DB)
	productStore := store.NewProductStore(dbClient.DB)
	enrichmentStore := store.NewEnrichmentStore(dbClient.DB)
	eventLog := store.NewEventLog(redisClient.Client, cfg.Interest.Stream, cfg.Interest.StreamMaxLen)
	scoreStore := store.NewScoreStore(redisClient.Client, cfg.Interest.ScoreTTL)

	// --- External services ---
	crawler := clients.NewCrawlerClient(cfg.Crawler.URL, cfg.Crawler.Timeout, cfg.Enrichment.MaxPages)
	sentiment := clients.NewSentimentClient(cfg.Sentiment.URL, cfg.Sentiment.Timeout)
	ranker := clients.NewRankerClient(cfg.Ranker.URL, cfg.Ranker.Timeout)

	// --- Pipelines ---
	recorder := interest.NewRecorder(eventLog)
	interestAggregator := interest.NewAggregator(eventLog, scoreStore, archiver, cfg.Interest)
	dispatcher := enrichment.NewDispatcher(cfg.Enrichment.Workers, cfg.Enrichment.QueueSize)
	orchestrator := enrichment.NewOrchestrator(enrichmentStore, crawler, sentiment, dispatcher, cfg.Enrichment)
	recommender := recommend.NewAggregator(scoreStore, productStore, userStore, ranker, cfg.Recommend)
	salesRefresher := catalog.NewSalesRefresher(productStore, catalog.DefaultRefreshInterval)

	// --- Handlers ---
	authHandlers := handlers.NewAuthHandlers(userStore, issuer)
	healthHandlers := handlers.NewHealthHandlers(userStore)
	eventHandlers := handlers.NewEventHandlers(recorder, productStore, scoreStore)
	productHandlers := handlers.NewProductHandlers(productStore, enrichmentStore, orchestrator, recommender)

	var eventLimit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	var eventLimiter *middleware.RateLimiter
	if cfg.Interest.RateLimit > 0 {
		eventLimiter = middleware.NewRateLimiter(cfg.Interest.RateLimit, cfg.Interest.RateWindow)
		eventLimit = eventLimiter.Middleware()
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.CORSMiddleware(cfg.Origin))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	{
		api.POST("/signup", authHandlers.Signup)
		api.POST("/login", authHandlers.Login)
		api.POST("/logout", authHandlers.Logout)

		// Anonymous-or-user routes: the actor is the JWT user or X-Session-Id.
		optional := api.Group("/")
		optional.Use(middleware.OptionalAuth(issuer))
		{
			optional.POST("/events/view", eventLimit, eventHandlers.RecordView)
			optional.GET("/users/me/interests", eventHandlers.MyInterests)
			optional.GET("/products", productHandlers.ListProducts)
			optional.GET("/products/recommend", productHandlers.Recommend)
			optional.GET("/products/:id", productHandlers.GetProduct)
			optional.GET("/products/:id/reviews", productHandlers.ListReviews)
			optional.GET("/products/:id/related", productHandlers.Related)
		}

		protected := api.Group("/")
		protected.Use(middleware.AuthRequired(issuer))
		{
			protected.GET("/profile", authHandlers.Me)
			protected.GET("/users/me/health", healthHandlers.GetProfile)
			protected.PUT("/users/me/health", healthHandlers.PutProfile)

			if analyticsStore != nil {
				analyticsHandlers := handlers.NewAnalyticsHandlers(analyticsStore)
				stats := protected.Group("/stats")
				{
					stats.GET("/event-counts", analyticsHandlers.GetEventCountsOverTime)
					stats.GET("/unique-actors", analyticsHandlers.GetUniqueActorsOverTime)
					stats.GET("/top-categories", analyticsHandlers.GetTopCategories)
				}
			}
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	root := supervisor.New("hyodream-api", shutdownTimeout)
	root.Add(supervisor.NewHTTPService(srv, shutdownTimeout))
	root.Add(interestAggregator)
	root.Add(dispatcher)
	root.Add(salesRefresher)
	if eventLimiter != nil {
		root.Add(eventLimiter)
	}

	logging.Info().Str("port", cfg.Port).Msg("API server starting")
	if err := root.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor stopped")
	}
	logging.Info().Msg("server exiting")
}
