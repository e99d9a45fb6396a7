package main

import (
	"context"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron"

	"cat-engine/internal/ability"
	"cat-engine/internal/calibration"
	"cat-engine/internal/config"
	"cat-engine/internal/db"
	"cat-engine/internal/event"
	"cat-engine/internal/exposure"
	"cat-engine/internal/handlers"
	"cat-engine/internal/models"
	"cat-engine/internal/pkg/logger"
	"cat-engine/internal/repository"
	"cat-engine/internal/selection"
	"cat-engine/internal/service"
	"cat-engine/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system env")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	if err := db.InitMongo(cfg.MongoURI, cfg.MongoDB); err != nil {
		zlog.Fatal("mongo init failed", "error", err)
	}
	defer db.CloseMongo()
	if err := repository.EnsureIndexes(context.Background(), db.Database); err != nil {
		zlog.Fatal("index creation failed", "error", err)
	}

	var publisher *event.Publisher
	if cfg.RabbitURL != "" && cfg.RabbitExchange != "" {
		publisher, err = event.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange, zlog)
		if err != nil {
			zlog.Fatal("rabbitmq connect failed", "error", err)
		}
		defer publisher.Close()
	} else {
		zlog.Warn("rabbitmq not configured, events will not be published")
	}

	// Repositories
	itemRepo := repository.NewItemRepository(db.Database)
	sessionRepo := repository.NewSessionRepository(db.Database)
	administeredRepo := repository.NewAdministeredRepository(db.Database)
	responseRepo := repository.NewResponseRepository(db.Database)
	abilityRepo := repository.NewAbilityRepository(db.Database)
	exposureRepo := repository.NewExposureRepository(db.Database)
	calibrationRepo := repository.NewCalibrationRepository(db.Database)
	runRepo := repository.NewRunRepository(db.Database)

	// Algorithmic core
	ledger := exposure.NewLedger(exposureRepo, sessionRepo, exposure.Config{
		MaxRate:        cfg.MaxExposureRate,
		MinProbability: 0.05,
		RelaxFactor:    1.05,
		MinSessions:    50,
	}, rand.New(rand.NewSource(time.Now().UnixNano())))
	selector := selection.NewSelector(itemRepo, calibrationRepo, ledger,
		selection.Config{TopK: cfg.SelectionTopK}, nil)
	poolManager := selection.NewPoolManager(itemRepo, calibrationRepo, exposureRepo)
	estimator, err := ability.New(cfg.EstimatorStrategy,
		ability.Bounds{Min: cfg.ThetaMin, Max: cfg.ThetaMax}, cfg.GridPoints)
	if err != nil {
		zlog.Fatal("estimator init failed", "error", err)
	}
	machine := session.NewMachine(session.Config{
		DefaultTargetCount: cfg.DefaultTargetCount,
		MaxTargetCount:     cfg.MaxTargetCount,
		DefaultTimeLimit:   cfg.SessionTimeLimit,
	})
	engine := calibration.NewEngine(responseRepo, runRepo, calibrationRepo, zlog)

	// Services and handlers. A nil publisher disables event emission.
	var pub service.Publisher
	if publisher != nil {
		pub = publisher
	}
	var tx service.Transactor
	if cfg.MongoTransactions {
		tx = repository.NewTransactor(db.Client)
	} else {
		zlog.Warn("mongo transactions disabled, paired writes are not atomic")
	}
	sessionService := service.NewSessionService(
		sessionRepo, itemRepo, administeredRepo, responseRepo, abilityRepo,
		selector, calibrationRepo, estimator, machine, pub, tx, zlog,
	)
	calibrationService := service.NewCalibrationService(engine, runRepo, calibrationRepo, pub, zlog)
	itemService := service.NewItemService(itemRepo, poolManager, zlog)

	sessionHandler := handlers.NewSessionHandler(sessionService)
	calibrationHandler := handlers.NewCalibrationHandler(calibrationService)
	itemHandler := handlers.NewItemHandler(itemService)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "accept", "origin", "Cache-Control", "X-Requested-With", "X-User-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	requireUser := func(c *gin.Context) {
		if c.GetHeader("X-User-ID") == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
				"code":  "MISSING_USER_ID",
			})
			c.Abort()
			return
		}
		c.Next()
	}

	sessions := r.Group("/cat/sessions")
	sessions.Use(requireUser)
	{
		sessions.POST("", sessionHandler.CreateSession)
		sessions.GET("/:id", sessionHandler.GetSession)
		sessions.GET("/:id/next-item", sessionHandler.NextItem)
		sessions.POST("/:id/responses", sessionHandler.SubmitResponse)
		sessions.POST("/:id/cancel", sessionHandler.CancelSession)
		sessions.GET("/:id/results", sessionHandler.GetResults)
		sessions.GET("/:id/progress", sessionHandler.GetProgress)
	}

	items := r.Group("/cat/items")
	{
		items.POST("", itemHandler.CreateItem)
		items.GET("", itemHandler.ListItems)
		items.GET("/:id", itemHandler.GetItem)
		items.GET("/:id/calibrations", calibrationHandler.GetItemHistory)
	}
	r.GET("/cat/pool/info", itemHandler.GetPoolInfo)

	runs := r.Group("/cat/calibration-runs")
	{
		runs.POST("", calibrationHandler.CreateRun)
		runs.GET("", calibrationHandler.ListRuns)
		runs.GET("/:id", calibrationHandler.GetRun)
	}
	r.POST("/cat/calibrations/:id/promote", calibrationHandler.PromoteCalibration)

	// Background jobs: exposure recompute, abandoned-session sweep and the
	// optional periodic calibration over the full pool.
	scheduler := cron.New()
	mustSchedule(zlog, scheduler, cfg.ExposureRecomputeSpec, func() {
		if err := ledger.Recompute(context.Background()); err != nil {
			zlog.Error("exposure recompute failed", "error", err)
		}
	})
	mustSchedule(zlog, scheduler, cfg.SessionSweepSpec, func() {
		if _, err := sessionService.SweepExpired(context.Background()); err != nil {
			zlog.Error("session sweep failed", "error", err)
		}
	})
	if cfg.CalibrationCronSpec != "" {
		mustSchedule(zlog, scheduler, cfg.CalibrationCronSpec, func() {
			_, err := calibrationService.CreateRun(context.Background(),
				models.RunScope{}, calibration.Method3PLGrid, cfg.CalibrationMinResponses)
			if err != nil && err != models.ErrCalibrationDataInsufficient {
				zlog.Error("scheduled calibration failed", "error", err)
			}
		})
	}
	scheduler.Start()
	defer scheduler.Stop()

	zlog.Info("cat engine listening", "port", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		zlog.Fatal("server exited", "error", err)
	}
}

func mustSchedule(zlog *logger.Logger, scheduler *cron.Cron, spec string, job func()) {
	if err := scheduler.AddFunc(spec, job); err != nil {
		zlog.Fatal("invalid cron spec", "spec", spec, "error", err)
	}
}
