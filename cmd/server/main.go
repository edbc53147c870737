package main // Entry point package

import (
	"log" // Logging library

	"github.com/joho/godotenv"    // Loads .env files in development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/tablewise/tablewise/internal/clock"
	"github.com/tablewise/tablewise/internal/config"
	"github.com/tablewise/tablewise/internal/database"
	"github.com/tablewise/tablewise/internal/handler"
	"github.com/tablewise/tablewise/internal/middleware"
	"github.com/tablewise/tablewise/internal/queue"
	"github.com/tablewise/tablewise/internal/repository"
	"github.com/tablewise/tablewise/internal/router"
	"github.com/tablewise/tablewise/internal/service"
)

func main() {
	// Load .env when present; real deployments set the environment
	// directly and the file is absent.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis backs HTTP rate limiting, quote response caching and the
	// orchestrator's result caches. nil disables all three gracefully.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; rate limiting and result caching disabled")
	}

	clk := clock.System{}

	tableRepo := repository.NewTableRepo(db)
	bookingRepo := repository.NewBookingRepo(db)
	holdRepo := repository.NewHoldRepo(db)
	assignmentRepo := repository.NewAssignmentRepo(db)
	sessionRepo := repository.NewSessionRepo(db)

	allocCfg := config.LoadAllocatorConfig()
	planner := service.NewPlanner(tableRepo, bookingRepo, holdRepo, clk, allocCfg)
	holds := service.NewHoldManager(holdRepo, rdb, clk, config.LoadHoldConfig(), allocCfg)
	committer := service.NewCommitter(assignmentRepo, bookingRepo)
	sessions := service.NewSessionService(sessionRepo, bookingRepo, planner, holds, committer, clk, config.ManualSlackBudget())
	orchestrator := service.NewOrchestrator(planner, committer, bookingRepo, rdb, clk, config.LoadOrchestratorConfig())

	e := echo.New()
	e.Use(middleware.NewRedisCache(config.LoadCacheConfig(), rdb))

	limiter := middleware.StaffRateLimit(config.LoadRateLimitConfig(), rdb)
	router.RegisterRoutes(e)
	router.RegisterAllocation(e, handler.NewAllocationHandler(sessions, holds, committer, orchestrator), cfg.JWTSecret, limiter)

	// Background consumer records allocation outcomes to logs/allocation.log.
	go func() {
		if err := queue.StartAllocationConsumer(); err != nil {
			log.Printf("allocation consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
