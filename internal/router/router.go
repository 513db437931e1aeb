package router

import (
	"time"

	"stockledger/internal/config"
	"stockledger/internal/handler"
	"stockledger/internal/middleware"
	"stockledger/internal/repository"
	"stockledger/internal/service"
	"stockledger/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps carries the wired application pieces shared between the HTTP surface
// and the background workers, so main builds them exactly once.
type Deps struct {
	Moves     repository.MoveRepository
	Quants    repository.QuantRepository
	Products  repository.ProductRepository
	Locations repository.LocationRepository
	Ledger    service.QuantLedger
	Reserve   service.ReservationEngine
	MoveSvc   service.MoveService
}

// Wire builds the dependency graph: Handler ← Service ← Repository ← DB/Redis.
func Wire(db *gorm.DB) Deps {
	quantRepo := repository.NewQuantRepository(db)
	moveRepo := repository.NewMoveRepository(db)
	moveLineRepo := repository.NewMoveLineRepository(db)
	locationRepo := repository.NewLocationRepository(db)
	productRepo := repository.NewProductRepository(db)
	uomRepo := repository.NewUomRepository(db)
	lotRepo := repository.NewLotRepository(db)
	pickingRepo := repository.NewPickingRepository(db)

	ledger := service.NewQuantLedger(quantRepo, locationRepo, productRepo, lotRepo)
	reserve := service.NewReservationEngine(moveRepo, moveLineRepo, locationRepo, ledger)
	moveSvc := service.NewMoveService(moveRepo, moveLineRepo, locationRepo, productRepo, uomRepo, pickingRepo, ledger, reserve)

	return Deps{
		Moves:     moveRepo,
		Quants:    quantRepo,
		Products:  productRepo,
		Locations: locationRepo,
		Ledger:    ledger,
		Reserve:   reserve,
		MoveSvc:   moveSvc,
	}
}

// New returns a configured Gin engine on top of the wired dependencies.
func New(cfg *config.Config, deps Deps, db *gorm.DB, rdb *redis.Client) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	dispatcher := worker.NewDispatcher(rdb)

	movesH := handler.NewMovesHandler(deps.MoveSvc, deps.Reserve, deps.Moves, dispatcher)
	quantsH := handler.NewQuantsHandler(deps.Ledger, deps.Quants, deps.Products, deps.Locations)

	// Public
	r.GET("/health", handler.Health(db, rdb))

	api := r.Group("/api", middleware.APIKey(cfg.APIKey))
	{
		moves := api.Group("/moves")
		{
			moves.POST("", movesH.Create)
			moves.GET("", movesH.List)
			moves.GET("/:id", movesH.Get)
			moves.POST("/confirm", movesH.Confirm)
			moves.POST("/assign", movesH.Assign)
			moves.POST("/unreserve", movesH.Unreserve)
			moves.POST("/done", movesH.Done)
			moves.POST("/cancel", movesH.Cancel)
			moves.POST("/:id/split", movesH.Split)
			moves.PATCH("/:id/demand", movesH.SetDemand)
			moves.PATCH("/:id/uom", movesH.SetUom)
			moves.PATCH("/:id/line-done", movesH.SetLineDone)
		}

		quants := api.Group("/quants")
		{
			quants.GET("", quantsH.List)
			quants.GET("/available", quantsH.Availability)
			quants.POST("/adjust", quantsH.Adjust)
			quants.POST("/:id/apply-inventory", quantsH.ApplyInventory)
		}

		api.POST("/admin/quants/maintenance", quantsH.Maintenance)
	}

	return r
}
