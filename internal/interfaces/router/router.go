package router

import (
	"net/http"

	lesvc "kabonia-backend/internal/application/listingevents"
	listsvc "kabonia-backend/internal/application/listings"
	mktsvc "kabonia-backend/internal/application/market"
	projsvc "kabonia-backend/internal/application/projects"
	setsvc "kabonia-backend/internal/application/settlement"
	toksvc "kabonia-backend/internal/application/tokenization"
	"kabonia-backend/internal/config"
	"kabonia-backend/internal/gateway"
	healthsvc "kabonia-backend/internal/health"
	"kabonia-backend/internal/infrastructure/database"
	healthhandler "kabonia-backend/internal/interfaces/handlers/health"
	lehandler "kabonia-backend/internal/interfaces/handlers/listingevents"
	listhandler "kabonia-backend/internal/interfaces/handlers/listings"
	mkthandler "kabonia-backend/internal/interfaces/handlers/market"
	projhandler "kabonia-backend/internal/interfaces/handlers/projects"
	tokhandler "kabonia-backend/internal/interfaces/handlers/tokens"
	"kabonia-backend/internal/ledger"
	"kabonia-backend/internal/middleware"
	"kabonia-backend/internal/oracle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	if g == nil || g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		rdb = redis.NewClient(opts)
		app.Use(middleware.HealthMarker(rdb))
	}
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	hh := &healthhandler.Handlers{
		Rdb: rdb,
		DB:  nil,
		Options: healthsvc.Options{
			LedgerGatewayURL:    cfg.LedgerGatewayURL,
			ValuationServiceURL: cfg.ValuationServiceURL,
		},
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		var errDB error
		db, errDB = database.Open(cfg.DatabaseURL)
		if errDB != nil {
			return nil, nil, nil, errDB
		}
		hh.DB = &gormDBPinger{db: db}
	}

	if db != nil {
		gw := gateway.NewClient(cfg.LedgerGatewayURL, cfg.LedgerAPIKey, cfg.LedgerTimeout)
		reader := &ledger.Reader{DB: db}
		ss := &setsvc.Service{DB: db, Gateway: gw, Ledger: reader, MaxRetries: cfg.SettlementMaxRetries}

		// Tokens
		ts := &toksvc.Service{
			DB:                  db,
			Gateway:             gw,
			Oracle:              oracle.NewClient(cfg.ValuationServiceURL),
			ConfidenceThreshold: cfg.ValuationConfidenceThreshold,
		}
		th := &tokhandler.Handlers{Service: ts, Ledger: reader, Settlement: ss}
		tg := app.Group("/api/v1/tokens")
		tg.Post("/tokenize", th.Tokenize)
		tg.Post("/mint", th.MintAdditional)
		tg.Post("/transfer", th.Transfer)
		tg.Get("/unit-types", th.ListUnitTypes)
		tg.Get("/unit-types/:unit_type_id", th.GetUnitType)
		tg.Get("/balance", th.Balance)
		tg.Get("/readiness/:project_id", th.Readiness)

		// Listings
		ls := &listsvc.Service{DB: db, Ledger: reader}
		lh := &listhandler.Handlers{Service: ls}
		lg := app.Group("/api/v1/listings")
		lg.Post("/", lh.Create)
		lg.Get("/", lh.List)
		lg.Get("/seller/:seller_id", lh.BySeller)
		lg.Get("/:listing_id", lh.GetByID)
		lg.Post("/:listing_id/cancel", lh.Cancel)

		// Listing events (audit trail)
		les := &lesvc.Service{DB: db}
		leh := &lehandler.Handlers{Service: les}
		lg.Get("/:listing_id/events", leh.ByListing)
		app.Get("/api/v1/listing-events/actor/:actor_id", leh.ByActor)

		// Market
		ms := &mktsvc.Service{DB: db, Rdb: rdb}
		mh := &mkthandler.Handlers{Market: ms, Settlement: ss}
		mg := app.Group("/api/v1/market")
		mg.Post("/purchase", mh.Purchase)
		mg.Get("/summary", mh.Summary)
		mg.Get("/history", mh.History)

		// Projects
		ps := &projsvc.Service{DB: db}
		ph := &projhandler.Handlers{Service: ps}
		pg := app.Group("/api/v1/projects")
		pg.Get("/", ph.List)
		pg.Get("/:project_id", ph.GetByID)
	}

	return app, db, rdb, nil
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
