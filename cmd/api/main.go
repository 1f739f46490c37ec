package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kabonia-backend/bootstrap"
	listsvc "kabonia-backend/internal/application/listings"
	setsvc "kabonia-backend/internal/application/settlement"
	toksvc "kabonia-backend/internal/application/tokenization"
	"kabonia-backend/internal/gateway"
	"kabonia-backend/internal/jobs"
	"kabonia-backend/internal/ledger"
	"kabonia-backend/internal/oracle"

	"github.com/rs/zerolog/log"
)

func main() {
	app, db, rdb, cfg, err := bootstrap.New()
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}

	// Verify connections before announcing readiness
	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			log.Fatal().Err(err).Msg("database handle unavailable")
		}
		if err := sqlDB.Ping(); err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		fmt.Println("Postgres connected")
	}
	if rdb != nil {
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		fmt.Println("Redis connected")
	}

	var scheduler *jobs.Scheduler
	if db != nil {
		gw := gateway.NewClient(cfg.LedgerGatewayURL, cfg.LedgerAPIKey, cfg.LedgerTimeout)
		reader := &ledger.Reader{DB: db}
		scheduler = jobs.New(
			&listsvc.Service{DB: db, Ledger: reader},
			&toksvc.Service{
				DB:                  db,
				Gateway:             gw,
				Oracle:              oracle.NewClient(cfg.ValuationServiceURL),
				ConfidenceThreshold: cfg.ValuationConfidenceThreshold,
			},
			&setsvc.Service{DB: db, Gateway: gw, Ledger: reader, MaxRetries: cfg.SettlementMaxRetries},
			cfg.SystemPrincipalID,
		)
		if err := scheduler.Start(); err != nil {
			log.Fatal().Err(err).Msg("scheduler start failed")
		}
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		if scheduler != nil {
			scheduler.Stop()
		}
		_ = app.Shutdown()
	}()

	fmt.Printf("Server running at http://localhost:%s\n", cfg.Port)
	fmt.Printf("Health check: http://localhost:%s/health/json\n", cfg.Port)
	fmt.Println("---")

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
