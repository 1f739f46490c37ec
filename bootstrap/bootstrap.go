package bootstrap

import (
	"kabonia-backend/internal/config"
	"kabonia-backend/internal/interfaces/router"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New loads configuration and assembles the Fiber app with its backing
// connections. Embedding hosts import this package, not internal.
func New() (*fiber.App, *gorm.DB, *redis.Client, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	app, db, rdb, err := router.CreateApp(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return app, db, rdb, cfg, nil
}
