package config

import (
	"os"
	"strings"
	"time"

	"kabonia-backend/internal/pkg/ids"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env         string
	Port        string
	DatabaseURL string
	RedisURL    string

	// External ledger gateway (custody mint/transfer/audit).
	LedgerGatewayURL string
	LedgerAPIKey     string
	LedgerTimeout    time.Duration

	// Valuation oracle. Recommendations below the confidence threshold are
	// advisory only; caller-supplied amounts win.
	ValuationServiceURL          string
	ValuationConfidenceThreshold float64

	// Service principal credited by unattended batch tokenization. Must be
	// configured explicitly; there is no built-in system identity.
	SystemPrincipalID ids.ID

	// Bounded internal retries when a conditional inventory update loses a race.
	SettlementMaxRetries int

	FrontendURLEndsWith string
	DevPassword         string
	HealthAdminKey      string
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL_DEV")
	}

	threshold := viper.GetFloat64("VALUATION_CONFIDENCE_THRESHOLD")
	if threshold == 0 {
		threshold = 0.8
	}

	timeoutSec := viper.GetInt("LEDGER_TIMEOUT_SECONDS")
	if timeoutSec <= 0 {
		timeoutSec = 15
	}

	maxRetries := viper.GetInt("SETTLEMENT_MAX_RETRIES")
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var principal ids.ID
	if s := viper.GetString("SYSTEM_PRINCIPAL_ID"); s != "" {
		p, err := ids.Parse(s)
		if err != nil {
			return nil, err
		}
		principal = p
	}

	return &Config{
		Env:                          env,
		Port:                         port,
		DatabaseURL:                  dbURL,
		RedisURL:                     viper.GetString("REDIS_URL"),
		LedgerGatewayURL:             viper.GetString("LEDGER_GATEWAY_URL"),
		LedgerAPIKey:                 viper.GetString("LEDGER_API_KEY"),
		LedgerTimeout:                time.Duration(timeoutSec) * time.Second,
		ValuationServiceURL:          viper.GetString("VALUATION_SERVICE_URL"),
		ValuationConfidenceThreshold: threshold,
		SystemPrincipalID:            principal,
		SettlementMaxRetries:         maxRetries,
		FrontendURLEndsWith:          viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:                  viper.GetString("DEV_PASSWORD"),
		HealthAdminKey:               viper.GetString("HEALTH_ADMIN_KEY"),
	}, nil
}
