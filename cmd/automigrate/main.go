package main

import (
	"database/sql"
	"net/http"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/featurepipeline/featurepipeline/cmd/automigrate/migrations"
	"github.com/featurepipeline/featurepipeline/internal/env"
	"github.com/featurepipeline/featurepipeline/internal/logger"
)

func setupLoggingMetricsHealthcheck() healthcheck.Handler {
	logLevel, _ := env.GetAsString("LOGGING_LEVEL", false, "PRODUCTION")
	logger.New(logLevel)

	metricsPath := "/metrics"
	metricsPort := ":2112"
	zap.S().Debugf("Setting up metrics %s %v", metricsPath, metricsPort)

	http.Handle(metricsPath, promhttp.Handler())
	go func() {
		/* #nosec G114 */
		if err := http.ListenAndServe(metricsPort, nil); err != nil {
			zap.S().Errorf("Error starting metrics: %s", err)
		}
	}()

	zap.S().Debugf("Setting up healthcheck")
	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(1_000_000))
	go func() {
		/* #nosec G114 */
		if err := http.ListenAndServe("0.0.0.0:8086", health); err != nil {
			zap.S().Errorf("Error starting healthcheck: %s", err)
		}
	}()
	return health
}

func setupPostgres(health healthcheck.Handler) *sql.DB {
	host, _ := env.GetAsString("POSTGRES_HOST", false, "localhost")
	port, _ := env.GetAsInt("POSTGRES_PORT", false, 5432)
	user, _ := env.GetAsString("POSTGRES_USER", false, "featurepipeline")
	password, _ := env.GetAsString("POSTGRES_PASSWORD", false, "")
	dbName, _ := env.GetAsString("POSTGRES_DB", false, "featurepipeline")
	sslMode, _ := env.GetAsString("POSTGRES_SSLMODE", false, "disable")
	if sslMode != "disable" {
		zap.S().Warnf("Postgres SSL mode is set to %s", sslMode)
	}

	return SetupDB(user, password, dbName, host, port, health, sslMode)
}

func main() {
	health := setupLoggingMetricsHealthcheck()
	db := setupPostgres(health)

	versionStr, _ := env.GetAsString("VERSION", false, "0.1.0")
	target, ok := migrations.StringToSemver(versionStr)
	if !ok {
		zap.S().Fatalf("VERSION is not a valid semver: %s", versionStr)
	}
	migrations.Migrate(target, db)

	ShutdownDB(db)
}

