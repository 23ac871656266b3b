// Command feature-api serves the read side of the feature store: the
// external collaborator that looks up features the pipeline has already
// computed, cache-first with a database fallback, grounded on
// original_source/feature-processor/api.py.
package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/featurepipeline/featurepipeline/internal/api"
	"github.com/featurepipeline/featurepipeline/internal/cache"
	"github.com/featurepipeline/featurepipeline/internal/env"
	"github.com/featurepipeline/featurepipeline/internal/logger"
	"github.com/featurepipeline/featurepipeline/internal/store"
)

func main() {
	logLevel, _ := env.GetAsString("LOGGING_LEVEL", false, "PRODUCTION")
	logger.New(logLevel)

	redisHost, _ := env.GetAsString("REDIS_HOST", false, "localhost")
	redisPort, _ := env.GetAsInt("REDIS_PORT", false, 6379)
	c := cache.New(cache.Options{Addr: redisHost + ":" + strconv.Itoa(redisPort)})
	defer func() {
		if err := c.Close(); err != nil {
			zap.S().Warnw("error closing cache connection", "error", err)
		}
	}()

	postgresConn, _ := env.GetAsString("POSTGRES_CONNECTION_STRING", false, defaultPostgresConnString())
	db, err := store.Connect(context.Background(), postgresConn)
	if err != nil {
		zap.S().Fatalw("failed to connect to the feature store", "error", err)
	}
	defer db.Close()

	server := api.New(c, db, store.ErrNoRows, c.Available, db.Available)
	router := server.Router(prometheus.DefaultRegisterer)

	port, _ := env.GetAsString("API_PORT", false, "8080")
	zap.S().Infow("starting feature-api", "port", port)
	/* #nosec G114 */
	if err := http.ListenAndServe(":"+port, router); err != nil {
		zap.S().Fatalw("feature-api server stopped", "error", err)
	}
}

func defaultPostgresConnString() string {
	host, _ := env.GetAsString("POSTGRES_HOST", false, "localhost")
	port, _ := env.GetAsInt("POSTGRES_PORT", false, 5432)
	dbName, _ := env.GetAsString("POSTGRES_DB", false, "featurepipeline")
	user, _ := env.GetAsString("POSTGRES_USER", false, "featurepipeline")
	password, _ := env.GetAsString("POSTGRES_PASSWORD", false, "")
	return "host=" + host + " port=" + strconv.Itoa(port) + " dbname=" + dbName +
		" user=" + user + " password=" + password + " sslmode=disable"
}
